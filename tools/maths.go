package tools

import (
	"context"
	"errors"
	"math"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

var (
	errUnsupportedExpression = errors.New("unsupported expression")
	errDivisionByZero        = errors.New("division by zero")
	errNotFinite             = errors.New("result is not a finite number")
)

// CalcTool evaluates arithmetic. Only numeric literals and the operators
// + - * / % ** (or ^) and unary +/- are accepted; names, calls and every
// other construct are rejected before evaluation.
type CalcTool struct{}

func (t *CalcTool) Name() string { return "calc" }
func (t *CalcTool) Description() string {
	return "Evaluate basic arithmetic expression and return a JSON result"
}
func (t *CalcTool) Schema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"expression": prop("string", "Arithmetic expression"),
	}, "expression")
}

func (t *CalcTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	expression := stringArg(args, "expression")
	if expression == "" {
		return toolError("empty_expression"), nil
	}
	value, err := Evaluate(expression)
	if err != nil {
		return toolError(err.Error()), nil
	}
	return map[string]interface{}{"expression": expression, "value": value}, nil
}

// number keeps integer results integral so "2+3" yields 5 rather than 5.0.
type number struct {
	f     float64
	exact bool
}

// Evaluate parses and evaluates an arithmetic expression. Integral results
// of integer-only arithmetic come back as int64, everything else as float64.
func Evaluate(expression string) (interface{}, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}
	n, err := evalNode(tree.Node)
	if err != nil {
		return nil, err
	}
	if math.IsInf(n.f, 0) || math.IsNaN(n.f) {
		return nil, errNotFinite
	}
	if n.exact && math.Abs(n.f) < 1<<53 {
		return int64(n.f), nil
	}
	return n.f, nil
}

func evalNode(node ast.Node) (number, error) {
	switch n := node.(type) {
	case *ast.IntegerNode:
		return number{f: float64(n.Value), exact: true}, nil
	case *ast.FloatNode:
		return number{f: n.Value}, nil
	case *ast.UnaryNode:
		v, err := evalNode(n.Node)
		if err != nil {
			return number{}, err
		}
		switch n.Operator {
		case "-":
			v.f = -v.f
			return v, nil
		case "+":
			return v, nil
		}
	case *ast.BinaryNode:
		left, err := evalNode(n.Left)
		if err != nil {
			return number{}, err
		}
		right, err := evalNode(n.Right)
		if err != nil {
			return number{}, err
		}
		return applyBinary(n.Operator, left, right)
	}
	return number{}, errUnsupportedExpression
}

func applyBinary(op string, a, b number) (number, error) {
	exact := a.exact && b.exact
	switch op {
	case "+":
		return number{f: a.f + b.f, exact: exact}, nil
	case "-":
		return number{f: a.f - b.f, exact: exact}, nil
	case "*":
		return number{f: a.f * b.f, exact: exact}, nil
	case "/":
		if b.f == 0 {
			return number{}, errDivisionByZero
		}
		return number{f: a.f / b.f}, nil
	case "%":
		if b.f == 0 {
			return number{}, errDivisionByZero
		}
		r := math.Mod(a.f, b.f)
		// result takes the sign of the divisor
		if r != 0 && (r < 0) != (b.f < 0) {
			r += b.f
		}
		return number{f: r, exact: exact}, nil
	case "**", "^":
		if a.f == 0 && b.f < 0 {
			return number{}, errDivisionByZero
		}
		return number{f: math.Pow(a.f, b.f), exact: exact && b.f >= 0}, nil
	}
	return number{}, errUnsupportedExpression
}

const matrixEpsilon = 1e-10

var (
	errSingularMatrix = errors.New("singular_matrix")
	errNotSquare      = errors.New("matrix_not_square")
)

// MatrixTool runs dense linear algebra on a matrix of numbers.
type MatrixTool struct{}

func (t *MatrixTool) Name() string { return "matrix_operation" }
func (t *MatrixTool) Description() string {
	return "Perform a linear algebra operation on a matrix: determinant, inverse, transpose or reduced row echelon form."
}
func (t *MatrixTool) Schema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"matrix": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}},
			"description": "The matrix as a list of rows, e.g. [[1, 2], [3, 4]].",
		},
		"operation": map[string]interface{}{
			"type":        "string",
			"enum":        []interface{}{"det", "inv", "transpose", "rref"},
			"description": "det (determinant), inv (inverse), transpose, or rref (reduced row echelon form).",
		},
	}, "matrix", "operation")
}

func (t *MatrixTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	op := stringArg(args, "operation")
	m, err := parseMatrix(args["matrix"])
	if err != nil {
		return toolError(err.Error()), nil
	}
	out := map[string]interface{}{"operation": op}
	switch op {
	case "det":
		d, err := determinant(m)
		if err != nil {
			return toolError(err.Error()), nil
		}
		out["result"] = tidy(d)
	case "inv":
		inv, err := inverse(m)
		if err != nil {
			return toolError(err.Error()), nil
		}
		out["result"] = inv
	case "transpose":
		out["result"] = transpose(m)
	case "rref":
		form, pivots := rref(m)
		out["rref_form"] = form
		out["pivots"] = pivots
	default:
		return toolError("unknown matrix operation: " + op), nil
	}
	return out, nil
}

func parseMatrix(v interface{}) ([][]float64, error) {
	rows, ok := v.([]interface{})
	if !ok || len(rows) == 0 {
		return nil, errors.New("empty_matrix")
	}
	m := make([][]float64, len(rows))
	for i, r := range rows {
		cells, ok := r.([]interface{})
		if !ok || len(cells) == 0 {
			return nil, errors.New("empty_matrix")
		}
		if i > 0 && len(cells) != len(m[0]) {
			return nil, errors.New("ragged_matrix")
		}
		m[i] = make([]float64, len(cells))
		for j, c := range cells {
			f, ok := c.(float64)
			if !ok {
				return nil, errors.New("matrix entries must be numbers")
			}
			m[i][j] = f
		}
	}
	return m, nil
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = append([]float64(nil), m[i]...)
	}
	return out
}

// pivotRow returns the row at or below from with the largest entry in col.
func pivotRow(m [][]float64, from, col int) int {
	best := from
	for r := from + 1; r < len(m); r++ {
		if math.Abs(m[r][col]) > math.Abs(m[best][col]) {
			best = r
		}
	}
	return best
}

func determinant(src [][]float64) (float64, error) {
	n := len(src)
	if len(src[0]) != n {
		return 0, errNotSquare
	}
	m := cloneMatrix(src)
	det := 1.0
	for col := 0; col < n; col++ {
		p := pivotRow(m, col, col)
		if math.Abs(m[p][col]) < matrixEpsilon {
			return 0, nil
		}
		if p != col {
			m[p], m[col] = m[col], m[p]
			det = -det
		}
		det *= m[col][col]
		for r := col + 1; r < n; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c < n; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}
	return det, nil
}

func inverse(src [][]float64) ([][]float64, error) {
	n := len(src)
	if len(src[0]) != n {
		return nil, errNotSquare
	}
	aug := make([][]float64, n)
	for i := range src {
		aug[i] = make([]float64, 2*n)
		copy(aug[i], src[i])
		aug[i][n+i] = 1
	}
	form, pivots := rref(aug)
	if len(pivots) < n || pivots[n-1] != n-1 {
		return nil, errSingularMatrix
	}
	out := make([][]float64, n)
	for i := range form {
		out[i] = form[i][n:]
	}
	return out, nil
}

func transpose(m [][]float64) [][]float64 {
	out := make([][]float64, len(m[0]))
	for j := range out {
		out[j] = make([]float64, len(m))
		for i := range m {
			out[j][i] = m[i][j]
		}
	}
	return out
}

// rref reduces a copy of src by Gauss-Jordan elimination and returns the
// pivot column of each non-zero row.
func rref(src [][]float64) ([][]float64, []int) {
	m := cloneMatrix(src)
	rows, cols := len(m), len(m[0])
	pivots := make([]int, 0, rows)
	r := 0
	for col := 0; col < cols && r < rows; col++ {
		p := pivotRow(m, r, col)
		if math.Abs(m[p][col]) < matrixEpsilon {
			continue
		}
		m[p], m[r] = m[r], m[p]
		lead := m[r][col]
		for c := range m[r] {
			m[r][c] /= lead
		}
		for i := range m {
			if i == r {
				continue
			}
			f := m[i][col]
			for c := range m[i] {
				m[i][c] -= f * m[r][c]
			}
		}
		pivots = append(pivots, col)
		r++
	}
	for i := range m {
		for j := range m[i] {
			m[i][j] = tidy(m[i][j])
		}
	}
	return m, pivots
}

// tidy rounds away floating point noise so 2 stays 2 rather than 1.9999999999999998.
func tidy(f float64) float64 {
	if math.Abs(f) < matrixEpsilon {
		return 0
	}
	return math.Round(f*1e10) / 1e10
}
