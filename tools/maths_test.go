package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want interface{}
	}{
		{"2+3", int64(5)},
		{"2 ** 10", int64(1024)},
		{"2 ^ 3", int64(8)},
		{"7 / 2", 3.5},
		{"-7 % 3", int64(2)},
		{"7 % -3", int64(-2)},
		{"-2 ** 2", int64(-4)},
		{"(1 + 2) * 3.5", 10.5},
		{"+4 - -1", int64(5)},
		{"2 ** -1", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateRejectsUnsafeInput(t *testing.T) {
	for _, expr := range []string{"abs(-1)", "x + 1", `"a" + "b"`, "[1, 2]", "1 < 2", "true"} {
		_, err := Evaluate(expr)
		assert.ErrorIs(t, err, errUnsupportedExpression, expr)
	}

	_, err := Evaluate("1 / 0")
	assert.ErrorIs(t, err, errDivisionByZero)
	_, err = Evaluate("5 % 0")
	assert.ErrorIs(t, err, errDivisionByZero)
	_, err = Evaluate("10 ** 400")
	assert.ErrorIs(t, err, errNotFinite)
	_, err = Evaluate("2 +")
	assert.Error(t, err)
}

func TestCalcTool(t *testing.T) {
	tool := &CalcTool{}
	ctx := context.Background()

	out, err := tool.Invoke(ctx, map[string]interface{}{"expression": " 6 * 7 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"expression": "6 * 7", "value": int64(42)}, out)

	out, err = tool.Invoke(ctx, map[string]interface{}{"expression": "  "})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"error": "empty_expression"}, out)

	out, err = tool.Invoke(ctx, map[string]interface{}{"expression": "1/0"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"error": "division by zero"}, out)
}

func TestMatrixTool(t *testing.T) {
	tool := &MatrixTool{}
	ctx := context.Background()
	matrix := func(rows ...[]interface{}) []interface{} {
		out := make([]interface{}, len(rows))
		for i, r := range rows {
			out[i] = r
		}
		return out
	}

	out, err := tool.Invoke(ctx, map[string]interface{}{
		"operation": "det",
		"matrix":    matrix([]interface{}{1.0, 2.0}, []interface{}{3.0, 4.0}),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"operation": "det", "result": -2.0}, out)

	out, err = tool.Invoke(ctx, map[string]interface{}{
		"operation": "inv",
		"matrix":    matrix([]interface{}{4.0, 7.0}, []interface{}{2.0, 6.0}),
	})
	require.NoError(t, err)
	inv := out.(map[string]interface{})["result"].([][]float64)
	want := [][]float64{{0.6, -0.7}, {-0.2, 0.4}}
	for i := range want {
		for j := range want[i] {
			assert.InDelta(t, want[i][j], inv[i][j], 1e-9)
		}
	}

	out, err = tool.Invoke(ctx, map[string]interface{}{
		"operation": "rref",
		"matrix":    matrix([]interface{}{1.0, 2.0, 3.0}, []interface{}{4.0, 5.0, 6.0}),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"operation": "rref",
		"rref_form": [][]float64{{1, 0, -1}, {0, 1, 2}},
		"pivots":    []int{0, 1},
	}, out)

	out, err = tool.Invoke(ctx, map[string]interface{}{
		"operation": "transpose",
		"matrix":    matrix([]interface{}{1.0, 2.0, 3.0}),
	})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {2}, {3}}, out.(map[string]interface{})["result"])
}

func TestMatrixToolErrors(t *testing.T) {
	tool := &MatrixTool{}
	ctx := context.Background()
	tests := []struct {
		op     string
		matrix interface{}
		want   string
	}{
		{"inv", []interface{}{[]interface{}{1.0, 2.0}, []interface{}{2.0, 4.0}}, "singular_matrix"},
		{"det", []interface{}{[]interface{}{1.0, 2.0}}, "matrix_not_square"},
		{"det", []interface{}{}, "empty_matrix"},
		{"det", []interface{}{[]interface{}{1.0}, []interface{}{1.0, 2.0}}, "ragged_matrix"},
		{"eigenvals", []interface{}{[]interface{}{1.0}}, "unknown matrix operation: eigenvals"},
	}
	for _, tt := range tests {
		out, err := tool.Invoke(ctx, map[string]interface{}{"operation": tt.op, "matrix": tt.matrix})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"error": tt.want}, out, tt.want)
	}

	det, err := determinant([][]float64{{1, 2}, {2, 4}})
	require.NoError(t, err)
	assert.Zero(t, det)
}
