package framework

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// NodeType enumerates supported node categories.
type NodeType string

const (
	NodeTypeLLM         NodeType = "llm"
	NodeTypeTool        NodeType = "tool"
	NodeTypeConditional NodeType = "conditional"
	NodeTypeTerminal    NodeType = "terminal"
	NodeTypeObservation NodeType = "observation"
)

// Node describes the unit of work executed inside a graph.
type Node interface {
	ID() string
	Type() NodeType
	Execute(ctx context.Context, state *Context) (*Result, error)
}

// ConditionFunc determines whether an edge should be followed.
type ConditionFunc func(result *Result, state *Context) bool

// Edge describes a transition between nodes.
type Edge struct {
	From      string
	To        string
	Condition ConditionFunc
}

// Graph is a small deterministic state machine: nodes are registered ahead
// of time, edges describe transitions, and Execute walks the graph while
// emitting telemetry and bounding node visits.
type Graph struct {
	mu            sync.RWMutex
	nodes         map[string]Node
	edges         map[string][]Edge
	startNodeID   string
	maxNodeVisits int
	telemetry     Telemetry
	execMu        sync.Mutex
	visitCounts   map[string]int
	executionPath []string
}

// NewGraph creates a graph with sane defaults.
func NewGraph() *Graph {
	return &Graph{
		nodes:         make(map[string]Node),
		edges:         make(map[string][]Edge),
		maxNodeVisits: 1024,
		visitCounts:   make(map[string]int),
	}
}

// SetMaxNodeVisits bounds how often any single node may run.
func (g *Graph) SetMaxNodeVisits(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n > 0 {
		g.maxNodeVisits = n
	}
}

// SetTelemetry wires a telemetry sink for execution traces.
func (g *Graph) SetTelemetry(t Telemetry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.telemetry = t
}

func (g *Graph) emit(event Event) {
	g.mu.RLock()
	telemetry := g.telemetry
	g.mu.RUnlock()
	Emit(telemetry, event)
}

// SetStart marks the starting node.
func (g *Graph) SetStart(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("start node %s not found", id)
	}
	g.startNodeID = id
	return nil
}

// AddNode registers a node.
func (g *Graph) AddNode(node Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[node.ID()]; exists {
		return fmt.Errorf("node %s already exists", node.ID())
	}
	g.nodes[node.ID()] = node
	return nil
}

// AddEdge wires two nodes together. A nil condition always matches.
func (g *Graph) AddEdge(from, to string, condition ConditionFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("node %s not defined", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("node %s not defined", to)
	}
	g.edges[from] = append(g.edges[from], Edge{From: from, To: to, Condition: condition})
	return nil
}

// ExecutionPath returns the node ids visited by the last run.
func (g *Graph) ExecutionPath() []string {
	g.execMu.Lock()
	defer g.execMu.Unlock()
	return append([]string(nil), g.executionPath...)
}

// Execute runs the graph from its start node and returns the last node's
// result.
func (g *Graph) Execute(ctx context.Context, state *Context) (*Result, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	runID := state.GetString("run.id")
	g.emit(Event{Type: EventGraphStart, RunID: runID})
	result, err := g.run(ctx, state, runID)
	status := "success"
	if err != nil {
		status = "error"
	}
	g.emit(Event{Type: EventGraphFinish, RunID: runID, Metadata: map[string]interface{}{"status": status}})
	return result, err
}

func (g *Graph) run(ctx context.Context, state *Context, runID string) (*Result, error) {
	g.execMu.Lock()
	defer g.execMu.Unlock()
	g.visitCounts = make(map[string]int)
	g.executionPath = g.executionPath[:0]

	g.mu.RLock()
	current := g.startNodeID
	g.mu.RUnlock()

	var lastResult *Result
	for current != "" {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		g.mu.RLock()
		node, ok := g.nodes[current]
		g.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("node %s missing", current)
		}
		g.visitCounts[current]++
		if g.visitCounts[current] > g.maxNodeVisits {
			return nil, fmt.Errorf("potential cycle detected at node %s", current)
		}
		g.executionPath = append(g.executionPath, current)
		g.emit(Event{Type: EventNodeStart, NodeID: current, RunID: runID})
		result, err := node.Execute(ctx, state)
		if err != nil {
			g.emit(Event{Type: EventNodeError, NodeID: current, RunID: runID, Message: err.Error()})
			return nil, fmt.Errorf("node %s: %w", current, err)
		}
		if result == nil {
			result = &Result{Success: true, Data: map[string]interface{}{}}
		}
		result.NodeID = current
		lastResult = result
		g.emit(Event{
			Type:     EventNodeFinish,
			NodeID:   current,
			RunID:    runID,
			Metadata: map[string]interface{}{"success": result.Success},
		})
		next, err := g.nextNode(node, result, state)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return lastResult, nil
}

// nextNode picks the single matching outgoing edge. Terminal nodes and nodes
// without matching edges end the run; more than one match is an error.
func (g *Graph) nextNode(node Node, result *Result, state *Context) (string, error) {
	if node.Type() == NodeTypeTerminal {
		return "", nil
	}
	g.mu.RLock()
	outEdges := g.edges[node.ID()]
	g.mu.RUnlock()
	var matched []Edge
	for _, edge := range outEdges {
		if edge.Condition != nil && !edge.Condition(result, state) {
			continue
		}
		matched = append(matched, edge)
	}
	switch len(matched) {
	case 0:
		return "", nil
	case 1:
		return matched[0].To, nil
	default:
		return "", fmt.Errorf("ambiguous transitions from %s", node.ID())
	}
}

// Validate ensures the graph has a start node and every edge resolves.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.nodes) == 0 {
		return errors.New("graph has no nodes")
	}
	if g.startNodeID == "" {
		return errors.New("graph has no start node")
	}
	for from, edges := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("edge references missing node %s", from)
		}
		for _, edge := range edges {
			if _, ok := g.nodes[edge.To]; !ok {
				return fmt.Errorf("edge references missing node %s", edge.To)
			}
		}
	}
	return nil
}

// TerminalNode marks the end of the workflow.
type TerminalNode struct {
	id string
}

// NewTerminalNode creates a terminal node.
func NewTerminalNode(id string) *TerminalNode {
	return &TerminalNode{id: id}
}

// ID implements Node.
func (n *TerminalNode) ID() string { return n.id }

// Type implements Node.
func (n *TerminalNode) Type() NodeType { return NodeTypeTerminal }

// Execute completes immediately.
func (n *TerminalNode) Execute(ctx context.Context, state *Context) (*Result, error) {
	return &Result{NodeID: n.id, Success: true}, nil
}
