package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexcodex/thinkloop/framework"
)

// PlannerAgent builds a plan before executing. A tool-less planner writes
// the plan, then any executor agent carries it out with the task and plan
// as its prompt. The workflow is a plan → execute graph.
type PlannerAgent struct {
	Planner  *ToolLoopAgent
	Executor framework.Agent
	Config   *framework.Config
}

// NewPlannerAgent pairs a planner with a tool loop worker over tools.
func NewPlannerAgent(model framework.ChatModel, tools *framework.ToolRegistry) *PlannerAgent {
	worker := NewToolLoopAgent(model, tools)
	worker.SystemPrompt = WorkerSystemPrompt
	return &PlannerAgent{
		Planner:  NewPlanningLoop(model, BriefPlannerSystemPrompt),
		Executor: worker,
	}
}

// NewPlanningLoop configures a tool loop that never calls tools.
func NewPlanningLoop(model framework.ChatModel, systemPrompt string) *ToolLoopAgent {
	planner := NewToolLoopAgent(model, nil)
	planner.SystemPrompt = systemPrompt
	planner.ToolChoice = "none"
	planner.MaxToolIters = 0
	planner.DisableInlineTools = true
	return planner
}

// Initialize configures both roles. The planner keeps its zero tool budget.
func (a *PlannerAgent) Initialize(cfg *framework.Config) error {
	a.Config = cfg
	if a.Planner != nil {
		if err := a.Planner.Initialize(cfg); err != nil {
			return err
		}
		a.Planner.MaxToolIters = 0
	}
	if init, ok := a.Executor.(interface {
		Initialize(*framework.Config) error
	}); ok {
		return init.Initialize(cfg)
	}
	return nil
}

// Reset clears the conversation state of both roles.
func (a *PlannerAgent) Reset() {
	if a.Planner != nil {
		a.Planner.Reset()
	}
	if r, ok := a.Executor.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// Plan returns the planner's answer for task.
func (a *PlannerAgent) Plan(ctx context.Context, task string) (*framework.AskResult, error) {
	if a.Planner == nil {
		return nil, fmt.Errorf("planner agent missing planner")
	}
	return a.Planner.Ask(ctx, task)
}

// Ask implements framework.Agent. Content is "Plan\n<plan>\n\nFinal
// Answer\n<work>".
func (a *PlannerAgent) Ask(ctx context.Context, task string) (*framework.AskResult, error) {
	if strings.TrimSpace(task) == "" {
		return nil, framework.ErrEmptyPrompt
	}
	graph, err := a.BuildGraph(task)
	if err != nil {
		return nil, err
	}
	state := framework.NewContext()
	state.Set("run.id", NewRunID("planner"))
	if _, err := graph.Execute(ctx, state); err != nil {
		return nil, unwrapNodeError(err)
	}
	planVal, _ := state.Get("planner.result")
	workVal, _ := state.Get("planner.work")
	plan, _ := planVal.(*framework.AskResult)
	work, _ := workVal.(*framework.AskResult)
	if plan == nil || work == nil {
		return nil, fmt.Errorf("planner agent produced no result")
	}

	usage := framework.Usage{}
	if plan.Usage != nil {
		usage.Add(*plan.Usage)
	}
	if work.Usage != nil {
		usage.Add(*work.Usage)
	}
	messages := append(append([]framework.Message(nil), plan.Messages...), work.Messages...)
	return &framework.AskResult{
		Content:    "Plan\n" + plan.Content + "\n\nFinal Answer\n" + work.Content,
		Reasoning:  work.Reasoning,
		Usage:      &usage,
		Messages:   messages,
		Transcript: work.Transcript,
	}, nil
}

// BuildGraph builds the plan → execute pipeline for task.
func (a *PlannerAgent) BuildGraph(task string) (*framework.Graph, error) {
	if a.Planner == nil || a.Executor == nil {
		return nil, fmt.Errorf("planner agent requires planner and executor")
	}
	graph := framework.NewGraph()
	planNode := &plannerPlanNode{id: "planner_plan", agent: a, task: task}
	execNode := &plannerExecuteNode{id: "planner_execute", agent: a, task: task}
	done := framework.NewTerminalNode("planner_done")

	for _, node := range []framework.Node{planNode, execNode, done} {
		if err := graph.AddNode(node); err != nil {
			return nil, err
		}
	}
	if err := graph.SetStart(planNode.ID()); err != nil {
		return nil, err
	}
	if err := graph.AddEdge(planNode.ID(), execNode.ID(), nil); err != nil {
		return nil, err
	}
	if err := graph.AddEdge(execNode.ID(), done.ID(), nil); err != nil {
		return nil, err
	}
	return graph, nil
}

type plannerPlanNode struct {
	id    string
	agent *PlannerAgent
	task  string
}

func (n *plannerPlanNode) ID() string               { return n.id }
func (n *plannerPlanNode) Type() framework.NodeType { return framework.NodeTypeLLM }

func (n *plannerPlanNode) Execute(ctx context.Context, state *framework.Context) (*framework.Result, error) {
	res, err := n.agent.Plan(ctx, n.task)
	if err != nil {
		return nil, err
	}
	state.Set("planner.result", res)
	state.Set("planner.plan", res.Content)
	return &framework.Result{Success: true, Data: map[string]interface{}{"plan": res.Content}}, nil
}

type plannerExecuteNode struct {
	id    string
	agent *PlannerAgent
	task  string
}

func (n *plannerExecuteNode) ID() string               { return n.id }
func (n *plannerExecuteNode) Type() framework.NodeType { return framework.NodeTypeLLM }

// Execute hands the task and plan to the executor.
func (n *plannerExecuteNode) Execute(ctx context.Context, state *framework.Context) (*framework.Result, error) {
	res, err := n.agent.Executor.Ask(ctx, WorkerPrompt(n.task, state.GetString("planner.plan")))
	if err != nil {
		return nil, err
	}
	state.Set("planner.work", res)
	return &framework.Result{Success: true, Data: map[string]interface{}{"content": res.Content}}, nil
}
