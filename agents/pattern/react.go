package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lexcodex/thinkloop/framework"
)

const (
	defaultMaxSteps = 6
	budgetNote      = "(Note: step budget exhausted; this answer may be incomplete.)"
)

// ReActAgent runs the Thought → Action → Observation loop: a Thinker
// proposes, an Operator acts, a Validator judges. The loop is a small graph:
// think → operate → judge → think | finalize | done.
type ReActAgent struct {
	Model           framework.ChatModel
	Tools           *framework.ToolRegistry
	MaxSteps        int
	ModelID         string
	Temperature     float64
	ReasoningEffort framework.ReasoningEffort
	ThinkerPrompt   string
	ValidatorPrompt string
	Telemetry       framework.Telemetry
	// Progress receives step events for Ask; AskWithProgress overrides it.
	Progress framework.ProgressFunc
	Config   *framework.Config
}

// NewReActAgent builds an agent with the default step budget.
func NewReActAgent(model framework.ChatModel, tools *framework.ToolRegistry) *ReActAgent {
	return &ReActAgent{
		Model:       model,
		Tools:       tools,
		MaxSteps:    defaultMaxSteps,
		Temperature: defaultTemperature,
	}
}

// Initialize wires configuration.
func (a *ReActAgent) Initialize(cfg *framework.Config) error {
	a.Config = cfg
	if cfg == nil {
		return nil
	}
	if cfg.Model != "" {
		a.ModelID = cfg.Model
	}
	a.Temperature = cfg.Temperature
	if cfg.ReasoningEffort != "" {
		a.ReasoningEffort = cfg.ReasoningEffort
	}
	if cfg.MaxSteps > 0 {
		a.MaxSteps = cfg.MaxSteps
	}
	if cfg.Telemetry != nil {
		a.Telemetry = cfg.Telemetry
	}
	if a.Tools == nil {
		a.Tools = framework.NewToolRegistry()
	}
	return nil
}

// debugf logs formatted messages whenever agent debug logging is enabled.
func (a *ReActAgent) debugf(format string, args ...interface{}) {
	if a == nil || a.Config == nil || !a.Config.DebugAgent {
		return
	}
	slog.Debug(fmt.Sprintf(format, args...), "component", "react")
}

// Ask implements framework.Agent.
func (a *ReActAgent) Ask(ctx context.Context, goal string) (*framework.AskResult, error) {
	return a.AskWithProgress(ctx, goal, a.Progress)
}

// AskWithProgress runs the loop for goal. The content is the display
// transcript followed by "Final Answer: <text>". Backend errors from any
// sub-role end the run and are returned as-is.
func (a *ReActAgent) AskWithProgress(ctx context.Context, goal string, progress framework.ProgressFunc) (*framework.AskResult, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, framework.ErrEmptyPrompt
	}
	if a.MaxSteps < 1 {
		return nil, fmt.Errorf("%w: max_steps=%d", framework.ErrInvalidBudget, a.MaxSteps)
	}
	if a.Model == nil {
		return nil, fmt.Errorf("react agent missing language model")
	}
	run := a.newRun(goal, progress)
	graph, err := a.BuildGraph(run)
	if err != nil {
		return nil, err
	}
	if a.Telemetry != nil {
		graph.SetTelemetry(a.Telemetry)
	}
	state := framework.NewContext()
	state.Set("run.id", NewRunID("react"))
	state.Set("react.step", 0)
	state.Set("react.done", false)

	framework.Emit(a.Telemetry, framework.Event{Type: framework.EventAgentStart, RunID: state.GetString("run.id"), Message: clipText(goal, 256)})
	if _, err := graph.Execute(ctx, state); err != nil {
		return nil, unwrapNodeError(err)
	}
	framework.Emit(a.Telemetry, framework.Event{Type: framework.EventAgentFinish, RunID: state.GetString("run.id"), Metadata: map[string]interface{}{"steps": len(run.steps)}})
	return run.result(), nil
}

// BuildGraph constructs the ReAct workflow for one run.
func (a *ReActAgent) BuildGraph(run *reactRun) (*framework.Graph, error) {
	graph := framework.NewGraph()
	think := &reactThinkNode{id: "react_think", run: run}
	operate := &reactOperateNode{id: "react_operate", run: run}
	judge := &reactJudgeNode{id: "react_judge", run: run}
	finalize := &reactFinalizeNode{id: "react_finalize", run: run}
	done := framework.NewTerminalNode("react_done")

	for _, node := range []framework.Node{think, operate, judge, finalize, done} {
		if err := graph.AddNode(node); err != nil {
			return nil, err
		}
	}
	if err := graph.SetStart(think.ID()); err != nil {
		return nil, err
	}
	edges := []framework.Edge{
		{From: think.ID(), To: done.ID(), Condition: isDone},
		{From: think.ID(), To: operate.ID(), Condition: notDone},
		{From: operate.ID(), To: judge.ID()},
		{From: judge.ID(), To: done.ID(), Condition: isDone},
		{From: judge.ID(), To: think.ID(), Condition: func(r *framework.Result, s *framework.Context) bool {
			return !isDone(r, s) && s.GetInt("react.step") < run.maxSteps
		}},
		{From: judge.ID(), To: finalize.ID(), Condition: func(r *framework.Result, s *framework.Context) bool {
			return !isDone(r, s) && s.GetInt("react.step") >= run.maxSteps
		}},
		{From: finalize.ID(), To: done.ID()},
	}
	for _, e := range edges {
		if err := graph.AddEdge(e.From, e.To, e.Condition); err != nil {
			return nil, err
		}
	}
	graph.SetMaxNodeVisits(run.maxSteps + 1)
	return graph, nil
}

func isDone(_ *framework.Result, s *framework.Context) bool { return s.GetBool("react.done") }
func notDone(r *framework.Result, s *framework.Context) bool {
	return !isDone(r, s)
}

// unwrapNodeError strips the graph's "node x:" wrapping so callers see the
// backend error types directly through errors.As as well as the message.
func unwrapNodeError(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok && u.Unwrap() != nil {
		return u.Unwrap()
	}
	return err
}

// reactRun holds the mutable record of one Ask.
type reactRun struct {
	agent     *ReActAgent
	goal      string
	catalog   string
	maxSteps  int
	thinker   *Thinker
	operator  *Operator
	validator *Validator
	progress  framework.ProgressFunc

	steps      []ReActStep
	display    []string
	pending    ReActStep
	final      string
	truncated  bool
	usage      framework.Usage
	reasoning  string
	lastStep   string
	transcript []string
}

func (a *ReActAgent) newRun(goal string, progress framework.ProgressFunc) *reactRun {
	thinker := NewThinker(a.Model, a.ThinkerPrompt)
	validator := NewValidator(a.Model, a.ValidatorPrompt)
	for _, loop := range []*ToolLoopAgent{thinker.loop, validator.loop} {
		loop.ModelID = a.ModelID
		loop.Temperature = a.Temperature
		loop.ReasoningEffort = a.ReasoningEffort
		loop.Telemetry = a.Telemetry
		loop.Config = a.Config
	}
	catalog := "No tools available."
	if a.Tools != nil {
		catalog = a.Tools.Catalog()
	}
	return &reactRun{
		agent:     a,
		goal:      goal,
		catalog:   catalog,
		maxSteps:  a.MaxSteps,
		thinker:   thinker,
		operator:  &Operator{Tools: a.Tools, Telemetry: a.Telemetry},
		validator: validator,
		progress:  progress,
	}
}

func (r *reactRun) account(res *framework.AskResult) {
	if res == nil {
		return
	}
	if res.Usage != nil {
		r.usage.Add(*res.Usage)
	}
	if res.Reasoning != "" {
		r.reasoning = res.Reasoning
	}
}

func (r *reactRun) modelTranscript() string {
	return strings.Join(r.transcript, "\n\n")
}

func (r *reactRun) displayTranscript() string {
	return strings.Join(r.display, "\n")
}

func (r *reactRun) result() *framework.AskResult {
	display := strings.TrimSpace(r.displayTranscript())
	content := framework.FinalAnswerMarker + " " + r.final
	if display != "" {
		content = display + "\n" + content
	}
	usage := r.usage
	return &framework.AskResult{
		Content:    content,
		Reasoning:  r.reasoning,
		Usage:      &usage,
		Transcript: display,
		Messages: []framework.Message{
			{Role: framework.RoleUser, Content: r.goal},
			{Role: framework.RoleAssistant, Content: content},
		},
	}
}

// --- ReAct graph nodes ---

type reactThinkNode struct {
	id  string
	run *reactRun
}

// ID returns the think node identifier.
func (n *reactThinkNode) ID() string { return n.id }

// Type marks the think step as an LLM node.
func (n *reactThinkNode) Type() framework.NodeType { return framework.NodeTypeLLM }

// Execute asks the Thinker for the next step. A finish action ends the run
// without touching the Operator or Validator.
func (n *reactThinkNode) Execute(ctx context.Context, state *framework.Context) (*framework.Result, error) {
	run := n.run
	step := state.GetInt("react.step") + 1
	state.Set("react.step", step)

	res, thought, action, err := run.thinker.Think(ctx, run.goal, run.catalog, run.modelTranscript())
	if err != nil {
		return nil, err
	}
	run.account(res)
	run.agent.debugf("step %d: thought=%q action=%s", step, thought, action)

	displayThought := thought
	if displayThought == "" && action.Kind == ActionFinish {
		displayThought = action.Say
	}
	run.display = append(run.display, "Thought: "+displayThought, "Action: "+action.String())
	run.pending = ReActStep{Index: step, Thought: thought, Action: action}
	run.progress.Notify(framework.Progress{
		Kind:       framework.ProgressThink,
		Step:       step,
		Thought:    thought,
		ActionKind: string(action.Kind),
		ActionName: action.Name,
		ActionSay:  action.Say,
	})

	if action.Kind == ActionFinish {
		run.final = action.Say
		state.Set("react.done", true)
		run.progress.Notify(framework.Progress{Kind: framework.ProgressJudge, Step: step, Decision: "final", Final: action.Say})
	}
	return &framework.Result{Success: true, Data: map[string]interface{}{"step": step, "action": string(action.Kind)}}, nil
}

type reactOperateNode struct {
	id  string
	run *reactRun
}

// ID returns the operate node identifier.
func (n *reactOperateNode) ID() string { return n.id }

// Type marks the operate step as a tool node.
func (n *reactOperateNode) Type() framework.NodeType { return framework.NodeTypeTool }

// Execute hands the pending action to the Operator and records the step.
func (n *reactOperateNode) Execute(ctx context.Context, state *framework.Context) (*framework.Result, error) {
	run := n.run
	op := run.operator.Operate(ctx, run.pending.Action, run.progress)
	step := run.pending
	step.Observation = op.Observation
	run.steps = append(run.steps, step)
	run.transcript = append(run.transcript, step.Text())
	run.lastStep = step.Text()
	run.display = append(run.display, "Observation: "+op.Observation)
	run.progress.Notify(framework.Progress{Kind: framework.ProgressObserve, Step: step.Index, Tool: op.Tool, Observation: op.Observation})
	return &framework.Result{Success: !op.Failed, Data: map[string]interface{}{"tool": op.Tool, "invoked": op.Invoked}}, nil
}

type reactJudgeNode struct {
	id  string
	run *reactRun
}

// ID returns the judge node identifier.
func (n *reactJudgeNode) ID() string { return n.id }

// Type marks the judge step as a conditional node.
func (n *reactJudgeNode) Type() framework.NodeType { return framework.NodeTypeConditional }

// Execute asks the Validator whether the goal is answered.
func (n *reactJudgeNode) Execute(ctx context.Context, state *framework.Context) (*framework.Result, error) {
	run := n.run
	res, verdict, err := run.validator.Judge(ctx, run.goal, run.lastStep, run.modelTranscript())
	if err != nil {
		return nil, err
	}
	run.account(res)
	step := state.GetInt("react.step")
	if verdict.Final {
		run.final = verdict.Answer
		state.Set("react.done", true)
		run.progress.Notify(framework.Progress{Kind: framework.ProgressJudge, Step: step, Decision: "final", Final: verdict.Answer})
	} else {
		run.progress.Notify(framework.Progress{Kind: framework.ProgressJudge, Step: step, Decision: "continue"})
	}
	return &framework.Result{Success: true, Data: map[string]interface{}{"final": verdict.Final}}, nil
}

type reactFinalizeNode struct {
	id  string
	run *reactRun
}

// ID returns the finalize node identifier.
func (n *reactFinalizeNode) ID() string { return n.id }

// Type marks the finalize step as an LLM node.
func (n *reactFinalizeNode) Type() framework.NodeType { return framework.NodeTypeLLM }

// Execute forces a best-effort answer once the step budget is spent.
func (n *reactFinalizeNode) Execute(ctx context.Context, state *framework.Context) (*framework.Result, error) {
	run := n.run
	res, answer, err := run.validator.Finalize(ctx, run.goal, run.modelTranscript())
	if err != nil {
		return nil, err
	}
	run.account(res)
	run.truncated = true
	run.final = strings.TrimSpace(answer + "\n\n" + budgetNote)
	state.Set("react.done", true)
	run.progress.Notify(framework.Progress{Kind: framework.ProgressJudge, Step: state.GetInt("react.step"), Decision: "final", Final: run.final})
	return &framework.Result{Success: true, Data: map[string]interface{}{"truncated": true}}, nil
}
