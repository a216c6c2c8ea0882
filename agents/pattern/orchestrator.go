package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexcodex/thinkloop/framework"
)

const (
	contextBudget     = 1200
	observationBudget = 1500
)

// Mode selects how much of the orchestration Orchestrator.AskMode runs.
type Mode string

const (
	// ModeFull plans and then executes.
	ModeFull Mode = ""
	// ModePlanner only plans.
	ModePlanner Mode = "planner"
	// ModeReact hands the prompt straight to the executor.
	ModeReact Mode = "react"
)

// ProgressAgent is an agent that reports its steps while it works.
type ProgressAgent interface {
	framework.Agent
	AskWithProgress(ctx context.Context, prompt string, progress framework.ProgressFunc) (*framework.AskResult, error)
}

// Orchestrator plans with a tool-less planner, executes with a ReAct
// executor, and keeps both informed through a shared scoped memory. Every
// executor step is mirrored into memory so the next plan sees a compressed
// history of earlier runs.
type Orchestrator struct {
	Planner  framework.Agent
	Executor ProgressAgent
	Memory   *framework.ScopedMemory
	// Progress receives plan and executor events for Ask.
	Progress framework.ProgressFunc
}

// NewNextAgent wires the default planner/ReAct pair over one model. A zero
// policy selects framework.DefaultMemoryPolicy.
func NewNextAgent(model framework.ChatModel, tools *framework.ToolRegistry, cfg *framework.Config, policy framework.MemoryPolicy) (*Orchestrator, error) {
	planner := NewPlanningLoop(model, PlannerSystemPrompt)
	planner.MaxRounds = 8
	executor := NewReActAgent(model, tools)
	if cfg != nil {
		if err := planner.Initialize(cfg); err != nil {
			return nil, err
		}
		planner.MaxToolIters = 0
		if err := executor.Initialize(cfg); err != nil {
			return nil, err
		}
	}
	return &Orchestrator{
		Planner:  planner,
		Executor: executor,
		Memory:   framework.NewScopedMemory(policy, nil),
	}, nil
}

// Reset clears both roles and the memory.
func (o *Orchestrator) Reset() {
	for _, agent := range []interface{}{o.Planner, o.Executor} {
		if r, ok := agent.(interface{ Reset() }); ok {
			r.Reset()
		}
	}
	if o.Memory != nil {
		o.Memory.ClearAll()
	}
}

// Plan records task, asks the planner with prior summary context and
// records the plan.
func (o *Orchestrator) Plan(ctx context.Context, task string) (*framework.AskResult, error) {
	if strings.TrimSpace(task) == "" {
		return nil, framework.ErrEmptyPrompt
	}
	if o.Planner == nil {
		return nil, fmt.Errorf("orchestrator missing planner")
	}
	o.memory().Add(framework.RoleUser, task, []string{"task"}, framework.MemoryScopeSession)
	prior := o.memory().BuildContext(ctx, []string{"summary", "notes"}, contextBudget)
	res, err := o.Planner.Ask(ctx, PlannerPrompt(task, prior))
	if err != nil {
		return nil, err
	}
	res.Content = strings.TrimSpace(res.Content)
	o.memory().Add(framework.RoleAssistant, res.Content, []string{"plan"}, framework.MemoryScopeSession)
	return res, nil
}

// Execute drives the executor with task, plan and a notes context, mirrors
// each progress event into memory and records the transcript and a clipped
// summary of the run.
func (o *Orchestrator) Execute(ctx context.Context, task, plan string, progress framework.ProgressFunc) (*framework.AskResult, error) {
	if strings.TrimSpace(task) == "" {
		return nil, framework.ErrEmptyPrompt
	}
	o.memory().Add(framework.RoleAssistant, plan, []string{"plan"}, framework.MemoryScopeSession)
	return o.execute(ctx, task, plan, progress)
}

func (o *Orchestrator) execute(ctx context.Context, task, plan string, progress framework.ProgressFunc) (*framework.AskResult, error) {
	if o.Executor == nil {
		return nil, fmt.Errorf("orchestrator missing executor")
	}
	notes := o.memory().BuildContext(ctx, []string{"summary", "notes"}, contextBudget)
	goal := ExecutorPrompt(task, plan, notes)
	res, err := o.Executor.AskWithProgress(ctx, goal, func(p framework.Progress) {
		o.record(p)
		progress.Notify(p)
	})
	if err != nil {
		return nil, err
	}
	if content := strings.TrimSpace(res.Content); content != "" {
		o.memory().Add(framework.RoleAssistant, content, []string{"transcript"}, framework.MemoryScopeSession)
		o.memory().Add(framework.RoleAssistant, framework.NaiveSummarize(content, contextBudget), []string{"summary"}, framework.MemoryScopeSession)
	}
	return res, nil
}

// record mirrors one executor event into memory.
func (o *Orchestrator) record(p framework.Progress) {
	mem := o.memory()
	switch p.Kind {
	case framework.ProgressThink:
		if thought := strings.TrimSpace(p.Thought); thought != "" {
			mem.Add(framework.RoleAssistant, thought, []string{"think", "notes"}, framework.MemoryScopeSession)
		}
		name := strings.TrimSpace(firstNonEmpty(p.ActionName, p.ActionKind))
		say := strings.TrimSpace(p.ActionSay)
		if name != "" || say != "" {
			if name == "" {
				name = "nl"
			}
			mem.Add(framework.RoleAssistant, strings.TrimSpace("action: "+name+" "+say), []string{"action", "notes"}, framework.MemoryScopeSession)
		}
	case framework.ProgressTool:
		args := p.Args
		if args == nil {
			args = map[string]interface{}{}
		}
		mem.Add(framework.RoleTool, strings.TrimSpace(p.Tool)+" "+framework.MarshalText(args), []string{"action"}, framework.MemoryScopeSession)
	case framework.ProgressObserve:
		if obs := strings.TrimSpace(p.Observation); obs != "" {
			mem.Add(framework.RoleSystem, headRunes(obs, observationBudget), []string{"observation", "facts"}, framework.MemoryScopeSession)
		}
	case framework.ProgressJudge:
		if p.Decision == "final" {
			if final := strings.TrimSpace(p.Final); final != "" {
				mem.Add(framework.RoleAssistant, final, []string{"final", "summary"}, framework.MemoryScopeSession)
			}
		}
	}
}

// Ask implements framework.Agent.
func (o *Orchestrator) Ask(ctx context.Context, task string) (*framework.AskResult, error) {
	return o.AskWithProgress(ctx, task, o.Progress)
}

// AskWithProgress plans, reports the plan, then executes. Content is
// "Plan\n<plan>\n\n<executor content>".
func (o *Orchestrator) AskWithProgress(ctx context.Context, task string, progress framework.ProgressFunc) (*framework.AskResult, error) {
	plan, err := o.Plan(ctx, task)
	if err != nil {
		return nil, err
	}
	progress.Notify(framework.Progress{Kind: framework.ProgressPlan, Text: plan.Content})
	work, err := o.execute(ctx, task, plan.Content, progress)
	if err != nil {
		return nil, err
	}
	usage := framework.Usage{}
	for _, r := range []*framework.AskResult{plan, work} {
		if r.Usage != nil {
			usage.Add(*r.Usage)
		}
	}
	return &framework.AskResult{
		Content:    "Plan\n" + plan.Content + "\n\n" + strings.TrimSpace(work.Content),
		Reasoning:  work.Reasoning,
		Usage:      &usage,
		Messages:   append(append([]framework.Message(nil), plan.Messages...), work.Messages...),
		Transcript: work.Transcript,
	}, nil
}

// AskMode runs only the planner, only the executor, or both.
func (o *Orchestrator) AskMode(ctx context.Context, prompt string, mode Mode, progress framework.ProgressFunc) (*framework.AskResult, error) {
	switch mode {
	case ModePlanner:
		return o.Plan(ctx, prompt)
	case ModeReact:
		if o.Executor == nil {
			return nil, fmt.Errorf("orchestrator missing executor")
		}
		return o.Executor.AskWithProgress(ctx, prompt, progress)
	case ModeFull:
		return o.AskWithProgress(ctx, prompt, progress)
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func (o *Orchestrator) memory() *framework.ScopedMemory {
	if o.Memory == nil {
		o.Memory = framework.NewScopedMemory(framework.MemoryPolicy{}, nil)
	}
	return o.Memory
}

func headRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
