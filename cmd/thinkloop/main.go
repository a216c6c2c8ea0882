// Command thinkloop runs the agent modes from the terminal: one-shot asks,
// a line REPL, a full-screen chat, the HTTP API and a JSON-RPC endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/baalimago/go_away_boilerplate/pkg/shutdown"
	"github.com/spf13/cobra"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/framework"
)

var (
	flagConfig  string
	flagModel   string
	flagBaseURL string
	flagDebug   bool
)

func main() {
	ancli.SetupSlog()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { shutdown.Monitor(cancel) }()
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(reportError(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "thinkloop",
		Short:         "Tool-calling, ReAct and plan-then-act agents over OpenAI-compatible backends",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug && !misc.Truthy(os.Getenv("DEBUG")) {
				_ = os.Setenv("DEBUG", "true")
				ancli.SetupSlog()
			}
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", agents.DefaultConfigFile, "Path to the YAML config file")
	root.PersistentFlags().StringVar(&flagModel, "model", "", "Model id (overrides MODEL_ID and the config file)")
	root.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "OpenAI-compatible base URL (overrides the environment)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Log backend payloads and agent steps")

	root.AddCommand(
		newModeCmd(agents.ModeTool, "ask [prompt]", "Answer one prompt with the tool-calling loop"),
		newChatCmd(),
		newModeCmd(agents.ModeReact, "react [prompt]", "Solve a task with Thinker, Operator and Validator steps"),
		newModeCmd(agents.ModeNext, "next [prompt]", "Plan first, then act with a ReAct executor"),
		newModeCmd(agents.ModePlanner, "plan [prompt]", "Draft a brief plan, then let a tool-calling worker follow it"),
		newModeCmd(agents.ModeResearch, "research [topic]", "Research a topic on the web and cite the sources"),
		newToolsCmd(),
		newServeCmd(),
		newRPCCmd(),
		newTUICmd(),
		newConfigCmd(),
		newHistoryCmd(),
	)
	return root
}

// reportError prints err and picks the exit status: 2 for configuration
// problems, 1 for everything else.
func reportError(err error) int {
	if errors.Is(err, context.Canceled) {
		return 1
	}
	ancli.PrintErr(fmt.Sprintf("%v\n", err))
	return exitCode(err)
}

func exitCode(err error) int {
	var cfgErr *framework.ConfigurationError
	if errors.As(err, &cfgErr) {
		ancli.PrintWarn("ensure OPENROUTER_API_KEY (or OPENAI_API_KEY) is set\n")
		return 2
	}
	return 1
}
