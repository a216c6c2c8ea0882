package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/framework"
)

type askOptions struct {
	quiet          bool
	citations      bool
	session        string
	showTranscript bool
	interactive    bool
}

// newModeCmd builds the one-shot command of a mode. Every mode can drop
// into a REPL with --interactive.
func newModeCmd(mode agents.Mode, use, short string) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" && !opts.interactive {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				prompt = strings.TrimSpace(string(data))
			}
			if prompt == "" && !opts.interactive {
				return fmt.Errorf("%w: pass a prompt as arguments or on stdin", framework.ErrEmptyPrompt)
			}
			rt, cleanup, err := openRuntime()
			if err != nil {
				return err
			}
			defer cleanup()
			session, err := rt.NewSession(mode, agents.SessionOptions{ID: opts.session, Citations: opts.citations})
			if err != nil {
				return err
			}
			if opts.interactive {
				return runREPL(cmd, rt, mode, session, opts, prompt)
			}
			return askOnce(cmd, session, prompt, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Hide intermediate agent steps")
	cmd.Flags().BoolVar(&opts.citations, "citations", false, "Turn bare URLs in the answer into [n] markers with a Sources list")
	cmd.Flags().StringVar(&opts.session, "session", "", "Record turns under this session id")
	cmd.Flags().BoolVar(&opts.showTranscript, "show-transcript", mode == agents.ModeReact, "Print the reasoning transcript above the final answer")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Keep asking follow-up prompts until /exit")
	return cmd
}

func askOnce(cmd *cobra.Command, session agents.Session, prompt string, opts askOptions) error {
	var progress framework.ProgressFunc
	if !opts.quiet {
		progress = progressPrinter(cmd.ErrOrStderr())
	}
	res, err := session.AskWithProgress(cmd.Context(), prompt, progress)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res, opts.showTranscript)
	return nil
}

func newChatCmd() *cobra.Command {
	var opts askOptions
	var modeName string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat that keeps the conversation between turns",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := agents.ParseMode(modeName)
			if err != nil {
				return err
			}
			rt, cleanup, err := openRuntime()
			if err != nil {
				return err
			}
			defer cleanup()
			session, err := rt.NewSession(mode, agents.SessionOptions{ID: opts.session, Citations: opts.citations})
			if err != nil {
				return err
			}
			return runREPL(cmd, rt, mode, session, opts, strings.TrimSpace(strings.Join(args, " ")))
		},
	}
	cmd.Flags().StringVarP(&modeName, "mode", "m", string(agents.ModeTool), "Agent mode ("+strings.Join(agents.ModeNames(), ", ")+")")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Hide intermediate agent steps")
	cmd.Flags().BoolVar(&opts.citations, "citations", false, "Format answers with inline citations")
	cmd.Flags().StringVar(&opts.session, "session", "", "Record turns under this session id")
	cmd.Flags().BoolVar(&opts.showTranscript, "show-transcript", false, "Print reasoning transcripts")
	return cmd
}

// runREPL reads prompts line by line. Turn errors go to stderr and the
// loop goes on; only EOF, /exit or a cancelled context end it.
func runREPL(cmd *cobra.Command, rt *agents.Runtime, mode agents.Mode, session agents.Session, opts askOptions, first string) error {
	out := cmd.OutOrStdout()
	printNotice(out, fmt.Sprintf("thinkloop %s mode. /reset, /tools, /help, /exit.", mode))
	turn := func(prompt string) {
		if err := askOnce(cmd, session, prompt, opts); err != nil {
			if cmd.Context().Err() != nil {
				return
			}
			printError(cmd.ErrOrStderr(), err)
		}
	}
	if first != "" {
		turn(first)
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	for {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		fmt.Fprint(out, "› ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			turn(line)
			continue
		}
		switch verb := strings.ToLower(strings.Fields(line)[0]); verb {
		case "/exit", "/quit":
			return nil
		case "/reset":
			session.Reset()
			printNotice(out, "Conversation reset.")
		case "/tools":
			registry, err := rt.Registry(mode)
			if err != nil {
				printError(cmd.ErrOrStderr(), err)
				continue
			}
			printTools(out, registry)
		case "/help":
			printNotice(out, "/reset forgets the conversation, /tools lists tools, /exit quits.")
		default:
			printNotice(out, "unknown command "+verb)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}
