package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/persistence"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{Use: "config", Short: "Create or inspect thinkloop.yaml"}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(flagConfig); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", flagConfig)
			}
			if err := agents.SaveGlobalConfig(flagConfig, agents.DefaultGlobalConfig()); err != nil {
				return err
			}
			cmd.Printf("Config saved to %s\n", flagConfig)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config (file merged over defaults)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	configCmd.AddCommand(initCmd, showCmd)
	return configCmd
}

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{Use: "history", Short: "Inspect sessions recorded with --session"}

	openStore := func() (*persistence.FileSessionStore, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		return persistence.NewFileSessionStore(cfg.Tools.SessionDir)
	}

	showCmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Print the turns of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			turns, err := store.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				return fmt.Errorf("session %s not found", args[0])
			}
			out := cmd.OutOrStdout()
			for i, turn := range turns {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%s  %s", turn.At.Format(time.RFC3339), turn.Mode)))
				fmt.Fprintln(out, nameStyle.Render("> "+strings.TrimSpace(turn.Prompt)))
				fmt.Fprintln(out, answerStyle.Render(strings.TrimSpace(turn.Content)))
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <session>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Clear(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("Session %s cleared\n", args[0])
			return nil
		},
	}

	historyCmd.AddCommand(showCmd, clearCmd)
	return historyCmd
}
