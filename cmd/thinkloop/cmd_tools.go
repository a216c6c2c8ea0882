package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/framework"
	"github.com/lexcodex/thinkloop/tools"
)

type toolEntry struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// catalogModel stands in for the backend when only the tool catalog is needed.
type catalogModel struct{}

func (catalogModel) Chat(context.Context, []framework.Message, []framework.Tool, *framework.LLMOptions) (*framework.Completion, error) {
	return nil, errors.New("catalog runtime has no backend")
}

// newToolsCmd lists the catalog without touching the backend, so it works
// before any API key is configured.
func newToolsCmd() *cobra.Command {
	var modeName string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools a mode runs with",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := agents.ParseMode(modeName)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := agents.NewRuntime(cfg, catalogModel{}, "")
			if err != nil {
				return err
			}
			defer rt.Close()
			registry, err := rt.Registry(mode)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				entries := make([]toolEntry, 0, registry.Len())
				for _, tool := range registry.All() {
					entries = append(entries, toolEntry{
						Name:        tool.Name(),
						Description: tool.Description(),
						Parameters:  tool.Schema(),
					})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%s mode: %s", mode, strings.Join(rt.Toolkits(mode), ", "))))
			printTools(out, registry)
			fmt.Fprintln(out)
			printNotice(out, "toolkits: "+strings.Join(tools.ToolkitNames(), ", "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&modeName, "mode", "m", string(agents.ModeTool), "Agent mode ("+strings.Join(agents.ModeNames(), ", ")+")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print name, description and parameter schema as JSON")
	return cmd
}
