package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stock-analyst/internal/marketdata"
	"stock-analyst/internal/planner"
	"stock-analyst/internal/tools"
)

// addReferenceCommands adds commands that describe what the analyst can do.
func addReferenceCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newPeriodsCmd())
	rootCmd.AddCommand(newExamplesCmd())
}

// toolInfo is the JSON form of a tool spec.
type toolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []paramInfo `json:"params"`
	Outputs     []string    `json:"outputs"`
}

type paramInfo struct {
	Name        string      `json:"name"`
	Kind        string      `json:"kind"`
	Required    bool        `json:"required,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description"`
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the analysis tools a plan can use",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			specs := tools.All()
			if output.IsJSON() {
				infos := make([]toolInfo, 0, len(specs))
				for _, s := range specs {
					info := toolInfo{Name: string(s.Name), Description: s.Description, Outputs: s.OutputFields()}
					for _, p := range s.Params {
						info.Params = append(info.Params, paramInfo{
							Name: p.Name, Kind: string(p.Kind), Required: p.Required,
							Default: p.Default, Description: p.Description,
						})
					}
					infos = append(infos, info)
				}
				return output.JSON(infos)
			}

			for _, s := range specs {
				output.Bold("%s", s.Name)
				output.Printf("  %s\n", s.Description)
				for _, p := range s.Params {
					detail := string(p.Kind)
					if p.Required {
						detail += ", required"
					} else if p.Default != nil {
						detail += fmt.Sprintf(", default %v", p.Default)
					}
					output.Printf("  %-14s %s %s\n", p.Name, output.DimText("("+detail+")"), p.Description)
				}
				output.Printf("  %s %s\n", output.DimText("outputs:"), strings.Join(s.OutputFields(), ", "))
				output.Println()
			}
			return nil
		},
	}
}

func newPeriodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "periods",
		Short: "List the supported lookback periods",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				out := make(map[string]string, len(marketdata.StandardPeriods))
				for _, p := range marketdata.StandardPeriods {
					out[string(p)] = p.Description()
				}
				return output.JSON(out)
			}

			rows := make([][]string, 0, len(marketdata.StandardPeriods))
			for _, p := range marketdata.StandardPeriods {
				escalates := ""
				if next, ok := marketdata.NextPeriod(p); ok {
					escalates = "→ " + string(next)
				}
				rows = append(rows, []string{string(p), p.Description(), escalates})
			}
			output.Table([]string{"PERIOD", "DESCRIPTION", "ESCALATES"}, rows)
			return nil
		},
	}
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show example analysis requests",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			prompts := planner.ExamplePrompts()
			if output.IsJSON() {
				output.JSON(prompts)
				return
			}
			output.Bold("Example requests")
			for _, p := range prompts {
				output.Printf("  stock-analyst analyze %q\n", p)
			}
		},
	}
}
