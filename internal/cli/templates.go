package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/diagramcraft/pkg/templates"
)

// templatesCommand lists the built-in example diagrams or prints one.
func (c *CLI) templatesCommand() *cobra.Command {
	var shapes bool

	cmd := &cobra.Command{
		Use:     "templates [name]",
		Aliases: []string{"template"},
		Short:   "List the built-in example diagrams",
		Long: `List the built-in example diagrams, or print one to use as a starting point:

  diagramcraft templates sequence > login.mmd`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: templates.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				t, err := templates.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Println(t.Source)
				return nil
			}
			if shapes {
				printShapes()
				return nil
			}

			rows := make([][]string, 0, len(templates.All()))
			for _, t := range templates.All() {
				rows = append(rows, []string{t.Key, t.Name, t.Description})
			}
			printTable([]string{"Key", "Name", "Description"}, rows)
			printNextStep("Print one", appName+" templates <key>")
			return nil
		},
	}

	cmd.Flags().BoolVar(&shapes, "shapes", false, "show the flowchart shape and arrow reference")
	return cmd
}

func printShapes() {
	rows := make([][]string, 0, len(templates.FlowchartShapes))
	for _, s := range templates.FlowchartShapes {
		rows = append(rows, []string{s.Name, s.Syntax, s.Description})
	}
	printTable([]string{"Shape", "Syntax", "Description"}, rows)

	rows = rows[:0]
	for _, a := range templates.Arrows {
		rows = append(rows, []string{a.Syntax, a.Description})
	}
	printTable([]string{"Arrow", "Description"}, rows)
}
