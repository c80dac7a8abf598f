package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/suite"
	"github.com/spf13/cobra"
)

var suiteCmd = &cobra.Command{
	Use:   "suite",
	Short: "Inspect check suites",
}

var suiteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available suites (user-defined and bundled)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		suites, err := suite.List(cfg.Check.SuitesDir)
		if err != nil {
			return err
		}
		sort.Slice(suites, func(i, j int) bool { return suites[i].Name < suites[j].Name })

		for _, s := range suites {
			origin := "user"
			if s.Bundled {
				origin = "bundled"
			}
			marker := " "
			if s.Name == firstNonEmptyStr(cfg.Check.Suite, suite.DefaultSuite) {
				marker = "*"
			}
			fmt.Printf("%s %-20s %-8s %d check(s)  %s\n",
				marker, s.Name, origin, len(s.Checks), s.Description)
		}
		fmt.Println("\n* default suite. Change it with: nbcheck config set check.suite <name>")
		return nil
	},
}

var suiteShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a suite's checks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		s, err := suite.Load(args[0], cfg.Check.SuitesDir)
		if err != nil {
			return err
		}

		fmt.Printf("Suite: %s\n", s.Name)
		if s.Description != "" {
			fmt.Printf("  %s\n", s.Description)
		}
		if len(s.Notebooks) > 0 {
			fmt.Printf("Notebooks: %s\n", strings.Join(s.Notebooks, ", "))
		} else {
			fmt.Println("Notebooks: all *.ipynb under the target")
		}
		fmt.Println("Checks:")
		for _, c := range s.Checks {
			switch c.Type {
			case "no_error_outputs":
				fmt.Printf("  %-16s %s\n", c.ID, "no cell may carry an error output")
			case "output_value":
				mime := c.Mime
				if mime == "" {
					mime = "text/plain"
				}
				fmt.Printf("  %-16s cell /%s/ must output one of %v (%s)\n",
					c.ID, c.CellPattern, c.Accept, mime)
			default:
				fmt.Printf("  %-16s %s\n", c.ID, c.Type)
			}
		}
		return nil
	},
}

func init() {
	suiteCmd.AddCommand(suiteListCmd, suiteShowCmd)
}
