package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/internal/remote"
	"github.com/notebookci/nbcheck/internal/suite"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify configuration, database, and suite health",
	Long: `Checks that the configuration loads, the run-history database can be
reached and is migrated, credentials are set, the default suite parses, and
the remote report server responds when one is configured.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	allOK := true

	fmt.Println("=== nbcheck doctor ===")
	fmt.Println()

	// Check config
	fmt.Print("Config ................... ")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		fmt.Println()
		fmt.Println(warnStyle.Render("Cannot continue without a readable config — run 'nbcheck init'."))
		return nil
	}
	cfgPath, _ := config.ConfigPath(cfgFile)
	fmt.Printf("OK (%s)\n", cfgPath)

	// Check database + migrations
	fmt.Print("Database ................. ")
	db, err := database.New(cfg.Database)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		if err := db.Ping(ctx); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Printf("OK (%s: %s)\n", db.Driver(), cfg.Database.Path)
		}

		fmt.Print("Migrations ............... ")
		if err := db.Migrate(ctx); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Println("OK (schema up to date)")
		}
		db.Close()
	}

	// Check GitHub token
	fmt.Print("GitHub token ............. ")
	if len(cfg.Git.GitHub) == 0 || cfg.Git.GitHub[0].Token == "" {
		fmt.Println("not configured (only needed for private repos — run 'nbcheck init')")
	} else {
		fmt.Printf("OK (%s)\n", cfg.Git.GitHub[0].Host)
	}

	// Check the default suite
	fmt.Print("Default suite ............ ")
	suiteName := cfg.Check.Suite
	if suiteName == "" {
		suiteName = suite.DefaultSuite
	}
	st, err := suite.Load(suiteName, cfg.Check.SuitesDir)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else if _, err := st.Build(); err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%s, %d check(s))\n", st.Name, len(st.Checks))
	}

	// Check user suites directory
	fmt.Print("Suites directory ......... ")
	suites, err := suite.List(cfg.Check.SuitesDir)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%d suite(s) available)\n", len(suites))
	}

	// Check remote server when configured
	fmt.Print("Report server ............ ")
	if client := remote.New(cfg.Remote); client == nil {
		fmt.Println("not configured (optional)")
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Health(pingCtx)
		cancel()
		if err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Printf("OK (%s)\n", client.BaseURL())
		}
	}

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed — nbcheck is ready!"))
	} else {
		fmt.Println(warnStyle.Render("Some checks failed — run 'nbcheck init' to fix."))
	}

	return nil
}
