package cmd

import (
	"context"
	"fmt"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/repository"
	"github.com/spf13/cobra"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the repository watchlist",
	Long:  `Add, remove, list, and browse repositories whose notebooks you check regularly.`,
}

var repoAddCmd = &cobra.Command{
	Use:   "add <owner/repo>",
	Short: "Add a repository to the watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		target := args[0]
		for _, w := range cfg.Check.Watchlist {
			if w == target {
				fmt.Printf("%s is already in the watchlist\n", target)
				return nil
			}
		}
		cfg.Check.Watchlist = append(cfg.Check.Watchlist, target)
		cfgPath, _ := config.ConfigPath(cfgFile)
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("Added %s to watchlist\n", target)
		return nil
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <owner/repo>",
	Short: "Remove a repository from the watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		target := args[0]
		newList := make([]string, 0, len(cfg.Check.Watchlist))
		found := false
		for _, w := range cfg.Check.Watchlist {
			if w == target {
				found = true
				continue
			}
			newList = append(newList, w)
		}
		if !found {
			fmt.Printf("%s is not in the watchlist\n", target)
			return nil
		}
		cfg.Check.Watchlist = newList
		cfgPath, _ := config.ConfigPath(cfgFile)
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("Removed %s from watchlist\n", target)
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all watchlist entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if len(cfg.Check.Watchlist) == 0 {
			fmt.Println("Watchlist is empty. Add repos with: nbcheck repo add <owner/repo>")
			return nil
		}
		fmt.Println("Watchlist:")
		for _, w := range cfg.Check.Watchlist {
			fmt.Printf("  - %s\n", w)
		}
		return nil
	},
}

var repoBrowseProvider string

var repoBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List repositories accessible with your configured credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		provider, err := repository.New(repoBrowseProvider, cfg)
		if err != nil {
			return err
		}

		repos, err := provider.ListRepos(context.Background(), repository.ListReposOptions{
			PerPage:    50,
			Visibility: "all",
		})
		if err != nil {
			return fmt.Errorf("listing %s repositories: %w", provider.Name(), err)
		}
		if len(repos) == 0 {
			fmt.Println("No repositories found.")
			return nil
		}
		for _, r := range repos {
			marker := " "
			for _, w := range cfg.Check.Watchlist {
				if w == r.FullName {
					marker = "*"
					break
				}
			}
			fmt.Printf("%s %-45s %s\n", marker, r.FullName, r.DefaultBranch)
		}
		fmt.Println("\n* already in the watchlist. Add more with: nbcheck repo add <owner/repo>")
		return nil
	},
}

func init() {
	repoBrowseCmd.Flags().StringVar(&repoBrowseProvider, "provider", "github",
		"Provider to browse: github|gitlab|azure")
	repoCmd.AddCommand(repoAddCmd, repoRemoveCmd, repoListCmd, repoBrowseCmd)
}
