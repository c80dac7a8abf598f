package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and manage nbcheck configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration (secrets redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		// Redact secrets.
		for i := range cfg.Git.GitHub {
			if cfg.Git.GitHub[i].Token != "" {
				cfg.Git.GitHub[i].Token = "ghp-***"
			}
		}
		for i := range cfg.Git.GitLab {
			if cfg.Git.GitLab[i].Token != "" {
				cfg.Git.GitLab[i].Token = "glpat-***"
			}
		}
		for i := range cfg.Git.Azure {
			if cfg.Git.Azure[i].Token != "" {
				cfg.Git.Azure[i].Token = "***"
			}
		}
		if cfg.Database.DSN != "" {
			cfg.Database.DSN = "***"
		}
		if cfg.Notify.Telegram.BotToken != "" {
			cfg.Notify.Telegram.BotToken = "tg-***"
		}
		if cfg.Notify.Email.Password != "" {
			cfg.Notify.Email.Password = "***"
		}
		if cfg.Notify.Webhook.Secret != "" {
			cfg.Notify.Webhook.Secret = "***"
		}
		if cfg.Server.Token != "" {
			cfg.Server.Token = "***"
		}
		if cfg.Remote.Token != "" {
			cfg.Remote.Token = "***"
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the path to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.ConfigPath(cfgFile)
		if err != nil {
			return err
		}
		fmt.Println(p)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value by dotted key (e.g. check.workers 8)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		p, err := config.ConfigPath(cfgFile)
		if err != nil {
			return err
		}

		v := viper.New()
		v.SetConfigType("json")
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading config: %w", err)
		}
		v.Set(key, args[1])

		var cfg config.Config
		if err := v.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("key %q is not a valid config field: %w", key, err)
		}
		if err := config.Save(&cfg, p); err != nil {
			return err
		}
		fmt.Printf("Set %s = %s\n", key, args[1])
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.ConfigPath(cfgFile)
		if err != nil {
			return err
		}
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "nano"
		}
		fmt.Printf("Opening %s with %s...\n", p, editor)
		c := exec.Command(editor, p) // #nosec G204 -- editor is from $EDITOR env var, intentional user-controlled binary
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd, configSetCmd, configEditCmd)
}
