package config

// Config is the root configuration structure for nbcheck.
// Serialised to ~/.nbcheck/config.json.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Git      GitConfig      `mapstructure:"git"      json:"git"`
	Check    CheckConfig    `mapstructure:"check"    json:"check"`
	Notify   NotifyConfig   `mapstructure:"notify"   json:"notify"`
	Server   ServerConfig   `mapstructure:"server"   json:"server"`
	Remote   RemoteConfig   `mapstructure:"remote"   json:"remote"`
}

// DatabaseConfig controls the run-history storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// GitConfig holds credentials for each supported git hosting platform.
type GitConfig struct {
	GitHub []GitHubConfig `mapstructure:"github" json:"github"`
	GitLab []GitLabConfig `mapstructure:"gitlab" json:"gitlab"`
	Azure  []AzureConfig  `mapstructure:"azure"  json:"azure"`
}

// GitHubConfig holds credentials for a single GitHub instance.
type GitHubConfig struct {
	Token string `mapstructure:"token" json:"token"`
	// Host allows enterprise GitHub (e.g. github.mycompany.com).
	Host string `mapstructure:"host"  json:"host"`
}

// GitLabConfig holds credentials for a single GitLab instance.
type GitLabConfig struct {
	Token string `mapstructure:"token" json:"token"`
	Host  string `mapstructure:"host"  json:"host"`
}

// AzureConfig holds credentials for an Azure DevOps organisation.
type AzureConfig struct {
	Token string `mapstructure:"token" json:"token"`
	Org   string `mapstructure:"org"   json:"org"`
	Host  string `mapstructure:"host"  json:"host"`
}

// CheckConfig controls how suites run.
type CheckConfig struct {
	// Workers is the number of parallel notebook goroutines.
	Workers int `mapstructure:"workers" json:"workers"`
	// Suite is the named suite used when a target has no suite file.
	Suite string `mapstructure:"suite" json:"suite"`
	// SuitesDir overrides the user suites directory (~/.nbcheck/suites).
	SuitesDir string `mapstructure:"suites_dir" json:"suites_dir"`
	// Watchlist is a list of "owner/repo" entries to check regularly.
	Watchlist []string `mapstructure:"watchlist" json:"watchlist"`
}

// NotifyConfig controls regression notifications.
type NotifyConfig struct {
	// MinSeverity is the minimum finding severity to notify on (empty = all).
	MinSeverity string `mapstructure:"min_severity" json:"min_severity"`
	// Events restricts which event types notify. Empty = package defaults.
	Events   []string             `mapstructure:"events"   json:"events"`
	Slack    SlackNotifyConfig    `mapstructure:"slack"    json:"slack"`
	Telegram TelegramNotifyConfig `mapstructure:"telegram" json:"telegram"`
	Email    EmailNotifyConfig    `mapstructure:"email"    json:"email"`
	Webhook  WebhookNotifyConfig  `mapstructure:"webhook"  json:"webhook"`
}

// SlackNotifyConfig configures the Slack incoming-webhook channel.
type SlackNotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url"`
}

// TelegramNotifyConfig configures the Telegram bot channel.
type TelegramNotifyConfig struct {
	BotToken string `mapstructure:"bot_token" json:"bot_token"`
	ChatID   string `mapstructure:"chat_id"   json:"chat_id"`
}

// EmailNotifyConfig configures the SMTP channel.
type EmailNotifyConfig struct {
	SMTPHost string `mapstructure:"smtp_host" json:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" json:"smtp_port"`
	From     string `mapstructure:"from"      json:"from"`
	To       string `mapstructure:"to"        json:"to"`
	Username string `mapstructure:"username"  json:"username"`
	Password string `mapstructure:"password"  json:"password"`
	UseTLS   bool   `mapstructure:"use_tls"   json:"use_tls"`
}

// WebhookNotifyConfig configures the generic signed-webhook channel.
type WebhookNotifyConfig struct {
	URL    string `mapstructure:"url"    json:"url"`
	Secret string `mapstructure:"secret" json:"secret"`
}

// ServerConfig controls the results server started by `nbcheck serve`.
type ServerConfig struct {
	// Port is the localhost HTTP port the server listens on (default: 8787).
	Port int `mapstructure:"port" json:"port"`
	// Token guards mutating endpoints when set (Authorization: Bearer).
	Token string `mapstructure:"token" json:"token"`
}

// RemoteConfig points `check --report-to` at a central nbcheck server.
type RemoteConfig struct {
	// URL is the base URL of the central server (e.g. http://ci-host:8787).
	URL string `mapstructure:"url" json:"url"`
	// Token is sent as a bearer token with pushed reports.
	Token string `mapstructure:"token" json:"token"`
}
