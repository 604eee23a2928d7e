package models

// MConfig Structure
type MConfig struct {
	Name       string             `yaml:"name"`
	LogLevel   string             `yaml:"log_level"`
	Server     MServerConfig      `yaml:"server"`
	Realtime   MRealtimeConfig    `yaml:"realtime"`
	Rest       MRestConfig        `yaml:"rest"`
	Credential MCredentialConfig  `yaml:"credential"`
	Journal    MJournalConfig     `yaml:"journal"`
	Status     MStatusConfig      `yaml:"status"`
	Workspaces []MWorkspaceConfig `yaml:"workspaces"`
}

type MServerConfig struct {
	BaseURL string `yaml:"base_url"`
}

type MRealtimeConfig struct {
	// WebsocketPath is appended to the ws(s) form of the base URL. It points at
	// the raw websocket endpoint so the server's session-negotiation front end
	// is bypassed.
	WebsocketPath         string `yaml:"websocket_path"`
	ReconnectDelaySeconds int    `yaml:"reconnect_delay_seconds"`
	MaxReportedReconnects int    `yaml:"max_reported_reconnects"`
	ETATickMillis         int    `yaml:"eta_tick_millis"`
}

type MRestConfig struct {
	RequestTimeout       int `yaml:"timeout"`
	MaxRetries           int `yaml:"retries"`
	HealthTimeoutSeconds int `yaml:"health_timeout_seconds"`
}

type MCredentialConfig struct {
	TokenFile string `yaml:"token_file"`
	EnvVar    string `yaml:"env_var"` // Optional override
}

type MJournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type MStatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type MWorkspaceConfig struct {
	RepositoryURL string `yaml:"repository_url"`
}
