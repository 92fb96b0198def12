package config

import "time"

// Config is the root configuration for Tally.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	History   HistoryConfig   `json:"history"`
	Resolver  ResolverConfig  `json:"resolver"`
	Models    ModelsConfig    `json:"models"`
	Events    EventsConfig    `json:"events"`
	Retention RetentionConfig `json:"retention"`
	MCP       MCPConfig       `json:"mcp"`
}

// ServerConfig holds the HTTP gateway settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// AuthTokens maps bearer tokens to user ids. Empty means the gateway
	// trusts the X-User-ID header, which is only sane behind a proxy.
	AuthTokens map[string]string `json:"auth_tokens,omitempty"`
}

// StorageConfig holds the SQLite database settings.
type StorageConfig struct {
	Path string `json:"path"` // database file (default: $TALLY_PATH/tally.db)
}

// HistoryConfig tunes conversation loading.
type HistoryConfig struct {
	Window int `json:"window"` // messages fed to intent resolution
}

// ResolverConfig picks how utterances become plans.
type ResolverConfig struct {
	Driver   string `json:"driver"`             // "rules" or "model"
	Provider string `json:"provider,omitempty"` // provider name when driver is "model"
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string   `json:"driver"` // "openai", "ollama", "claude"
	Model     string   `json:"model"`
	BaseURL   string   `json:"base_url,omitempty"`
	APIKey    string   `json:"api_key,omitempty"` // direct key or ${{ .Env.VAR }} template
	MaxTokens int      `json:"max_tokens,omitempty"`
	Timeout   Duration `json:"timeout,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogDir     string `json:"log_dir,omitempty"` // JSONL event log directory, empty disables
}

// RetentionConfig drives the background janitor.
type RetentionConfig struct {
	Schedule            string   `json:"schedule"`              // cron spec
	CompletedTaskTTL    Duration `json:"completed_task_ttl"`    // purge completed tasks older than this
	IdleConversationTTL Duration `json:"idle_conversation_ttl"` // purge conversations idle longer than this
}

// MCPConfig configures the stdio MCP server, which runs single-user.
type MCPConfig struct {
	UserID string `json:"user_id"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
