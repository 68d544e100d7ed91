package config

import "time"

// Config is the root configuration for Paula.
type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	Models  ModelsConfig  `json:"models"`
	Agent   AgentConfig   `json:"agent"`
	Memory  MemoryConfig  `json:"memory"`
	Events  EventsConfig  `json:"events"`
	Storage StorageConfig `json:"storage"`
	MCP     MCPConfig     `json:"mcp"`
	Skills  SkillsConfig  `json:"skills"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ModelsConfig maps pipeline steps to model specs and names the providers
// those specs draw credentials from.
type ModelsConfig struct {
	Providers map[string]ProviderConfig `json:"providers"`
	Steps     map[string]StepConfig     `json:"steps"`
}

// ProviderConfig configures a single LLM provider backend.
type ProviderConfig struct {
	Driver  string   `json:"driver"` // "anthropic", "openai", "ollama"
	BaseURL string   `json:"base_url,omitempty"`
	APIKey  string   `json:"api_key,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
}

// StepConfig describes the model used for one logical pipeline step
// (plan, chat, summary).
type StepConfig struct {
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Timeout     Duration `json:"timeout,omitempty"`
}

// AgentConfig holds orchestration loop settings.
type AgentConfig struct {
	MaxIterations int      `json:"max_iterations"` // reasoning/tool loop cap per turn
	MaxDepth      int      `json:"max_depth"`      // subagent nesting cap
	TodoRetries   int      `json:"todo_retries"`   // failed→pending transitions per item per turn
	WorkspaceRoot string   `json:"workspace_root"` // sandbox root for filesystem tools
	AllowedPaths  []string `json:"allowed_paths,omitempty"`
	ToolTimeout   Duration `json:"tool_timeout,omitempty"`
	// EphemeralSubagents discards a child thread's todos, memory, and
	// checkpoints once its reply reaches the parent. When false, children
	// keep durable thread ids.
	EphemeralSubagents bool `json:"ephemeral_subagents"`
}

// MemoryConfig holds memory retrieval and summarization settings.
type MemoryConfig struct {
	RecencyLimit    int     `json:"recency_limit"`    // last K conversation records
	RelevanceLimit  int     `json:"relevance_limit"`  // top M scored records
	MinScore        float64 `json:"min_score"`        // relevance threshold
	SummaryInterval int     `json:"summary_interval"` // conversation records per summary
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogDir     string `json:"log_dir,omitempty"` // JSONL event log directory
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Path string `json:"path"` // sqlite database file
}

// MCPServerConfig names one MCP endpoint.
type MCPServerConfig struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

// MCPConfig lists the MCP endpoints tools may proxy to.
type MCPConfig struct {
	Servers []MCPServerConfig `json:"servers,omitempty"`
}

// SkillEndpointConfig names one skill endpoint.
type SkillEndpointConfig struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

// SkillsConfig lists skill endpoints and optional manifest directories.
type SkillsConfig struct {
	Endpoints []SkillEndpointConfig `json:"endpoints,omitempty"`
	Dirs      []string              `json:"dirs,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
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
