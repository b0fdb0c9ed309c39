package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	_ "embed"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/lmagent/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

// AppName is used for the settings directory and environment prefix.
const AppName = "lmagent"

// DefaultAPI is the local LM Studio server.
const DefaultAPI = "lmstudio"

// DefaultSystemPrompt is sent when neither system nor role is configured.
const DefaultSystemPrompt = `You are a helpful coding assistant running on {{os}}. You can create and edit files, run shell commands and look at images through the provided tools.

- Use view_file before editing a file you have not seen.
- Use replace_text for small edits and create_file for new files.
- When a tool reports suggestions, pick the right file or ask the user.
- Keep answers short and show the relevant result of each tool call.`

// Model represents a model of an API endpoint.
type Model struct {
	Name           string
	API            string
	Aliases        []string `yaml:"aliases"`
	ThinkingBudget int      `yaml:"thinking-budget,omitempty"`
}

// API represents an API endpoint and its models.
type API struct {
	Name      string
	APIKey    string           `yaml:"api-key"`
	APIKeyEnv string           `yaml:"api-key-env"`
	APIKeyCmd string           `yaml:"api-key-cmd"`
	BaseURL   string           `yaml:"base-url"`
	Models    map[string]Model `yaml:"models"`
	User      string           `yaml:"user"`
}

// APIs keeps endpoints in settings file order.
type APIs []API

// UnmarshalYAML implements sorted API YAML decoding.
func (apis *APIs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("apis: expected a mapping, got %s", node.ShortTag())
	}
	*apis = nil
	for i := 0; i+1 < len(node.Content); i += 2 {
		var api API
		if err := node.Content[i+1].Decode(&api); err != nil {
			return fmt.Errorf("error decoding YAML file: %w", err)
		}
		api.Name = node.Content[i].Value
		*apis = append(*apis, api)
	}
	return nil
}

// Find returns the API with the given name.
func (apis APIs) Find(name string) (API, bool) {
	for _, api := range apis {
		if api.Name == name {
			return api, true
		}
	}
	return API{}, false
}

// Settings holds persisted configuration loaded from the YAML settings file
// and environment variables.
type Settings struct {
	API               string        `yaml:"default-api" env:"API"`
	Model             string        `yaml:"default-model" env:"MODEL"`
	System            string        `yaml:"system" env:"SYSTEM"`
	Role              string        `yaml:"role" env:"ROLE"`
	Temperature       float64       `yaml:"temp" env:"TEMP"`
	TopP              float64       `yaml:"topp" env:"TOPP"`
	FrequencyPenalty  float64       `yaml:"frequency-penalty" env:"FREQUENCY_PENALTY"`
	PresencePenalty   float64       `yaml:"presence-penalty" env:"PRESENCE_PENALTY"`
	MaxTokens         int64         `yaml:"max-tokens" env:"MAX_TOKENS"`
	FollowupMaxTokens int64         `yaml:"followup-max-tokens" env:"FOLLOWUP_MAX_TOKENS"`
	ToolChoice        string        `yaml:"tool-choice" env:"TOOL_CHOICE"`
	ParallelToolCalls bool          `yaml:"parallel-tool-calls" env:"PARALLEL_TOOL_CALLS"`
	RequestTimeout    time.Duration `yaml:"request-timeout" env:"REQUEST_TIMEOUT"`
	HistoryLimit      int           `yaml:"history-limit" env:"HISTORY_LIMIT"`
	SnapshotFile      string        `yaml:"snapshot-file" env:"SNAPSHOT_FILE"`
	Vision            bool          `yaml:"vision" env:"VISION"`
	VisionModel       string        `yaml:"vision-model" env:"VISION_MODEL"`
	VisionMaxBytes    int64         `yaml:"vision-max-bytes" env:"VISION_MAX_BYTES"`
	AllowCommands     bool          `yaml:"allow-commands" env:"ALLOW_COMMANDS"`
	Shell             string        `yaml:"shell" env:"SHELL_CMD"`
	CommandTimeout    time.Duration `yaml:"command-timeout" env:"COMMAND_TIMEOUT"`
	ThinkingPhrases   []string      `yaml:"thinking-phrases" env:"THINKING_PHRASES"`
	Quiet             bool          `yaml:"quiet" env:"QUIET"`
	Raw               bool          `yaml:"raw" env:"RAW"`
	WordWrap          int           `yaml:"word-wrap" env:"WORD_WRAP"`
	Theme             string        `yaml:"theme" env:"THEME"`
	CachePath         string        `yaml:"cache-path" env:"CACHE_PATH"`
	NoCache           bool          `yaml:"no-cache" env:"NO_CACHE"`
	HTTPProxy         string        `yaml:"http-proxy" env:"HTTP_PROXY"`
	User              string        `yaml:"user" env:"USER_ID"`
	LogLevel          string        `yaml:"log-level" env:"LOG_LEVEL"`
	LogFile           string        `yaml:"log-file" env:"LOG_FILE"`

	APIs  APIs                `yaml:"apis"`
	Roles map[string][]string `yaml:"roles"`

	MCPServers      map[string]MCPServerConfig `yaml:"mcp-servers"`
	MCPDisable      []string                   `yaml:"mcp-disable" env:"MCP_DISABLE"`
	MCPTimeout      time.Duration              `yaml:"mcp-timeout" env:"MCP_TIMEOUT"`
	MCPNoInheritEnv bool                       `yaml:"mcp-no-inherit-env" env:"MCP_NO_INHERIT_ENV"`
}

// Runtime holds CLI-only options that are never loaded from the settings
// file.
type Runtime struct {
	SettingsPath string
	Plain        bool
	Pick         bool
	ContinueLast bool
	Continue     string
	Title        string
	ShowLast     bool
	Show         string
	OlderThan    time.Duration

	CacheReadFromID                   string
	CacheWriteToID, CacheWriteToTitle string
}

// Config is the application configuration (settings + runtime-only options).
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-" env:"-"`
}

// MCPServerConfig holds configuration for an MCP server.
type MCPServerConfig struct {
	Type    string   `yaml:"type"`
	Command string   `yaml:"command"`
	Env     []string `yaml:"env"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// Dir returns the directory holding the settings file.
func (c Config) Dir() string {
	return filepath.Dir(c.SettingsPath)
}

// SettingsPath returns the default settings file location.
func SettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errs.Error{Err: err, Reason: "Could not determine home directory."}
	}
	return filepath.Join(home, ".config", AppName, AppName+".yml"), nil
}

// Ensure loads settings from the default location, creating the file from
// the template when it is missing.
func Ensure() (Config, error) {
	sp, err := SettingsPath()
	if err != nil {
		return Config{}, err
	}
	return Load(sp)
}

// Load reads the settings file at sp (creating it if needed), applies
// LMAGENT_ environment overrides and fills defaults.
func Load(sp string) (Config, error) {
	c := Default()
	c.SettingsPath = sp

	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not create settings directory."}
	}
	if err := WriteConfigFile(sp); err != nil {
		return c, err
	}
	content, err := os.ReadFile(sp)
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not read settings file."}
	}
	if err := yaml.Unmarshal(content, &c); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse settings file."}
	}
	if err := env.ParseWithOptions(&c, env.Options{Prefix: strings.ToUpper(AppName) + "_"}); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse environment into settings file."}
	}
	if err := MergeRolesFromDir(&c); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not load roles from roles directory."}
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.CachePath == "" {
		c.CachePath = filepath.Join(c.Dir(), "history")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.Dir(), AppName+".log")
	}
	if c.API == "" {
		c.API = d.API
	}
	if len(c.APIs) == 0 {
		c.APIs = d.APIs
	}
	if c.WordWrap <= 0 {
		c.WordWrap = d.WordWrap
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.SnapshotFile == "" {
		c.SnapshotFile = d.SnapshotFile
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.FollowupMaxTokens <= 0 {
		c.FollowupMaxTokens = d.FollowupMaxTokens
	}
	if c.VisionMaxBytes <= 0 {
		c.VisionMaxBytes = d.VisionMaxBytes
	}
	if c.ToolChoice == "" {
		c.ToolChoice = d.ToolChoice
	}
	if len(c.ThinkingPhrases) == 0 {
		c.ThinkingPhrases = d.ThinkingPhrases
	}
	if c.MCPTimeout == 0 {
		c.MCPTimeout = d.MCPTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
}

// Validate checks values that would otherwise fail deep inside a request.
func (c Config) Validate() error {
	switch c.ToolChoice {
	case "auto", "none", "required":
	default:
		return errs.Error{
			Err:    errs.UserErrorf("tool-choice must be one of auto, none, required; got %q", c.ToolChoice),
			Reason: "Invalid settings.",
		}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errs.Error{
			Err:    errs.UserErrorf("temp must be between 0 and 2; got %v", c.Temperature),
			Reason: "Invalid settings.",
		}
	}
	if c.TopP < 0 || c.TopP > 1 {
		return errs.Error{
			Err:    errs.UserErrorf("topp must be between 0 and 1; got %v", c.TopP),
			Reason: "Invalid settings.",
		}
	}
	return nil
}

// MergeRolesFromDir merges role definitions from the roles directory next to
// the settings file. Roles from the settings file win.
func MergeRolesFromDir(cfg *Config) error {
	rolesDir := filepath.Join(cfg.Dir(), "roles")
	roles, err := readRolesFromDir(rolesDir)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		return nil
	}
	if cfg.Roles == nil {
		cfg.Roles = map[string][]string{}
	}
	for name, setup := range roles {
		if _, exists := cfg.Roles[name]; exists {
			continue
		}
		cfg.Roles[name] = setup
	}
	return nil
}

func readRolesFromDir(dir string) (map[string][]string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("read roles directory %q: %w", dir, err)
	}

	roles := map[string][]string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".md", ".yml", ".yaml":
		default:
			return nil
		}

		relPath, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return fmt.Errorf("resolve role path %q: %w", path, relErr)
		}
		roleName := strings.TrimSuffix(filepath.ToSlash(relPath), filepath.Ext(relPath))
		if roleName == "" {
			return nil
		}

		setup, setupErr := roleSetupFromFile(path)
		if setupErr != nil {
			return fmt.Errorf("role file %q: %w", relPath, setupErr)
		}
		roles[roleName] = setup
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read roles directory %q: %w", dir, err)
	}
	return roles, nil
}

func roleSetupFromFile(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yml" && ext != ".yaml" {
		return []string{"file://" + path}, nil
	}

	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role file %q: %w", path, err)
	}
	var setup []string
	if err := yaml.Unmarshal(bts, &setup); err == nil {
		return setup, nil
	}
	var single string
	if err := yaml.Unmarshal(bts, &single); err == nil {
		return []string{single}, nil
	}
	return nil, fmt.Errorf("must be a YAML string or string list")
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			API:               DefaultAPI,
			Temperature:       0.1,
			TopP:              0.95,
			FrequencyPenalty:  1.1,
			PresencePenalty:   0.5,
			MaxTokens:         4096,
			FollowupMaxTokens: 1024,
			ToolChoice:        "auto",
			ParallelToolCalls: true,
			RequestTimeout:    60 * time.Second,
			HistoryLimit:      50,
			SnapshotFile:      "conversation_history.json",
			Vision:            true,
			VisionMaxBytes:    4 << 20,
			AllowCommands:     true,
			WordWrap:          80,
			Theme:             "charm",
			ThinkingPhrases: []string{
				"Pondering...",
				"Formulating...",
				"Noodling...",
				"Plotting...",
				"Scheming...",
				"Unraveling...",
				"Manifesting...",
				"Conjuring....",
				"Processing...",
				"Executing...",
			},
			APIs: APIs{
				{
					Name:    DefaultAPI,
					APIKey:  "dummy-key",
					BaseURL: "http://localhost:1234/v1",
				},
			},
			MCPTimeout: 15 * time.Second,
		},
	}
}
