package agent

import (
	"context"
	"fmt"
	"maps"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/go-shellwords"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/exp/ordered"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/fantasybridge"
	"github.com/dotcommander/lmagent/internal/logging"
	"github.com/dotcommander/lmagent/internal/mcp"
	"github.com/dotcommander/lmagent/internal/openai"
	"github.com/dotcommander/lmagent/internal/resolve"
	"github.com/dotcommander/lmagent/internal/session"
	"github.com/dotcommander/lmagent/internal/stream"
	"github.com/dotcommander/lmagent/internal/tools"
)

// Service builds backends and controllers from configuration.
//
// It is UI-agnostic and used by both the TUI and headless commands.
type Service struct {
	cfg    *config.Config
	logger *log.Logger
	mcp    *mcp.Service
}

// New creates an agent service.
func New(cfg *config.Config, logger *log.Logger) *Service {
	logger = logging.OrDiscard(logger)
	return &Service{cfg: cfg, logger: logger, mcp: mcp.New(*cfg, logger)}
}

// MCP returns the MCP service.
func (s *Service) MCP() *mcp.Service { return s.mcp }

// Backend is a connected chat backend.
type Backend struct {
	Client stream.Client
	API    config.API
	Model  config.Model
}

// Backend resolves the configured API and model and creates its client.
// When no model is configured the first model the server reports is used.
func (s *Service) Backend(ctx context.Context) (Backend, error) {
	cfg := s.cfg

	api, mod, err := resolveModel(cfg)
	if err != nil {
		return Backend{}, err
	}

	providerCfg, err := prepareProviderConfig(ctx, mod, api, cfg)
	if err != nil {
		return Backend{}, err
	}
	if err := ApplyProxyConfig(cfg.HTTPProxy, &providerCfg); err != nil {
		return Backend{}, err
	}

	client, err := s.newClient(providerCfg)
	if err != nil {
		return Backend{}, err
	}

	if mod.Name == "" {
		mod.Name, err = discoverModel(ctx, client, api.Name)
		if err != nil {
			return Backend{}, err
		}
	}
	cfg.API = mod.API
	cfg.Model = mod.Name
	s.logger.Info("backend ready", "api", mod.API, "model", mod.Name)
	return Backend{Client: client, API: api, Model: mod}, nil
}

// Models lists the models of the configured API: the ones the server reports
// when it can, the configured ones otherwise.
func (s *Service) Models(ctx context.Context) ([]string, error) {
	api, ok := s.cfg.APIs.Find(s.cfg.API)
	if !ok {
		return nil, unknownAPI(s.cfg.API)
	}
	mod := config.Model{API: api.Name}
	providerCfg, err := prepareProviderConfig(ctx, mod, api, s.cfg)
	if err != nil {
		return nil, err
	}
	if err := ApplyProxyConfig(s.cfg.HTTPProxy, &providerCfg); err != nil {
		return nil, err
	}
	client, err := s.newClient(providerCfg)
	if err != nil {
		return nil, err
	}
	if lister, ok := client.(stream.ModelLister); ok {
		names, err := lister.Models(ctx)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		return names, nil
	}
	return slices.Sorted(maps.Keys(api.Models)), nil
}

// NewController builds the tool registry and a controller for b. store may
// be nil.
func (s *Service) NewController(ctx context.Context, b Backend, store *session.Store) (*Controller, error) {
	cfg := s.cfg
	if store == nil {
		store = session.NewStore(cfg.HistoryLimit)
	}

	reg := tools.NewRegistry()
	runner, err := s.runner()
	if err != nil {
		return nil, err
	}
	opts := tools.Options{Resolver: resolve.Resolver{}, Runner: runner}
	if completer, ok := b.Client.(stream.Completer); ok && cfg.Vision {
		opts.Vision = &tools.Vision{
			Client:   completer,
			Model:    ordered.First(cfg.VisionModel, b.Model.Name),
			MaxBytes: cfg.VisionMaxBytes,
			History:  store.TextOnly,
		}
	}
	if err := tools.RegisterBuiltins(reg, opts); err != nil {
		return nil, err //nolint:wrapcheck
	}
	if len(cfg.MCPServers) > 0 {
		if err := tools.RegisterMCP(ctx, reg, s.mcp); err != nil {
			return nil, errs.Wrap(err, "Could not load MCP tools.")
		}
	}

	system, err := cfg.SystemMessages(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	s.logger.Debug("tools registered", "tools", strings.Join(reg.Names(), ","))
	return NewController(Options{
		Client:         b.Client,
		Registry:       reg,
		Store:          store,
		Model:          b.Model.Name,
		System:         system,
		Sampling:       samplingFor(cfg, b.API),
		RequestTimeout: cfg.RequestTimeout,
		Logger:         s.logger,
	}), nil
}

func (s *Service) runner() (tools.Runner, error) {
	if !s.cfg.AllowCommands {
		return tools.DeniedRunner{}, nil
	}
	shell := tools.DefaultShell()
	if s.cfg.Shell != "" {
		args, err := shellwords.Parse(s.cfg.Shell)
		if err != nil || len(args) == 0 {
			return nil, errs.Error{Err: err, Reason: fmt.Sprintf("Invalid shell setting %q.", s.cfg.Shell)}
		}
		shell = args
	}
	return tools.ShellRunner{Shell: shell, Timeout: s.cfg.CommandTimeout}, nil
}

func samplingFor(cfg *config.Config, api config.API) Sampling {
	temp, topP := cfg.Temperature, cfg.TopP
	freq, presence := cfg.FrequencyPenalty, cfg.PresencePenalty
	parallel := cfg.ParallelToolCalls
	return Sampling{
		Temperature:       &temp,
		TopP:              &topP,
		FrequencyPenalty:  &freq,
		PresencePenalty:   &presence,
		ToolChoice:        cfg.ToolChoice,
		ParallelToolCalls: &parallel,
		MaxTokens:         cfg.MaxTokens,
		FollowupMaxTokens: cfg.FollowupMaxTokens,
		User:              ordered.First(api.User, cfg.User),
	}
}

func discoverModel(ctx context.Context, client stream.Client, api string) (string, error) {
	lister, ok := client.(stream.ModelLister)
	if !ok {
		return "", errs.Error{
			Reason: fmt.Sprintf("No model configured for API %s.", api),
			Err:    errs.UserErrorf("Set default-model in the settings or pass --model."),
		}
	}
	names, err := lister.Models(ctx)
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	if len(names) == 0 {
		return "", errs.Error{
			Reason: fmt.Sprintf("No models available in %s.", apiTitle(api)),
			Err:    errs.UserErrorf("Please ensure you have at least one model loaded."),
		}
	}
	return names[0], nil
}

func apiTitle(api string) string {
	if api == config.DefaultAPI {
		return "LM Studio"
	}
	return api
}

func unknownAPI(name string) error {
	return errs.Error{
		Reason: fmt.Sprintf("API %s is not in the settings file.", name),
		Err:    errs.UserErrorf("Add it under apis in the settings: lmagent config edit"),
	}
}

// resolveModel finds the configured API and maps model aliases to names.
// Local servers accept any loaded model, so a model missing from an API
// without a model list is passed through.
func resolveModel(cfg *config.Config) (config.API, config.Model, error) {
	apiName := ordered.First(cfg.API, config.DefaultAPI)
	api, ok := cfg.APIs.Find(apiName)
	if !ok {
		return config.API{}, config.Model{}, unknownAPI(apiName)
	}

	if cfg.Model == "" {
		return api, config.Model{API: api.Name}, nil
	}
	for name, mod := range api.Models {
		if name == cfg.Model || slices.Contains(mod.Aliases, cfg.Model) {
			mod.Name = name
			mod.API = api.Name
			return api, mod, nil
		}
	}
	if len(api.Models) == 0 {
		return api, config.Model{Name: cfg.Model, API: api.Name}, nil
	}

	available := slices.Sorted(maps.Keys(api.Models))
	return config.API{}, config.Model{}, errs.Error{
		Err:    errs.UserErrorf("Available models are: %s", strings.Join(available, ", ")),
		Reason: fmt.Sprintf("The API endpoint %s does not contain the model %s", api.Name, cfg.Model),
	}
}

// fantasyAPIs are served by charm.land/fantasy providers. Everything else
// speaks the OpenAI chat completions protocol directly.
var fantasyAPIs = []string{"anthropic", "google", "azure", "azure-ad", "bedrock", "openrouter", "vercel"}

func (s *Service) newClient(cfg fantasybridge.Config) (stream.Client, error) {
	if slices.Contains(fantasyAPIs, cfg.API) {
		return NewFantasyClient(cfg)
	}
	return openai.New(openai.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		HTTPClient: cfg.HTTPClient,
		Logger:     s.logger,
	}), nil
}

func prepareProviderConfig(ctx context.Context, mod config.Model, api config.API, cfg *config.Config) (fantasybridge.Config, error) {
	switch api.Name {
	case config.DefaultAPI:
		key, err := optionalKey(ctx, api)
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "LM Studio authentication failed"}
		}
		return fantasybridge.Config{
			API:     api.Name,
			APIKey:  ordered.First(key, "dummy-key"),
			BaseURL: ordered.First(api.BaseURL, "http://localhost:1234/v1"),
		}, nil
	case "ollama":
		return fantasybridge.Config{
			API:     api.Name,
			APIKey:  "ollama",
			BaseURL: ordered.First(api.BaseURL, "http://localhost:11434/v1"),
		}, nil
	case "openrouter":
		key, err := ensureKey(ctx, api, "OPENROUTER_API_KEY", "https://openrouter.ai/keys")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "OpenRouter authentication failed"}
		}
		return fantasybridge.Config{API: api.Name, APIKey: key, BaseURL: api.BaseURL}, nil
	case "vercel":
		key, err := ensureKey(ctx, api, "VERCEL_API_KEY", "https://vercel.com/dashboard/tokens")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Vercel AI Gateway authentication failed"}
		}
		return fantasybridge.Config{API: api.Name, APIKey: key, BaseURL: api.BaseURL}, nil
	case "bedrock":
		key, err := optionalKey(ctx, api)
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Bedrock authentication failed"}
		}
		return fantasybridge.Config{API: api.Name, APIKey: key, BaseURL: api.BaseURL}, nil
	case "azure", "azure-ad":
		key, err := ensureKey(ctx, api, "AZURE_OPENAI_KEY", "https://aka.ms/oai/access")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Azure authentication failed"}
		}
		if api.User != "" {
			cfg.User = api.User
		}
		return fantasybridge.Config{API: api.Name, APIKey: key, BaseURL: api.BaseURL}, nil
	case "anthropic":
		key, err := ensureKey(ctx, api, "ANTHROPIC_API_KEY", "https://console.anthropic.com/settings/keys")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Anthropic authentication failed"}
		}
		return fantasybridge.Config{API: api.Name, APIKey: key, BaseURL: api.BaseURL}, nil
	case "google":
		key, err := ensureKey(ctx, api, "GOOGLE_API_KEY", "https://aistudio.google.com/app/apikey")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Google authentication failed"}
		}
		return fantasybridge.Config{API: api.Name, APIKey: key, BaseURL: api.BaseURL, ThinkingBudget: mod.ThinkingBudget}, nil
	case "openai":
		key, err := ensureKey(ctx, api, "OPENAI_API_KEY", "https://platform.openai.com/account/api-keys")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "OpenAI authentication failed"}
		}
		return fantasybridge.Config{API: api.Name, APIKey: key, BaseURL: ordered.First(api.BaseURL, "https://api.openai.com/v1")}, nil
	default:
		if api.BaseURL == "" {
			return fantasybridge.Config{}, errs.Error{
				Reason: fmt.Sprintf("API %s has no base-url.", api.Name),
				Err:    errs.UserErrorf("Set base-url for %s in the settings: lmagent config edit", api.Name),
			}
		}
		key, err := optionalKey(ctx, api)
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: fmt.Sprintf("%s authentication failed", api.Name)}
		}
		return fantasybridge.Config{API: api.Name, APIKey: key, BaseURL: api.BaseURL}, nil
	}
}

// ApplyProxyConfig configures the provider HTTP client to use an HTTP proxy.
func ApplyProxyConfig(httpProxy string, providerCfg *fantasybridge.Config) error {
	if httpProxy == "" {
		return nil
	}
	proxyURL, err := url.Parse(httpProxy)
	if err != nil {
		return errs.Error{Err: err, Reason: "There was an error parsing your proxy URL."}
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return errs.Error{Err: fmt.Errorf("default transport is not *http.Transport"), Reason: "Could not configure proxy."}
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(proxyURL)
	tr.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 30 * time.Second
	tr.IdleConnTimeout = 90 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	providerCfg.HTTPClient = &http.Client{Transport: tr}
	return nil
}

// NewFantasyClient creates the fantasy bridge client.
func NewFantasyClient(cfg fantasybridge.Config) (stream.Client, error) {
	if cfg.API == "" {
		return nil, errs.Error{Reason: "missing fantasy provider configuration"}
	}
	client, err := fantasybridge.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("new fantasy bridge client: %w", err)
	}
	return client, nil
}

// optionalKey reads api-key, then api-key-env, then runs api-key-cmd.
func optionalKey(ctx context.Context, api config.API) (string, error) {
	key := api.APIKey
	if key == "" && api.APIKeyEnv != "" && api.APIKeyCmd == "" {
		key = os.Getenv(api.APIKeyEnv)
	}
	if key == "" && api.APIKeyCmd != "" {
		args, err := shellwords.Parse(api.APIKeyCmd)
		if err != nil || len(args) == 0 {
			return "", errs.Error{Err: err, Reason: "Failed to parse api-key-cmd"}
		}
		// #nosec G204 -- api-key-cmd is explicitly configured by the local user.
		out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Cannot exec api-key-cmd"}
		}
		key = strings.TrimSpace(string(out))
	}
	return key, nil
}

func ensureKey(ctx context.Context, api config.API, defaultEnv, docsURL string) (string, error) {
	key, err := optionalKey(ctx, api)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = os.Getenv(defaultEnv)
	}
	if key != "" {
		return key, nil
	}
	return "", errs.Error{
		Reason: fmt.Sprintf("%s required; set %s or update lmagent.yml through lmagent config edit.", defaultEnv, defaultEnv),
		Err:    errs.UserErrorf("You can grab one at %s", docsURL),
	}
}
