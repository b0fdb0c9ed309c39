//go:build !lmagent_small

package fantasybridge

import (
	"strings"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/azure"
	"charm.land/fantasy/providers/bedrock"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"
	"charm.land/fantasy/providers/vercel"

	"github.com/dotcommander/lmagent/internal/proto"
)

var providers = map[string]providerFactory{
	apiOpenAI:     openAIProvider,
	apiAnthropic:  anthropicProvider,
	apiGoogle:     googleProvider,
	apiAzure:      azureProvider,
	apiAzureAD:    azureProvider,
	apiBedrock:    bedrockProvider,
	apiOpenRouter: openRouterProvider,
	apiVercel:     vercelProvider,
}

func openAIProvider(cfg Config) (fantasy.Provider, error) {
	opts := []fopenai.Option{fopenai.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, fopenai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenai.WithHTTPClient(cfg.HTTPClient))
	}
	p, err := fopenai.New(opts...)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return p, nil
}

func anthropicProvider(cfg Config) (fantasy.Provider, error) {
	opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		// the SDK appends /v1 itself
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/v1")))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, anthropic.WithHTTPClient(cfg.HTTPClient))
	}
	p, err := anthropic.New(opts...)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return p, nil
}

func googleProvider(cfg Config) (fantasy.Provider, error) {
	opts := []fgoogle.Option{fgoogle.WithGeminiAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, fgoogle.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fgoogle.WithHTTPClient(cfg.HTTPClient))
	}
	p, err := fgoogle.New(opts...)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return p, nil
}

func azureProvider(cfg Config) (fantasy.Provider, error) {
	opts := []azure.Option{azure.WithAPIKey(cfg.APIKey), azure.WithBaseURL(cfg.BaseURL)}
	if cfg.HTTPClient != nil {
		opts = append(opts, azure.WithHTTPClient(cfg.HTTPClient))
	}
	p, err := azure.New(opts...)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return p, nil
}

// bedrockProvider falls back to the AWS credential chain without a key.
func bedrockProvider(cfg Config) (fantasy.Provider, error) {
	var opts []bedrock.Option
	if cfg.APIKey != "" {
		opts = append(opts, bedrock.WithAPIKey(cfg.APIKey))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, bedrock.WithHTTPClient(cfg.HTTPClient))
	}
	p, err := bedrock.New(opts...)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return p, nil
}

func openRouterProvider(cfg Config) (fantasy.Provider, error) {
	opts := []openrouter.Option{openrouter.WithAPIKey(cfg.APIKey)}
	if cfg.HTTPClient != nil {
		opts = append(opts, openrouter.WithHTTPClient(cfg.HTTPClient))
	}
	p, err := openrouter.New(opts...)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return p, nil
}

func vercelProvider(cfg Config) (fantasy.Provider, error) {
	opts := []vercel.Option{vercel.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, vercel.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, vercel.WithHTTPClient(cfg.HTTPClient))
	}
	p, err := vercel.New(opts...)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return p, nil
}

func applyProviderOptions(call *fantasy.Call, api string, cfg Config, req proto.Request) {
	if req.User != "" {
		user := req.User
		switch api {
		case apiOpenAI, apiAzure, apiAzureAD:
			call.ProviderOptions[fopenai.Name] = &fopenai.ProviderOptions{User: &user}
		case apiAnthropic, apiGoogle, apiOpenRouter, apiVercel, apiBedrock:
			// no end-user field
		default:
			setCompatUser(call, user)
		}
	}

	if api == apiGoogle && cfg.ThinkingBudget > 0 {
		call.ProviderOptions[fgoogle.Name] = &fgoogle.ProviderOptions{
			ThinkingConfig: &fgoogle.ThinkingConfig{
				ThinkingBudget: fantasy.Opt(int64(cfg.ThinkingBudget)),
			},
		}
	}
}
