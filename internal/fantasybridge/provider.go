package fantasybridge

import (
	"charm.land/fantasy"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
)

// providerFactory builds the fantasy provider for one API family.
type providerFactory func(Config) (fantasy.Provider, error)

// newProvider uses the dedicated provider registered for cfg.API. Anything
// else, LM Studio included, speaks the OpenAI-compatible protocol.
func newProvider(cfg Config) (fantasy.Provider, error) {
	if build, ok := providers[cfg.API]; ok {
		return build(cfg)
	}
	return newCompatProvider(cfg)
}

func newCompatProvider(cfg Config) (fantasy.Provider, error) {
	opts := []fopenaicompat.Option{fopenaicompat.WithName(cfg.API)}
	if cfg.APIKey != "" {
		opts = append(opts, fopenaicompat.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, fopenaicompat.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenaicompat.WithHTTPClient(cfg.HTTPClient))
	}
	provider, err := fopenaicompat.New(opts...)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return provider, nil
}

func providerLabel(api string) string {
	if _, ok := providers[api]; ok {
		return api
	}
	return "openai-compatible"
}

// setCompatUser forwards the end-user id to OpenAI-compatible servers.
func setCompatUser(call *fantasy.Call, user string) {
	call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
}
