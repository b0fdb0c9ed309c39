//go:build lmagent_small

package fantasybridge

import (
	"charm.land/fantasy"

	"github.com/dotcommander/lmagent/internal/proto"
)

// Small builds only carry the OpenAI-compatible provider.
var providers = map[string]providerFactory{}

func applyProviderOptions(call *fantasy.Call, _ string, _ Config, req proto.Request) {
	if req.User != "" {
		setCompatUser(call, req.User)
	}
}
