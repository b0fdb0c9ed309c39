package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"

	"charm.land/fantasy"
	xstrings "github.com/charmbracelet/x/exp/strings"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/stream"
)

// RateLimitMessage is shown when the backend answers 429.
const RateLimitMessage = "Rate limit exceeded. Please wait a moment before trying again."

// Explain turns a turn failure into a user-facing error. api and model name
// the backend that failed.
func Explain(err error, api, model string) errs.Error {
	var ue errs.Error
	if errors.As(err, &ue) {
		return ue
	}
	if errors.Is(err, context.Canceled) {
		return errs.Error{Err: err, Reason: "Request cancelled."}
	}
	if errors.Is(err, ErrBusy) {
		return errs.Error{Err: err, Reason: "Please wait for the current response to finish."}
	}
	if errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(err.Error(), "connection refused") {
		return errs.Error{Err: err, Reason: connectReason(api)}
	}

	var providerErr *fantasy.ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.StatusCode == http.StatusBadRequest && isContextLengthExceeded(providerErr.Message, string(providerErr.ResponseBody)) {
			return errs.Error{Err: err, Reason: "Maximum prompt size exceeded."}
		}
		if reason := byStatus(providerErr.StatusCode, api, model); reason != "" {
			return errs.Error{Err: err, Reason: reason}
		}
		if reason := fantasy.ErrorTitleForStatusCode(providerErr.StatusCode); reason != "" {
			return errs.Error{Err: err, Reason: reason}
		}
	}

	var apiErr *stream.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusBadRequest && isContextLengthExceeded(apiErr.Message) {
			return errs.Error{Err: err, Reason: "Maximum prompt size exceeded."}
		}
		if reason := byStatus(apiErr.StatusCode, api, model); reason != "" {
			return errs.Error{Err: err, Reason: reason}
		}
	}

	return errs.Error{Err: err, Reason: fmt.Sprintf("There was a problem with the %s API request.", api)}
}

func byStatus(code int, api, model string) string {
	switch code {
	case http.StatusTooManyRequests:
		return RateLimitMessage
	case http.StatusNotFound:
		return fmt.Sprintf("Missing model '%s' for API '%s'.", model, api)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("Authentication with the %s API failed.", api)
	}
	return ""
}

func connectReason(api string) string {
	if api == "lmstudio" || api == "" {
		return "Could not connect to LM Studio. Make sure the local server is running on port 1234."
	}
	return fmt.Sprintf("Could not connect to the %s API.", api)
}

func isContextLengthExceeded(texts ...string) bool {
	for _, t := range texts {
		if xstrings.ContainsAnyOf(strings.ToLower(t), "context_length_exceeded", "maximum context length", "context length") {
			return true
		}
	}
	return false
}
