// Package agent contains lmagent's core (non-UI) logic.
//
// It resolves the backend and model from the configuration, builds the tool
// registry, and drives a conversation turn: stream the reply, run the tools
// the model asked for, and stream a follow-up with their results.
package agent
