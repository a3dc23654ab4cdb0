// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to script judge responses and to assert on the
// prompts the judge sends, without any live model connection.
package mock

import (
	"context"
	"sync"

	"github.com/novahealth/nova/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
//
// Responses are consumed in order; once exhausted, Response is returned for
// every further call. Configure fields before first use.
type Provider struct {
	mu sync.Mutex

	// Response is the default response returned by Complete.
	Response *llm.CompletionResponse

	// Responses, when non-nil, overrides Response per call in order,
	// falling back to Response once exhausted.
	Responses []*llm.CompletionResponse

	// Err is returned by every Complete call when non-nil.
	Err error

	// Calls records every request in order.
	Calls []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the request and returns the configured response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.Calls)
	p.Calls = append(p.Calls, req)

	if p.Err != nil {
		return nil, p.Err
	}
	if idx < len(p.Responses) {
		return p.Responses[idx], nil
	}
	return p.Response, nil
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
