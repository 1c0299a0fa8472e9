// Package education implements the one-shot explanation fetch of spec
// §4.9: a thin wrapper over the classifier client used by both the overlay
// and the control surface's Explain button.
package education

import (
	"context"
	"fmt"

	"github.com/postlens/agent/internal/types"
)

// EducateClient is the subset of the classifier client education needs.
// Satisfied directly by *classifier.Client.
type EducateClient interface {
	Educate(ctx context.Context, baseID string) (types.Education, error)
}

// Fetcher issues education requests. No caching is required beyond what
// the caller's modal keeps for the current view (spec §4.9).
type Fetcher struct {
	client EducateClient
}

// New builds a Fetcher over client.
func New(client EducateClient) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch requests the explanation payload for baseID. Errors surface to the
// caller verbatim; the caller decides how to present the failure.
func (f *Fetcher) Fetch(ctx context.Context, baseID string) (types.Education, error) {
	ed, err := f.client.Educate(ctx, baseID)
	if err != nil {
		return types.Education{}, fmt.Errorf("education: fetch failed for %s: %w", baseID, err)
	}
	return ed, nil
}
