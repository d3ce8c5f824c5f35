// Package enrich gathers optional context for the analysis prompt.
// Every source degrades to an absent section: an outage at a context
// provider never blocks a betting cycle.
package enrich

import (
	"context"
	"log"

	"github.com/phenomenon0/overtime-agents/core"
)

// Source produces one prompt section from external data. An empty
// string means the section is skipped.
type Source interface {
	Name() string
	Section(ctx context.Context, markets []core.Market) (string, error)
}

// Enricher runs the configured sources against the slate.
type Enricher struct {
	sources []Source
}

// New creates an enricher over the given sources.
func New(sources ...Source) *Enricher {
	return &Enricher{sources: sources}
}

// Collect runs every source and returns the non-empty sections in
// source order. Failures are logged and skipped.
func (e *Enricher) Collect(ctx context.Context, markets []core.Market) []string {
	var sections []string
	for _, src := range e.sources {
		section, err := src.Section(ctx, markets)
		if err != nil {
			log.Printf("[ENRICH] %s unavailable: %v", src.Name(), err)
			continue
		}
		if section != "" {
			sections = append(sections, section)
		}
	}
	return sections
}
