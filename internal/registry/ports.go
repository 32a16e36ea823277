package registry

//go:generate mockgen -source=ports.go -destination=mocks/searcher_mock.go -package=mocks Searcher

import "context"

// Searcher submits one search to the registry and returns every result
// row. An empty slice with a nil error means the registry answered "not
// found". Errors should be *providers.ProviderError so retries can tell
// transient failures from terminal ones.
type Searcher interface {
	Search(ctx context.Context, documentNumber string) ([]Candidate, error)
}
