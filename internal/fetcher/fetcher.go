// Package fetcher downloads summons artifacts over HTTP with per-host rate
// limiting and retries.
package fetcher

import (
	"context"
)

// Fetcher downloads a remote artifact.
type Fetcher interface {
	// Fetch returns the body of rawURL. Non-2xx responses are errors.
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}
