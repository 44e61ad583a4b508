package taxonomy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxPayloadBytes bounds a remote snapshot body.
const maxPayloadBytes = 128 << 20

// Fetcher retrieves raw taxonomy records from a remote source.
type Fetcher interface {
	Fetch(ctx context.Context) (entries []Entry, skipped int, err error)
}

// RemoteSource fetches a taxonomy snapshot over HTTP GET.
type RemoteSource struct {
	URL       string
	Client    *http.Client
	UserAgent string
}

// NewRemoteSource creates a fetcher for url. A nil client gets a 30s timeout.
func NewRemoteSource(url string, client *http.Client) *RemoteSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteSource{URL: url, Client: client, UserAgent: "skillscan"}
}

// Fetch downloads and parses the snapshot. Every failure is reported as
// ErrSourceUnavailable so the repository can fall through to the next tier.
func (r *RemoteSource) Fetch(ctx context.Context) ([]Entry, int, error) {
	if r.URL == "" {
		return nil, 0, fmt.Errorf("%w: no remote url configured", ErrSourceUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%w: remote returned status %s", ErrSourceUnavailable, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read body: %v", ErrSourceUnavailable, err)
	}
	return ParseRecords(body)
}
