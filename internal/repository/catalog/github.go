package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hendriksen-mark/server-installer/internal/domain/install"
	"github.com/hendriksen-mark/server-installer/internal/domain/release"
)

// Repository lists the release channels available for the server.
type Repository interface {
	ListChannels(ctx context.Context) ([]release.Channel, error)
}

// GitHubRepository reads channels from a GitHub list-branches endpoint.
// Records are parsed permissively: only the name field is consumed.
type GitHubRepository struct {
	// url is the list-branches endpoint.
	url string
	// client is the HTTP client used for catalog requests.
	client *http.Client
}

// branchRecord is the subset of a branch object the installer cares about.
type branchRecord struct {
	Name string `json:"name"`
}

// NewGitHubRepository creates a catalog repository for the provided endpoint.
func NewGitHubRepository(url string, timeout time.Duration) *GitHubRepository {
	return &GitHubRepository{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListChannels fetches and decodes the branch catalog, preserving order.
// Any transport, status or decoding failure is reported as a NetworkError
// so the caller can fall back to the default channel sequence.
func (r *GitHubRepository) ListChannels(ctx context.Context) ([]release.Channel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, http.NoBody)
	if err != nil {
		return nil, &install.NetworkError{URL: r.url, Err: err}
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	response, err := r.client.Do(req)
	if err != nil {
		return nil, &install.NetworkError{URL: r.url, Err: err}
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, &install.NetworkError{
			URL: r.url,
			Err: fmt.Errorf("unexpected status %s", response.Status),
		}
	}

	var records []branchRecord
	if err = json.NewDecoder(response.Body).Decode(&records); err != nil {
		return nil, &install.NetworkError{URL: r.url, Err: fmt.Errorf("decode catalog: %w", err)}
	}

	channels := make([]release.Channel, 0, len(records))
	for _, record := range records {
		if record.Name == "" {
			continue
		}

		channels = append(channels, release.NewChannel(record.Name))
	}

	return channels, nil
}
