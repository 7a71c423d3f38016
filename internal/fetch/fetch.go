// Package fetch downloads prebuilt release assets.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/ctxlog"
	"github.com/vk/moveboot/internal/platform"
)

// DefaultBaseURL is the public GitHub host.
const DefaultBaseURL = "https://github.com"

var (
	// ErrNotFound is returned when the host has no asset for the request.
	ErrNotFound = errors.New("release asset not found")
	// ErrPlatformUnsupported is returned when the release is known not to
	// publish for the requested platform.
	ErrPlatformUnsupported = errors.New("release not published for platform")
)

// Request identifies one release asset.
type Request struct {
	Release  artifact.BinaryRelease
	Platform platform.Platform
	Version  artifact.Version
}

// Fetcher opens the byte stream of a release asset. The caller closes it.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (io.ReadCloser, error)
}

// GitHub fetches assets from GitHub release downloads.
type GitHub struct {
	BaseURL   string
	Client    *http.Client
	UserAgent string
}

// NewGitHub returns a GitHub fetcher for baseURL, or the public host when empty.
func NewGitHub(baseURL string, client *http.Client) *GitHub {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GitHub{BaseURL: baseURL, Client: client, UserAgent: "moveboot"}
}

// URL returns the download location for req.
func (g *GitHub) URL(req Request) (string, error) {
	r := req.Release
	if r.Owner == "" || r.Repo == "" || r.Product == "" {
		return "", fmt.Errorf("release requires owner, repo and product")
	}
	base := g.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("invalid release base url '%s': %w", base, err)
	}

	parts := []string{strings.TrimRight(base, "/"), url.PathEscape(r.Owner), url.PathEscape(r.Repo), "releases"}
	if req.Version == artifact.Latest {
		parts = append(parts, "latest", "download")
	} else {
		parts = append(parts, "download", url.PathEscape(string(req.Version)))
	}
	parts = append(parts, url.PathEscape(r.AssetName(req.Platform)))
	return strings.Join(parts, "/"), nil
}

// Fetch implements Fetcher.
func (g *GitHub) Fetch(ctx context.Context, req Request) (io.ReadCloser, error) {
	logger := ctxlog.FromContext(ctx)

	if !req.Release.Publishes(req.Platform) {
		return nil, fmt.Errorf("%w: %s/%s has no %s build", ErrPlatformUnsupported, req.Release.Owner, req.Release.Repo, req.Platform)
	}

	target, err := g.URL(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if g.UserAgent != "" {
		httpReq.Header.Set("User-Agent", g.UserAgent)
	}
	httpReq.Header.Set("Accept", "application/octet-stream")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	logger.Debug("Fetching release asset.", "url", target)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", target, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("download of %s failed with status %d", target, resp.StatusCode)
	}
}
