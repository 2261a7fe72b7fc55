package summarizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultRawBaseURL serves raw file contents for public repositories.
	DefaultRawBaseURL = "https://raw.githubusercontent.com"

	maxReadmeBytes = 1 << 20
)

var (
	// DefaultBranches are tried in order until one has a README.
	DefaultBranches = []string{"main", "master", "develop", "dev", "trunk"}
	// ReadmeNames are the file names tried on each branch.
	ReadmeNames = []string{"README.md", "readme.md"}
)

// FetchError is a failure to load a README that should be reported to the
// caller with Status.
type FetchError struct {
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher downloads README files from GitHub.
type Fetcher struct {
	client   *http.Client
	baseURL  string
	token    string
	branches []string
	logger   *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithBaseURL overrides the raw content host.
func WithBaseURL(u string) FetcherOption {
	return func(f *Fetcher) {
		if u != "" {
			f.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithToken sends token as a Bearer credential, which raises GitHub rate limits
// and grants access to private repositories.
func WithToken(token string) FetcherOption {
	return func(f *Fetcher) {
		f.token = token
	}
}

// WithBranches overrides the branch candidates.
func WithBranches(branches []string) FetcherOption {
	return func(f *Fetcher) {
		if len(branches) > 0 {
			f.branches = branches
		}
	}
}

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = c
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURL:  DefaultRawBaseURL,
		branches: DefaultBranches,
		logger:   logger.With("component", "readme_fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchReadme returns the first README found on the candidate branches. found
// is false when every candidate returned 404.
func (f *Fetcher) FetchReadme(ctx context.Context, repo Repo) (content string, found bool, err error) {
	for _, branch := range f.branches {
		for _, name := range ReadmeNames {
			url := fmt.Sprintf("%s/%s/%s/%s/%s", f.baseURL, repo.Owner, repo.Name, branch, name)
			body, status, err := f.get(ctx, url)
			if err != nil {
				if ctx.Err() != nil {
					return "", false, ctx.Err()
				}
				return "", false, &FetchError{Status: http.StatusServiceUnavailable, Message: "Failed to connect to GitHub API", Err: err}
			}
			switch {
			case status == http.StatusOK:
				f.logger.Debug("README found", "repo", repo.CacheKey(), "branch", branch, "file", name)
				return body, true, nil
			case status == http.StatusNotFound:
				continue
			default:
				return "", false, classifyStatus(status)
			}
		}
	}
	return "", false, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return "", http.StatusTooManyRequests, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReadmeBytes))
	if err != nil {
		return "", 0, err
	}
	return string(data), http.StatusOK, nil
}

func classifyStatus(status int) *FetchError {
	switch {
	case status == http.StatusTooManyRequests:
		return &FetchError{Status: http.StatusTooManyRequests, Message: "GitHub API rate limit exceeded"}
	case status == http.StatusForbidden:
		return &FetchError{Status: http.StatusForbidden, Message: "Access to repository is forbidden"}
	case status == http.StatusUnauthorized:
		return &FetchError{Status: http.StatusUnauthorized, Message: "Unauthorized access to GitHub API"}
	case status == http.StatusGone:
		return &FetchError{Status: http.StatusNotFound, Message: "Repository not found or branch does not exist"}
	case status >= 500:
		return &FetchError{Status: http.StatusServiceUnavailable, Message: "Failed to connect to GitHub API"}
	default:
		return &FetchError{Status: http.StatusInternalServerError, Message: fmt.Sprintf("Failed to load repository: unexpected status %d", status)}
	}
}

// IsFetchError reports whether err is a FetchError and returns it.
func IsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
