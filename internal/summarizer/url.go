package summarizer

import (
	"regexp"
	"strings"

	"keyhub/internal/apperr"
)

var (
	repoURLPattern  = regexp.MustCompile(`(?i)^https?://(www\.)?github\.com/[\w.-]+/[\w.-]+`)
	repoPartPattern = regexp.MustCompile(`(?i)github\.com/([^/]+)/([^/?#]+)`)
)

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string
	Name  string
	// URL is the address as submitted, trimmed.
	URL string
}

// CacheKey is the case-insensitive identity of the repository.
func (r Repo) CacheKey() string {
	return strings.ToLower(r.Owner + "/" + r.Name)
}

// ParseRepoURL validates a GitHub repository URL and extracts owner and name.
// A trailing slash and a .git suffix are ignored.
func ParseRepoURL(raw string) (Repo, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Repo{}, apperr.Validation("gitHubUrl", "gitHubUrl is required in the request body")
	}
	if !repoURLPattern.MatchString(trimmed) {
		return Repo{}, apperr.Validation("gitHubUrl", "Invalid GitHub URL format. Expected format: https://github.com/owner/repo")
	}

	normalized := strings.TrimSuffix(trimmed, "/")
	normalized = strings.TrimSuffix(normalized, ".git")

	m := repoPartPattern.FindStringSubmatch(normalized)
	if m == nil || m[2] == "" {
		return Repo{}, apperr.Validation("gitHubUrl", "Invalid GitHub URL format. Expected format: https://github.com/owner/repo")
	}
	return Repo{Owner: m[1], Name: m[2], URL: trimmed}, nil
}
