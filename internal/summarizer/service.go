package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Result is the response of the summarizer endpoint.
type Result struct {
	Summary       string   `json:"summary" validate:"required"`
	CoolFacts     []string `json:"coolFacts" validate:"min=1,dive,required"`
	FilesAnalyzed int      `json:"filesAnalyzed" validate:"gte=0"`
	Repo          string   `json:"repo" validate:"required,url"`
	ReadmeLength  int      `json:"readmeLength,omitempty" validate:"gte=0"`
}

// ReadmeFetcher loads the README of a repository.
type ReadmeFetcher interface {
	FetchReadme(ctx context.Context, repo Repo) (string, bool, error)
}

// Service produces repository summaries.
type Service struct {
	fetcher   ReadmeFetcher
	extractor Extractor
	cache     Cache
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService creates a summarizer Service. A nil cache disables caching.
func NewService(fetcher ReadmeFetcher, extractor Extractor, cache Cache, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NoCache{}
	}
	return &Service{
		fetcher:   fetcher,
		extractor: extractor,
		cache:     cache,
		validate:  validator.New(),
		logger:    logger.With("component", "summarizer"),
	}
}

// Cache returns the cache the service writes to.
func (s *Service) Cache() Cache {
	return s.cache
}

// Summarize returns the summary of repo, from cache when available.
func (s *Service) Summarize(ctx context.Context, repo Repo) (*Result, error) {
	if cached, ok := s.cache.Get(repo.CacheKey()); ok {
		s.logger.Debug("Summary served from cache", "repo", repo.CacheKey())
		result := *cached
		result.Repo = repo.URL
		return &result, nil
	}

	readme, found, err := s.fetcher.FetchReadme(ctx, repo)
	if err != nil {
		return nil, err
	}

	var result *Result
	switch {
	case !found:
		result = &Result{
			Summary:       "No README.md file found in this repository.",
			CoolFacts:     []string{"This repository does not contain a README file."},
			FilesAnalyzed: 0,
			Repo:          repo.URL,
		}
	case strings.TrimSpace(readme) == "":
		result = &Result{
			Summary:       "Unable to extract summary from README. The file may be empty or in an unexpected format.",
			CoolFacts:     []string{"The repository may not contain a valid README file."},
			FilesAnalyzed: 1,
			Repo:          repo.URL,
			ReadmeLength:  len(readme),
		}
	default:
		extraction, err := s.extractor.Extract(ctx, readme)
		if err != nil {
			return nil, fmt.Errorf("failed to extract summary for %s: %w", repo.CacheKey(), err)
		}
		result = &Result{
			Summary:       extraction.Summary,
			CoolFacts:     extraction.CoolFacts,
			FilesAnalyzed: 1,
			Repo:          repo.URL,
			ReadmeLength:  len(readme),
		}
	}

	if err := s.validate.Struct(result); err != nil {
		return nil, fmt.Errorf("invalid summary for %s: %w", repo.CacheKey(), err)
	}

	s.cache.Set(repo.CacheKey(), result)
	s.logger.Info("Repository summarized", "repo", repo.CacheKey(), "readme_length", result.ReadmeLength)
	return result, nil
}
