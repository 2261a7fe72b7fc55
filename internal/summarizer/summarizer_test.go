package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"keyhub/internal/apperr"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const sampleReadme = "# Widget\n\nA tiny library for widgets.\nIt is fast.\n\n## Features\n\n- Zero dependencies\n- Works offline\n\n```go\n- not a bullet\n```\n"

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		raw   string
		owner string
		name  string
	}{
		{"https://github.com/acme/widget", "acme", "widget"},
		{"https://github.com/acme/widget/", "acme", "widget"},
		{"https://github.com/acme/widget.git", "acme", "widget"},
		{"http://www.github.com/acme/widget.js", "acme", "widget.js"},
		{"  https://GitHub.com/Acme/Widget  ", "Acme", "Widget"},
		{"https://github.com/acme/widget/tree/main/docs", "acme", "widget"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			repo, err := ParseRepoURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.owner, repo.Owner)
			assert.Equal(t, tt.name, repo.Name)
			assert.Equal(t, strings.TrimSpace(tt.raw), repo.URL)
		})
	}

	for _, raw := range []string{"", "   ", "https://gitlab.com/acme/widget", "github.com/acme/widget", "https://github.com/acme", "ftp://github.com/a/b"} {
		_, err := ParseRepoURL(raw)
		var validationErr *apperr.ValidationError
		require.ErrorAs(t, err, &validationErr, raw)
		assert.Equal(t, "gitHubUrl", validationErr.Field)
	}
}

func TestRepo_CacheKey(t *testing.T) {
	a, _ := ParseRepoURL("https://github.com/Acme/Widget")
	b, _ := ParseRepoURL("https://github.com/acme/widget.git")
	assert.Equal(t, a.CacheKey(), b.CacheKey())
}

func TestFetcher_TriesBranchesInOrder(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		if r.URL.Path == "/acme/widget/master/readme.md" {
			w.Write([]byte(sampleReadme))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(slog.Default(), WithBaseURL(server.URL), WithToken("gh-token"))
	content, found, err := f.FetchReadme(context.Background(), Repo{Owner: "acme", Name: "widget"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, sampleReadme, content)
	assert.Equal(t, []string{
		"/acme/widget/main/README.md",
		"/acme/widget/main/readme.md",
		"/acme/widget/master/README.md",
		"/acme/widget/master/readme.md",
	}, paths)
}

func TestFetcher_NotFound(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(slog.Default(), WithBaseURL(server.URL))
	_, found, err := f.FetchReadme(context.Background(), Repo{Owner: "acme", Name: "widget"})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int32(len(DefaultBranches)*len(ReadmeNames)), hits)
}

func TestFetcher_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		want   int
	}{
		{"rate limited", http.StatusTooManyRequests, nil, http.StatusTooManyRequests},
		{"forbidden with exhausted rate limit", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, http.StatusTooManyRequests},
		{"forbidden", http.StatusForbidden, nil, http.StatusForbidden},
		{"unauthorized", http.StatusUnauthorized, nil, http.StatusUnauthorized},
		{"upstream down", http.StatusBadGateway, nil, http.StatusServiceUnavailable},
		{"gone", http.StatusGone, nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			f := NewFetcher(slog.Default(), WithBaseURL(server.URL))
			_, _, err := f.FetchReadme(context.Background(), Repo{Owner: "acme", Name: "widget"})
			fe, ok := IsFetchError(err)
			require.True(t, ok, "expected FetchError, got %v", err)
			assert.Equal(t, tt.want, fe.Status)
		})
	}
}

func TestFetcher_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f := NewFetcher(slog.Default(), WithBaseURL(url), WithHTTPClient(&http.Client{Timeout: time.Second}))
	_, _, err := f.FetchReadme(context.Background(), Repo{Owner: "acme", Name: "widget"})
	fe, ok := IsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
}

func TestManualExtractor(t *testing.T) {
	ex, err := ManualExtractor{}.Extract(context.Background(), sampleReadme)
	require.NoError(t, err)
	assert.Equal(t, "Widget. A tiny library for widgets. It is fast.", ex.Summary)
	assert.Equal(t, []string{"Zero dependencies", "Works offline"}, ex.CoolFacts)
}

func TestManualExtractor_Fallbacks(t *testing.T) {
	ex, err := ManualExtractor{}.Extract(context.Background(), "```\ncode only\n```\n")
	require.NoError(t, err)
	assert.Equal(t, fallbackSummary, ex.Summary)
	assert.Equal(t, []string{fallbackFact}, ex.CoolFacts)

	long := "# T\n\n" + strings.Repeat("word ", 200) + "\n\n" + strings.Repeat("- fact\n", 9)
	ex, err = ManualExtractor{}.Extract(context.Background(), long)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(ex.Summary)), maxSummaryRunes)
	assert.Len(t, ex.CoolFacts, maxFacts)
}

// mockGenerator is a mock implementation of ContentGenerator.
type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, parts)
	resp, _ := args.Get(0).(*genai.GenerateContentResponse)
	return resp, args.Error(1)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}},
		}},
	}
}

func TestGeminiExtractor(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateContent", mock.Anything, mock.MatchedBy(func(parts []genai.Part) bool {
		return len(parts) == 1 && strings.Contains(string(parts[0].(genai.Text)), "A tiny library for widgets.")
	})).Return(textResponse(`{"summary":" Widgets made easy. ","coolFacts":["Fast"," ","Offline"]}`), nil)

	ex, err := NewGeminiExtractorWithGenerator(gen).Extract(context.Background(), sampleReadme)
	require.NoError(t, err)
	assert.Equal(t, "Widgets made easy.", ex.Summary)
	assert.Equal(t, []string{"Fast", "Offline"}, ex.CoolFacts)
	gen.AssertExpectations(t)
}

func TestGeminiExtractor_Errors(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateContent", mock.Anything, mock.Anything).Return(nil, errors.New("quota")).Once()
	gen.On("GenerateContent", mock.Anything, mock.Anything).Return(&genai.GenerateContentResponse{}, nil).Once()
	gen.On("GenerateContent", mock.Anything, mock.Anything).Return(textResponse("not json"), nil).Once()

	ex := NewGeminiExtractorWithGenerator(gen)
	for i := 0; i < 3; i++ {
		_, err := ex.Extract(context.Background(), sampleReadme)
		assert.Error(t, err)
	}
	assert.NoError(t, ex.Close())
}

func TestMemoryCache(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Hour)
	c.now = func() time.Time { return now }

	r := &Result{Summary: "s", CoolFacts: []string{"f"}, Repo: "https://github.com/a/b"}
	c.Set("a/b", r)
	c.Set("c/d", r)

	got, ok := c.Get("a/b")
	require.True(t, ok)
	assert.Equal(t, r, got)

	now = now.Add(time.Hour)
	_, ok = c.Get("a/b")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Zero(t, c.Len())
}

type fakeFetcher struct {
	content string
	found   bool
	err     error
	calls   int
}

func (f *fakeFetcher) FetchReadme(ctx context.Context, repo Repo) (string, bool, error) {
	f.calls++
	return f.content, f.found, f.err
}

func TestService_Summarize(t *testing.T) {
	fetcher := &fakeFetcher{content: sampleReadme, found: true}
	cache := NewMemoryCache(time.Hour)
	svc := NewService(fetcher, ManualExtractor{}, cache, slog.Default())
	repo, err := ParseRepoURL("https://github.com/acme/widget")
	require.NoError(t, err)

	result, err := svc.Summarize(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, "Widget. A tiny library for widgets. It is fast.", result.Summary)
	assert.Equal(t, 1, result.FilesAnalyzed)
	assert.Equal(t, len(sampleReadme), result.ReadmeLength)
	assert.Equal(t, "https://github.com/acme/widget", result.Repo)

	again, err := ParseRepoURL("https://github.com/ACME/widget.git")
	require.NoError(t, err)
	cached, err := svc.Summarize(context.Background(), again)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, result.Summary, cached.Summary)
	assert.Equal(t, "https://github.com/ACME/widget.git", cached.Repo)
	assert.Same(t, cache, svc.Cache())
}

func TestService_NoReadme(t *testing.T) {
	svc := NewService(&fakeFetcher{found: false}, ManualExtractor{}, nil, slog.Default())
	repo, _ := ParseRepoURL("https://github.com/acme/empty")

	result, err := svc.Summarize(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, "No README.md file found in this repository.", result.Summary)
	assert.Equal(t, []string{"This repository does not contain a README file."}, result.CoolFacts)
	assert.Zero(t, result.FilesAnalyzed)

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "readmeLength")
}

func TestService_FetchErrorPassesThrough(t *testing.T) {
	fetchErr := &FetchError{Status: http.StatusTooManyRequests, Message: "GitHub API rate limit exceeded"}
	svc := NewService(&fakeFetcher{err: fetchErr}, ManualExtractor{}, nil, slog.Default())
	repo, _ := ParseRepoURL("https://github.com/acme/widget")

	_, err := svc.Summarize(context.Background(), repo)
	fe, ok := IsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, fe.Status)
}

type emptyExtractor struct{}

func (emptyExtractor) Extract(context.Context, string) (*Extraction, error) {
	return &Extraction{Summary: "", CoolFacts: nil}, nil
}

func TestService_RejectsInvalidExtraction(t *testing.T) {
	cache := NewMemoryCache(time.Hour)
	svc := NewService(&fakeFetcher{content: sampleReadme, found: true}, emptyExtractor{}, cache, slog.Default())
	repo, _ := ParseRepoURL("https://github.com/acme/widget")

	_, err := svc.Summarize(context.Background(), repo)
	assert.Error(t, err)
	assert.Zero(t, cache.Len())
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("KEYHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KEYHUB_TEST_REDIS_ADDR not set")
	}
	c, err := NewRedisCache(addr, "", 0, time.Minute, slog.Default())
	require.NoError(t, err)
	defer c.Close()

	r := &Result{Summary: "s", CoolFacts: []string{"f"}, FilesAnalyzed: 1, Repo: "https://github.com/a/b"}
	c.Set("test/redis-cache", r)
	got, ok := c.Get("test/redis-cache")
	require.True(t, ok)
	assert.Equal(t, r, got)

	_, ok = c.Get("test/missing")
	assert.False(t, ok)
	c.Purge()
}
