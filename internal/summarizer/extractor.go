package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	maxSummaryRunes = 500
	maxFacts        = 5

	fallbackSummary = "A well-documented project with comprehensive information."
	fallbackFact    = "This project has a comprehensive README with detailed documentation."
)

// Extraction is the summary and facts pulled out of a README.
type Extraction struct {
	Summary   string   `json:"summary"`
	CoolFacts []string `json:"coolFacts"`
}

// Extractor turns README text into an Extraction.
type Extractor interface {
	Extract(ctx context.Context, readme string) (*Extraction, error)
}

// ManualExtractor reads the title, the first paragraph and bullet points. It
// does not call out to any model.
type ManualExtractor struct{}

// Extract implements Extractor.
func (ManualExtractor) Extract(_ context.Context, readme string) (*Extraction, error) {
	var title string
	var paragraph []string
	var facts []string
	inCode := false
	paragraphDone := false

	for _, raw := range strings.Split(readme, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}

		switch {
		case line == "":
			if len(paragraph) > 0 {
				paragraphDone = true
			}
		case strings.HasPrefix(line, "# ") && title == "":
			title = strings.TrimSpace(strings.TrimLeft(line, "#"))
		case strings.HasPrefix(line, "#"):
			if len(paragraph) > 0 {
				paragraphDone = true
			}
		case isBullet(line):
			if len(paragraph) > 0 {
				paragraphDone = true
			}
			if fact := strings.TrimSpace(line[2:]); fact != "" && len(facts) < maxFacts {
				facts = append(facts, fact)
			}
		case strings.HasPrefix(line, "|"), strings.HasPrefix(line, "!["), strings.HasPrefix(line, "<"):
			// tables, badges and raw html
		default:
			if !paragraphDone {
				paragraph = append(paragraph, line)
			}
		}
	}

	var parts []string
	if title != "" {
		parts = append(parts, title)
	}
	if len(paragraph) > 0 {
		parts = append(parts, strings.Join(paragraph, " "))
	}
	summary := truncateRunes(strings.Join(parts, ". "), maxSummaryRunes)
	if summary == "" {
		summary = fallbackSummary
	}
	if len(facts) == 0 {
		facts = []string{fallbackFact}
	}
	return &Extraction{Summary: summary, CoolFacts: facts}, nil
}

func isBullet(line string) bool {
	return len(line) > 2 && (line[0] == '-' || line[0] == '*' || line[0] == '+') && line[1] == ' '
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(r[:n]))
}

// ContentGenerator is the part of *genai.GenerativeModel the extractor uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

const geminiPrompt = `Summarize this GitHub repository from its README.
Return a one paragraph summary and up to five short, interesting facts about the project.

README:
`

// GeminiExtractor asks a Gemini model for a structured summary.
type GeminiExtractor struct {
	model  ContentGenerator
	client *genai.Client
}

// NewGeminiExtractor connects to Gemini with apiKey and configures modelName
// to answer with JSON matching Extraction.
func NewGeminiExtractor(ctx context.Context, apiKey, modelName string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {
				Type:        genai.TypeString,
				Description: "A concise summary of the repository.",
			},
			"coolFacts": {
				Type:        genai.TypeArray,
				Description: "Interesting facts about the repository.",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"summary", "coolFacts"},
	}

	return &GeminiExtractor{model: model, client: client}, nil
}

// NewGeminiExtractorWithGenerator wraps an existing generator.
func NewGeminiExtractorWithGenerator(model ContentGenerator) *GeminiExtractor {
	return &GeminiExtractor{model: model}
}

// Extract implements Extractor.
func (g *GeminiExtractor) Extract(ctx context.Context, readme string) (*Extraction, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(geminiPrompt+readme))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	var out Extraction
	if err := json.Unmarshal([]byte(text.String()), &out); err != nil {
		return nil, fmt.Errorf("gemini returned malformed JSON: %w", err)
	}
	out.Summary = strings.TrimSpace(out.Summary)
	facts := out.CoolFacts[:0]
	for _, f := range out.CoolFacts {
		if f = strings.TrimSpace(f); f != "" {
			facts = append(facts, f)
		}
	}
	if len(facts) > maxFacts {
		facts = facts[:maxFacts]
	}
	out.CoolFacts = facts
	return &out, nil
}

// Close releases the underlying client, if any.
func (g *GeminiExtractor) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
