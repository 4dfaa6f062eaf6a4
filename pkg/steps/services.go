package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// SearchResult is one hit returned by a Searcher.
type SearchResult struct {
	Title         string  `json:"title" yaml:"title" mapstructure:"title"`
	URL           string  `json:"url" yaml:"url" mapstructure:"url"`
	Snippet       string  `json:"snippet" yaml:"snippet" mapstructure:"snippet"`
	Score         float64 `json:"score" yaml:"score" mapstructure:"score"`
	PublishedDate string  `json:"published_date,omitempty" yaml:"published_date,omitempty" mapstructure:"published_date"`
}

// Map converts the result into its state representation.
func (r SearchResult) Map() map[string]any {
	m := map[string]any{
		"title":   r.Title,
		"url":     r.URL,
		"snippet": r.Snippet,
		"score":   r.Score,
	}
	if r.PublishedDate != "" {
		m["published_date"] = r.PublishedDate
	}
	return m
}

// SearchOptions tunes a search request.
type SearchOptions struct {
	MaxResults int
	Depth      string // "basic" or "advanced"
}

// Searcher abstracts a web search provider.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// MockSearcher returns canned results, truncated to MaxResults.
type MockSearcher struct {
	Results []SearchResult
}

func (m *MockSearcher) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := m.Results
	if opts.MaxResults > 0 && len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	return append([]SearchResult(nil), out...), nil
}

// Message is one chat-style entry kept in the state's message log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Summarizer turns a prompt into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string, results []SearchResult) (string, error)
}

// TemplateSummarizer renders results through a text template. It needs no
// external model and is deterministic.
type TemplateSummarizer struct {
	tmpl *template.Template
}

const defaultSummaryTemplate = `Summary of {{len .}} finding(s):
{{range $i, $r := .}}{{inc $i}}. {{$r.Title}} ({{$r.URL}}): {{$r.Snippet}}
{{end}}`

// NewTemplateSummarizer parses text; an empty text selects the default template.
func NewTemplateSummarizer(text string) (*TemplateSummarizer, error) {
	if text == "" {
		text = defaultSummaryTemplate
	}
	tmpl, err := template.New("summary").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid summary template: %w", err)
	}
	return &TemplateSummarizer{tmpl: tmpl}, nil
}

func (s *TemplateSummarizer) Summarize(_ context.Context, _ string, results []SearchResult) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, results); err != nil {
		return "", fmt.Errorf("failed to render summary: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// FileSystem writes step outputs below a base directory. Paths that would
// leave the base directory are refused.
type FileSystem struct {
	base string
}

// NewFileSystem creates the base directory if needed.
func NewFileSystem(base string) (*FileSystem, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("invalid output directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileSystem{base: abs}, nil
}

// Base returns the absolute base directory.
func (fs *FileSystem) Base() string { return fs.base }

func (fs *FileSystem) resolve(subdir, filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}
	path := filepath.Join(fs.base, subdir, filename)
	rel, err := filepath.Rel(fs.base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes output directory", filepath.Join(subdir, filename))
	}
	return path, nil
}

// WriteText writes content and returns the written path.
func (fs *FileSystem) WriteText(subdir, filename, content string) (string, error) {
	path, err := fs.resolve(subdir, filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// WriteJSON writes data as indented JSON, adding a .json extension when missing.
func (fs *FileSystem) WriteJSON(subdir, filename string, data any) (string, error) {
	if !strings.HasSuffix(filename, ".json") {
		filename += ".json"
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	return fs.WriteText(subdir, filename, string(raw))
}

// ReadText reads a file below the base directory.
func (fs *FileSystem) ReadText(subdir, filename string) (string, error) {
	path, err := fs.resolve(subdir, filename)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(raw), nil
}
