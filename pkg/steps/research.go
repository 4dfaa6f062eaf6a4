package steps

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/trace"
)

// ErrMissingDependency is returned by a step whose service was not configured.
var ErrMissingDependency = errors.New("step dependency not configured")

// WebSearch queries the Searcher with the text held in query_field.
//
//	config: {query_field: "query", max_results: 10, depth: "advanced"}
//	writes: results, result_count
func WebSearch(searcher Searcher) registry.StepFunc {
	return func(ctx context.Context, state domain.View, cfg registry.Config) (domain.Update, error) {
		if searcher == nil {
			return nil, fmt.Errorf("web_search: %w: searcher", ErrMissingDependency)
		}
		opts := struct {
			QueryField string `mapstructure:"query_field"`
			MaxResults int    `mapstructure:"max_results"`
			Depth      string `mapstructure:"depth"`
		}{QueryField: "query", MaxResults: 10, Depth: "advanced"}
		if err := cfg.Decode(&opts); err != nil {
			return nil, err
		}

		query, err := stringField(state, opts.QueryField)
		if err != nil {
			return nil, err
		}
		results, err := searcher.Search(ctx, query, SearchOptions{MaxResults: opts.MaxResults, Depth: opts.Depth})
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}

		out := make([]any, len(results))
		for i, r := range results {
			out[i] = r.Map()
		}
		trace.Report(ctx, "result_count", len(out))
		trace.Report(ctx, "query_length", len(query))
		return domain.Update{"results": out, "result_count": len(out)}, nil
	}
}

// FilterResults keeps results scoring at least min_score, best first, at most max_results.
// A result without a score counts as 1.0.
//
//	config: {min_score: 0.5, max_results: 5}
//	writes: results
func FilterResults(ctx context.Context, state domain.View, cfg registry.Config) (domain.Update, error) {
	opts := struct {
		MinScore   float64 `mapstructure:"min_score"`
		MaxResults int     `mapstructure:"max_results"`
	}{MinScore: 0.5, MaxResults: 5}
	if err := cfg.Decode(&opts); err != nil {
		return nil, err
	}

	results, err := resultList(state, "results")
	if err != nil {
		return nil, err
	}

	filtered := make([]map[string]any, 0, len(results))
	for _, r := range results {
		if scoreOf(r) >= opts.MinScore {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return scoreOf(filtered[i]) > scoreOf(filtered[j]) })
	if opts.MaxResults >= 0 && len(filtered) > opts.MaxResults {
		filtered = filtered[:opts.MaxResults]
	}

	out := make([]any, len(filtered))
	for i, r := range filtered {
		out[i] = r
	}
	trace.Report(ctx, "original_count", len(results))
	trace.Report(ctx, "filtered_count", len(out))
	trace.Report(ctx, "min_score", opts.MinScore)
	return domain.Update{"results": out}, nil
}

// SaveResults writes {"results": [...]} as JSON through the FileSystem.
//
//	config: {filename: "search_results.json", subdirectory: ""}
//	writes: file_path, saved
func SaveResults(files *FileSystem) registry.StepFunc {
	return func(ctx context.Context, state domain.View, cfg registry.Config) (domain.Update, error) {
		if files == nil {
			return nil, fmt.Errorf("save_results: %w: file system", ErrMissingDependency)
		}
		opts := struct {
			Filename     string `mapstructure:"filename"`
			Subdirectory string `mapstructure:"subdirectory"`
		}{Filename: "search_results.json"}
		if err := cfg.Decode(&opts); err != nil {
			return nil, err
		}

		results, err := resultList(state, "results")
		if err != nil {
			return nil, err
		}
		path, err := files.WriteJSON(opts.Subdirectory, opts.Filename, map[string]any{"results": results})
		if err != nil {
			return nil, err
		}
		trace.Report(ctx, "result_count", len(results))
		trace.Report(ctx, "file_path", path)
		return domain.Update{"file_path": path, "saved": true}, nil
	}
}

// SummarizeFindings asks the Summarizer for a summary of the results and logs the
// exchange as two new messages. The messages field is expected to use append.
//
//	writes: summary, messages
func SummarizeFindings(summarizer Summarizer) registry.StepFunc {
	return func(ctx context.Context, state domain.View, cfg registry.Config) (domain.Update, error) {
		if summarizer == nil {
			return nil, fmt.Errorf("summarize_findings: %w: summarizer", ErrMissingDependency)
		}
		raw, err := resultList(state, "results")
		if err != nil {
			return nil, err
		}

		results := make([]SearchResult, len(raw))
		var body strings.Builder
		for i, r := range raw {
			results[i] = SearchResult{
				Title:   fmt.Sprint(r["title"]),
				URL:     fmt.Sprint(r["url"]),
				Snippet: fmt.Sprint(r["snippet"]),
				Score:   scoreOf(r),
			}
			if i > 0 {
				body.WriteString("\n\n")
			}
			fmt.Fprintf(&body, "**%s**\n%s\nSource: %s", results[i].Title, results[i].Snippet, results[i].URL)
		}
		prompt := "Based on the following search results, provide a summary of the key findings:\n\n" + body.String()

		summary, err := summarizer.Summarize(ctx, prompt, results)
		if err != nil {
			return nil, fmt.Errorf("summarize failed: %w", err)
		}
		trace.Report(ctx, "result_count", len(results))
		trace.Report(ctx, "summary_length", len(summary))
		return domain.Update{
			"summary": summary,
			"messages": []any{
				map[string]any{"role": "user", "content": prompt},
				map[string]any{"role": "assistant", "content": summary},
			},
		}, nil
	}
}

func stringField(state domain.View, field string) (string, error) {
	v, err := state.Get(field)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", field, v)
	}
	return s, nil
}

// resultList reads a list of string-keyed maps. An unset field is an empty list.
func resultList(state domain.View, field string) ([]map[string]any, error) {
	v, err := state.Get(field)
	if errors.Is(err, domain.ErrFieldUnset) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("field %q: expected list, got %T", field, v)
	}
	out := make([]map[string]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item, ok := rv.Index(i).Interface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: element %d is %T, not an object", field, i, rv.Index(i).Interface())
		}
		out = append(out, item)
	}
	return out, nil
}

func scoreOf(r map[string]any) float64 {
	if f, ok := toFloat(r["score"]); ok {
		return f
	}
	return 1.0
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return 0, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
