package steps

import (
	"errors"

	"github.com/aretw0/stepflow/pkg/registry"
)

// Category names used by the built-ins.
const (
	CategoryCore     = "core"
	CategoryState    = "state"
	CategoryResearch = "research"
	CategoryRouting  = "routing"
	CategorySystem   = "system"
)

// Deps carries the services the research steps call. Nil services are allowed:
// the corresponding step fails with ErrMissingDependency when invoked.
type Deps struct {
	Searcher   Searcher
	Summarizer Summarizer
	Files      *FileSystem
	Commands   CommandRunner
}

// Register adds every built-in step and router to reg.
func Register(reg *registry.Registry, deps Deps) error {
	return errors.Join(
		reg.RegisterStep("passthrough", CategoryCore, Passthrough,
			registry.Describe("Returns an empty update; used by routing-only nodes"),
			registry.Writes()),
		reg.RegisterStep("set", CategoryState, Set,
			registry.Describe("Writes the configured values")),
		reg.RegisterStep("increment", CategoryState, Increment,
			registry.Describe("Emits a delta for a sum-merged counter")),

		reg.RegisterStep("web_search", CategoryResearch, WebSearch(deps.Searcher),
			registry.Describe("Searches the web for the query field"),
			registry.Writes("results", "result_count")),
		reg.RegisterStep("filter_results", CategoryResearch, FilterResults,
			registry.Describe("Keeps the best scoring results"),
			registry.Writes("results")),
		reg.RegisterStep("save_results", CategoryResearch, SaveResults(deps.Files),
			registry.Describe("Saves results as JSON"),
			registry.Writes("file_path", "saved")),
		reg.RegisterStep("summarize_findings", CategoryResearch, SummarizeFindings(deps.Summarizer),
			registry.Describe("Summarizes results and logs the exchange"),
			registry.Writes("summary", "messages")),

		reg.RegisterStep("run_command", CategorySystem, RunCommand(deps.Commands),
			registry.Describe("Runs an allow-listed local command; arguments travel as environment variables")),

		reg.RegisterRouter("threshold", CategoryRouting, Threshold,
			registry.Describe("Routes on a numeric field compared to a threshold")),
		reg.RegisterRouter("has_results", CategoryRouting, HasResults,
			registry.Describe("Routes on whether a list field is empty"),
			registry.Labels("found", "empty")),
	)
}
