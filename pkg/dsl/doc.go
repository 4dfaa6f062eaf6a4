/*
Package dsl provides a fluent Go builder for graph definitions.

It is the code-first alternative to workflow documents: fields and nodes are
declared in order, and Build produces a *graph.Definition ready to compile.

	b := dsl.New("research")
	b.Field("query", schema.String())
	b.Field("results", schema.Slice(schema.Any())).Merge(domain.Append())

	b.Add("search").Do("web_search", nil).Go("check")
	b.Add("check").Do("passthrough", nil).
		Route("has_results", nil).
		When("found", "summarize").
		When("empty", dsl.End)
	b.Add("summarize").Do("summarize_findings", nil).Terminal()

	def, err := b.Build()
	// ...
	g, err := engine.Add(def)
*/
package dsl
