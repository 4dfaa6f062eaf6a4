// Package schema is the small type system state fields are declared with.
//
// Built-in types are string, int, float, bool, map and any, plus lists of any
// of them. Workflow documents spell types by name:
//
//	t, err := schema.ParseType("[string]")
//
// A Schema validates a partial set of values; every failing field is reported:
//
//	err := schema.Validate(schema.Schema{"count": schema.Int()}, values)
//	for _, fe := range schema.Invalid(err) {
//	    log.Println(fe.Key, fe.Reason)
//	}
package schema
