package steps

import (
	"context"
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/registry"
)

// Passthrough returns an empty update. Nodes that only route bind it.
func Passthrough(context.Context, domain.View, registry.Config) (domain.Update, error) {
	return nil, nil
}

// Set writes the configured values.
//
//	config: {values: {field: value, ...}}
func Set(_ context.Context, _ domain.View, cfg registry.Config) (domain.Update, error) {
	var opts struct {
		Values map[string]any `mapstructure:"values"`
	}
	if err := cfg.Decode(&opts); err != nil {
		return nil, err
	}
	if len(opts.Values) == 0 {
		return nil, fmt.Errorf("set: no values configured")
	}
	return domain.Update(opts.Values), nil
}

// Increment emits `by` for a field. Pair it with a sum-merged field to count.
//
//	config: {field: name, by: 1}
func Increment(_ context.Context, _ domain.View, cfg registry.Config) (domain.Update, error) {
	opts := struct {
		Field string `mapstructure:"field"`
		By    int    `mapstructure:"by"`
	}{By: 1}
	if err := cfg.Decode(&opts); err != nil {
		return nil, err
	}
	if opts.Field == "" {
		return nil, fmt.Errorf("increment: field is required")
	}
	return domain.Update{opts.Field: opts.By}, nil
}
