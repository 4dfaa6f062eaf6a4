package steps

import (
	"context"
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/registry"
)

// Threshold compares a numeric field against a threshold.
// value >= threshold routes to `above`, anything lower to `below`.
//
//	config: {field: name, threshold: 3, above: "above", below: "below"}
func Threshold(_ context.Context, state domain.View, cfg registry.Config) (string, error) {
	opts := struct {
		Field     string  `mapstructure:"field"`
		Threshold float64 `mapstructure:"threshold"`
		Above     string  `mapstructure:"above"`
		Below     string  `mapstructure:"below"`
	}{Above: "above", Below: "below"}
	if err := cfg.Decode(&opts); err != nil {
		return "", err
	}
	if opts.Field == "" {
		return "", fmt.Errorf("threshold: field is required")
	}

	v, err := state.Get(opts.Field)
	if err != nil {
		return "", err
	}
	n, ok := toFloat(v)
	if !ok {
		return "", fmt.Errorf("threshold: field %q is %T, not a number", opts.Field, v)
	}
	if n >= opts.Threshold {
		return opts.Above, nil
	}
	return opts.Below, nil
}

// HasResults routes to "found" when the list field is non-empty, else "empty".
//
//	config: {field: "results"}
func HasResults(_ context.Context, state domain.View, cfg registry.Config) (string, error) {
	opts := struct {
		Field string `mapstructure:"field"`
	}{Field: "results"}
	if err := cfg.Decode(&opts); err != nil {
		return "", err
	}
	results, err := resultList(state, opts.Field)
	if err != nil {
		return "", err
	}
	if len(results) > 0 {
		return "found", nil
	}
	return "empty", nil
}
