package registry

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Config is the per-node configuration handed to a step or router.
type Config map[string]any

// Decode fills out (a pointer to a struct) from the configuration.
// Field names match `mapstructure` tags; numeric strings and JSON floats are converted.
func (c Config) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(c)); err != nil {
		return fmt.Errorf("invalid step config: %w", err)
	}
	return nil
}

// String returns the string value of key, or def when it is absent or not a string.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Clone returns a shallow copy.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
