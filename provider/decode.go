package provider

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode copies a factory's generic configuration into a typed struct.
// Keys follow the struct's mapstructure tags; durations may be given as
// strings such as "30s".
func Decode(cfg map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("provider config decoder: %w", err)
	}
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode provider config: %w", err)
	}
	return nil
}
