package scene

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeArgs decodes map-shaped init arguments into a host-owned struct.
// Scene modules reached through config files or dynamic references often
// receive their arguments as map[string]any; this converts them with weak
// typing so numeric yaml values fit integer fields.
func DecodeArgs(args any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "scene",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build args decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("decode scene args: %w", err)
	}
	return nil
}
