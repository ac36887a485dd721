package config

import (
	"github.com/mitchellh/mapstructure"
)

// decode decodes a raw configuration map into a typed factory.
func decode(input map[string]interface{}, result interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     result,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
