// Package convert decodes loosely typed values into typed structs by their
// json field names.
package convert

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Decode copies the fields of response into target (a pointer) by their
// json names. Struct responses are normalised through JSON first so both
// sides agree on field naming and time/byte encodings.
func Decode(response, target any) error {
	input, err := normalise(response)
	if err != nil {
		return err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			numberHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			base64BytesHook,
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func normalise(response any) (any, error) {
	if m, ok := response.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var out any
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	if err := d.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

var numberType = reflect.TypeOf(json.Number(""))

// numberHook unwraps json.Number before the string-based hooks see it.
func numberHook(from, to reflect.Type, data any) (any, error) {
	if from != numberType || to.Kind() == reflect.String || to.Kind() == reflect.Interface {
		return data, nil
	}
	n := data.(json.Number)
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	return n.Float64()
}

// base64BytesHook reverses encoding/json's []byte encoding. Strings that are
// not valid base64 are taken as their raw bytes.
func base64BytesHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]byte(nil)) {
		return data, nil
	}
	s := reflect.ValueOf(data).String()
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return []byte(s), nil
}
