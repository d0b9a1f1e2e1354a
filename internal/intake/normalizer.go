package intake

import (
	"sort"
	"strings"

	"github.com/example/lead-intake-service/internal/models"
)

// Shape names the payload layout the normalizer recognised.
type Shape string

const (
	ShapeArrayOfFields Shape = "array_of_fields"
	ShapeNestedPayload Shape = "nested_payload"
	ShapeFlatObject    Shape = "flat_object"
	ShapeUnrecognised  Shape = "unrecognised"
)

type shapeStrategy struct {
	shape   Shape
	extract func(body any) ([]Field, bool)
}

// Strategies in priority order. The first one that matches wins.
var shapeStrategies = []shapeStrategy{
	{shape: ShapeArrayOfFields, extract: arrayOfFields},
	{shape: ShapeNestedPayload, extract: nestedPayload},
	{shape: ShapeFlatObject, extract: asFields},
}

// Normalize flattens a decoded webhook body into lowercase field names and
// string values. It never fails: a body that matches no strategy yields an
// empty mapping.
//
// Fields are folded in document order (sorted key order for plain maps) and
// the last write wins, so when "Email" follows "email" the value of "Email"
// is kept. Non-string values are skipped and never overwrite a string.
func Normalize(body any) (models.NormalizedFields, Shape) {
	out := models.NormalizedFields{}
	for _, s := range shapeStrategies {
		fields, ok := s.extract(body)
		if !ok {
			continue
		}
		for _, f := range fields {
			value, ok := f.Value.(string)
			if !ok {
				continue
			}
			out[strings.ToLower(f.Key)] = value
		}
		return out, s.shape
	}
	return out, ShapeUnrecognised
}

// arrayOfFields matches {"data": [{"name": ..., "value": ...}, ...]}.
func arrayOfFields(body any) ([]Field, bool) {
	root, ok := asFields(body)
	if !ok {
		return nil, false
	}
	raw, ok := Object(root).Get("data")
	if !ok {
		return nil, false
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, false
	}

	fields := make([]Field, 0, len(entries))
	for _, entry := range entries {
		pairs, ok := asFields(entry)
		if !ok {
			continue
		}
		name, _ := Object(pairs).Get("name")
		key, ok := name.(string)
		if !ok || key == "" {
			continue
		}
		value, _ := Object(pairs).Get("value")
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields, true
}

// nestedPayload matches {"payload": {...}}.
func nestedPayload(body any) ([]Field, bool) {
	root, ok := asFields(body)
	if !ok {
		return nil, false
	}
	raw, ok := Object(root).Get("payload")
	if !ok {
		return nil, false
	}
	return asFields(raw)
}

// asFields exposes a mapping as ordered fields. Plain maps are walked in
// sorted key order.
func asFields(v any) ([]Field, bool) {
	switch m := v.(type) {
	case Object:
		return m, true
	case map[string]any:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, Field{Key: k, Value: m[k]})
		}
		return fields, true
	case map[string]string:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, Field{Key: k, Value: m[k]})
		}
		return fields, true
	default:
		return nil, false
	}
}
