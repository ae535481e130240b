package speedtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/thekhoo/speedsnake/internal/records"
)

// Measurements report fractional float noise for values that are logically
// integral (speeds, byte counts). Everything is rounded to int64 except the
// keys below, where the fraction carries meaning.
var keepFraction = map[string]bool{
	"lat": true,
	"lon": true,
	"d":   true,
}

// Flatten decodes one JSON object into a flat record: nested objects become
// parent_child columns, key order of the document is preserved, and arrays
// are kept as their compact JSON text.
func Flatten(data []byte) (*records.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decoding measurement output: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("measurement output is not a JSON object")
	}
	rec := records.New()
	if err := flattenObject(dec, "", rec); err != nil {
		return nil, fmt.Errorf("decoding measurement output: %w", err)
	}
	return rec, nil
}

func flattenObject(dec *json.Decoder, prefix string, rec *records.Record) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v for object key", tok)
		}
		name := key
		if prefix != "" {
			name = prefix + "_" + key
		}
		if err := flattenValue(dec, name, key, rec); err != nil {
			return err
		}
	}
	// consume the closing brace
	_, err := dec.Token()
	return err
}

func flattenValue(dec *json.Decoder, name, key string, rec *records.Record) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return flattenObject(dec, name, rec)
		case '[':
			raw, err := decodeArray(dec)
			if err != nil {
				return err
			}
			text, err := json.Marshal(raw)
			if err != nil {
				return err
			}
			rec.Set(name, string(text))
			return nil
		}
		return fmt.Errorf("unexpected delimiter %v", v)
	case json.Number:
		rec.Set(name, number(key, v))
	case string:
		rec.Set(name, v)
	case bool:
		rec.Set(name, v)
	case nil:
		rec.Set(name, nil)
	}
	return nil
}

func number(key string, n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	if keepFraction[key] {
		return f
	}
	return int64(math.Round(f))
}

// decodeArray rebuilds an array's value after its opening bracket has been
// consumed, so it can be stored as one stringified cell.
func decodeArray(dec *json.Decoder) ([]any, error) {
	out := []any{}
	for dec.More() {
		v, err := decodeAny(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	_, err := dec.Token()
	return out, err
}

func decodeAny(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			m := map[string]any{}
			for dec.More() {
				k, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := k.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected token %v for object key", k)
				}
				val, err := decodeAny(dec)
				if err != nil {
					return nil, err
				}
				m[key] = val
			}
			_, err := dec.Token()
			return m, err
		case '[':
			return decodeArray(dec)
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return v.String(), nil
		}
		return f, nil
	default:
		return tok, nil
	}
}
