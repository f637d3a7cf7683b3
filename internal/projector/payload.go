package projector

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Format records which decoder produced a Payload.
type Format int

const (
	FormatEmpty Format = iota
	FormatJSON
	FormatKeyValue
	FormatRaw
)

// Payload is the best-effort decoding of an event's details string.
// Producers are untrusted, so every accessor tolerates missing keys and
// wrong value types by reporting ok=false.
type Payload struct {
	Format Format
	Fields map[string]any
	Raw    string
}

// Structured reports whether a decoder recovered named fields.
func (p Payload) Structured() bool {
	return p.Format == FormatJSON || p.Format == FormatKeyValue
}

// decoders are tried in order; the first that succeeds wins. Anything they
// all reject is kept as Raw.
var decoders = []func(string) (map[string]any, Format, bool){
	decodeJSON,
	decodeKeyValue,
}

// Decode never fails: unparseable input yields a Raw payload.
func Decode(details string) Payload {
	s := strings.TrimSpace(details)
	if s == "" {
		return Payload{Format: FormatEmpty}
	}
	for _, dec := range decoders {
		if fields, format, ok := dec(s); ok {
			return Payload{Format: format, Fields: fields, Raw: details}
		}
	}
	return Payload{Format: FormatRaw, Raw: details}
}

// decodeJSON accepts a JSON object, or a JSON string that itself holds an
// object (producers sometimes double-encode).
func decodeJSON(s string) (map[string]any, Format, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(s), &fields); err == nil && fields != nil {
		return fields, FormatJSON, true
	}
	var inner string
	if err := json.Unmarshal([]byte(s), &inner); err == nil {
		if err := json.Unmarshal([]byte(inner), &fields); err == nil && fields != nil {
			return fields, FormatJSON, true
		}
	}
	return nil, 0, false
}

// decodeKeyValue accepts lines or semicolon-separated pairs of the form
// "key: value" or "key=value". Every segment must parse.
func decodeKeyValue(s string) (map[string]any, Format, bool) {
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return nil, 0, false
	}
	segments := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == ';' })
	fields := make(map[string]any, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		i := strings.IndexAny(seg, ":=")
		if i <= 0 {
			return nil, 0, false
		}
		key := strings.TrimSpace(seg[:i])
		if strings.ContainsAny(key, " \t") {
			return nil, 0, false
		}
		fields[key] = strings.TrimSpace(seg[i+1:])
	}
	if len(fields) == 0 {
		return nil, 0, false
	}
	return fields, FormatKeyValue, true
}

func (p Payload) lookup(keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := p.Fields[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first present key as a non-empty string.
func (p Payload) String(keys ...string) (string, bool) {
	v, ok := p.lookup(keys)
	if !ok {
		return "", false
	}
	switch x := v.(type) {
	case string:
		x = strings.TrimSpace(x)
		return x, x != ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}
	return "", false
}

// Int returns the first present key as an integer. Numeric strings count.
func (p Payload) Int(keys ...string) (int, bool) {
	v, ok := p.lookup(keys)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return int(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}

// Bool returns the first present key as a boolean. "true"/"yes"/"1" count.
func (p Payload) Bool(keys ...string) (bool, bool) {
	v, ok := p.lookup(keys)
	if !ok {
		return false, false
	}
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	}
	return false, false
}
