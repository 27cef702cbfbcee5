package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	errs "searchtweets/pkg/errors"
)

// Params is a request-parameter payload: string keys mapped to scalars or lists.
type Params map[string]interface{}

// ParseParams decodes a JSON object payload.
func ParseParams(s string) (Params, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var p Params
	if err := dec.Decode(&p); err != nil {
		return nil, errs.NewConfigurationError(fmt.Sprintf("request payload is not a JSON object: %v", err))
	}
	return p, nil
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a new payload with other's keys layered over p's.
func (p Params) Merge(other Params) Params {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// With returns a copy with key set to value, replacing any previous value.
func (p Params) With(key string, value interface{}) Params {
	return p.Merge(Params{key: value})
}

// Has reports whether key is present with a non-empty value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// Values encodes the payload as a query string. Lists are comma-joined.
func (p Params) Values() url.Values {
	values := url.Values{}
	for k, v := range p {
		if v == nil {
			continue
		}
		values.Set(k, formatValue(v))
	}
	return values
}

// JSON encodes the payload as a request body.
func (p Params) JSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(p))
}

// String renders the payload for logs with keys in a stable order.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", k, formatValue(p[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ",")
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ",")
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
