package suredone

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Field is one ordered key/value entry of a request payload.
type Field struct {
	Key   string
	Value any
}

// Params is an insertion-ordered parameter set. SureDone's bulk endpoints
// index rows positionally, so encoding order is part of the wire contract;
// a slice keeps the order Go maps would lose.
//
// Values may be scalars (nil encodes as the empty string), lists ([]string,
// [][]string or []any) or nested Params. Anything else is stringified.
type Params []Field

// Encode serializes the parameter set into the bracketed query-string form
// SureDone consumes (the qs-style convention of its JS client): list items
// under a "[]"-suffixed key repeat the key, composite list items get a
// numeric index, nested mappings chain bracketed keys.
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	var out []string
	for _, f := range p {
		encodeValue(f.Key, f.Value, &out)
	}
	return strings.Join(out, "&")
}

func encodeValue(prefix string, value any, out *[]string) {
	switch v := value.(type) {
	case Params:
		for _, f := range v {
			encodeValue(prefix+"["+f.Key+"]", f.Value, out)
		}
	case []any:
		encodeList(prefix, v, out)
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		encodeList(prefix, items, out)
	case [][]string:
		items := make([]any, len(v))
		for i, row := range v {
			items[i] = row
		}
		encodeList(prefix, items, out)
	default:
		*out = append(*out, url.QueryEscape(prefix)+"="+url.QueryEscape(stringify(value)))
	}
}

func encodeList(prefix string, items []any, out *[]string) {
	for i, item := range items {
		if strings.HasSuffix(prefix, "[]") {
			// Repeated scalar under the same key.
			encodeValue(prefix, item, out)
			continue
		}
		index := ""
		if isComposite(item) {
			index = strconv.Itoa(i)
		}
		encodeValue(prefix+"["+index+"]", item, out)
	}
}

func isComposite(v any) bool {
	switch v.(type) {
	case Params, []any, []string, [][]string:
		return true
	}
	return false
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
