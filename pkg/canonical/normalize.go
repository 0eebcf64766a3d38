package canonical

import (
	"encoding/json"
	"errors"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidUTF8 is returned when text content is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("canonical: invalid UTF-8 string")

// NormalizeText returns the NFC form of s. Strings that are not valid
// UTF-8 are rejected so that equivalent content always hashes equal.
func NormalizeText(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	return norm.NFC.String(s), nil
}

// normalizeValue walks a decoded JSON value and NFC-normalizes every
// string it contains, object keys included.
func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, json.Number:
		return t, nil
	case string:
		return NormalizeText(t)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			n, err := normalizeValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			nk, err := NormalizeText(k)
			if err != nil {
				return nil, err
			}
			nv, err := normalizeValue(elem)
			if err != nil {
				return nil, err
			}
			out[nk] = nv
		}
		return out, nil
	default:
		return t, nil
	}
}
