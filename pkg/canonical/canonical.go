// Package canonical provides RFC 8785 (JSON Canonicalization Scheme) compliant
// serialization and content hashing for evidence packages and ledger records.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/gowebpki/jcs"
)

// HashPrefix identifies the digest algorithm in content hashes.
const HashPrefix = "sha256:"

// ErrNonFinite is returned when a value contains NaN or an infinity,
// neither of which is representable in JSON.
var ErrNonFinite = errors.New("canonical: value contains NaN or Infinity")

// Marshal returns the RFC 8785 canonical JSON encoding of v.
//
// Rules applied:
// 1. Map keys are sorted lexicographically by UTF-16 code units (RFC 8785 §3.2.3).
// 2. No insignificant whitespace.
// 3. Numbers use the shortest round-trippable form (ES6 serialization).
// 4. All strings, including object keys, are NFC normalized before encoding.
// 5. NaN and Infinity are rejected rather than silently encoded.
func Marshal(v any) ([]byte, error) {
	if hasNonFinite(reflect.ValueOf(v)) {
		return nil, ErrNonFinite
	}

	// Marshal first so struct tags are honored, then normalize the generic
	// form and hand the result to the JCS transform for ordering and number
	// formatting.
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: intermediate decode failed: %w", err)
	}

	normalized, err := normalizeValue(generic)
	if err != nil {
		return nil, err
	}

	renc, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("canonical: re-marshal failed: %w", err)
	}

	out, err := jcs.Transform(renc)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// Hash returns the content hash of the canonical form of v,
// formatted as "sha256:" followed by 64 lowercase hex digits.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 digest of raw bytes using the same
// prefix convention as Hash.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// hasNonFinite reports whether v transitively contains a NaN or infinite float.
func hasNonFinite(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		return math.IsNaN(f) || math.IsInf(f, 0)
	case reflect.Map:
		for _, key := range v.MapKeys() {
			if hasNonFinite(v.MapIndex(key)) {
				return true
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if hasNonFinite(v.Index(i)) {
				return true
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if hasNonFinite(v.Field(i)) {
				return true
			}
		}
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			return hasNonFinite(v.Elem())
		}
	}
	return false
}
