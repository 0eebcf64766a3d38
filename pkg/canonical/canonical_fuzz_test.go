package canonical

import (
	"encoding/json"
	"testing"
)

func FuzzMarshal(f *testing.F) {
	f.Add([]byte(`{"a":1,"b":2}`))
	f.Add([]byte(`{"z":{"y":"foo","x":"bar"},"a":1}`))
	f.Add([]byte(`{"html":"<script>alert('xss')</script> &"}`))
	f.Add([]byte(`{"num":123.456,"bool":true,"null":null}`))
	f.Add([]byte(`{"arr":[3,1,2],"nested":{"deep":{"key":"val"}}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"":"empty_key","a":""}`))
	f.Add([]byte(`{"unicode":"こんにちは","emoji":"🚀"}`))
	f.Add([]byte(`{"accent":"café","decomposed":"café"}`))
	f.Add([]byte(`{"escape":"line1\nline2\ttab"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip("invalid JSON input")
			return
		}

		b1, err := Marshal(v)
		if err != nil {
			// Some valid JSON may not be representable; that's OK.
			return
		}

		// Determinism: same input must produce identical output.
		b2, err := Marshal(v)
		if err != nil {
			t.Fatal("Marshal returned error on second call but not first")
		}
		if string(b1) != string(b2) {
			t.Errorf("Marshal non-deterministic:\n  first:  %s\n  second: %s", b1, b2)
		}

		// Output must be valid JSON.
		var check interface{}
		if err := json.Unmarshal(b1, &check); err != nil {
			t.Errorf("canonical output is not valid JSON: %s", string(b1))
		}

		// Idempotence: canonicalizing canonical output must be a fixed point.
		var reparsed interface{}
		if err := json.Unmarshal(b1, &reparsed); err == nil {
			b3, err := Marshal(reparsed)
			if err == nil && string(b3) != string(b1) {
				t.Errorf("canonicalization not idempotent:\n  first:  %s\n  second: %s", b1, b3)
			}
		}

		h1, err := Hash(v)
		if err != nil {
			return
		}
		h2, err := Hash(v)
		if err != nil {
			t.Fatal("Hash returned error on second call but not first")
		}
		if h1 != h2 {
			t.Errorf("Hash non-deterministic: %s != %s", h1, h2)
		}
	})
}
