package analytics

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeResult(t *testing.T) {
	obj := `{"brand":"Acme","providers":[]}`
	encoded, _ := json.Marshal(obj)
	doubled, _ := json.Marshal(string(encoded))

	cases := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{"object", obj, map[string]any{"brand": "Acme", "providers": []any{}}},
		{"string encoded", string(encoded), map[string]any{"brand": "Acme", "providers": []any{}}},
		{"double encoded", string(doubled), map[string]any{"brand": "Acme", "providers": []any{}}},
		{"null", "null", map[string]any{}},
		{"empty", "", map[string]any{}},
		{"empty string", `""`, map[string]any{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeResult(json.RawMessage(tc.raw))
			if err != nil {
				t.Fatalf("NormalizeResult: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeResultRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[1,2]`, `42`, `"not json"`, `{"broken":`} {
		if _, err := NormalizeResult(json.RawMessage(raw)); !errors.Is(err, ErrMalformedResult) {
			t.Fatalf("%s: expected ErrMalformedResult, got %v", raw, err)
		}
	}
}

func TestFindResultAliases(t *testing.T) {
	results := []Result{
		{ResultType: "visibility", Result: json.RawMessage(`{}`)},
		{ResultType: "Competition", Result: json.RawMessage(`{}`)},
		{ResultType: "alignment", Result: json.RawMessage(`{}`)},
		{ResultType: "sentiment", Result: json.RawMessage(`{"a":1}`)},
		{ResultType: "sentiment", Result: json.RawMessage(`{"a":2}`)},
	}
	for kind, want := range map[string]int{
		"spontaneous": 0,
		"visibility":  0,
		"comparison":  1,
		"competition": 1,
		"accuracy":    2,
		"sentiment":   3,
	} {
		got, ok := FindResult(results, kind)
		if !ok || got != &results[want] {
			t.Fatalf("FindResult(%q) picked the wrong entry", kind)
		}
	}
	if _, ok := FindResult(results, "pricing"); ok {
		t.Fatalf("unknown kind should not match")
	}
}

func TestNumberLenient(t *testing.T) {
	var got struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
		D Number `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a":1.5,"b":"2.25","c":"40%","d":null}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.A != 1.5 || got.B != 2.25 || got.C != 40 || got.D != 0 {
		t.Fatalf("unexpected numbers: %+v", got)
	}
	var bad Number
	if err := json.Unmarshal([]byte(`"abc"`), &bad); err == nil {
		t.Fatalf("expected error for non-numeric string")
	}
}
