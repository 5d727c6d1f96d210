package analytics

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yungbote/brandpulse-backend/internal/domain/brand"
)

// ErrMalformedResult is returned when a result is neither an object nor a string holding one.
var ErrMalformedResult = errors.New("malformed batch result")

// maxEncodingDepth bounds how many times an object may be string-encoded.
const maxEncodingDepth = 3

// Result is the wire shape of one finalResults entry.
type Result struct {
	ID         string          `json:"id,omitempty"`
	ResultType string          `json:"resultType"`
	Result     json.RawMessage `json:"result"`
}

// NormalizeJSON returns the JSON object carried by raw. raw may be the object
// itself or a JSON string containing it. Empty and null results become "{}".
func NormalizeJSON(raw json.RawMessage) (json.RawMessage, error) {
	cur := bytes.TrimSpace(raw)
	for depth := 0; depth <= maxEncodingDepth; depth++ {
		if len(cur) == 0 || bytes.Equal(cur, []byte("null")) {
			return json.RawMessage("{}"), nil
		}
		switch cur[0] {
		case '{':
			if !json.Valid(cur) {
				return nil, fmt.Errorf("%w: invalid object", ErrMalformedResult)
			}
			return json.RawMessage(cur), nil
		case '"':
			var s string
			if err := json.Unmarshal(cur, &s); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
			}
			cur = bytes.TrimSpace([]byte(s))
		default:
			return nil, fmt.Errorf("%w: unexpected %q", ErrMalformedResult, cur[0])
		}
	}
	return nil, fmt.Errorf("%w: nested too deeply", ErrMalformedResult)
}

// NormalizeResult decodes a result into a generic object.
func NormalizeResult(raw json.RawMessage) (map[string]any, error) {
	obj, err := NormalizeJSON(raw)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(obj, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return out, nil
}

// FindResult returns the first result whose type matches kind, accepting aliases
// (visibility/spontaneous, competition/comparison, alignment/accuracy).
func FindResult(results []Result, kind string) (*Result, bool) {
	want, ok := brand.CanonicalPipeline(kind)
	if !ok {
		want = strings.ToLower(strings.TrimSpace(kind))
	}
	for i := range results {
		got, ok := brand.CanonicalPipeline(results[i].ResultType)
		if !ok {
			got = strings.ToLower(strings.TrimSpace(results[i].ResultType))
		}
		if got == want {
			return &results[i], true
		}
	}
	return nil, false
}

// Number decodes from a JSON number or a numeric string.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

func (n Number) Float() float64 { return float64(n) }
func (n Number) Int() int       { return int(n) }
