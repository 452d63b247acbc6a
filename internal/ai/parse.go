package ai

import (
	"errors"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind tags the shape of a normalized backend reply.
type Kind int

const (
	KindText Kind = iota
	KindScoreReason
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindScoreReason:
		return "score_reason"
	default:
		return "error"
	}
}

// Result is the single shape every consumer of a backend reply sees.
type Result struct {
	Kind   Kind
	Text   string
	Score  float64
	Reason string
	Err    error
}

// Normalize converts a raw backend reply into a Result. A reply carrying a
// {"score", "reason"} object becomes KindScoreReason; blank replies are errors.
func Normalize(raw string, err error) Result {
	if err != nil {
		return Result{Kind: KindError, Err: err}
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{Kind: KindError, Err: ErrEmptyResponse}
	}
	if score, reason, ok := ParseScoreReason(text); ok {
		return Result{Kind: KindScoreReason, Text: text, Score: score, Reason: reason}
	}
	return Result{Kind: KindText, Text: text}
}

// IsDisabled reports whether the result carries ErrBackendDisabled.
func (r Result) IsDisabled() bool {
	return r.Kind == KindError && errors.Is(r.Err, ErrBackendDisabled)
}

// ParseScoreReason extracts {"score": float, "reason": string} from a reply that may be
// wrapped in markdown fences or surrounded by prose. Scores are clamped to [0,1].
func ParseScoreReason(raw string) (float64, string, bool) {
	obj, ok := extractFirstJSONObject(stripFences(raw))
	if !ok || !gjson.Valid(obj) {
		return 0, "", false
	}
	s := gjson.Get(obj, "score")
	if !s.Exists() {
		return 0, "", false
	}
	var score float64
	switch s.Type {
	case gjson.Number:
		score = s.Float()
	case gjson.String:
		v := gjson.Parse(strings.TrimSpace(s.String()))
		if v.Type != gjson.Number {
			return 0, "", false
		}
		score = v.Float()
	default:
		return 0, "", false
	}
	if math.IsNaN(score) {
		return 0, "", false
	}
	score = math.Max(0, math.Min(1, score))
	return score, strings.TrimSpace(gjson.Get(obj, "reason").String()), true
}

// stripFences removes ```json ... ``` wrappers.
func stripFences(s string) string {
	cleaned := strings.TrimSpace(s)
	if !strings.Contains(cleaned, "```") {
		return cleaned
	}
	if start := strings.Index(cleaned, "```"); start >= 0 {
		rest := cleaned[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.Contains(rest[:nl], "{") {
			rest = rest[nl+1:]
		} else {
			rest = strings.TrimPrefix(rest, "json")
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		cleaned = rest
	}
	return strings.TrimSpace(cleaned)
}

// extractFirstJSONObject finds the first outermost balanced {...}
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}

		if char == '\\' {
			escaped = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if char == '{' {
				depth++
			} else if char == '}' {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
