package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ExtractJSON returns the first balanced {...} substring of text.
// Models often wrap the object in prose or markdown fences, so the scan is
// string-aware and ignores braces inside quoted values.
func ExtractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseResult extracts, decodes and validates the evaluation carried in model text.
func ParseResult(text string) (*Result, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil, ErrNoJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if !hasJSONKind(fields["summary"], '{') {
		return nil, fmt.Errorf("%w: summary is missing", ErrIncompleteResponse)
	}
	if !hasJSONKind(fields["traps"], '[') {
		return nil, fmt.Errorf("%w: traps are missing", ErrIncompleteResponse)
	}

	var doc rawResult
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	return doc.normalize()
}

func hasJSONKind(raw json.RawMessage, open byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == open
}

type rawResult struct {
	Summary struct {
		Verdict          string `json:"verdict"`
		Intent           string `json:"intent"`
		EmotionalContext string `json:"emotionalContext"`
		Health           string `json:"health"`
	} `json:"summary"`
	Traps        []rawTrap          `json:"traps"`
	TenetScores  map[string]flexInt `json:"tenetScores"`
	TenetWin     string             `json:"tenetWin"`
	Priorities   []string           `json:"priorities"`
	OverallScore flexInt            `json:"overallScore"`
}

type rawTrap struct {
	ID       flexString `json:"id"`
	Name     string     `json:"name"`
	Tenet    string     `json:"tenet"`
	Severity string     `json:"severity"`
	Location struct {
		X           flexFloat `json:"x"`
		Y           flexFloat `json:"y"`
		Description string    `json:"description"`
	} `json:"location"`
	Evidence    string      `json:"evidence"`
	Diagnostic  string      `json:"diagnostic"`
	Remediation Remediation `json:"remediation"`
}

func (d rawResult) normalize() (*Result, error) {
	verdict, ok := ParseVerdict(d.Summary.Verdict)
	if !ok {
		return nil, fmt.Errorf("%w: unknown verdict %q", ErrSchemaInvalid, d.Summary.Verdict)
	}

	res := &Result{
		Summary: Summary{
			Verdict:          verdict,
			Intent:           d.Summary.Intent,
			EmotionalContext: d.Summary.EmotionalContext,
			Health:           d.Summary.Health,
		},
		Traps:        make([]Trap, 0, len(d.Traps)),
		TenetScores:  make(map[string]int, len(d.TenetScores)),
		TenetWin:     d.TenetWin,
		Priorities:   d.Priorities,
		OverallScore: int(d.OverallScore),
	}
	if res.Priorities == nil {
		res.Priorities = []string{}
	}

	for i, rt := range d.Traps {
		sev, ok := ParseSeverity(rt.Severity)
		if !ok {
			return nil, fmt.Errorf("%w: trap %d has unknown severity %q", ErrSchemaInvalid, i+1, rt.Severity)
		}
		tenet := strings.TrimSpace(rt.Tenet)
		if canonical, ok := CanonicalTenet(tenet); ok {
			tenet = canonical
		}
		id := strings.TrimSpace(string(rt.ID))
		if id == "" {
			id = fmt.Sprintf("trap-%d", i+1)
		}
		res.Traps = append(res.Traps, Trap{
			ID:       id,
			Name:     rt.Name,
			Tenet:    tenet,
			Severity: sev,
			Location: Location{
				X:           clampPercent(float64(rt.Location.X)),
				Y:           clampPercent(float64(rt.Location.Y)),
				Description: rt.Location.Description,
			},
			Evidence:    rt.Evidence,
			Diagnostic:  rt.Diagnostic,
			Remediation: rt.Remediation,
		})
	}

	for name, score := range d.TenetScores {
		canonical, ok := CanonicalTenet(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown tenet %q", ErrSchemaInvalid, name)
		}
		if score < 1 || score > 5 {
			return nil, fmt.Errorf("%w: tenet %s score %d outside 1-5", ErrSchemaInvalid, canonical, score)
		}
		res.TenetScores[canonical] = int(score)
	}

	// 0 berarti model tidak memberi skor
	if res.OverallScore != 0 && (res.OverallScore < 1 || res.OverallScore > 10) {
		return nil, fmt.Errorf("%w: overall score %d outside 1-10", ErrSchemaInvalid, res.OverallScore)
	}
	return res, nil
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// flexInt accepts 4, 4.0 or "4".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	v, err := parseLooseNumber(b)
	if err != nil {
		return err
	}
	*f = flexInt(math.Round(v))
	return nil
}

// flexFloat accepts 42.5, "42.5" or "42.5%".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	v, err := parseLooseNumber(b)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts "t1" or 1.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func parseLooseNumber(b []byte) (float64, error) {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return 0, err
		}
		s = strings.TrimSuffix(strings.TrimSpace(str), "%")
		if s == "" {
			return 0, nil
		}
	}
	return strconv.ParseFloat(s, 64)
}
