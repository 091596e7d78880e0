package maker

import (
	"encoding/json"
	"errors"
	"strings"
)

// rawCandidate mirrors the expected JSON shape with interface{} fields so
// we can detect wrong-typed values rather than silently coercing them.
type rawCandidate struct {
	Summary   interface{} `json:"summary"`
	Decisions interface{} `json:"decisions"`
	Todos     interface{} `json:"todos"`
}

// parseCandidateJSON strips a markdown code-fence wrapper and parses the
// {summary, decisions, todos} shape, rejecting wrong-typed fields or
// non-string array elements.
func parseCandidateJSON(raw string) (Candidate, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var rc rawCandidate
	if err := json.Unmarshal([]byte(trimmed), &rc); err != nil {
		return Candidate{}, err
	}

	summary, ok := rc.Summary.(string)
	if !ok {
		return Candidate{}, errors.New("summary is not a string")
	}
	decisions, err := stringSlice(rc.Decisions)
	if err != nil {
		return Candidate{}, err
	}
	todos, err := stringSlice(rc.Todos)
	if err != nil {
		return Candidate{}, err
	}

	return Candidate{Summary: summary, Decisions: decisions, Todos: todos}, nil
}

func stringSlice(v interface{}) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, errors.New("expected array")
	}
	out := make([]string, len(arr))
	for i, el := range arr {
		s, ok := el.(string)
		if !ok {
			return nil, errors.New("array element is not a string")
		}
		out[i] = s
	}
	return out, nil
}
