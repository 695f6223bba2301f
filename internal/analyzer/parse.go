package analyzer

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

type analyzerReply struct {
	Fields     map[string]any `json:"fields"`
	Confidence float64        `json:"confidence"`
}

// extractJSON recovers the JSON object from a model reply that may wrap it
// in prose or a fenced code block.
func extractJSON(reply string) (string, error) {
	s := strings.TrimSpace(reply)

	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", eris.New("analyzer: no JSON object in reply")
	}
	return s[start : end+1], nil
}

// parseReply extracts, validates and decodes the model reply.
func parseReply(reply string, schemaMap map[string]any) (*analyzerReply, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	if err := validateAgainstSchema(schemaMap, []byte(raw)); err != nil {
		return nil, err
	}

	var out analyzerReply
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, eris.Wrap(err, "analyzer: decode reply")
	}

	// Drop empty string values so absent attributes stay absent.
	for k, v := range out.Fields {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			delete(out.Fields, k)
		}
	}
	return &out, nil
}
