package intent

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// parseVerdict extracts a verdict from the model's reply.
//
// Preferred shape is the requested {"answer": "..."} object; local models
// routinely wrap it in prose or markdown fences, so the reply is run
// through jsonrepair first. If no JSON verdict can be recovered, the
// first recognized yes/no/unclear token in the raw text wins. A reply
// with no recognizable token is not a verdict at all — the caller falls
// back to keyword matching on the user's own words.
func parseVerdict(reply string) (Verdict, bool) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return Unclear, false
	}

	if v, ok := parseJSONVerdict(reply); ok {
		return v, true
	}
	if repaired, err := jsonrepair.JSONRepair(reply); err == nil {
		if v, ok := parseJSONVerdict(repaired); ok {
			return v, true
		}
	}

	// First recognized token wins.
	for _, tok := range strings.Fields(strings.ToLower(reply)) {
		tok = strings.Trim(tok, ".,!?\"'`:;()")
		switch tok {
		case "yes":
			return Affirmative, true
		case "no":
			return Negative, true
		case "unclear", "unknown", "ambiguous":
			return Unclear, true
		}
	}
	return Unclear, false
}

func parseJSONVerdict(s string) (Verdict, bool) {
	var payload struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return Unclear, false
	}
	switch strings.ToLower(strings.TrimSpace(payload.Answer)) {
	case "yes":
		return Affirmative, true
	case "no":
		return Negative, true
	case "unclear":
		return Unclear, true
	default:
		return Unclear, false
	}
}
