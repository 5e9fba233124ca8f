package groupchat

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Decision is the parsed form of one coordinator turn. Exactly one of Finish
// or a participant dispatch is meaningful; an empty participant with
// Finish=false means the turn carried no usable decision and the round is a
// no-op.
type Decision struct {
	Participant string
	Instruction string
	Finish      bool
}

// NoOp reports whether the decision names nothing actionable.
func (d Decision) NoOp() bool {
	return !d.Finish && d.Participant == ""
}

type rawDecision struct {
	SelectedParticipant string `json:"selected_participant"`
	Instruction         string `json:"instruction"`
	Finish              bool   `json:"finish"`
}

var (
	jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	jsonObjPattern   = regexp.MustCompile(`(?s)\{.*\}`)

	// Keys sometimes arrive with stray spaces around underscores, e.g.
	// "selected _ participant". Normalize before strict decoding.
	spacedKeyPattern = regexp.MustCompile(`"\s*([a-zA-Z]+(?:\s*_\s*[a-zA-Z]+)*)\s*"\s*:`)
	keySpacePattern  = regexp.MustCompile(`\s*_\s*`)

	participantPattern = regexp.MustCompile(`(?i)"?selected\s*_?\s*participant"?\s*[:=]\s*"?([A-Za-z][\w ]*?)"?\s*[,}\n]`)
	instructionPattern = regexp.MustCompile(`(?i)"?instruction"?\s*[:=]\s*"((?:[^"\\]|\\.)*)"`)
	finishPattern      = regexp.MustCompile(`(?i)"?finish"?\s*[:=]\s*(true|false)`)
)

// ParseDecision interprets a coordinator message as a decision record.
// Strategies are tried in order: strict JSON of the message or an embedded
// JSON block, the same after key normalization, then field-by-field regex
// extraction. A message yielding nothing actionable parses to a no-op
// decision rather than an error.
func ParseDecision(content string) Decision {
	for _, candidate := range jsonCandidates(content) {
		if d, ok := parseStrict(candidate); ok {
			return d
		}
		if d, ok := parseStrict(normalizeKeys(candidate)); ok {
			return d
		}
	}
	return parseLoose(content)
}

// jsonCandidates extracts likely JSON payloads from the message: the whole
// message, fenced code blocks, and the widest brace-delimited region.
func jsonCandidates(content string) []string {
	candidates := []string{strings.TrimSpace(content)}
	for _, m := range jsonBlockPattern.FindAllStringSubmatch(content, -1) {
		candidates = append(candidates, m[1])
	}
	if obj := jsonObjPattern.FindString(content); obj != "" {
		candidates = append(candidates, obj)
	}
	return candidates
}

func parseStrict(candidate string) (Decision, bool) {
	var raw rawDecision
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return Decision{}, false
	}
	if raw.SelectedParticipant == "" && !raw.Finish {
		return Decision{}, false
	}
	return Decision{
		Participant: strings.TrimSpace(raw.SelectedParticipant),
		Instruction: strings.TrimSpace(raw.Instruction),
		Finish:      raw.Finish,
	}, true
}

// normalizeKeys collapses whitespace around underscores inside quoted keys
// so that `"selected _ participant":` decodes as `"selected_participant":`.
func normalizeKeys(candidate string) string {
	return spacedKeyPattern.ReplaceAllStringFunc(candidate, func(key string) string {
		return keySpacePattern.ReplaceAllString(key, "_")
	})
}

// parseLoose recovers individual fields by regex when no candidate decodes
// as JSON. Finish embedded in prose still terminates the run.
func parseLoose(content string) Decision {
	var d Decision

	if m := finishPattern.FindStringSubmatch(content); m != nil {
		d.Finish = strings.EqualFold(m[1], "true")
	}
	if m := participantPattern.FindStringSubmatch(content); m != nil {
		d.Participant = strings.TrimSpace(m[1])
	}
	if m := instructionPattern.FindStringSubmatch(content); m != nil {
		if unquoted, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
			d.Instruction = unquoted
		} else {
			d.Instruction = m[1]
		}
	}
	return d
}
