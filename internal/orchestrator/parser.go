package orchestrator

import (
	"regexp"
	"strings"
)

const finalAnswerMarker = "Final Answer:"

// Observations fed back to the model when its output cannot be parsed
const (
	MissingActionObservation      = "Invalid Format: Missing 'Action:' after 'Thought:'"
	MissingActionInputObservation = "Invalid Format: Missing 'Action Input:' after 'Action:'"
)

var (
	actionRe      = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	actionStartRe = regexp.MustCompile(`Action\s*\d*\s*:`)
)

// Step is the parsed form of one model turn. Exactly one of FinalAnswer,
// Action or Invalid is meaningful, in that precedence.
type Step struct {
	Thought     string
	Action      string
	ActionInput string
	FinalAnswer string
	IsFinal     bool
	// Invalid holds the observation to send back for malformed output
	Invalid string
}

// ParseReActOutput parses one model turn. A final answer wins over an action
// when both are present, and the answer is everything after the first
// "Final Answer:" marker. LangChain's ReAct parser splits on the last marker
// and rejects action plus answer; this one does neither so the streamed
// answerWatcher can release text as soon as the first marker is seen.
func ParseReActOutput(text string) Step {
	if idx := strings.Index(text, finalAnswerMarker); idx >= 0 {
		return Step{
			Thought:     strings.TrimSpace(text[:idx]),
			FinalAnswer: strings.TrimSpace(text[idx+len(finalAnswerMarker):]),
			IsFinal:     true,
		}
	}

	thought := text
	if loc := actionStartRe.FindStringIndex(text); loc != nil {
		thought = text[:loc[0]]
	}
	thought = strings.TrimSpace(thought)

	if m := actionRe.FindStringSubmatch(text); m != nil {
		input := strings.TrimSpace(m[2])
		input = strings.Trim(strings.Trim(input, " "), `"`)
		return Step{
			Thought:     thought,
			Action:      strings.TrimSpace(m[1]),
			ActionInput: input,
		}
	}

	if !actionStartRe.MatchString(text) {
		return Step{Thought: thought, Invalid: MissingActionObservation}
	}
	return Step{Thought: thought, Invalid: MissingActionInputObservation}
}
