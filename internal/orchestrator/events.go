package orchestrator

import (
	"strings"
	"unicode"
)

// EventKind tags the units an agent run produces. EventAnswer carries one
// fragment of the final answer, EventFinal the complete answer. EventFinal and
// EventError end a run.
type EventKind string

const (
	EventThought     EventKind = "thought"
	EventAction      EventKind = "action"
	EventObservation EventKind = "observation"
	EventAnswer      EventKind = "answer"
	EventFinal       EventKind = "final"
	EventError       EventKind = "error"
)

// Event is one unit of a streamed agent run
type Event struct {
	Kind EventKind
	Text string
	Tool string
	Err  error
}

// answerWatcher turns raw model deltas into final-answer fragments. Nothing is
// released before the marker; afterwards leading and trailing whitespace is
// held back so the fragments join to the trimmed answer.
type answerWatcher struct {
	buf      strings.Builder
	scanFrom int
	start    int
	found    bool
	sent     int
}

// feed appends a delta and returns the newly releasable answer text
func (w *answerWatcher) feed(delta string) string {
	w.buf.WriteString(delta)
	text := w.buf.String()

	if !w.found {
		idx := strings.Index(text[w.scanFrom:], finalAnswerMarker)
		if idx < 0 {
			w.scanFrom = max(0, len(text)-len(finalAnswerMarker)+1)
			return ""
		}
		w.found = true
		w.start = w.scanFrom + idx + len(finalAnswerMarker)
	}

	answer := strings.TrimRightFunc(strings.TrimLeftFunc(text[w.start:], unicode.IsSpace), unicode.IsSpace)
	if len(answer) <= w.sent {
		return ""
	}
	out := answer[w.sent:]
	w.sent = len(answer)
	return out
}

func (w *answerWatcher) text() string {
	return w.buf.String()
}
