package orchestrator

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// DefaultPrompt is the single-input ReAct prompt. Fields: .Tools, .ToolNames,
// .Input and .Scratchpad.
const DefaultPrompt = `Answer the following questions as best you can. You have access to the following tools:

{{.Tools}}

Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [{{.ToolNames}}]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question

Begin!

Question: {{.Input}}
Thought:{{.Scratchpad}}`

// stopSequence ends a generation before the model invents a tool result
const stopSequence = "\nObservation:"

type promptData struct {
	Tools      string
	ToolNames  string
	Input      string
	Scratchpad string
}

// step is one completed tool round kept in the scratchpad
type step struct {
	log         string
	observation string
}

func parsePrompt(text string) (*template.Template, error) {
	if text == "" {
		text = DefaultPrompt
	}
	tmpl, err := template.New("react").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return tmpl, nil
}

// scratchpad renders previous steps the way the model is asked to write them
func scratchpad(steps []step) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString(s.log)
		b.WriteString("\nObservation: ")
		b.WriteString(s.observation)
		b.WriteString("\nThought: ")
	}
	return b.String()
}

func renderPrompt(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
