package llm

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"mail2cal/internal/models"
)

// SystemMessage is sent as the system turn of every completion.
const SystemMessage = "You help extract calendar events from emails."

const classicTemplate = `
You are {{.AssistantName}}, a friendly yet professional virtual assistant. You help {{.OwnerName}} by managing {{.OwnerName}}'s calendar based on email instructions.

Your tasks:
1. If {{.OwnerName}} asks you to set a meeting, extract the following:
   - Meeting title (use your judgment if not explicitly stated)
   - Start and end time (including timezone)
   - List of attendees (use email headers like To/CC and names mentioned in the message)

2. Only suggest times between 10:00 AM and 4:00 PM local time unless {{.OwnerName}} specifically asks for a different time.

3. {{.OwnerName}} might mention a current location or schedule in the message. Use that to adjust for local time.

4. If someone else suggests a meeting time outside those hours, do not confirm it. Simply extract the intent, and let {{.OwnerName}} decide.

5. If {{.OwnerName}} explicitly requests a specific time, always follow it, even if it's outside normal working hours.

6. Look at email headers (from, to, cc) to help determine who should be invited.

Reply with a single bare JSON object and nothing else. No prose, no markdown fences:
{"summary": "...", "start": "...", "end": "...", "attendees": ["..."]}

Email content:
{{.Snippet}}
`

const richTemplate = `
You are {{.AssistantName}}, a friendly yet professional virtual assistant. You help {{.OwnerName}} by managing {{.OwnerName}}'s calendar based on email instructions.

Today is {{.Today}}. {{.OwnerName}}'s timezone is {{.Timezone}}.

Rules:
1. If the email asks for a meeting, extract the meeting title (use your judgment if not explicitly stated), the start and end time, and the attendees.
2. Default meeting hours are 10:00 to 16:00 local time unless the sender explicitly states otherwise.
3. When {{.OwnerName}} states an explicit time, always use it, even outside the default hours.
4. When someone other than {{.OwnerName}} proposes a time outside the default hours, record the intent only. Do not treat it as confirmed.
5. Attendees come only from the To, Cc and From headers below or from people explicitly named in the body. Never invent attendees. Use their display names as written in the headers.
6. Resolve relative dates such as "tomorrow" or "next Tuesday" against today's date.
7. Write start and end as ISO-8601 date-times.

Reply with a single bare JSON object and nothing else. No prose, no markdown fences:
{"summary": "...", "start": "...", "end": "...", "attendees": ["..."]}

Email headers:
{{- range .Headers}}
{{.Name}}: {{.Value}}
{{- end}}

Email content:
{{.Snippet}}
`

// HeaderField is one email header as rendered into the prompt.
type HeaderField struct {
	Name  string
	Value string
}

// PromptData is everything a prompt template may reference.
type PromptData struct {
	AssistantName string
	OwnerName     string
	Snippet       string
	Headers       []HeaderField
	Today         string
	Timezone      string
}

// Prompt renders the user turn for one message.
type Prompt struct {
	tmpl *template.Template
}

// NewPrompt parses text as a prompt template.
func NewPrompt(name, text string) (*Prompt, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %q: %w", name, err)
	}
	return &Prompt{tmpl: tmpl}, nil
}

// LoadPrompt reads a prompt template from path.
func LoadPrompt(path string) (*Prompt, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read prompt template: %w", err)
	}
	return NewPrompt(path, string(b))
}

// Render executes the template.
func (p *Prompt) Render(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// NewPromptData builds the template input for msg. Headers are rendered in
// sorted order so the same message always yields the same prompt.
func NewPromptData(assistant, owner string, msg models.Message, now time.Time) PromptData {
	headers := make([]HeaderField, 0, len(msg.Headers))
	for _, name := range msg.HeaderNames() {
		headers = append(headers, HeaderField{Name: name, Value: strings.TrimSpace(msg.Headers[name])})
	}
	return PromptData{
		AssistantName: assistant,
		OwnerName:     owner,
		Snippet:       msg.Snippet,
		Headers:       headers,
		Today:         now.Format("Monday, 2006-01-02"),
		Timezone:      now.Location().String(),
	}
}
