package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"mail2cal/internal/attendee"
	"mail2cal/internal/calendar"
	"mail2cal/internal/llm"
	"mail2cal/internal/models"
	"mail2cal/internal/upstream"
)

type fakeMail struct {
	messages []models.Message
	err      error
	calls    int
}

func (f *fakeMail) ReadUnread(context.Context) ([]models.Message, error) {
	f.calls++
	return f.messages, f.err
}

type fakeExtractor struct {
	reply   string
	err     error
	calls   int
	prompts []string
}

func (f *fakeExtractor) Extract(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type fakeDispatcher struct {
	resp  json.RawMessage
	err   error
	calls int
	got   *models.CalendarEventRequest
}

func (f *fakeDispatcher) CreateEvent(_ context.Context, req *models.CalendarEventRequest) (json.RawMessage, error) {
	f.calls++
	f.got = req
	return f.resp, f.err
}

const goodReply = `{"summary":"Budget review","start":"2024-05-02T11:00:00","end":"2024-05-02T12:00:00","attendees":["Jane","Bob","Talmon"]}`

func sampleMessage() models.Message {
	return models.Message{
		Snippet: "Lena, please set up a budget review with Jane and Bob tomorrow at 11.",
		Headers: map[string]string{
			"From": "Talmon Ben <talmon@x.com>",
			"To":   "Jane Doe <jane@x.com>, Lena <lena@x.com>",
		},
	}
}

type fixture struct {
	mail       *fakeMail
	extractor  *fakeExtractor
	dispatcher *fakeDispatcher
}

func newFixture(t *testing.T, variant llm.Variant, resolver attendee.Resolver) (*Orchestrator, *fixture) {
	t.Helper()
	f := &fixture{
		mail:       &fakeMail{messages: []models.Message{sampleMessage()}},
		extractor:  &fakeExtractor{reply: goodReply},
		dispatcher: &fakeDispatcher{resp: json.RawMessage(`{"id":"evt_1"}`)},
	}
	loc := time.FixedZone("IDT", 3*60*60)
	o, err := New(Options{
		Mail:          f.mail,
		Extractor:     f.extractor,
		Dispatcher:    f.dispatcher,
		Resolver:      resolver,
		Variant:       variant,
		AssistantName: "Lena",
		OwnerName:     "Talmon",
		Location:      loc,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:           func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, loc) },
	})
	be.Err(t, err, nil)
	return o, f
}

func TestRunNoMessages(t *testing.T) {
	o, f := newFixture(t, llm.Classic, attendee.Resolver{Policy: attendee.PolicyKeep})
	f.mail.messages = nil

	out := o.Run(context.Background(), false)
	be.Equal(t, out.Status, StatusNoMessages)
	be.True(t, !out.Failed())
	be.Equal(t, f.extractor.calls, 0)
	be.Equal(t, f.dispatcher.calls, 0)

	data, err := json.Marshal(out)
	be.Err(t, err, nil)
	be.Equal(t, string(data), `{"status":"No recent messages found."}`)
}

func TestRunDryRunNeverDispatches(t *testing.T) {
	o, f := newFixture(t, llm.Classic, attendee.Resolver{Policy: attendee.PolicyKeep})
	f.extractor.reply = "not even JSON"

	out := o.Run(context.Background(), true)
	be.Equal(t, f.extractor.calls, 1)
	be.Equal(t, f.dispatcher.calls, 0)
	be.True(t, !out.Failed())

	data, err := json.Marshal(out)
	be.Err(t, err, nil)
	be.Equal(t, string(data), `{"email":"Lena, please set up a budget review with Jane and Bob tomorrow at 11.","extracted":"not even JSON"}`)
}

func TestRunClassicKeepsUnmatchedNames(t *testing.T) {
	o, f := newFixture(t, llm.Classic, attendee.Resolver{Policy: attendee.PolicyKeep})

	out := o.Run(context.Background(), false)
	be.True(t, !out.Failed())
	be.Equal(t, f.dispatcher.calls, 1)

	data, err := json.Marshal(f.dispatcher.got)
	be.Err(t, err, nil)
	be.Equal(t, string(data), `{"summary":"Budget review","start":"2024-05-02T11:00:00","end":"2024-05-02T12:00:00","attendees":["jane@x.com","Bob","Talmon"]}`)

	data, err = json.Marshal(out)
	be.Err(t, err, nil)
	be.Equal(t, string(data), `{"calendar_response":{"id":"evt_1"}}`)

	// The classic prompt carries only the email text.
	be.True(t, strings.Contains(f.extractor.prompts[0], sampleMessage().Snippet))
	be.True(t, !strings.Contains(f.extractor.prompts[0], "jane@x.com"))
}

func TestRunRichPutsOwnerFirst(t *testing.T) {
	o, f := newFixture(t, llm.Rich, attendee.Resolver{Policy: attendee.PolicyDrop, OwnerEmail: "talmon@x.com", OwnerName: "Talmon"})

	out := o.Run(context.Background(), false)
	be.True(t, !out.Failed())

	data, err := json.Marshal(f.dispatcher.got)
	be.Err(t, err, nil)
	be.Equal(t, string(data), `{"summary":"Budget review","start":"2024-05-02T11:00:00","end":"2024-05-02T12:00:00","timezone":"IDT","attendees":[{"email":"talmon@x.com","responseStatus":"accepted"},{"email":"jane@x.com"}]}`)

	prompt := f.extractor.prompts[0]
	be.True(t, strings.Contains(prompt, "Today is Wednesday, 2024-05-01."))
	be.True(t, strings.Contains(prompt, "To: Jane Doe <jane@x.com>, Lena <lena@x.com>"))
}

func TestRunReplyDecodeError(t *testing.T) {
	o, f := newFixture(t, llm.Classic, attendee.Resolver{Policy: attendee.PolicyKeep})
	f.extractor.reply = "```json\n" + goodReply + "\n```"

	out := o.Run(context.Background(), false)
	be.True(t, out.Failed())
	be.Equal(t, out.Kind, KindReplyDecode)
	be.Equal(t, out.Raw, f.extractor.reply)
	be.True(t, out.Detail != "")
	be.Equal(t, f.dispatcher.calls, 0)

	var de *llm.DecodeError
	be.True(t, errors.As(out.Err, &de))
}

func TestRunMailUpstreamError(t *testing.T) {
	o, f := newFixture(t, llm.Classic, attendee.Resolver{Policy: attendee.PolicyKeep})
	f.mail.err = upstream.StatusError("mail", http.StatusUnauthorized, []byte("bad token"))

	out := o.Run(context.Background(), false)
	be.Equal(t, out.Kind, KindUpstream)
	be.Equal(t, out.Service, "mail")
	be.Equal(t, out.UpstreamKind, upstream.KindStatus)
	be.Equal(t, out.StatusCode, http.StatusUnauthorized)
	be.Equal(t, f.extractor.calls, 0)
	be.Equal(t, f.dispatcher.calls, 0)
}

func TestRunExtractorTimeout(t *testing.T) {
	o, f := newFixture(t, llm.Classic, attendee.Resolver{Policy: attendee.PolicyKeep})
	f.extractor.err = context.DeadlineExceeded

	out := o.Run(context.Background(), false)
	be.Equal(t, out.Kind, KindUpstream)
	be.Equal(t, out.Service, "llm")
	be.Equal(t, out.UpstreamKind, upstream.KindTimeout)
	be.Equal(t, f.dispatcher.calls, 0)
}

func TestRunCalendarResponseDecodeError(t *testing.T) {
	o, f := newFixture(t, llm.Classic, attendee.Resolver{Policy: attendee.PolicyKeep})
	f.dispatcher.resp = nil
	f.dispatcher.err = &calendar.ResponseDecodeError{StatusCode: 200, Raw: "ok", Err: errors.New("invalid character 'o'")}

	out := o.Run(context.Background(), false)
	be.Equal(t, out.Kind, KindCalendarResponseDecode)
	be.Equal(t, f.dispatcher.calls, 1)

	data, err := json.Marshal(out)
	be.Err(t, err, nil)
	be.Equal(t, string(data), `{"kind":"calendar_response_decode_error","calendar_response":{"error":"Could not decode calendar response","status_code":200,"raw":"ok","detail":"invalid character 'o'"}}`)
}

func TestRunCalendarUpstreamError(t *testing.T) {
	o, f := newFixture(t, llm.Classic, attendee.Resolver{Policy: attendee.PolicyKeep})
	f.dispatcher.resp = nil
	f.dispatcher.err = errors.New("connection reset")

	out := o.Run(context.Background(), false)
	be.Equal(t, out.Kind, KindUpstream)
	be.Equal(t, out.Service, "calendar")
	be.Equal(t, out.UpstreamKind, upstream.KindUnknown)
}

func TestRunProcessesOnlyFirstMessage(t *testing.T) {
	o, f := newFixture(t, llm.Classic, attendee.Resolver{Policy: attendee.PolicyKeep})
	f.mail.messages = append(f.mail.messages, models.Message{Snippet: "an older message"})

	o.Run(context.Background(), false)
	be.Equal(t, f.extractor.calls, 1)
	be.Equal(t, f.dispatcher.calls, 1)
	be.True(t, !strings.Contains(f.extractor.prompts[0], "an older message"))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	be.Err(t, err)
}
