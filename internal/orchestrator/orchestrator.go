package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mail2cal/internal/attendee"
	"mail2cal/internal/calendar"
	"mail2cal/internal/llm"
	"mail2cal/internal/models"
	"mail2cal/internal/upstream"
)

// MailReader fetches unread mail, most recent first.
type MailReader interface {
	ReadUnread(ctx context.Context) ([]models.Message, error)
}

// Dispatcher creates a calendar event and returns the backend's JSON response.
type Dispatcher interface {
	CreateEvent(ctx context.Context, req *models.CalendarEventRequest) (json.RawMessage, error)
}

// Options configures an Orchestrator.
type Options struct {
	Mail          MailReader
	Extractor     llm.Extractor
	Decoder       llm.Decoder
	Resolver      attendee.Resolver
	Dispatcher    Dispatcher
	Prompt        *llm.Prompt
	Variant       llm.Variant
	AssistantName string
	OwnerName     string
	Location      *time.Location
	Logger        *slog.Logger
	Now           func() time.Time
}

// Orchestrator runs the mail-to-calendar pipeline. It holds only read-only
// configuration, so one instance can serve concurrent requests.
type Orchestrator struct {
	mail          MailReader
	extractor     llm.Extractor
	decoder       llm.Decoder
	resolver      attendee.Resolver
	dispatcher    Dispatcher
	prompt        *llm.Prompt
	variant       llm.Variant
	assistantName string
	ownerName     string
	location      *time.Location
	logger        *slog.Logger
	now           func() time.Time
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Mail == nil || opts.Extractor == nil || opts.Dispatcher == nil {
		return nil, errors.New("orchestrator needs a mail reader, an extractor and a dispatcher")
	}
	if opts.Variant.Name == "" {
		opts.Variant = llm.Classic
	}
	if opts.Prompt == nil {
		p, err := opts.Variant.Prompt()
		if err != nil {
			return nil, err
		}
		opts.Prompt = p
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Decoder == nil {
		opts.Decoder = llm.StrictDecoder{Location: opts.Location}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		mail:          opts.Mail,
		extractor:     opts.Extractor,
		decoder:       opts.Decoder,
		resolver:      opts.Resolver,
		dispatcher:    opts.Dispatcher,
		prompt:        opts.Prompt,
		variant:       opts.Variant,
		assistantName: opts.AssistantName,
		ownerName:     opts.OwnerName,
		location:      opts.Location,
		logger:        opts.Logger,
		now:           opts.Now,
	}, nil
}

// Run processes the most recent unread message. Every failure is reported in
// the returned Outcome; Outcome.Err keeps the underlying error for callers.
func (o *Orchestrator) Run(ctx context.Context, dryRun bool) Outcome {
	o.logger.Info("Starting run.", "dryRun", dryRun, "variant", o.variant.Name)

	messages, err := o.mail.ReadUnread(ctx)
	if err != nil {
		return o.fail("mail", err)
	}
	if len(messages) == 0 {
		o.logger.Info("No unread messages, nothing to do.")
		return noMessages()
	}
	if len(messages) > 1 {
		o.logger.Debug("Only the most recent message is processed.", "unread", len(messages))
	}
	msg := messages[0]

	data := llm.NewPromptData(o.assistantName, o.ownerName, msg, o.now().In(o.location))
	prompt, err := o.prompt.Render(data)
	if err != nil {
		return o.fail("llm", fmt.Errorf("failed to build prompt: %w", err))
	}

	reply, err := o.extractor.Extract(ctx, prompt)
	if err != nil {
		return o.fail("llm", err)
	}

	if dryRun {
		o.logger.Info("Dry run, stopping after extraction.")
		return dryRunOutcome(msg.Snippet, reply)
	}

	event, err := o.decoder.Decode(reply)
	if err != nil {
		return o.fail("llm", err)
	}
	o.logger.Info("Decoded meeting intent.", "summary", event.Summary, "start", event.Start, "end", event.End, "names", len(event.Attendees))

	req := o.buildRequest(event, msg)

	resp, err := o.dispatcher.CreateEvent(ctx, req)
	if err != nil {
		return o.fail("calendar", err)
	}
	o.logger.Info("Run finished.", "summary", req.Summary)
	return Outcome{CalendarResponse: resp}
}

func (o *Orchestrator) buildRequest(event *models.ExtractedEvent, msg models.Message) *models.CalendarEventRequest {
	attendees := o.resolver.Resolve(event.Attendees, msg.Headers)
	o.logger.Debug("Resolved attendees.", "requested", len(event.Attendees), "resolved", len(attendees))

	req := &models.CalendarEventRequest{
		Summary:         event.Summary,
		Start:           event.Start,
		End:             event.End,
		Attendees:       attendees,
		AttendeeRecords: o.variant.AttendeeRecords,
	}
	if o.variant.IncludeTimezone {
		req.Timezone = o.location.String()
	}
	return req
}

// fail converts err into the payload for its kind. Errors that are not one of
// the typed pipeline errors are reported as upstream failures of service.
func (o *Orchestrator) fail(service string, err error) Outcome {
	var decodeErr *llm.DecodeError
	if errors.As(err, &decodeErr) {
		o.logger.Error("Model reply could not be decoded.", "kind", KindReplyDecode, "error", decodeErr.Err)
		return replyDecodeOutcome(decodeErr)
	}

	var calErr *calendar.ResponseDecodeError
	if errors.As(err, &calErr) {
		o.logger.Error("Calendar response could not be decoded.", "kind", KindCalendarResponseDecode, "status", calErr.StatusCode, "error", calErr.Err)
		return calendarDecodeOutcome(calErr)
	}

	ue := upstream.Classify(service, err)
	o.logger.Error("Upstream call failed.", "kind", KindUpstream, "service", ue.Service, "upstreamKind", ue.Kind, "status", ue.StatusCode, "error", err)
	return upstreamOutcome(ue, err)
}
