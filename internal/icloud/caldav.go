package icloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"mail2cal/internal/llm"
	"mail2cal/internal/models"
	"mail2cal/internal/upstream"
)

const (
	// DefaultEndpoint is iCloud's CalDAV root.
	DefaultEndpoint = "https://caldav.icloud.com/"
	service         = "calendar"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "mail2cal/1.0")
	return t.Transport.RoundTrip(req)
}

// Dispatcher creates events on a CalDAV server (iCloud by default).
type Dispatcher struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	calendarPath string
	location     *time.Location
}

// Created is returned to the caller after a successful PUT.
type Created struct {
	Status string `json:"status"`
	UID    string `json:"uid"`
	Path   string `json:"path"`
}

// NewDispatcher creates a CalDAV dispatcher and locates the calendar called calendarName.
func NewDispatcher(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string, loc *time.Location, timeout time.Duration) (*Dispatcher, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport, Timeout: timeout}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	d := &Dispatcher{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		location:     loc,
	}

	logger.Info("Finding CalDAV calendar.", "calendarName", calendarName)
	calendarPath, err := d.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	d.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar.", "path", calendarPath)

	return d, nil
}

// CreateEvent writes req as a new VEVENT and returns a small JSON receipt.
func (d *Dispatcher) CreateEvent(ctx context.Context, req *models.CalendarEventRequest) (json.RawMessage, error) {
	uid := uuid.New().String()
	vevent, err := toICal(req, uid, d.location, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//mail2cal//EN")
	cal.Children = append(cal.Children, vevent)

	eventPath := path.Join(d.calendarPath, fmt.Sprintf("%s.ics", uid))
	d.logger.Debug("Writing event to CalDAV.", "path", eventPath, "summary", req.Summary)

	writer, err := d.webdavClient.Create(ctx, eventPath)
	if err != nil {
		return nil, upstream.Classify(service, fmt.Errorf("failed to create event on CalDAV server: %w", err))
	}
	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, upstream.Classify(service, fmt.Errorf("failed to upload event: %w", err))
	}

	d.logger.Info("Successfully created CalDAV event.", "summary", req.Summary, "uid", uid)
	return json.Marshal(Created{Status: "created", UID: uid, Path: eventPath})
}

// toICal converts a calendar request to a VEVENT component.
func toICal(req *models.CalendarEventRequest, uid string, loc *time.Location, now time.Time) (*ical.Component, error) {
	if loc == nil {
		loc = time.UTC
	}
	if req.Timezone != "" {
		if tz, err := time.LoadLocation(req.Timezone); err == nil {
			loc = tz
		}
	}
	start, err := llm.ParseTime(req.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid start time %q: %w", req.Start, err)
	}
	end, err := llm.ParseTime(req.End, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid end time %q: %w", req.End, err)
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, req.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now)
	ve.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())

	for _, a := range req.Attendees {
		if !strings.Contains(a.Email, "@") {
			continue
		}
		p := ical.NewProp(ical.PropAttendee)
		p.SetText(fmt.Sprintf("mailto:%s", a.Email))
		if a.ResponseStatus == models.ResponseAccepted {
			p.Params.Set(ical.ParamParticipationStatus, "ACCEPTED")
		}
		ve.Props.Add(p)
	}
	return ve, nil
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (d *Dispatcher) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := d.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := d.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := d.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
