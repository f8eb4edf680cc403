package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mail2cal/internal/llm"
	"mail2cal/internal/models"
	"mail2cal/internal/upstream"
)

const (
	credentialsFile = "credentials.json"
	service         = "calendar"
)

// Dispatcher creates events directly in a Google Calendar, bypassing the calendar proxy.
type Dispatcher struct {
	service    *calendar.Service
	logger     *slog.Logger
	calendarID string
	location   *time.Location
}

// TokenFile returns the token file name for an account.
func TokenFile(accountName string) string {
	return fmt.Sprintf("token-%s.json", accountName)
}

// NewDispatcher creates a Google Calendar dispatcher.
// It loads the OAuth token saved by the auth command for accountName.
func NewDispatcher(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName, calendarID string, loc *time.Location, timeout time.Duration) (*Dispatcher, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	tokenFile := TokenFile(accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	client := config.Client(ctx, token)
	client.Timeout = timeout
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	if calendarID == "" {
		calendarID = "primary"
	}
	return &Dispatcher{service: svc, logger: logger, calendarID: calendarID, location: loc}, nil
}

// CreateEvent inserts req into the configured calendar and returns the created event as JSON.
func (d *Dispatcher) CreateEvent(ctx context.Context, req *models.CalendarEventRequest) (json.RawMessage, error) {
	event, err := toGoogleEvent(req, d.location)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Creating Google Calendar event.", "calendarID", d.calendarID, "summary", event.Summary)
	created, err := d.service.Events.Insert(d.calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Errorf("failed to insert event: %w", err))
	}
	d.logger.Info("Google Calendar event created.", "id", created.Id)

	data, err := json.Marshal(created)
	if err != nil {
		return nil, fmt.Errorf("failed to encode created event: %w", err)
	}
	return data, nil
}

// toGoogleEvent converts a calendar request to the Google Calendar API model.
// Times without an offset are read in loc.
func toGoogleEvent(req *models.CalendarEventRequest, loc *time.Location) (*calendar.Event, error) {
	if loc == nil {
		loc = time.UTC
	}
	tz := req.Timezone
	if tz == "" {
		tz = loc.String()
	}
	start, err := llm.ParseTime(req.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid start time %q: %w", req.Start, err)
	}
	end, err := llm.ParseTime(req.End, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid end time %q: %w", req.End, err)
	}

	event := &calendar.Event{
		Summary: req.Summary,
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: tz},
		End:     &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: tz},
	}
	for _, a := range req.Attendees {
		// The calendar API rejects attendees without an address.
		if !strings.Contains(a.Email, "@") {
			continue
		}
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{
			Email:          a.Email,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return event, nil
}

func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code != 0 {
		return &upstream.Error{Service: service, Kind: upstream.KindStatus, StatusCode: gErr.Code, Err: err}
	}
	return upstream.Classify(service, err)
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes environment variables over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the root directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	return config, nil
}

// TokenFromWeb is called by the auth flow to retrieve a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
