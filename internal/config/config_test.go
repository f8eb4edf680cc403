package config

import (
	"testing"
	"time"

	"github.com/nalgeon/be"

	"mail2cal/internal/attendee"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GMAIL_WRAPPER_URL", "http://gmail.local")
	t.Setenv("GCAL_WRAPPER_URL", "http://gcal.local")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MCP_BEARER_TOKEN", "token")
}

func clearOptionalEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_PORT", "LOG_LEVEL", "UPSTREAM_TIMEOUT", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"PROMPT_VARIANT", "PROMPT_TEMPLATE_FILE", "ATTENDEE_POLICY", "OWNER_NAME", "OWNER_EMAIL",
		"ASSISTANT_NAME", "PRIMARY_TIMEZONE", "CALENDAR_BACKEND", "CALDAV_USERNAME",
		"CALDAV_PASSWORD", "CALDAV_CALENDAR_NAME",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearOptionalEnv(t)
	setRequiredEnv(t)

	cfg, err := Load()
	be.Err(t, err, nil)
	be.Equal(t, cfg.HTTPPort, 8080)
	be.Equal(t, cfg.UpstreamTimeout, 30*time.Second)
	be.Equal(t, cfg.MailProxyURL, "http://gmail.local")
	be.Equal(t, cfg.CalendarProxyURL, "http://gcal.local")
	be.Equal(t, cfg.OpenAIModel, "gpt-4o")
	be.Equal(t, cfg.Variant.Name, "classic")
	be.Equal(t, cfg.AttendeePolicy, attendee.PolicyKeep)
	be.Equal(t, cfg.OwnerName, "Talmon")
	be.Equal(t, cfg.AssistantName, "Lena")
	be.Equal(t, cfg.Location, time.UTC)
	be.Equal(t, cfg.CalendarBackend, BackendMCP)
}

func TestLoadRichVariant(t *testing.T) {
	clearOptionalEnv(t)
	setRequiredEnv(t)
	t.Setenv("PROMPT_VARIANT", "rich")
	t.Setenv("OWNER_EMAIL", "talmon@x.com")
	t.Setenv("PRIMARY_TIMEZONE", "Asia/Jerusalem")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")

	cfg, err := Load()
	be.Err(t, err, nil)
	be.Equal(t, cfg.Variant.Name, "rich")
	be.Equal(t, cfg.AttendeePolicy, attendee.PolicyDrop)
	be.Equal(t, cfg.OwnerEmail, "talmon@x.com")
	be.Equal(t, cfg.Location.String(), "Asia/Jerusalem")
	be.Equal(t, cfg.UpstreamTimeout, 5*time.Second)
}

func TestLoadPolicyOverride(t *testing.T) {
	clearOptionalEnv(t)
	setRequiredEnv(t)
	t.Setenv("PROMPT_VARIANT", "rich")
	t.Setenv("ATTENDEE_POLICY", "keep")

	cfg, err := Load()
	be.Err(t, err, nil)
	be.Equal(t, cfg.AttendeePolicy, attendee.PolicyKeep)
}

func TestLoadMissingRequired(t *testing.T) {
	clearOptionalEnv(t)
	t.Setenv("GMAIL_WRAPPER_URL", "")
	t.Setenv("GCAL_WRAPPER_URL", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MCP_BEARER_TOKEN", "  ")

	_, err := Load()
	be.Err(t, err, "missing required environment variables: GCAL_WRAPPER_URL, GMAIL_WRAPPER_URL, MCP_BEARER_TOKEN")
}

func TestLoadGoogleBackendSkipsProxyURL(t *testing.T) {
	clearOptionalEnv(t)
	setRequiredEnv(t)
	t.Setenv("GCAL_WRAPPER_URL", "")
	t.Setenv("CALENDAR_BACKEND", "google")

	cfg, err := Load()
	be.Err(t, err, nil)
	be.Equal(t, cfg.CalendarBackend, BackendGoogle)
	be.Equal(t, cfg.Google.CalendarID, "primary")
}

func TestLoadCalDAVBackendRequiresCredentials(t *testing.T) {
	clearOptionalEnv(t)
	setRequiredEnv(t)
	t.Setenv("CALENDAR_BACKEND", "caldav")
	t.Setenv("CALDAV_USERNAME", "me@icloud.com")

	_, err := Load()
	be.Err(t, err, "CALDAV_CALENDAR_NAME, CALDAV_PASSWORD")
}

func TestLoadInvalidValues(t *testing.T) {
	tests := map[string]string{
		"CALENDAR_BACKEND": "outlook",
		"UPSTREAM_TIMEOUT": "soon",
		"PROMPT_VARIANT":   "eval",
		"ATTENDEE_POLICY":  "sometimes",
		"PRIMARY_TIMEZONE": "Mars/Olympus",
		"HTTP_PORT":        "80a",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearOptionalEnv(t)
			setRequiredEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			be.Err(t, err)
		})
	}
}

func TestLoadHTTPPort(t *testing.T) {
	clearOptionalEnv(t)
	setRequiredEnv(t)
	t.Setenv("HTTP_PORT", " 9090 ")
	cfg, err := Load()
	be.Err(t, err, nil)
	be.Equal(t, cfg.HTTPPort, 9090)

	t.Setenv("HTTP_PORT", "eighty")
	_, err = Load()
	be.Err(t, err, `invalid HTTP_PORT "eighty"`)

	t.Setenv("HTTP_PORT", "70000")
	_, err = Load()
	be.Err(t, err, "invalid HTTP_PORT 70000")
}
