package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"mail2cal/internal/attendee"
	"mail2cal/internal/llm"
)

// Calendar backends.
const (
	BackendMCP    = "mcp"
	BackendGoogle = "google"
	BackendCalDAV = "caldav"
)

// Config is loaded once at startup and never mutated.
type Config struct {
	HTTPPort        int
	LogLevel        string
	UpstreamTimeout time.Duration

	MailProxyURL     string
	CalendarProxyURL string
	BearerToken      string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	Variant            llm.Variant
	PromptTemplateFile string
	AttendeePolicy     attendee.Policy
	OwnerName          string
	OwnerEmail         string
	AssistantName      string
	Location           *time.Location

	CalendarBackend string
	Google          GoogleConfig
	CalDAV          CalDAVConfig
}

// GoogleConfig configures the direct Google Calendar backend.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	Account      string
	CalendarID   string
}

// CalDAVConfig configures the CalDAV backend.
type CalDAVConfig struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarName string
}

// Load reads the configuration from the environment. It fails if a required
// value is missing or an optional one is malformed.
func Load() (Config, error) {
	var missing []string
	required := func(key string) string {
		v := getEnvString(key, "")
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		LogLevel:         getEnvString("LOG_LEVEL", "info"),
		MailProxyURL:     required("GMAIL_WRAPPER_URL"),
		BearerToken:      required("MCP_BEARER_TOKEN"),
		OpenAIAPIKey:     required("OPENAI_API_KEY"),
		OpenAIModel:      getEnvString("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:    getEnvString("OPENAI_BASE_URL", ""),
		OwnerName:        getEnvString("OWNER_NAME", "Talmon"),
		OwnerEmail:       getEnvString("OWNER_EMAIL", ""),
		AssistantName:    getEnvString("ASSISTANT_NAME", "Lena"),
		CalendarBackend:  strings.ToLower(getEnvString("CALENDAR_BACKEND", BackendMCP)),
		CalendarProxyURL: getEnvString("GCAL_WRAPPER_URL", ""),
		Google: GoogleConfig{
			ClientID:     getEnvString("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnvString("GOOGLE_CLIENT_SECRET", ""),
			Account:      getEnvString("GOOGLE_ACCOUNT", "default"),
			CalendarID:   getEnvString("GOOGLE_CALENDAR_ID", "primary"),
		},
		CalDAV: CalDAVConfig{
			Endpoint:     getEnvString("CALDAV_ENDPOINT", "https://caldav.icloud.com/"),
			Username:     getEnvString("CALDAV_USERNAME", ""),
			Password:     getEnvString("CALDAV_PASSWORD", ""),
			CalendarName: getEnvString("CALDAV_CALENDAR_NAME", ""),
		},
		PromptTemplateFile: getEnvString("PROMPT_TEMPLATE_FILE", ""),
	}

	switch cfg.CalendarBackend {
	case BackendMCP:
		if cfg.CalendarProxyURL == "" {
			missing = append(missing, "GCAL_WRAPPER_URL")
		}
	case BackendGoogle:
	case BackendCalDAV:
		for key, v := range map[string]string{
			"CALDAV_USERNAME":      cfg.CalDAV.Username,
			"CALDAV_PASSWORD":      cfg.CalDAV.Password,
			"CALDAV_CALENDAR_NAME": cfg.CalDAV.CalendarName,
		} {
			if v == "" {
				missing = append(missing, key)
			}
		}
	default:
		return Config{}, fmt.Errorf("unknown CALENDAR_BACKEND %q (want mcp, google or caldav)", cfg.CalendarBackend)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	port, err := getEnvInt("HTTP_PORT", 8080)
	if err != nil {
		return Config{}, err
	}
	if port < 1 || port > 65535 {
		return Config{}, fmt.Errorf("invalid HTTP_PORT %d (want 1-65535)", port)
	}
	cfg.HTTPPort = port

	timeout, err := time.ParseDuration(getEnvString("UPSTREAM_TIMEOUT", "30s"))
	if err != nil || timeout <= 0 {
		return Config{}, fmt.Errorf("invalid UPSTREAM_TIMEOUT %q", os.Getenv("UPSTREAM_TIMEOUT"))
	}
	cfg.UpstreamTimeout = timeout

	variant, err := llm.ParseVariant(getEnvString("PROMPT_VARIANT", "classic"))
	if err != nil {
		return Config{}, err
	}
	cfg.Variant = variant

	cfg.AttendeePolicy = variant.Policy
	if p := getEnvString("ATTENDEE_POLICY", ""); p != "" {
		policy, err := attendee.ParsePolicy(p)
		if err != nil {
			return Config{}, err
		}
		cfg.AttendeePolicy = policy
	}

	tzStr := getEnvString("PRIMARY_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid timezone '%s': %w", tzStr, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := getEnvString(key, "")
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}
