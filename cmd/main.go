package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"mail2cal/internal/api"
	"mail2cal/internal/attendee"
	"mail2cal/internal/calendar"
	"mail2cal/internal/config"
	"mail2cal/internal/google"
	"mail2cal/internal/icloud"
	"mail2cal/internal/llm"
	"mail2cal/internal/mail"
	"mail2cal/internal/mcp"
	"mail2cal/internal/orchestrator"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "mail2cal",
		Usage: "Turn the latest unread email into a calendar event.",
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
			authCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed.", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve POST /run over HTTP.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "Listen port. Overrides HTTP_PORT."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger := setupLogger(cfg.LogLevel)

			orch, err := buildOrchestrator(c.Context, cfg, logger)
			if err != nil {
				return err
			}

			port := cfg.HTTPPort
			if c.IsSet("port") {
				port = c.Int("port")
			}
			httpAddr := fmt.Sprintf(":%d", port)
			httpSrv := &http.Server{
				Addr:              httpAddr,
				Handler:           api.NewServer(orch, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP server listening.", "addr", httpAddr)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server stopped: %w", err)
				}
				return nil
			case <-shutdown:
			}

			logger.Info("Shutting down.")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown http: %w", err)
			}
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Process the latest unread email once and print the outcome.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Stop after extraction and print the raw model reply."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger := setupLogger(cfg.LogLevel)

			orch, err := buildOrchestrator(c.Context, cfg, logger)
			if err != nil {
				return err
			}

			outcome := orch.Run(c.Context, c.Bool("dry-run"))
			out, err := outcome.MarshalIndent()
			if err != nil {
				return fmt.Errorf("failed to encode outcome: %w", err)
			}
			fmt.Println(string(out))
			if outcome.Failed() {
				return cli.Exit("", 2)
			}
			return nil
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account for CALENDAR_BACKEND=google.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.GetOAuthConfigForAuthFlow(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			if accountName == "" {
				accountName = "default"
			}
			tokenFile := google.TokenFile(accountName)

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile, "hint", "set GOOGLE_ACCOUNT="+accountName)
			return nil
		},
	}
}

// buildOrchestrator wires the configured collaborators.
func buildOrchestrator(ctx context.Context, cfg config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	mailClient := mcp.NewClient(logger, "mail", cfg.MailProxyURL, cfg.BearerToken, cfg.UpstreamTimeout)
	reader := mail.NewReader(logger, mailClient)

	extractor := llm.NewOpenAIExtractor(logger, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.UpstreamTimeout)

	prompt, err := cfg.Variant.Prompt()
	if err != nil {
		return nil, err
	}
	if cfg.PromptTemplateFile != "" {
		prompt, err = llm.LoadPrompt(cfg.PromptTemplateFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Using custom prompt template.", "file", cfg.PromptTemplateFile)
	}

	dispatcher, err := buildDispatcher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Mail:       reader,
		Extractor:  extractor,
		Decoder:    llm.StrictDecoder{Location: cfg.Location},
		Dispatcher: dispatcher,
		Resolver: attendee.Resolver{
			Policy:     cfg.AttendeePolicy,
			OwnerEmail: cfg.OwnerEmail,
			OwnerName:  cfg.OwnerName,
		},
		Prompt:        prompt,
		Variant:       cfg.Variant,
		AssistantName: cfg.AssistantName,
		OwnerName:     cfg.OwnerName,
		Location:      cfg.Location,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	logger.Info("Orchestrator ready.",
		"variant", cfg.Variant.Name,
		"attendeePolicy", cfg.AttendeePolicy,
		"calendarBackend", cfg.CalendarBackend,
		"timezone", cfg.Location.String(),
	)
	return orch, nil
}

func buildDispatcher(ctx context.Context, cfg config.Config, logger *slog.Logger) (orchestrator.Dispatcher, error) {
	switch cfg.CalendarBackend {
	case config.BackendGoogle:
		d, err := google.NewDispatcher(ctx, logger, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.Account, cfg.Google.CalendarID, cfg.Location, cfg.UpstreamTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create google calendar client: %w", err)
		}
		return d, nil
	case config.BackendCalDAV:
		d, err := icloud.NewDispatcher(ctx, logger, cfg.CalDAV.Endpoint, cfg.CalDAV.Username, cfg.CalDAV.Password, cfg.CalDAV.CalendarName, cfg.Location, cfg.UpstreamTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav client: %w", err)
		}
		return d, nil
	default:
		calClient := mcp.NewClient(logger, "calendar", cfg.CalendarProxyURL, cfg.BearerToken, cfg.UpstreamTimeout)
		return calendar.NewDispatcher(logger, calClient), nil
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
