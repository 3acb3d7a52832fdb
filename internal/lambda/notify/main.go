package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/di"
	"github.com/savaki/account-assembler/internal/services"
	"github.com/urfave/cli/v2"
)

type Handler struct {
	webhookURL string
	httpClient *http.Client
}

// Response mirrors the webhook's reply verbatim
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// webhookMessage is the only structure this handler imposes: the whole
// incoming payload serialized into the text field
type webhookMessage struct {
	Text string `json:"text"`
}

// NewHandler resolves the webhook URL once at startup; a missing or
// unreadable secret is fatal here, not deferred to the first event.
func NewHandler(ctx context.Context, secrets *services.SecretsManagerService) (*Handler, error) {
	secretID := os.Getenv("WEBHOOK_SECRET_ID")
	if secretID == "" {
		secretID = services.DefaultWebhookSecretID
	}

	webhookURL, err := secrets.GetWebhookURL(ctx, secretID)
	if err != nil {
		return nil, err
	}

	return &Handler{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// HandleNotify forwards the raw event payload to the webhook and relays
// the webhook's status code and body unchanged. The payload's structure
// is never interpreted.
func (h *Handler) HandleNotify(ctx context.Context, event json.RawMessage) (*Response, error) {
	logger := zerolog.Ctx(ctx)

	body, err := json.Marshal(webhookMessage{Text: string(event)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post to webhook: %w", err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	logger.Info().
		Int("status_code", resp.StatusCode).
		Msg("Event relayed to webhook")

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}, nil
}

func newHandlerFromContainer(env string) (*Handler, zerolog.Logger, error) {
	container, err := di.New(env,
		di.WithProviders(di.ProvideLogger),
	)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}

	var (
		logger  = di.MustGet[zerolog.Logger](container).With().Str("lambda", "notify").Logger()
		ctx     = di.MustGet[context.Context](container)
		secrets = di.MustGet[*services.SecretsManagerService](container)
	)

	handler, err := NewHandler(ctx, secrets)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	return handler, logger, nil
}

func lambdaAction(c *cli.Context) error {
	handler, logger, err := newHandlerFromContainer(c.String("env"))
	if err != nil {
		return err
	}

	wrappedHandler := func(ctx context.Context, event json.RawMessage) (*Response, error) {
		ctx = logger.WithContext(ctx)
		return handler.HandleNotify(ctx, event)
	}
	lambda.Start(wrappedHandler)
	return nil
}

func runAction(c *cli.Context) error {
	handler, logger, err := newHandlerFromContainer(c.String("env"))
	if err != nil {
		return err
	}

	ctx := logger.WithContext(context.Background())
	result, err := handler.HandleNotify(ctx, json.RawMessage(c.String("payload")))
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func main() {
	app := &cli.App{
		Name:           "notify",
		Usage:          "Relay workflow events to the notification webhook",
		DefaultCommand: "lambda",
		Commands: []*cli.Command{
			{
				Name:  "lambda",
				Usage: "Start Lambda handler",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "env",
						Usage:   "Environment",
						EnvVars: []string{"ENV"},
						Value:   "dev",
					},
				},
				Action: lambdaAction,
			},
			{
				Name:  "run",
				Usage: "Run locally for testing",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "env",
						Usage:   "Environment",
						EnvVars: []string{"ENV"},
						Value:   "dev",
					},
					&cli.StringFlag{
						Name:     "payload",
						Usage:    "JSON payload to relay",
						EnvVars:  []string{"PAYLOAD"},
						Required: true,
					},
				},
				Action: runAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
