package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/di"
	"github.com/savaki/account-assembler/internal/errors"
	"github.com/savaki/account-assembler/internal/services"
	"github.com/urfave/cli/v2"
)

type Handler struct {
	trail        *services.AuditTrail
	directory    *services.Directory
	accountEmail string
}

type Output struct {
	TrailName string `json:"trail_name"`
	AccountID string `json:"account_id"`
	BucketARN string `json:"bucket_arn"`
}

func NewHandler(trail *services.AuditTrail, directory *services.Directory) (*Handler, error) {
	accountEmail := os.Getenv("ACCOUNT_EMAIL")
	if accountEmail == "" {
		return nil, errors.ErrAccountEmailRequired
	}

	return &Handler{
		trail:        trail,
		directory:    directory,
		accountEmail: accountEmail,
	}, nil
}

// HandleEnableLogging extends the organization trail's audit coverage to
// the configured account: upgrade the trail to organization-wide if it is
// not already, then append a data-event selector for the account's bucket.
// Coverage accumulates one account at a time; existing selectors are
// never dropped.
func (h *Handler) HandleEnableLogging(ctx context.Context) (*Output, error) {
	logger := zerolog.Ctx(ctx)

	trailName, err := h.trail.EnsureOrganizationTrail(ctx)
	if err != nil {
		return nil, err
	}

	account, err := h.directory.FindAccountByEmail(ctx, h.accountEmail)
	if err != nil {
		return nil, err
	}

	bucketARN := services.AccountBucketARN(account.ID)
	if err := h.trail.AppendDataEventSelector(ctx, trailName, bucketARN); err != nil {
		return nil, err
	}

	logger.Info().
		Str("trail_name", trailName).
		Str("account_id", account.ID).
		Str("bucket_arn", bucketARN).
		Msg("Audit coverage extended")

	return &Output{
		TrailName: trailName,
		AccountID: account.ID,
		BucketARN: bucketARN,
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
		logger    = di.MustGet[zerolog.Logger](container).With().Str("lambda", "enable-logging").Logger()
		trail     = di.MustGet[*services.AuditTrail](container)
		directory = di.MustGet[*services.Directory](container)
	)

	handler, err := NewHandler(trail, directory)
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

	wrappedHandler := func(ctx context.Context) (*Output, error) {
		ctx = logger.WithContext(ctx)
		return handler.HandleEnableLogging(ctx)
	}
	lambda.Start(wrappedHandler)
	return nil
}

func runAction(c *cli.Context) error {
	if email := c.String("account-email"); email != "" {
		if err := os.Setenv("ACCOUNT_EMAIL", email); err != nil {
			return err
		}
	}

	handler, logger, err := newHandlerFromContainer(c.String("env"))
	if err != nil {
		return err
	}

	ctx := logger.WithContext(context.Background())
	result, err := handler.HandleEnableLogging(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func main() {
	app := &cli.App{
		Name:           "enable-logging",
		Usage:          "Extend organization-wide audit logging to a new account",
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
						Name:    "account-email",
						Usage:   "Email of the account to cover",
						EnvVars: []string{"ACCOUNT_EMAIL"},
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
