package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/dao/assemblydao"
	"github.com/savaki/account-assembler/internal/di"
	"github.com/savaki/account-assembler/internal/errors"
	"github.com/savaki/account-assembler/internal/services"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// assemblyRecorder tracks provisioning runs
type assemblyRecorder interface {
	Create(ctx context.Context, input assemblydao.CreateInput) (assemblydao.Record, error)
}

type Handler struct {
	directory   *services.Directory
	store       *services.OrgStore
	assembly    assemblyRecorder
	accountName string
	email       string // optional override; otherwise resolved from the emails namespace
}

type Output struct {
	AccountName string `json:"account_name"`
	Email       string `json:"email"`
	RequestID   string `json:"request_id"`
	RunID       string `json:"run_id"`
}

func NewHandler(directory *services.Directory, store *services.OrgStore, assembly assemblyRecorder) (*Handler, error) {
	accountName := os.Getenv("ACCOUNT_NAME")
	if accountName == "" {
		return nil, errors.ErrAccountNameRequired
	}

	return &Handler{
		directory:   directory,
		store:       store,
		assembly:    assembly,
		accountName: accountName,
		email:       os.Getenv("ACCOUNT_EMAIL"),
	}, nil
}

// HandleCreateAccount requests a new member account. Account creation is
// fire-and-forget: the directory service's own lifecycle event triggers
// the relocation stage once the account exists.
func (h *Handler) HandleCreateAccount(ctx context.Context) (*Output, error) {
	logger := zerolog.Ctx(ctx)

	email := h.email
	if email == "" {
		resolved, err := h.store.AccountEmail(ctx, h.accountName)
		if err != nil {
			return nil, err
		}
		email = resolved
	}

	requestID, err := h.directory.CreateAccount(ctx, email, h.accountName)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("account_name", h.accountName).
		Str("request_id", requestID).
		Msg("Account creation requested")

	runID := ksuid.New().String()
	_, err = h.assembly.Create(ctx, assemblydao.CreateInput{
		AccountName: h.accountName,
		Email:       email,
		SK:          runID,
		RequestID:   requestID,
	})
	if err != nil {
		// The account request is already in flight; losing the run record
		// costs tracking, not correctness
		logger.Warn().Err(err).Msg("Failed to record assembly run")
	}

	return &Output{
		AccountName: h.accountName,
		Email:       email,
		RequestID:   requestID,
		RunID:       runID,
	}, nil
}

func newHandlerFromContainer(env string) (*Handler, zerolog.Logger, error) {
	container, err := di.New(env,
		di.WithProviders(
			di.ProvideLogger,
			di.ProvideAssemblyDAO,
		),
	)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}

	var (
		logger    = di.MustGet[zerolog.Logger](container).With().Str("lambda", "create-account").Logger()
		directory = di.MustGet[*services.Directory](container)
		store     = di.MustGet[*services.OrgStore](container)
		assembly  = di.MustGet[*assemblydao.DAO](container)
	)

	handler, err := NewHandler(directory, store, assembly)
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
		return handler.HandleCreateAccount(ctx)
	}
	lambda.Start(wrappedHandler)
	return nil
}

func runAction(c *cli.Context) error {
	if name := c.String("account-name"); name != "" {
		if err := os.Setenv("ACCOUNT_NAME", name); err != nil {
			return err
		}
	}

	handler, logger, err := newHandlerFromContainer(c.String("env"))
	if err != nil {
		return err
	}

	ctx := logger.WithContext(context.Background())
	result, err := handler.HandleCreateAccount(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func main() {
	app := &cli.App{
		Name:           "create-account",
		Usage:          "Request a new organizational member account",
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
						Name:    "account-name",
						Usage:   "Logical account name",
						EnvVars: []string{"ACCOUNT_NAME"},
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
