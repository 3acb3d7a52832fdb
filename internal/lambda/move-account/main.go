package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/dao/assemblydao"
	"github.com/savaki/account-assembler/internal/di"
	"github.com/savaki/account-assembler/internal/services"
	"github.com/urfave/cli/v2"
)

// allowedAccountNames is the fixed set of environment accounts this
// workflow provisions. The account-created lifecycle event fires for every
// account in the organization, so anything outside this set is someone
// else's account and must not be moved.
var allowedAccountNames = []string{"Dev", "Staging", "Prod"}

// assemblyRecorder updates provisioning run records
type assemblyRecorder interface {
	Latest(ctx context.Context, accountName string) (*assemblydao.Record, error)
	UpdateStatus(ctx context.Context, input assemblydao.UpdateInput) error
}

type Handler struct {
	directory    *services.Directory
	store        *services.OrgStore
	assembly     assemblyRecorder
	allowedEmail string // optional second filter, applied independently when set
}

// Input is the account-created lifecycle event. The account id arrives
// either at the top level (local runs) or inside the raw EventBridge
// detail.
type Input struct {
	AccountID string          `json:"accountId,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

type lifecycleDetail struct {
	ServiceEventDetails struct {
		CreateAccountStatus struct {
			AccountID string `json:"accountId"`
		} `json:"createAccountStatus"`
	} `json:"serviceEventDetails"`
}

func (in *Input) accountID() (string, error) {
	if in.AccountID != "" {
		return in.AccountID, nil
	}

	if len(in.Detail) > 0 {
		var detail lifecycleDetail
		if err := json.Unmarshal(in.Detail, &detail); err != nil {
			return "", fmt.Errorf("failed to parse lifecycle event detail: %w", err)
		}
		if id := detail.ServiceEventDetails.CreateAccountStatus.AccountID; id != "" {
			return id, nil
		}
	}

	return "", fmt.Errorf("lifecycle event carries no account id")
}

type Output struct {
	Moved       bool   `json:"moved"`
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name,omitempty"`
}

func NewHandler(directory *services.Directory, store *services.OrgStore, assembly assemblyRecorder) *Handler {
	return &Handler{
		directory:    directory,
		store:        store,
		assembly:     assembly,
		allowedEmail: os.Getenv("ACCOUNT_EMAIL"),
	}
}

// HandleMoveAccount relocates a newly created account from the org root
// into the Workloads OU. The name allow-list and, when configured, the
// email check are applied as independent filters before any move; a
// mismatch is an accidental trigger, not an error.
func (h *Handler) HandleMoveAccount(ctx context.Context, input *Input) (*Output, error) {
	logger := zerolog.Ctx(ctx)

	accountID, err := input.accountID()
	if err != nil {
		return nil, err
	}

	ids, err := h.store.OrgUnits(ctx)
	if err != nil {
		return nil, err
	}

	account, err := h.directory.DescribeAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(allowedAccountNames, account.Name) {
		logger.Info().
			Str("account_id", accountID).
			Str("account_name", account.Name).
			Msg("Accidental trigger: account name not in allow-list")
		return &Output{Moved: false, AccountID: accountID, AccountName: account.Name}, nil
	}

	if h.allowedEmail != "" && account.Email != h.allowedEmail {
		logger.Info().
			Str("account_id", accountID).
			Str("account_email", account.Email).
			Msg("Accidental trigger: account email does not match configured email")
		return &Output{Moved: false, AccountID: accountID, AccountName: account.Name}, nil
	}

	if err := h.directory.MoveAccount(ctx, accountID, ids.MasterID, ids.WorkloadsID); err != nil {
		return nil, err
	}

	logger.Info().
		Str("account_id", accountID).
		Str("account_name", account.Name).
		Str("from", ids.MasterID).
		Str("to", ids.WorkloadsID).
		Msg("Account relocated to Workloads")

	h.recordProgress(ctx, account.Name, accountID)

	return &Output{
		Moved:       true,
		AccountID:   accountID,
		AccountName: account.Name,
	}, nil
}

// recordProgress attaches the account id to the latest assembly run.
// Tracking failures are logged, never fatal; the move already happened.
func (h *Handler) recordProgress(ctx context.Context, accountName, accountID string) {
	logger := zerolog.Ctx(ctx)

	run, err := h.assembly.Latest(ctx, accountName)
	if err != nil || run == nil {
		logger.Warn().Err(err).Str("account_name", accountName).Msg("No assembly run to update")
		return
	}

	status := assemblydao.StatusInProgress
	err = h.assembly.UpdateStatus(ctx, assemblydao.UpdateInput{
		PK:        run.PK,
		SK:        run.SK,
		Status:    &status,
		AccountID: aws.String(accountID),
	})
	if err != nil {
		logger.Warn().Err(err).Stringer("id", run.GetID()).Msg("Failed to update assembly run")
	}
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
		logger    = di.MustGet[zerolog.Logger](container).With().Str("lambda", "move-account").Logger()
		directory = di.MustGet[*services.Directory](container)
		store     = di.MustGet[*services.OrgStore](container)
		assembly  = di.MustGet[*assemblydao.DAO](container)
	)

	return NewHandler(directory, store, assembly), logger, nil
}

func lambdaAction(c *cli.Context) error {
	handler, logger, err := newHandlerFromContainer(c.String("env"))
	if err != nil {
		return err
	}

	wrappedHandler := func(ctx context.Context, event events.CloudWatchEvent) (*Output, error) {
		ctx = logger.WithContext(ctx)
		return handler.HandleMoveAccount(ctx, &Input{Detail: event.Detail})
	}
	lambda.Start(wrappedHandler)
	return nil
}

func runAction(c *cli.Context) error {
	handler, logger, err := newHandlerFromContainer(c.String("env"))
	if err != nil {
		return err
	}

	input := &Input{
		AccountID: c.String("account-id"),
	}

	ctx := logger.WithContext(context.Background())
	result, err := handler.HandleMoveAccount(ctx, input)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func main() {
	app := &cli.App{
		Name:           "move-account",
		Usage:          "Relocate a newly created account into the Workloads OU",
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
						Name:     "account-id",
						Usage:    "Account id to relocate",
						EnvVars:  []string{"ACCOUNT_ID"},
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
