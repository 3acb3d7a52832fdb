package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/dao/assemblydao"
	"github.com/savaki/account-assembler/internal/di"
	"github.com/savaki/account-assembler/internal/services"
	"github.com/savaki/account-assembler/internal/stackset"
	"github.com/urfave/cli/v2"
)

// ServiceName identifies this stage on the event bus
const ServiceName = "assembler-stackset"

// baselineDeployer drives the StackSet to a terminal state
type baselineDeployer interface {
	CreateBaselineStackSet(ctx context.Context) (string, error)
	DeployBaseline(ctx context.Context, stackSetName, ouID string) (string, error)
	WaitForOperation(ctx context.Context, stackSetName, operationID string) error
}

// stagePublisher emits workflow-stage-completion events
type stagePublisher interface {
	PublishStageEvent(ctx context.Context, service string, status services.StageStatus) error
}

// assemblyRecorder updates provisioning run records
type assemblyRecorder interface {
	Latest(ctx context.Context, accountName string) (*assemblydao.Record, error)
	UpdateStatus(ctx context.Context, input assemblydao.UpdateInput) error
}

type Handler struct {
	store     *services.OrgStore
	deployer  baselineDeployer
	publisher stagePublisher
	assembly  assemblyRecorder
}

// Input is the triggering event. An upstream stage that failed marks the
// payload with an error indicator; deployment must not proceed on top of a
// failed workflow.
type Input struct {
	AccountName  string          `json:"accountName,omitempty"`
	Error        json.RawMessage `json:"Error,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

func (in *Input) hasError() bool {
	return len(in.Error) > 0 || in.ErrorMessage != ""
}

type Output struct {
	StackSetName string `json:"stack_set_name,omitempty"`
	OperationID  string `json:"operation_id,omitempty"`
	Skipped      bool   `json:"skipped"`
}

func NewHandler(store *services.OrgStore, deployer baselineDeployer, publisher stagePublisher, assembly assemblyRecorder) *Handler {
	return &Handler{
		store:     store,
		deployer:  deployer,
		publisher: publisher,
		assembly:  assembly,
	}
}

// HandleDeployBaseline rolls the baseline template out to the Workloads
// OU and publishes a completion event once the StackSet operation reaches
// SUCCEEDED. Any failure before or during the rollout propagates without
// publishing, so the trigger's retry policy applies.
func (h *Handler) HandleDeployBaseline(ctx context.Context, input *Input) (*Output, error) {
	logger := zerolog.Ctx(ctx)

	if input.hasError() {
		logger.Info().
			Str("error_message", input.ErrorMessage).
			Msg("Upstream stage failed, skipping baseline deployment")
		return &Output{Skipped: true}, nil
	}

	ids, err := h.store.OrgUnits(ctx)
	if err != nil {
		return nil, err
	}

	stackSetName, err := h.deployer.CreateBaselineStackSet(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create baseline StackSet")
		return nil, err
	}

	h.recordStackSet(ctx, input.AccountName, stackSetName)

	operationID, err := h.deployer.DeployBaseline(ctx, stackSetName, ids.WorkloadsID)
	if err != nil {
		logger.Error().Err(err).Str("stack_set_name", stackSetName).Msg("Failed to deploy baseline")
		h.recordOutcome(ctx, input.AccountName, assemblydao.StatusFailed, err)
		return nil, err
	}

	if err := h.deployer.WaitForOperation(ctx, stackSetName, operationID); err != nil {
		logger.Error().
			Err(err).
			Str("stack_set_name", stackSetName).
			Str("operation_id", operationID).
			Msg("Baseline deployment did not succeed")
		h.recordOutcome(ctx, input.AccountName, assemblydao.StatusFailed, err)
		return nil, err
	}

	if err := h.publisher.PublishStageEvent(ctx, ServiceName, services.StageSucceeded); err != nil {
		return nil, err
	}

	h.recordOutcome(ctx, input.AccountName, assemblydao.StatusSuccess, nil)

	logger.Info().
		Str("stack_set_name", stackSetName).
		Str("operation_id", operationID).
		Msg("Baseline deployed")

	return &Output{
		StackSetName: stackSetName,
		OperationID:  operationID,
	}, nil
}

// recordStackSet ties the StackSet name to the latest run so failed runs
// leave a trail to their orphaned StackSets
func (h *Handler) recordStackSet(ctx context.Context, accountName, stackSetName string) {
	if accountName == "" {
		return
	}
	logger := zerolog.Ctx(ctx)

	run, err := h.assembly.Latest(ctx, accountName)
	if err != nil || run == nil {
		logger.Warn().Err(err).Str("account_name", accountName).Msg("No assembly run to update")
		return
	}

	status := assemblydao.StatusInProgress
	err = h.assembly.UpdateStatus(ctx, assemblydao.UpdateInput{
		PK:           run.PK,
		SK:           run.SK,
		Status:       &status,
		StackSetName: aws.String(stackSetName),
	})
	if err != nil {
		logger.Warn().Err(err).Stringer("id", run.GetID()).Msg("Failed to record StackSet name")
	}
}

func (h *Handler) recordOutcome(ctx context.Context, accountName string, status assemblydao.Status, cause error) {
	if accountName == "" {
		return
	}
	logger := zerolog.Ctx(ctx)

	run, err := h.assembly.Latest(ctx, accountName)
	if err != nil || run == nil {
		logger.Warn().Err(err).Str("account_name", accountName).Msg("No assembly run to update")
		return
	}

	input := assemblydao.UpdateInput{
		PK:     run.PK,
		SK:     run.SK,
		Status: &status,
	}
	if cause != nil {
		input.ErrorMsg = aws.String(cause.Error())
	}

	if err := h.assembly.UpdateStatus(ctx, input); err != nil {
		logger.Warn().Err(err).Stringer("id", run.GetID()).Msg("Failed to record run outcome")
	}
}

func provideOrchestrator(client *cloudformation.Client) (*stackset.Orchestrator, error) {
	templateURL := os.Getenv("BASELINE_TEMPLATE_URL")
	if templateURL == "" {
		return nil, fmt.Errorf("BASELINE_TEMPLATE_URL environment variable is required")
	}

	var opts []stackset.Option
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
		}
		opts = append(opts, stackset.WithPollInterval(interval))
	}
	if v := os.Getenv("POLL_DEADLINE"); v != "" {
		deadline, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_DEADLINE: %w", err)
		}
		opts = append(opts, stackset.WithPollDeadline(deadline))
	}

	return stackset.New(client, templateURL, opts...), nil
}

func newHandlerFromContainer(env string) (*Handler, zerolog.Logger, error) {
	container, err := di.New(env,
		di.WithProviders(
			di.ProvideLogger,
			di.ProvideAssemblyDAO,
			provideOrchestrator,
		),
	)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}

	var (
		logger       = di.MustGet[zerolog.Logger](container).With().Str("lambda", "deploy-baseline").Logger()
		store        = di.MustGet[*services.OrgStore](container)
		orchestrator = di.MustGet[*stackset.Orchestrator](container)
		assembly     = di.MustGet[*assemblydao.DAO](container)
		publisher    = di.MustGet[*services.EventPublisher](container)
	)

	return NewHandler(store, orchestrator, publisher, assembly), logger, nil
}

func lambdaAction(c *cli.Context) error {
	handler, logger, err := newHandlerFromContainer(c.String("env"))
	if err != nil {
		return err
	}

	wrappedHandler := func(ctx context.Context, input *Input) (*Output, error) {
		ctx = logger.WithContext(ctx)
		return handler.HandleDeployBaseline(ctx, input)
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
		AccountName: c.String("account-name"),
	}

	ctx := logger.WithContext(context.Background())
	result, err := handler.HandleDeployBaseline(ctx, input)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func main() {
	app := &cli.App{
		Name:           "deploy-baseline",
		Usage:          "Deploy the account baseline StackSet to the Workloads OU",
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
						Usage:   "Logical account name for run tracking",
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
