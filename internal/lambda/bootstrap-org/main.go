package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/dao/bootstrapdao"
	"github.com/savaki/account-assembler/internal/di"
	"github.com/savaki/account-assembler/internal/services"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

const workloadsOUName = "Workloads"

// bootstrapLock guards against concurrent bootstrap invocations
type bootstrapLock interface {
	Acquire(ctx context.Context, holderID string) (bool, error)
	Release(ctx context.Context, holderID string) error
}

type Handler struct {
	directory *services.Directory
	store     *services.OrgStore
	lock      bootstrapLock
}

type Output struct {
	MasterID    string `json:"master_id"`
	WorkloadsID string `json:"workloads_id"`
	Skipped     bool   `json:"skipped"`
}

func NewHandler(directory *services.Directory, store *services.OrgStore, lock bootstrapLock) *Handler {
	return &Handler{
		directory: directory,
		store:     store,
		lock:      lock,
	}
}

// HandleBootstrap seeds the org unit ids every downstream stage reads.
// Writes land on fixed well-known keys with overwrite semantics, so
// repeated invocations converge instead of accumulating entries; the lock
// keeps two concurrent invocations from interleaving OU creation.
func (h *Handler) HandleBootstrap(ctx context.Context) (*Output, error) {
	logger := zerolog.Ctx(ctx)

	holderID := ksuid.New().String()
	acquired, err := h.lock.Acquire(ctx, holderID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire bootstrap lock: %w", err)
	}
	if !acquired {
		logger.Info().Msg("Bootstrap already in progress, skipping")
		return &Output{Skipped: true}, nil
	}
	defer func() {
		if err := h.lock.Release(ctx, holderID); err != nil {
			logger.Warn().Err(err).Msg("Failed to release bootstrap lock")
		}
	}()

	masterID, err := h.directory.RootID(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.store.Put(ctx, services.MasterIDKey, masterID, "Master Org Id"); err != nil {
		return nil, err
	}

	workloadsID, err := h.directory.CreateOrganizationalUnit(ctx, masterID, workloadsOUName)
	if err != nil {
		return nil, err
	}

	if err := h.store.Put(ctx, services.WorkloadsIDKey, workloadsID, "Workloads Ou Id"); err != nil {
		return nil, err
	}

	logger.Info().
		Str("master_id", masterID).
		Str("workloads_id", workloadsID).
		Msg("Org structure bootstrapped")

	return &Output{
		MasterID:    masterID,
		WorkloadsID: workloadsID,
	}, nil
}

func newContainer(env string) (di.Container, error) {
	return di.New(env,
		di.WithProviders(
			di.ProvideLogger,
			di.ProvideBootstrapDAO,
		),
	)
}

func lambdaAction(c *cli.Context) error {
	container, err := newContainer(c.String("env"))
	if err != nil {
		return err
	}

	var (
		logger    = di.MustGet[zerolog.Logger](container).With().Str("lambda", "bootstrap-org").Logger()
		directory = di.MustGet[*services.Directory](container)
		store     = di.MustGet[*services.OrgStore](container)
		lock      = di.MustGet[*bootstrapdao.DAO](container)
	)

	handler := NewHandler(directory, store, lock)

	wrappedHandler := func(ctx context.Context) (*Output, error) {
		ctx = logger.WithContext(ctx)
		return handler.HandleBootstrap(ctx)
	}
	lambda.Start(wrappedHandler)
	return nil
}

func runAction(c *cli.Context) error {
	container, err := newContainer(c.String("env"))
	if err != nil {
		return err
	}

	var (
		logger    = di.MustGet[zerolog.Logger](container).With().Str("lambda", "bootstrap-org").Logger()
		directory = di.MustGet[*services.Directory](container)
		store     = di.MustGet[*services.OrgStore](container)
		lock      = di.MustGet[*bootstrapdao.DAO](container)
	)

	handler := NewHandler(directory, store, lock)

	ctx := logger.WithContext(context.Background())
	result, err := handler.HandleBootstrap(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func main() {
	app := &cli.App{
		Name:           "bootstrap-org",
		Usage:          "Seed the organizational-unit hierarchy and shared ids",
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
				},
				Action: runAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
