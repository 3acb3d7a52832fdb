package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/di"
	"github.com/savaki/account-assembler/internal/services"
	"github.com/urfave/cli/v2"
)

// ServiceName identifies this stage on the event bus
const ServiceName = "assembler-producer"

const physicalResourceID = "assembler-producer"

// stagePublisher emits workflow-stage-completion events
type stagePublisher interface {
	PublishStageEvent(ctx context.Context, service string, status services.StageStatus) error
}

type Handler struct {
	publisher stagePublisher
}

func NewHandler(publisher stagePublisher) *Handler {
	return &Handler{publisher: publisher}
}

// HandleCustomResource announces workflow setup on the event bus. Only
// stack creation publishes; updates and deletes are no-ops so the custom
// resource never blocks a stack teardown.
func (h *Handler) HandleCustomResource(ctx context.Context, event cfn.Event) (string, map[string]interface{}, error) {
	logger := zerolog.Ctx(ctx)

	if event.RequestType != cfn.RequestCreate {
		logger.Info().
			Str("request_type", string(event.RequestType)).
			Msg("Non-create request, nothing to announce")
		return physicalResourceID, nil, nil
	}

	if err := h.publisher.PublishStageEvent(ctx, ServiceName, services.StageSucceeded); err != nil {
		return physicalResourceID, nil, err
	}

	logger.Info().Msg("Workflow setup announced")
	return physicalResourceID, nil, nil
}

func lambdaAction(c *cli.Context) error {
	container, err := di.New(c.String("env"),
		di.WithProviders(di.ProvideLogger),
	)
	if err != nil {
		return err
	}

	var (
		logger    = di.MustGet[zerolog.Logger](container).With().Str("lambda", "producer").Logger()
		publisher = di.MustGet[*services.EventPublisher](container)
	)

	handler := NewHandler(publisher)

	wrappedHandler := func(ctx context.Context, event cfn.Event) (string, map[string]interface{}, error) {
		ctx = logger.WithContext(ctx)
		return handler.HandleCustomResource(ctx, event)
	}
	lambda.Start(cfn.LambdaWrap(wrappedHandler))
	return nil
}

func runAction(c *cli.Context) error {
	container, err := di.New(c.String("env"),
		di.WithProviders(di.ProvideLogger),
	)
	if err != nil {
		return err
	}

	var (
		logger    = di.MustGet[zerolog.Logger](container).With().Str("lambda", "producer").Logger()
		publisher = di.MustGet[*services.EventPublisher](container)
	)

	ctx := logger.WithContext(context.Background())
	return publisher.PublishStageEvent(ctx, ServiceName, services.StageSucceeded)
}

func main() {
	app := &cli.App{
		Name:           "producer",
		Usage:          "Announce workflow setup as a CloudFormation custom resource",
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
				Usage: "Publish the setup event directly",
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
