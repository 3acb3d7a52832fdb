package commands

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/services"
	"github.com/urfave/cli/v2"
)

func newSecretsService(ctx context.Context, region string) (*services.SecretsManagerService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return services.NewSecretsManagerService(secretsmanager.NewFromConfig(cfg)), nil
}

// SetWebhookCommand returns the command that stores the notification
// webhook URL in Secrets Manager
func SetWebhookCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "set-webhook",
		Usage: "Store the notification webhook URL",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "Webhook URL to store",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "secret-id",
				Usage: "Secrets Manager secret id",
				Value: services.DefaultWebhookSecretID,
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "AWS region",
				Value: "us-east-1",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := logger.WithContext(c.Context)

			webhookURL := c.String("url")
			parsed, err := url.Parse(webhookURL)
			if err != nil || parsed.Scheme != "https" {
				return fmt.Errorf("webhook url must be a valid https URL, got %q", webhookURL)
			}

			secrets, err := newSecretsService(ctx, c.String("region"))
			if err != nil {
				return err
			}

			secretID := c.String("secret-id")
			if err := secrets.SetWebhookURL(ctx, secretID, webhookURL); err != nil {
				return err
			}

			logger.Info().
				Str("secret_id", secretID).
				Msg("Webhook URL stored")
			return nil
		},
	}
}
