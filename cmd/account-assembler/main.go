package main

import (
	"context"
	"os"

	"github.com/savaki/account-assembler/cmd/account-assembler/commands"
	"github.com/savaki/account-assembler/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "account-assembler",
		Usage: "Organizational account provisioning toolkit",
		Description: `Operator tooling for the account assembly workflow.

This tool provides commands for:
  - Seeding the provisioning email for each logical account
  - Storing the notification webhook URL
  - Uploading the baseline CloudFormation template`,
		Commands: []*cli.Command{
			commands.SeedEmailsCommand(&logger),
			commands.SetWebhookCommand(&logger),
			commands.UploadTemplateCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
