package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/services"
	"github.com/urfave/cli/v2"
)

type seedHandler struct {
	store     *services.OrgStore
	stsClient *sts.Client
}

func newSeedHandler(ctx context.Context, region string) (*seedHandler, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &seedHandler{
		store:     services.NewOrgStore(ssm.NewFromConfig(cfg)),
		stsClient: sts.NewFromConfig(cfg),
	}, nil
}

// SeedEmailsCommand returns the command that seeds provisioning emails
// into the parameter store
func SeedEmailsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "seed-emails",
		Usage: "Seed the provisioning email for each logical account",
		Description: `Writes one parameter per logical account under the emails namespace.

Account creation looks these up by account name, so seeding must run in the
organization's management account; the caller identity is printed first to
make the target account unmistakable.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "email",
				Usage:    "Mapping in the form {accountName}={email}; repeatable",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "AWS region",
				Value: "us-east-1",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := logger.WithContext(c.Context)

			handler, err := newSeedHandler(ctx, c.String("region"))
			if err != nil {
				return err
			}

			identity, err := handler.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
			if err != nil {
				return fmt.Errorf("failed to resolve caller identity: %w", err)
			}
			logger.Info().
				Str("account", aws.ToString(identity.Account)).
				Str("arn", aws.ToString(identity.Arn)).
				Msg("Seeding emails as")

			for _, mapping := range c.StringSlice("email") {
				name, email, ok := strings.Cut(mapping, "=")
				if !ok || name == "" || email == "" {
					return fmt.Errorf("invalid email mapping %q, expected {accountName}={email}", mapping)
				}

				key := services.EmailKey(name)
				description := fmt.Sprintf("Provisioning email for %s", name)
				if err := handler.store.Put(ctx, key, email, description); err != nil {
					return err
				}

				logger.Info().
					Str("account_name", name).
					Str("key", key).
					Msg("Email seeded")
			}

			return nil
		},
	}
}
