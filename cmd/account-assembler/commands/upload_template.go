package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func newS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// validateTemplate checks that the file parses as YAML and carries a
// Resources section; a template without resources would deploy nothing
func validateTemplate(content []byte) error {
	var template map[string]any
	if err := yaml.Unmarshal(content, &template); err != nil {
		return fmt.Errorf("template is not valid YAML: %w", err)
	}

	if _, ok := template["Resources"]; !ok {
		return fmt.Errorf("template has no Resources section")
	}
	return nil
}

// UploadTemplateCommand returns the command that uploads the baseline
// CloudFormation template the deploy stage rolls out
func UploadTemplateCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "upload-template",
		Usage: "Validate and upload the account baseline template",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "Path to the baseline template",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "bucket",
				Usage:    "S3 bucket to upload to",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "S3 object key",
				Value: "accountAssembleBase.yml",
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "AWS region",
				Value: "us-east-1",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := logger.WithContext(c.Context)

			content, err := os.ReadFile(c.String("file"))
			if err != nil {
				return fmt.Errorf("failed to read template: %w", err)
			}

			if err := validateTemplate(content); err != nil {
				return err
			}

			client, err := newS3Client(ctx, c.String("region"))
			if err != nil {
				return err
			}

			bucket := c.String("bucket")
			key := c.String("key")
			_, err = client.PutObject(ctx, &s3.PutObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
				Body:   bytes.NewReader(content),
			})
			if err != nil {
				return fmt.Errorf("failed to upload template: %w", err)
			}

			logger.Info().
				Str("template_url", fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)).
				Msg("Baseline template uploaded")
			return nil
		},
	}
}
