package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/errors"
)

// s3ObjectDataResource selects S3 object-level data events
const s3ObjectDataResource = "AWS::S3::Object"

// CloudTrailAPI is the subset of the CloudTrail client used by the audit
// trail service
type CloudTrailAPI interface {
	DescribeTrails(ctx context.Context, params *cloudtrail.DescribeTrailsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error)
	UpdateTrail(ctx context.Context, params *cloudtrail.UpdateTrailInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.UpdateTrailOutput, error)
	GetEventSelectors(ctx context.Context, params *cloudtrail.GetEventSelectorsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.GetEventSelectorsOutput, error)
	PutEventSelectors(ctx context.Context, params *cloudtrail.PutEventSelectorsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.PutEventSelectorsOutput, error)
}

// AuditTrail manages the organization's CloudTrail trail: upgrading it to
// organization-wide coverage and extending its data-event selectors one
// account at a time.
type AuditTrail struct {
	client CloudTrailAPI
}

// NewAuditTrail creates a new audit trail service
func NewAuditTrail(client CloudTrailAPI) *AuditTrail {
	return &AuditTrail{client: client}
}

// EnsureOrganizationTrail makes sure the first configured trail covers the
// whole organization and returns its name. A no-op when the trail is
// already organization-wide.
func (a *AuditTrail) EnsureOrganizationTrail(ctx context.Context) (string, error) {
	logger := zerolog.Ctx(ctx)

	result, err := a.client.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{
		IncludeShadowTrails: aws.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe trails: %w", err)
	}

	if len(result.TrailList) == 0 {
		return "", errors.ErrNoTrailConfigured
	}

	trail := result.TrailList[0]
	trailName := aws.ToString(trail.Name)

	if aws.ToBool(trail.IsOrganizationTrail) {
		logger.Info().
			Str("trail_name", trailName).
			Msg("Trail is already organization-wide")
		return trailName, nil
	}

	logger.Info().
		Str("trail_name", trailName).
		Msg("Upgrading trail to organization-wide")

	_, err = a.client.UpdateTrail(ctx, &cloudtrail.UpdateTrailInput{
		Name:                aws.String(trailName),
		IsOrganizationTrail: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to update trail %s: %w", trailName, err)
	}

	return trailName, nil
}

// AppendDataEventSelector adds an S3 object data-event selector for the
// given bucket ARN to the trail's existing selectors. Existing selectors
// are preserved; PutEventSelectors replaces the whole set, so the current
// set is read back first.
func (a *AuditTrail) AppendDataEventSelector(ctx context.Context, trailName, bucketARN string) error {
	logger := zerolog.Ctx(ctx)

	current, err := a.client.GetEventSelectors(ctx, &cloudtrail.GetEventSelectorsInput{
		TrailName: aws.String(trailName),
	})
	if err != nil {
		return fmt.Errorf("failed to get event selectors for %s: %w", trailName, err)
	}

	selectors := append(current.EventSelectors, types.EventSelector{
		DataResources: []types.DataResource{
			{
				Type:   aws.String(s3ObjectDataResource),
				Values: []string{bucketARN},
			},
		},
	})

	logger.Info().
		Str("trail_name", trailName).
		Str("bucket_arn", bucketARN).
		Int("selector_count", len(selectors)).
		Msg("Appending data event selector")

	_, err = a.client.PutEventSelectors(ctx, &cloudtrail.PutEventSelectorsInput{
		TrailName:      aws.String(trailName),
		EventSelectors: selectors,
	})
	if err != nil {
		return fmt.Errorf("failed to put event selectors for %s: %w", trailName, err)
	}
	return nil
}

// AccountBucketARN derives the per-account audit bucket resource
func AccountBucketARN(accountID string) string {
	return fmt.Sprintf("arn:aws:s3:::bucket-%s/", accountID)
}
