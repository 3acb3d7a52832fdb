package stackset

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/rs/zerolog"
	"github.com/savaki/account-assembler/internal/errors"
	"github.com/segmentio/ksuid"
)

const (
	// DeployRegion is the single region baseline stacks are rolled out to
	DeployRegion = "us-east-1"

	baselineNamePrefix  = "account-baseline-"
	baselineDescription = "Baseline for new accounts"

	// DefaultPollInterval is how often the operation status is checked
	DefaultPollInterval = 10 * time.Second

	// DefaultPollDeadline bounds the total wait; a deployment still RUNNING
	// past this point surfaces as ErrDeploymentTimeout
	DefaultPollDeadline = 30 * time.Minute
)

// CloudFormationAPI is the subset of the CloudFormation client used by the
// orchestrator
type CloudFormationAPI interface {
	CreateStackSet(ctx context.Context, params *cloudformation.CreateStackSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackSetOutput, error)
	CreateStackInstances(ctx context.Context, params *cloudformation.CreateStackInstancesInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackInstancesOutput, error)
	DescribeStackSetOperation(ctx context.Context, params *cloudformation.DescribeStackSetOperationInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackSetOperationOutput, error)
}

// Orchestrator creates the baseline StackSet and drives its deployment to
// a terminal state
type Orchestrator struct {
	client       CloudFormationAPI
	templateURL  string
	pollInterval time.Duration
	pollDeadline time.Duration
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithPollInterval overrides the operation poll cadence
func WithPollInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		o.pollInterval = interval
	}
}

// WithPollDeadline overrides the total wait bound
func WithPollDeadline(deadline time.Duration) Option {
	return func(o *Orchestrator) {
		o.pollDeadline = deadline
	}
}

// New creates a new Orchestrator deploying the given template
func New(client CloudFormationAPI, templateURL string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:       client,
		templateURL:  templateURL,
		pollInterval: DefaultPollInterval,
		pollDeadline: DefaultPollDeadline,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateBaselineStackSet creates a service-managed, auto-deploying
// StackSet with a fresh unique name and returns the name. Unique names
// make repeats safe but leave orphans behind on repeated failures; the
// assembly record tracks the name so a failed run's StackSet can be found
// and cleaned up.
func (o *Orchestrator) CreateBaselineStackSet(ctx context.Context) (string, error) {
	logger := zerolog.Ctx(ctx)

	stackSetName := baselineNamePrefix + ksuid.New().String()

	logger.Info().
		Str("stack_set_name", stackSetName).
		Str("template_url", o.templateURL).
		Msg("Calling CreateStackSet API")

	_, err := o.client.CreateStackSet(ctx, &cloudformation.CreateStackSetInput{
		StackSetName: aws.String(stackSetName),
		Description:  aws.String(baselineDescription),
		TemplateURL:  aws.String(o.templateURL),
		Capabilities: []types.Capability{
			types.CapabilityCapabilityNamedIam,
		},
		PermissionModel: types.PermissionModelsServiceManaged,
		AutoDeployment: &types.AutoDeployment{
			Enabled:                      aws.Bool(true),
			RetainStacksOnAccountRemoval: aws.Bool(false),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create StackSet: %w", err)
	}

	return stackSetName, nil
}

// DeployBaseline creates stack instances for every account under the
// given organizational unit and returns the operation id. Zero failure
// tolerance, full concurrency.
func (o *Orchestrator) DeployBaseline(ctx context.Context, stackSetName, ouID string) (string, error) {
	logger := zerolog.Ctx(ctx)

	logger.Info().
		Str("stack_set_name", stackSetName).
		Str("ou_id", ouID).
		Msg("Calling CreateStackInstances API")

	result, err := o.client.CreateStackInstances(ctx, &cloudformation.CreateStackInstancesInput{
		StackSetName: aws.String(stackSetName),
		DeploymentTargets: &types.DeploymentTargets{
			OrganizationalUnitIds: []string{ouID},
		},
		Regions: []string{DeployRegion},
		OperationPreferences: &types.StackSetOperationPreferences{
			FailureTolerancePercentage: aws.Int32(0),
			MaxConcurrentPercentage:    aws.Int32(100),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create stack instances: %w", err)
	}

	return aws.ToString(result.OperationId), nil
}

// WaitForOperation polls the StackSet operation until it reaches a
// terminal state. SUCCEEDED returns nil; FAILED and STOPPED return errors;
// a deadline overrun returns ErrDeploymentTimeout. The wait between polls
// is cancellable via ctx.
func (o *Orchestrator) WaitForOperation(ctx context.Context, stackSetName, operationID string) error {
	logger := zerolog.Ctx(ctx)
	deadline := time.Now().Add(o.pollDeadline)

	for {
		result, err := o.client.DescribeStackSetOperation(ctx, &cloudformation.DescribeStackSetOperationInput{
			StackSetName: aws.String(stackSetName),
			OperationId:  aws.String(operationID),
		})
		if err != nil {
			return fmt.Errorf("failed to describe StackSet operation: %w", err)
		}

		status := result.StackSetOperation.Status

		logger.Info().
			Str("stack_set_name", stackSetName).
			Str("operation_id", operationID).
			Str("status", string(status)).
			Msg("StackSet operation status")

		switch status {
		case types.StackSetOperationStatusSucceeded:
			return nil
		case types.StackSetOperationStatusFailed:
			return fmt.Errorf("%w: operation %s", errors.ErrDeploymentFailed, operationID)
		case types.StackSetOperationStatusStopped:
			return fmt.Errorf("%w: operation %s", errors.ErrDeploymentStopped, operationID)
		}

		// QUEUED, RUNNING, STOPPING: keep polling
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: operation %s still %s after %s",
				errors.ErrDeploymentTimeout, operationID, status, o.pollDeadline)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
}
