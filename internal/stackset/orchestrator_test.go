package stackset

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/savaki/account-assembler/internal/errors"
)

type fakeCloudFormation struct {
	createdStackSets []*cloudformation.CreateStackSetInput
	createdInstances []*cloudformation.CreateStackInstancesInput
	statuses         []types.StackSetOperationStatus
	describeCalls    int
}

func (f *fakeCloudFormation) CreateStackSet(_ context.Context, params *cloudformation.CreateStackSetInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackSetOutput, error) {
	f.createdStackSets = append(f.createdStackSets, params)
	return &cloudformation.CreateStackSetOutput{StackSetId: aws.String("ss-id")}, nil
}

func (f *fakeCloudFormation) CreateStackInstances(_ context.Context, params *cloudformation.CreateStackInstancesInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackInstancesOutput, error) {
	f.createdInstances = append(f.createdInstances, params)
	return &cloudformation.CreateStackInstancesOutput{OperationId: aws.String("op-1")}, nil
}

func (f *fakeCloudFormation) DescribeStackSetOperation(_ context.Context, _ *cloudformation.DescribeStackSetOperationInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStackSetOperationOutput, error) {
	status := f.statuses[f.describeCalls]
	f.describeCalls++
	return &cloudformation.DescribeStackSetOperationOutput{
		StackSetOperation: &types.StackSetOperation{Status: status},
	}, nil
}

func TestCreateBaselineStackSet(t *testing.T) {
	client := &fakeCloudFormation{}
	o := New(client, "https://s3.amazonaws.com/templates/baseline.yml")

	name, err := o.CreateBaselineStackSet(context.Background())
	if err != nil {
		t.Fatalf("CreateBaselineStackSet() error = %v", err)
	}
	if !strings.HasPrefix(name, "account-baseline-") {
		t.Errorf("stack set name = %q, want account-baseline- prefix", name)
	}

	if len(client.createdStackSets) != 1 {
		t.Fatalf("CreateStackSet called %d times, want 1", len(client.createdStackSets))
	}
	input := client.createdStackSets[0]
	if got := aws.ToString(input.StackSetName); got != name {
		t.Errorf("StackSetName = %q, want %q", got, name)
	}
	if got := aws.ToString(input.TemplateURL); got != "https://s3.amazonaws.com/templates/baseline.yml" {
		t.Errorf("TemplateURL = %q", got)
	}
	if input.PermissionModel != types.PermissionModelsServiceManaged {
		t.Errorf("PermissionModel = %v, want SERVICE_MANAGED", input.PermissionModel)
	}
	if input.AutoDeployment == nil || !aws.ToBool(input.AutoDeployment.Enabled) {
		t.Error("AutoDeployment should be enabled")
	}
	if input.AutoDeployment != nil && aws.ToBool(input.AutoDeployment.RetainStacksOnAccountRemoval) {
		t.Error("RetainStacksOnAccountRemoval should be false")
	}
	if len(input.Capabilities) != 1 || input.Capabilities[0] != types.CapabilityCapabilityNamedIam {
		t.Errorf("Capabilities = %v, want CAPABILITY_NAMED_IAM", input.Capabilities)
	}
}

func TestCreateBaselineStackSetUniqueNames(t *testing.T) {
	client := &fakeCloudFormation{}
	o := New(client, "https://example.com/baseline.yml")

	first, err := o.CreateBaselineStackSet(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.CreateBaselineStackSet(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Errorf("expected unique names, got %q twice", first)
	}
}

func TestDeployBaseline(t *testing.T) {
	client := &fakeCloudFormation{}
	o := New(client, "https://example.com/baseline.yml")

	opID, err := o.DeployBaseline(context.Background(), "account-baseline-x", "ou-workloads")
	if err != nil {
		t.Fatalf("DeployBaseline() error = %v", err)
	}
	if opID != "op-1" {
		t.Errorf("operation id = %q, want op-1", opID)
	}

	input := client.createdInstances[0]
	if got := input.DeploymentTargets.OrganizationalUnitIds; len(got) != 1 || got[0] != "ou-workloads" {
		t.Errorf("OrganizationalUnitIds = %v", got)
	}
	if got := input.Regions; len(got) != 1 || got[0] != DeployRegion {
		t.Errorf("Regions = %v, want [%s]", got, DeployRegion)
	}
	prefs := input.OperationPreferences
	if got := aws.ToInt32(prefs.FailureTolerancePercentage); got != 0 {
		t.Errorf("FailureTolerancePercentage = %d, want 0", got)
	}
	if got := aws.ToInt32(prefs.MaxConcurrentPercentage); got != 100 {
		t.Errorf("MaxConcurrentPercentage = %d, want 100", got)
	}
}

func TestWaitForOperation(t *testing.T) {
	tests := []struct {
		name          string
		statuses      []types.StackSetOperationStatus
		wantErr       error
		wantDescribes int
	}{
		{
			name: "running then succeeded",
			statuses: []types.StackSetOperationStatus{
				types.StackSetOperationStatusRunning,
				types.StackSetOperationStatusSucceeded,
			},
			wantErr:       nil,
			wantDescribes: 2,
		},
		{
			name: "immediate success",
			statuses: []types.StackSetOperationStatus{
				types.StackSetOperationStatusSucceeded,
			},
			wantErr:       nil,
			wantDescribes: 1,
		},
		{
			name: "failed stops polling",
			statuses: []types.StackSetOperationStatus{
				types.StackSetOperationStatusFailed,
			},
			wantErr:       errors.ErrDeploymentFailed,
			wantDescribes: 1,
		},
		{
			name: "stopped stops polling",
			statuses: []types.StackSetOperationStatus{
				types.StackSetOperationStatusStopped,
			},
			wantErr:       errors.ErrDeploymentStopped,
			wantDescribes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeCloudFormation{statuses: tt.statuses}
			o := New(client, "https://example.com/baseline.yml", WithPollInterval(0))

			err := o.WaitForOperation(context.Background(), "account-baseline-x", "op-1")
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("WaitForOperation() error = %v", err)
				}
			} else if !stderrors.Is(err, tt.wantErr) {
				t.Fatalf("WaitForOperation() error = %v, want %v", err, tt.wantErr)
			}
			if client.describeCalls != tt.wantDescribes {
				t.Errorf("DescribeStackSetOperation called %d times, want %d", client.describeCalls, tt.wantDescribes)
			}
		})
	}
}

func TestWaitForOperationDeadline(t *testing.T) {
	client := &fakeCloudFormation{
		statuses: []types.StackSetOperationStatus{
			types.StackSetOperationStatusRunning,
		},
	}
	o := New(client, "https://example.com/baseline.yml",
		WithPollInterval(0),
		WithPollDeadline(-1), // already expired
	)

	err := o.WaitForOperation(context.Background(), "account-baseline-x", "op-1")
	if !stderrors.Is(err, errors.ErrDeploymentTimeout) {
		t.Fatalf("WaitForOperation() error = %v, want ErrDeploymentTimeout", err)
	}
	if client.describeCalls != 1 {
		t.Errorf("DescribeStackSetOperation called %d times, want 1", client.describeCalls)
	}
}

func TestWaitForOperationCancelled(t *testing.T) {
	client := &fakeCloudFormation{
		statuses: []types.StackSetOperationStatus{
			types.StackSetOperationStatusRunning,
			types.StackSetOperationStatusRunning,
		},
	}
	o := New(client, "https://example.com/baseline.yml", WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.WaitForOperation(ctx, "account-baseline-x", "op-1")
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("WaitForOperation() error = %v, want context.Canceled", err)
	}
}
