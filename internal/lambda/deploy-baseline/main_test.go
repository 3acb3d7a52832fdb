package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/savaki/account-assembler/internal/dao/assemblydao"
	"github.com/savaki/account-assembler/internal/services"
	"github.com/stretchr/testify/assert"
)

type fakeSSM struct {
	params map[string]string
}

func (f *fakeSSM) PutParameter(_ context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.params[aws.ToString(params.Name)] = aws.ToString(params.Value)
	return &ssm.PutParameterOutput{}, nil
}

func (f *fakeSSM) GetParametersByPath(_ context.Context, _ *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	var out ssm.GetParametersByPathOutput
	for name, value := range f.params {
		out.Parameters = append(out.Parameters, ssmtypes.Parameter{
			Name:  aws.String(name),
			Value: aws.String(value),
			Type:  ssmtypes.ParameterTypeString,
		})
	}
	return &out, nil
}

type fakeDeployer struct {
	createErr   error
	deployErr   error
	waitErr     error
	createCalls int
	deployCalls []string // OU ids
	waitCalls   int
}

func (f *fakeDeployer) CreateBaselineStackSet(_ context.Context) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "account-baseline-test", nil
}

func (f *fakeDeployer) DeployBaseline(_ context.Context, _, ouID string) (string, error) {
	f.deployCalls = append(f.deployCalls, ouID)
	if f.deployErr != nil {
		return "", f.deployErr
	}
	return "op-1", nil
}

func (f *fakeDeployer) WaitForOperation(_ context.Context, _, _ string) error {
	f.waitCalls++
	return f.waitErr
}

type fakePublisher struct {
	events []services.StageStatus
}

func (f *fakePublisher) PublishStageEvent(_ context.Context, _ string, status services.StageStatus) error {
	f.events = append(f.events, status)
	return nil
}

type fakeAssembly struct {
	latest  *assemblydao.Record
	updates []assemblydao.UpdateInput
}

func (f *fakeAssembly) Latest(_ context.Context, _ string) (*assemblydao.Record, error) {
	return f.latest, nil
}

func (f *fakeAssembly) UpdateStatus(_ context.Context, input assemblydao.UpdateInput) error {
	f.updates = append(f.updates, input)
	return nil
}

func newTestHandler(deployer *fakeDeployer, publisher *fakePublisher, assembly *fakeAssembly) *Handler {
	store := services.NewOrgStore(&fakeSSM{
		params: map[string]string{
			services.MasterIDKey:    "r-master",
			services.WorkloadsIDKey: "ou-workloads",
		},
	})
	return NewHandler(store, deployer, publisher, assembly)
}

func TestHandleDeployBaseline(t *testing.T) {
	deployer := &fakeDeployer{}
	publisher := &fakePublisher{}
	assembly := &fakeAssembly{
		latest: &assemblydao.Record{PK: "Prod", SK: "run-1"},
	}
	handler := newTestHandler(deployer, publisher, assembly)

	output, err := handler.HandleDeployBaseline(context.Background(), &Input{AccountName: "Prod"})
	assert.NoError(t, err)
	assert.False(t, output.Skipped)
	assert.Equal(t, "account-baseline-test", output.StackSetName)
	assert.Equal(t, "op-1", output.OperationID)

	assert.Equal(t, []string{"ou-workloads"}, deployer.deployCalls)
	assert.Equal(t, 1, deployer.waitCalls)

	// exactly one completion event, and only after success
	assert.Equal(t, []services.StageStatus{services.StageSucceeded}, publisher.events)

	// run record gets the StackSet name, then the terminal status
	if assert.Len(t, assembly.updates, 2) {
		assert.Equal(t, "account-baseline-test", aws.ToString(assembly.updates[0].StackSetName))
		assert.Equal(t, assemblydao.StatusInProgress, *assembly.updates[0].Status)
		assert.Equal(t, assemblydao.StatusSuccess, *assembly.updates[1].Status)
	}
}

func TestHandleDeployBaselineUpstreamError(t *testing.T) {
	tests := []struct {
		name  string
		input Input
	}{
		{
			name:  "structured error",
			input: Input{Error: json.RawMessage(`{"Cause":"create failed"}`)},
		},
		{
			name:  "error message",
			input: Input{ErrorMessage: "create failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deployer := &fakeDeployer{}
			publisher := &fakePublisher{}
			handler := newTestHandler(deployer, publisher, &fakeAssembly{})

			output, err := handler.HandleDeployBaseline(context.Background(), &tt.input)
			assert.NoError(t, err)
			assert.True(t, output.Skipped)
			assert.Zero(t, deployer.createCalls)
			assert.Empty(t, deployer.deployCalls)
			assert.Empty(t, publisher.events)
		})
	}
}

func TestHandleDeployBaselineWaitFails(t *testing.T) {
	waitErr := errors.New("operation failed")
	deployer := &fakeDeployer{waitErr: waitErr}
	publisher := &fakePublisher{}
	assembly := &fakeAssembly{
		latest: &assemblydao.Record{PK: "Prod", SK: "run-1"},
	}
	handler := newTestHandler(deployer, publisher, assembly)

	_, err := handler.HandleDeployBaseline(context.Background(), &Input{AccountName: "Prod"})
	assert.ErrorIs(t, err, waitErr)

	// no completion event on a failed rollout
	assert.Empty(t, publisher.events)

	// run record ends FAILED with the cause attached
	if assert.Len(t, assembly.updates, 2) {
		last := assembly.updates[1]
		assert.Equal(t, assemblydao.StatusFailed, *last.Status)
		assert.Equal(t, "operation failed", aws.ToString(last.ErrorMsg))
	}
}

func TestHandleDeployBaselineCreateFails(t *testing.T) {
	createErr := errors.New("limit exceeded")
	deployer := &fakeDeployer{createErr: createErr}
	publisher := &fakePublisher{}
	handler := newTestHandler(deployer, publisher, &fakeAssembly{})

	_, err := handler.HandleDeployBaseline(context.Background(), &Input{AccountName: "Prod"})
	assert.ErrorIs(t, err, createErr)
	assert.Empty(t, deployer.deployCalls)
	assert.Empty(t, publisher.events)
}

func TestHandleDeployBaselineDeployFails(t *testing.T) {
	deployErr := errors.New("instances rejected")
	deployer := &fakeDeployer{deployErr: deployErr}
	publisher := &fakePublisher{}
	assembly := &fakeAssembly{
		latest: &assemblydao.Record{PK: "Prod", SK: "run-1"},
	}
	handler := newTestHandler(deployer, publisher, assembly)

	_, err := handler.HandleDeployBaseline(context.Background(), &Input{AccountName: "Prod"})
	assert.ErrorIs(t, err, deployErr)
	assert.Zero(t, deployer.waitCalls)
	assert.Empty(t, publisher.events)
}
