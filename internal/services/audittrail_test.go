package services

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
)

type fakeCloudTrail struct {
	trails      []types.Trail
	selectors   []types.EventSelector
	updateCalls []*cloudtrail.UpdateTrailInput
	putCalls    []*cloudtrail.PutEventSelectorsInput
}

func (f *fakeCloudTrail) DescribeTrails(_ context.Context, _ *cloudtrail.DescribeTrailsInput, _ ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error) {
	return &cloudtrail.DescribeTrailsOutput{TrailList: f.trails}, nil
}

func (f *fakeCloudTrail) UpdateTrail(_ context.Context, params *cloudtrail.UpdateTrailInput, _ ...func(*cloudtrail.Options)) (*cloudtrail.UpdateTrailOutput, error) {
	f.updateCalls = append(f.updateCalls, params)
	return &cloudtrail.UpdateTrailOutput{}, nil
}

func (f *fakeCloudTrail) GetEventSelectors(_ context.Context, _ *cloudtrail.GetEventSelectorsInput, _ ...func(*cloudtrail.Options)) (*cloudtrail.GetEventSelectorsOutput, error) {
	return &cloudtrail.GetEventSelectorsOutput{EventSelectors: f.selectors}, nil
}

func (f *fakeCloudTrail) PutEventSelectors(_ context.Context, params *cloudtrail.PutEventSelectorsInput, _ ...func(*cloudtrail.Options)) (*cloudtrail.PutEventSelectorsOutput, error) {
	f.putCalls = append(f.putCalls, params)
	return &cloudtrail.PutEventSelectorsOutput{}, nil
}

func TestEnsureOrganizationTrail(t *testing.T) {
	tests := []struct {
		name        string
		orgTrail    bool
		wantUpdates int
	}{
		{
			name:        "already organization-wide",
			orgTrail:    true,
			wantUpdates: 0,
		},
		{
			name:        "needs upgrade",
			orgTrail:    false,
			wantUpdates: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeCloudTrail{
				trails: []types.Trail{
					{Name: aws.String("org-trail"), IsOrganizationTrail: aws.Bool(tt.orgTrail)},
				},
			}
			trail := NewAuditTrail(client)

			name, err := trail.EnsureOrganizationTrail(context.Background())
			if err != nil {
				t.Fatalf("EnsureOrganizationTrail() error = %v", err)
			}
			if name != "org-trail" {
				t.Errorf("trail name = %q, want %q", name, "org-trail")
			}
			if len(client.updateCalls) != tt.wantUpdates {
				t.Errorf("UpdateTrail called %d times, want %d", len(client.updateCalls), tt.wantUpdates)
			}
		})
	}
}

func TestEnsureOrganizationTrailNoTrails(t *testing.T) {
	trail := NewAuditTrail(&fakeCloudTrail{})

	if _, err := trail.EnsureOrganizationTrail(context.Background()); err == nil {
		t.Error("EnsureOrganizationTrail() expected error when no trail exists")
	}
}

func TestAppendDataEventSelectorAccumulates(t *testing.T) {
	existing := types.EventSelector{
		DataResources: []types.DataResource{
			{
				Type:   aws.String("AWS::S3::Object"),
				Values: []string{"arn:aws:s3:::bucket-111111111111/"},
			},
		},
	}
	client := &fakeCloudTrail{selectors: []types.EventSelector{existing}}
	trail := NewAuditTrail(client)

	err := trail.AppendDataEventSelector(context.Background(), "org-trail", "arn:aws:s3:::bucket-222222222222/")
	if err != nil {
		t.Fatalf("AppendDataEventSelector() error = %v", err)
	}

	if len(client.putCalls) != 1 {
		t.Fatalf("PutEventSelectors called %d times, want 1", len(client.putCalls))
	}

	selectors := client.putCalls[0].EventSelectors
	if len(selectors) != 2 {
		t.Fatalf("selector count = %d, want 2 (existing selector must be preserved)", len(selectors))
	}
	if got := selectors[0].DataResources[0].Values[0]; got != "arn:aws:s3:::bucket-111111111111/" {
		t.Errorf("first selector = %q, existing selector was dropped", got)
	}
	if got := selectors[1].DataResources[0].Values[0]; got != "arn:aws:s3:::bucket-222222222222/" {
		t.Errorf("appended selector = %q", got)
	}
}

func TestAccountBucketARN(t *testing.T) {
	got := AccountBucketARN("123456789012")
	want := "arn:aws:s3:::bucket-123456789012/"
	if got != want {
		t.Errorf("AccountBucketARN() = %q, want %q", got, want)
	}
}
