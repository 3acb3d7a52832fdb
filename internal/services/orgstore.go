package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/savaki/account-assembler/internal/errors"
)

// Parameter Store layout. Org unit ids live under fixed, well-known keys
// that are overwritten on update; account emails are keyed by account name.
const (
	OrgIDsPath = "/account-assemble/org-ids"
	EmailsPath = "/account-assemble/emails"

	MasterIDKey    = OrgIDsPath + "/master"
	WorkloadsIDKey = OrgIDsPath + "/workloads"
)

// SSMAPI is the subset of the SSM client used by the org store
type SSMAPI interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// ParameterEntry is a single entry read back from the store
type ParameterEntry struct {
	Path  string
	Value string
	Type  string
}

// OrgUnitIDs holds the cross-invocation identifiers every downstream stage
// reads: the organization root and the Workloads OU
type OrgUnitIDs struct {
	MasterID    string
	WorkloadsID string
}

// OrgStore implements the shared state store over SSM Parameter Store.
// Each Put is independently atomic; there is no transactionality across
// entries, so callers must tolerate partial writes from a failed bootstrap.
type OrgStore struct {
	client SSMAPI
}

// NewOrgStore creates a new SSM-backed org store
func NewOrgStore(client SSMAPI) *OrgStore {
	return &OrgStore{client: client}
}

// Put stores or overwrites a single parameter
func (s *OrgStore) Put(ctx context.Context, name, value, description string) error {
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:        aws.String(name),
		Value:       aws.String(value),
		Description: aws.String(description),
		Type:        types.ParameterTypeString,
		Overwrite:   aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to put parameter %s: %w", name, err)
	}
	return nil
}

// ListByPath returns every parameter under the given path prefix
func (s *OrgStore) ListByPath(ctx context.Context, prefix string, decrypt bool) ([]ParameterEntry, error) {
	var entries []ParameterEntry
	var nextToken *string

	for {
		result, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			Recursive:      aws.Bool(true),
			WithDecryption: aws.Bool(decrypt),
			NextToken:      nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", prefix, err)
		}

		for _, param := range result.Parameters {
			entries = append(entries, ParameterEntry{
				Path:  aws.ToString(param.Name),
				Value: aws.ToString(param.Value),
				Type:  string(param.Type),
			})
		}

		if result.NextToken == nil {
			return entries, nil
		}
		nextToken = result.NextToken
	}
}

// FindByTag returns the value of the single parameter under prefix whose
// path contains tag. Zero matches or more than one match is a caller
// error; picking an arbitrary entry would silently misroute a downstream
// stage, so both cases fail fast.
func (s *OrgStore) FindByTag(ctx context.Context, prefix, tag string, decrypt bool) (string, error) {
	entries, err := s.ListByPath(ctx, prefix, decrypt)
	if err != nil {
		return "", err
	}

	var matches []ParameterEntry
	for _, entry := range entries {
		if strings.Contains(entry.Path, tag) {
			matches = append(matches, entry)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s under %s", errors.ErrParameterNotFound, tag, prefix)
	case 1:
		return matches[0].Value, nil
	default:
		return "", fmt.Errorf("%w: %s under %s (%d matches)", errors.ErrAmbiguousParameter, tag, prefix, len(matches))
	}
}

// OrgUnits resolves the master and workloads ids from their well-known keys
func (s *OrgStore) OrgUnits(ctx context.Context) (OrgUnitIDs, error) {
	entries, err := s.ListByPath(ctx, OrgIDsPath, false)
	if err != nil {
		return OrgUnitIDs{}, err
	}

	var ids OrgUnitIDs
	for _, entry := range entries {
		switch entry.Path {
		case MasterIDKey:
			ids.MasterID = entry.Value
		case WorkloadsIDKey:
			ids.WorkloadsID = entry.Value
		}
	}

	if ids.MasterID == "" {
		return OrgUnitIDs{}, fmt.Errorf("%w: %s", errors.ErrParameterNotFound, MasterIDKey)
	}
	if ids.WorkloadsID == "" {
		return OrgUnitIDs{}, fmt.Errorf("%w: %s", errors.ErrParameterNotFound, WorkloadsIDKey)
	}

	return ids, nil
}

// AccountEmail looks up the provisioning email seeded for an account name
func (s *OrgStore) AccountEmail(ctx context.Context, accountName string) (string, error) {
	return s.FindByTag(ctx, EmailsPath, accountName, false)
}

// EmailKey returns the parameter path for an account's seeded email
func EmailKey(accountName string) string {
	return fmt.Sprintf("%s/%s", EmailsPath, accountName)
}
