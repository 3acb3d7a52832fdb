package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/savaki/account-assembler/internal/errors"
)

// AccountAccessRoleName is the role Organizations provisions in every new
// member account for cross-account administration
const AccountAccessRoleName = "OrganizationAccountAccessRole"

// OrganizationsAPI is the subset of the Organizations client used by the
// directory service
type OrganizationsAPI interface {
	ListRoots(ctx context.Context, params *organizations.ListRootsInput, optFns ...func(*organizations.Options)) (*organizations.ListRootsOutput, error)
	CreateOrganizationalUnit(ctx context.Context, params *organizations.CreateOrganizationalUnitInput, optFns ...func(*organizations.Options)) (*organizations.CreateOrganizationalUnitOutput, error)
	CreateAccount(ctx context.Context, params *organizations.CreateAccountInput, optFns ...func(*organizations.Options)) (*organizations.CreateAccountOutput, error)
	DescribeAccount(ctx context.Context, params *organizations.DescribeAccountInput, optFns ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error)
	ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
	MoveAccount(ctx context.Context, params *organizations.MoveAccountInput, optFns ...func(*organizations.Options)) (*organizations.MoveAccountOutput, error)
}

// AccountRecord describes a member account as known to the directory
type AccountRecord struct {
	ID    string
	Email string
	Name  string
}

// Directory wraps the Organizations API with the handful of account and
// organizational-unit operations the provisioning stages need. All calls
// are thin synchronous pass-throughs except CreateAccount, which is
// fire-and-forget; completion surfaces as a lifecycle event, not here.
type Directory struct {
	client OrganizationsAPI
}

// NewDirectory creates a new directory service
func NewDirectory(client OrganizationsAPI) *Directory {
	return &Directory{client: client}
}

// RootID returns the organization's root id
func (d *Directory) RootID(ctx context.Context) (string, error) {
	result, err := d.client.ListRoots(ctx, &organizations.ListRootsInput{})
	if err != nil {
		return "", fmt.Errorf("failed to list organization roots: %w", err)
	}

	if len(result.Roots) == 0 || result.Roots[0].Id == nil {
		return "", errors.ErrNoOrganizationRoot
	}
	return *result.Roots[0].Id, nil
}

// CreateOrganizationalUnit creates a child OU under parentID and returns
// the new unit's id
func (d *Directory) CreateOrganizationalUnit(ctx context.Context, parentID, name string) (string, error) {
	result, err := d.client.CreateOrganizationalUnit(ctx, &organizations.CreateOrganizationalUnitInput{
		ParentId: aws.String(parentID),
		Name:     aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create organizational unit %s: %w", name, err)
	}

	if result.OrganizationalUnit == nil || result.OrganizationalUnit.Id == nil {
		return "", fmt.Errorf("create organizational unit %s returned no id", name)
	}
	return *result.OrganizationalUnit.Id, nil
}

// CreateAccount requests a new member account and returns the async
// request id. Billing console access for IAM users is denied in new
// accounts.
func (d *Directory) CreateAccount(ctx context.Context, email, name string) (string, error) {
	result, err := d.client.CreateAccount(ctx, &organizations.CreateAccountInput{
		Email:                  aws.String(email),
		AccountName:            aws.String(name),
		RoleName:               aws.String(AccountAccessRoleName),
		IamUserAccessToBilling: types.IAMUserAccessToBillingDeny,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create account %s: %w", name, err)
	}

	if result.CreateAccountStatus == nil || result.CreateAccountStatus.Id == nil {
		return "", fmt.Errorf("create account %s returned no request id", name)
	}
	return *result.CreateAccountStatus.Id, nil
}

// DescribeAccount returns the account record for an account id
func (d *Directory) DescribeAccount(ctx context.Context, accountID string) (AccountRecord, error) {
	result, err := d.client.DescribeAccount(ctx, &organizations.DescribeAccountInput{
		AccountId: aws.String(accountID),
	})
	if err != nil {
		return AccountRecord{}, fmt.Errorf("failed to describe account %s: %w", accountID, err)
	}

	if result.Account == nil {
		return AccountRecord{}, fmt.Errorf("describe account %s returned no account", accountID)
	}

	return AccountRecord{
		ID:    aws.ToString(result.Account.Id),
		Email: aws.ToString(result.Account.Email),
		Name:  aws.ToString(result.Account.Name),
	}, nil
}

// ListAccounts returns every account in the organization
func (d *Directory) ListAccounts(ctx context.Context) ([]AccountRecord, error) {
	var accounts []AccountRecord
	var nextToken *string

	for {
		result, err := d.client.ListAccounts(ctx, &organizations.ListAccountsInput{
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list accounts: %w", err)
		}

		for _, account := range result.Accounts {
			accounts = append(accounts, AccountRecord{
				ID:    aws.ToString(account.Id),
				Email: aws.ToString(account.Email),
				Name:  aws.ToString(account.Name),
			})
		}

		if result.NextToken == nil {
			return accounts, nil
		}
		nextToken = result.NextToken
	}
}

// FindAccountByEmail scans the organization's accounts for an email match
func (d *Directory) FindAccountByEmail(ctx context.Context, email string) (AccountRecord, error) {
	accounts, err := d.ListAccounts(ctx)
	if err != nil {
		return AccountRecord{}, err
	}

	for _, account := range accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return AccountRecord{}, fmt.Errorf("no account found with email %s", email)
}

// MoveAccount moves an account between organizational units
func (d *Directory) MoveAccount(ctx context.Context, accountID, fromID, toID string) error {
	_, err := d.client.MoveAccount(ctx, &organizations.MoveAccountInput{
		AccountId:           aws.String(accountID),
		SourceParentId:      aws.String(fromID),
		DestinationParentId: aws.String(toID),
	})
	if err != nil {
		return fmt.Errorf("failed to move account %s: %w", accountID, err)
	}
	return nil
}
