package assemblydao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
)

// PK represents a DynamoDB partition key: the logical account name
// Example: Prod
type PK string

// NewPK creates a partition key from an account name
func NewPK(accountName string) PK {
	return PK(accountName)
}

// String returns the string representation of the partition key
func (pk PK) String() string {
	return string(pk)
}

// ID represents an assembly run id in format {accountName}:{ksuid}
// Example: Prod:2HFj3kLmNoPqRsTuVwXy
type ID string

func (id ID) String() string {
	return string(id)
}

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// ParseID parses an assembly run ID into its pk and sk components
func ParseID(id ID) (pk PK, sk string, err error) {
	parts := strings.Split(string(id), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid assembly ID format: %s, expected {accountName}:{ksuid}", id)
	}
	return PK(parts[0]), parts[1], nil
}

// Status represents the current state of a provisioning run
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// Record tracks a single account provisioning run. StackSetName is
// recorded so repeated runs can find and clean up orphaned baseline
// StackSets rather than accumulating them.
type Record struct {
	PK           PK      `ddb:"hash" dynamodbav:"pk"`  // account name
	SK           string  `ddb:"range" dynamodbav:"sk"` // run KSUID
	AccountName  string  `dynamodbav:"account_name,omitempty"`
	Email        string  `dynamodbav:"email,omitempty"`
	RequestID    string  `dynamodbav:"request_id,omitempty"` // CreateAccount async request id
	AccountID    string  `dynamodbav:"account_id,omitempty"`
	Status       Status  `dynamodbav:"status,omitempty"`
	StackSetName string  `dynamodbav:"stack_set_name,omitempty"`
	ErrorMsg     *string `dynamodbav:"error_msg,omitempty"`
	CreatedAt    int64   `dynamodbav:"created_at,omitempty"`
	UpdatedAt    int64   `dynamodbav:"updated_at,omitempty"`
	FinishedAt   *int64  `dynamodbav:"finished_at,omitempty"`
}

// GetID returns the full run id
func (r *Record) GetID() ID {
	return NewID(r.PK, r.SK)
}

// CreateInput contains the fields needed to create a new run record
type CreateInput struct {
	AccountName string // Logical account name (Dev, Staging, Prod)
	Email       string // Provisioning email
	SK          string // Run KSUID
	RequestID   string // CreateAccount request id
}

// UpdateInput contains the fields that can be updated on a run record
type UpdateInput struct {
	PK           PK      // Account name
	SK           string  // Run KSUID
	Status       *Status // New status
	AccountID    *string // Account id, once the lifecycle event reports it
	StackSetName *string // Baseline StackSet name, once created
	ErrorMsg     *string // Error message (optional)
}

// TableName derives the assemblies table name for an environment
func TableName(env string) string {
	return fmt.Sprintf("%s-account-assemblies", env)
}

// DAO provides data access operations for assembly run records
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create creates a new run record with initial status PENDING
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	now := time.Now().Unix()

	record := Record{
		PK:          NewPK(input.AccountName),
		SK:          input.SK,
		AccountName: input.AccountName,
		Email:       input.Email,
		RequestID:   input.RequestID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := d.table.Put(&record).RunWithContext(ctx); err != nil {
		return Record{}, fmt.Errorf("failed to create assembly record: %w", err)
	}

	return record, nil
}

// Find retrieves a run record by ID
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record
	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("assembly record not found: %s", id)
		}
		return Record{}, fmt.Errorf("failed to find assembly record: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("assembly record not found: %s", id)
	}

	return record, nil
}

// UpdateStatus updates a run record's status and any optional fields
func (d *DAO) UpdateStatus(ctx context.Context, input UpdateInput) error {
	if input.Status == nil {
		return fmt.Errorf("status is required")
	}

	now := time.Now().Unix()

	update := d.table.Update(input.PK).
		Range(input.SK).
		Set("#Status = ?", string(*input.Status)).
		Set("#UpdatedAt = ?", now)

	if *input.Status == StatusSuccess || *input.Status == StatusFailed {
		update = update.Set("#FinishedAt = ?", now)
	}
	if input.AccountID != nil {
		update = update.Set("#AccountID = ?", *input.AccountID)
	}
	if input.StackSetName != nil {
		update = update.Set("#StackSetName = ?", *input.StackSetName)
	}
	if input.ErrorMsg != nil {
		update = update.Set("#ErrorMsg = ?", *input.ErrorMsg)
	}

	if err := update.RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to update assembly record: %w", err)
	}
	return nil
}

// Query returns all runs for a given account name
func (d *DAO) Query(ctx context.Context, pk PK) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", pk.String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query assembly records: %w", err)
	}

	return records, nil
}

// Latest returns the most recent run for an account, or nil when the
// account has never been assembled. KSUIDs sort chronologically, so the
// greatest SK wins.
func (d *DAO) Latest(ctx context.Context, accountName string) (*Record, error) {
	records, err := d.Query(ctx, NewPK(accountName))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	latest := records[0]
	for _, record := range records[1:] {
		if record.SK > latest.SK {
			latest = record
		}
	}
	return &latest, nil
}
