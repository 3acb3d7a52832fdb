package bootstrapdao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
)

const (
	bootstrapPK  = "org-bootstrap"
	bootstrapSK  = "LOCK"
	lockTTLHours = 4 // Auto-expire stale locks
)

// Record guards the one-shot org bootstrap against concurrent invocations.
// A single fixed pk/sk pair holds the lock; the holder id ties the lock to
// one invocation so retries by the same holder stay idempotent.
type Record struct {
	PK         string `ddb:"hash" dynamodbav:"pk"`  // always "org-bootstrap"
	SK         string `ddb:"range" dynamodbav:"sk"` // always "LOCK"
	HolderID   string `dynamodbav:"holder_id"`      // KSUID of the holding invocation
	AcquiredAt int64  `dynamodbav:"acquired_at"`    // Unix timestamp
	TTL        int64  `dynamodbav:"ttl"`            // DynamoDB TTL expiry
}

// TableName derives the bootstrap lock table name for an environment
func TableName(env string) string {
	return fmt.Sprintf("%s-bootstrap-locks", env)
}

// DAO provides data access operations for the bootstrap lock
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

// Acquire attempts to take the bootstrap lock for holderID.
// Returns true when acquired or already held by the same holder, false
// when another invocation holds it.
func (d *DAO) Acquire(ctx context.Context, holderID string) (bool, error) {
	existing, err := d.Find(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check existing bootstrap lock: %w", err)
	}

	if existing != nil {
		return existing.HolderID == holderID, nil
	}

	now := time.Now().Unix()
	record := &Record{
		PK:         bootstrapPK,
		SK:         bootstrapSK,
		HolderID:   holderID,
		AcquiredAt: now,
		TTL:        now + (lockTTLHours * 3600),
	}

	if err := d.table.Put(record).RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("failed to create bootstrap lock: %w", err)
	}
	return true, nil
}

// Find returns the current lock record, or nil when no lock is held
func (d *DAO) Find(ctx context.Context) (*Record, error) {
	var record Record

	err := d.table.Get(bootstrapPK).
		Range(bootstrapSK).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bootstrap lock: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return nil, nil
	}

	return &record, nil
}

// Release removes the lock when held by holderID
func (d *DAO) Release(ctx context.Context, holderID string) error {
	existing, err := d.Find(ctx)
	if err != nil {
		return fmt.Errorf("failed to check bootstrap lock: %w", err)
	}

	if existing == nil {
		return nil
	}

	if existing.HolderID != holderID {
		return fmt.Errorf("bootstrap lock not held by %s (held by %s)", holderID, existing.HolderID)
	}

	err = d.table.Delete(bootstrapPK).
		Range(bootstrapSK).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete bootstrap lock: %w", err)
	}
	return nil
}
