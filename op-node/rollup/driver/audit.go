package driver

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ValidationAuditRecord is the Postgres row persisted for each
// ValidationResult (SPEC_FULL.md §4.12). It is intentionally flat: this
// table only ever gets read via ad-hoc operator SQL, never queried back
// into the process.
type ValidationAuditRecord struct {
	ID uint `gorm:"primaryKey"`

	// RunID tags every record written by one daemon process lifetime, so an
	// operator grepping validation_audit_log can isolate the rows a single
	// restart produced without relying on wall-clock bucketing.
	RunID string `gorm:"index"`

	L1BlockNumber uint64 `gorm:"index"`
	CreatedAt     time.Time

	Successful     bool
	APIUnavailable bool

	ExpectedCreations int
	ActualCreations   int
	ExpectedTransfers int
	ActualTransfers   int
	StorageChecks     int

	Errors string
}

func (ValidationAuditRecord) TableName() string { return "validation_audit_log" }

// AuditLog writes ValidationResults to Postgres for operator audit/history.
// A write failure is logged and swallowed: the validator's pass/fail
// verdict for the current tick never depends on the audit log being up.
type AuditLog struct {
	log   log.Logger
	db    *gorm.DB
	runID string
}

// OpenAuditLog dials Postgres via dsn and runs the one AutoMigrate needed
// for ValidationAuditRecord.
func OpenAuditLog(log log.Logger, dsn string) (*AuditLog, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ValidationAuditRecord{}); err != nil {
		return nil, err
	}
	return &AuditLog{log: log, db: db, runID: uuid.NewString()}, nil
}

// newAuditRecord maps a ValidationResult onto the flat row shape, stamping
// it with the owning run's id. Split out from Record so the mapping can be
// exercised without a live Postgres connection.
func newAuditRecord(runID string, result ValidationResult) ValidationAuditRecord {
	return ValidationAuditRecord{
		RunID:             runID,
		L1BlockNumber:     result.L1BlockNumber,
		CreatedAt:         time.Now(),
		Successful:        result.Successful,
		APIUnavailable:    result.APIUnavailable,
		ExpectedCreations: result.ExpectedCreations,
		ActualCreations:   result.ActualCreations,
		ExpectedTransfers: result.ExpectedTransfers,
		ActualTransfers:   result.ActualTransfers,
		StorageChecks:     result.StorageChecks,
		Errors:            strings.Join(result.Errors, "; "),
	}
}

// Record persists one ValidationResult. Errors are logged, not returned:
// callers should not let audit-log availability affect validation outcomes.
func (a *AuditLog) Record(ctx context.Context, result ValidationResult) {
	row := newAuditRecord(a.runID, result)
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		a.log.Warn("failed to write validation audit record", "l1_block", result.L1BlockNumber, "err", err)
	}
}

// DiffValidationResults renders a human-readable diff between two
// ValidationResults, e.g. comparing a re-validation run after an operator
// fix against the original failing result.
func DiffValidationResults(a, b ValidationResult) string {
	return cmp.Diff(a, b)
}

func (a *AuditLog) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
