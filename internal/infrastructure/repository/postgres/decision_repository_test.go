package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DecisionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DecisionRepository{db: db}, mock, func() { _ = db.Close() }
}

func sampleRecord() *domain.DecisionRecord {
	return &domain.DecisionRecord{
		InvoiceID:           12,
		ContentHash:         "abc",
		ProcessingTimestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:              domain.StatusCompleted,
		Metadata:            domain.DocumentMetadata{Type: domain.DocumentTypeEmail, RiskScore: 0.12},
		Approval:            domain.ApprovalResult{Decision: domain.DecisionSupervisorReview},
		Audit:               domain.AuditTrail{PolicyVersion: "2.0"},
	}
}

func TestSaveUpsertsDecision(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	record := sampleRecord()
	mock.ExpectExec("INSERT INTO invoice_decisions").
		WithArgs(12, "abc", "email", "supervisor_review", 0.12, "completed", "2.0", sqlmock.AnyArg(), record.ProcessingTimestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveFailureRecordStoresFailedDecision(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	record := sampleRecord()
	record.Status = domain.StatusFailed
	record.Approval = domain.ApprovalResult{}
	mock.ExpectExec("INSERT INTO invoice_decisions").
		WithArgs(12, "abc", "email", "failed", 0.12, "failed", "2.0", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveWrapsDriverError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	driverErr := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO invoice_decisions").WillReturnError(driverErr)

	err := repo.Save(context.Background(), sampleRecord())
	if !errors.Is(err, driverErr) {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestSaveRejectsNilRecord(t *testing.T) {
	repo, _, done := newRepoWithMock(t)
	defer done()

	if err := repo.Save(context.Background(), nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(2026031501)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS invoice_decisions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
