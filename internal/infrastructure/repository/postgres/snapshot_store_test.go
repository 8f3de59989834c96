package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

func newStoreWithMock(t *testing.T) (*SnapshotStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SnapshotStore{db: db}, mock, func() { _ = db.Close() }
}

func TestLoadReturnsDomainNotFound(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT payload").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Load(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadDecodesPayload(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	payload, _ := json.Marshal(domain.DocumentSnapshot{
		ContentHash: "abc",
		Chunks:      []string{"one", "two"},
		Embeddings:  [][]float32{{1, 0}, {0, 1}},
		RedFlags:    []domain.RedFlag{{ChunkIndex: 1, Keyword: "waiver", Text: "two"}},
	})
	mock.ExpectQuery("FROM document_cache").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	snapshot, err := store.Load(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snapshot.Chunks) != 2 || len(snapshot.Embeddings) != 2 || snapshot.RedFlags[0].Keyword != "waiver" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestSaveUpsertsByContentHash(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO document_cache").
		WithArgs("abc", "lease.pdf", "application/pdf", 3, 2, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), &domain.DocumentSnapshot{
		ContentHash: "abc",
		FileName:    "lease.pdf",
		MimeType:    "application/pdf",
		PageCount:   3,
		Chunks:      []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveRejectsMissingHash(t *testing.T) {
	store, _, done := newStoreWithMock(t)
	defer done()

	err := store.Save(context.Background(), &domain.DocumentSnapshot{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSaveWrapsDatabaseError(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	errDB := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO document_cache").WillReturnError(errDB)

	err := store.Save(context.Background(), &domain.DocumentSnapshot{ContentHash: "abc"})
	if !errors.Is(err, errDB) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS document_cache").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
