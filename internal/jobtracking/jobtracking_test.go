package jobtracking

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/asiafilings/filing-etl-worker/internal/logging"
	"github.com/asiafilings/filing-etl-worker/internal/pagemodel"
)

func newTestClient(t *testing.T) (*Client, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	c := &Client{db: db, log: logging.NewLogger("test")}
	return c, mock, func() { db.Close() }
}

func TestRecordStartDefaultsUnknownExchange(t *testing.T) {
	c, mock, cleanup := newTestClient(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO etl_jobs").
		WithArgs("job-1", "unknown", "manifest.jsonl", 0, 100).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if ok := c.RecordStart("job-1", "", "manifest.jsonl", 0, 100); !ok {
		t.Errorf("RecordStart returned false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordCompleteTruncatesErrorMessage(t *testing.T) {
	c, mock, cleanup := newTestClient(t)
	defer cleanup()

	longMsg := make([]byte, 1500)
	for i := range longMsg {
		longMsg[i] = 'e'
	}

	stats := pagemodel.JobStats{FilesProcessed: 5, FilesFailed: 2, PagesExtracted: 40}
	mock.ExpectExec("UPDATE etl_jobs SET").
		WithArgs("job-1", "FAILED", 5, 2, 40, string(longMsg[:1000])).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if ok := c.RecordComplete("job-1", stats, "FAILED", string(longMsg)); !ok {
		t.Errorf("RecordComplete returned false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordFileErrorTruncatesErrorMessage(t *testing.T) {
	c, mock, cleanup := newTestClient(t)
	defer cleanup()

	longMsg := make([]byte, 1200)
	for i := range longMsg {
		longMsg[i] = 'f'
	}

	mock.ExpectExec("INSERT INTO etl_file_errors").
		WithArgs("job-1", "s3/key.pdf", "DOWNLOAD_FAILED", string(longMsg[:1000])).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if ok := c.RecordFileError("job-1", "s3/key.pdf", "DOWNLOAD_FAILED", string(longMsg)); !ok {
		t.Errorf("RecordFileError returned false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordFileErrorReturnsFalseOnDBError(t *testing.T) {
	c, mock, cleanup := newTestClient(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO etl_file_errors").WillReturnError(fakeDBError{})

	if ok := c.RecordFileError("job-1", "s3/key.pdf", "DOWNLOAD_FAILED", "boom"); ok {
		t.Errorf("expected false on db error")
	}
}

type fakeDBError struct{}

func (fakeDBError) Error() string { return "simulated db error" }
