package ledger

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/asiafilings/filing-etl-worker/internal/logging"
)

func TestPartitionKeyFormat(t *testing.T) {
	got := partitionKey("NYSE", "extraction")
	want := "NYSE#extraction"
	if got != want {
		t.Errorf("partitionKey = %q, want %q", got, want)
	}
}

func TestPartitionKeyEmptyJobType(t *testing.T) {
	got := partitionKey("NASDAQ", "")
	want := "NASDAQ#"
	if got != want {
		t.Errorf("partitionKey = %q, want %q", got, want)
	}
}

func TestPagesToArrayLiteralFormatsAsPostgresArray(t *testing.T) {
	got := pagesToArrayLiteral([]int{1, 2, 3})
	want := "{1,2,3}"
	if got != want {
		t.Errorf("pagesToArrayLiteral = %q, want %q", got, want)
	}
}

func TestPagesToArrayLiteralSingleElement(t *testing.T) {
	got := pagesToArrayLiteral([]int{7})
	want := "{7}"
	if got != want {
		t.Errorf("pagesToArrayLiteral = %q, want %q", got, want)
	}
}

func TestPagesToArrayLiteralEmpty(t *testing.T) {
	got := pagesToArrayLiteral(nil)
	want := "{}"
	if got != want {
		t.Errorf("pagesToArrayLiteral = %q, want %q", got, want)
	}
}

func TestBatchCheckCompletedEmptyInputReturnsEmptyMap(t *testing.T) {
	c := &Client{}
	got := c.BatchCheckCompleted("NYSE", nil, "extraction")
	if len(got) != 0 {
		t.Errorf("expected empty map for no source IDs, got %v", got)
	}
}

func TestBatchRecordProcessedEmptyInputIsNoop(t *testing.T) {
	c := &Client{}
	if got := c.BatchRecordProcessed("NYSE", nil, "job-1", "extraction"); got != 0 {
		t.Errorf("expected 0 for empty items, got %d", got)
	}
}

func TestRecordFailedTruncatesLongErrorMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	longMsg := make([]byte, 2000)
	for i := range longMsg {
		longMsg[i] = 'x'
	}

	mock.ExpectExec("INSERT INTO dedup_ledger").
		WithArgs("NYSE#extraction", "doc-1", "s3key", string(longMsg[:1000]), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := &Client{db: db, log: logging.NewLogger("test")}
	ok := c.RecordFailed("NYSE", "doc-1", "s3key", string(longMsg), "job-1", "extraction")
	if !ok {
		t.Fatalf("RecordFailed returned false, unmet expectations: %v", mock.ExpectationsWereMet())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordFailedReturnsFalseOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO dedup_ledger").WillReturnError(fakeDBError{})

	c := &Client{db: db, log: logging.NewLogger("test")}
	if ok := c.RecordFailed("NYSE", "doc-1", "s3key", "boom", "job-1", ""); ok {
		t.Errorf("expected RecordFailed to return false on db error")
	}
}

type fakeDBError struct{}

func (fakeDBError) Error() string { return "simulated db error" }
