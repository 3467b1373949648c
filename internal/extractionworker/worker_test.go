package extractionworker

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/asiafilings/filing-etl-worker/internal/errors"
)

func TestShardKeyFormat(t *testing.T) {
	got := shardKey("extracted", "NYSE", 3, 7)
	want := "extracted/nyse/batch_000003_007.jsonl"
	if got != want {
		t.Errorf("shardKey = %q, want %q", got, want)
	}
}

func TestShardKeyDefaultsUnknownExchange(t *testing.T) {
	got := shardKey("extracted", "  ", 0, 0)
	want := "extracted/unknown/batch_000000_000.jsonl"
	if got != want {
		t.Errorf("shardKey = %q, want %q", got, want)
	}
}

func TestErrorCodeRecoversProcessingErrorCode(t *testing.T) {
	pe := errors.NewDownloadFailedError("job-1", "key.pdf", stderrors.New("network down"))
	if got := errorCode(pe); got != string(errors.ErrorDownloadFailed) {
		t.Errorf("errorCode = %q, want %q", got, errors.ErrorDownloadFailed)
	}
}

func TestErrorCodeRecoversWrappedProcessingError(t *testing.T) {
	pe := errors.NewExtractionFailedError("job-1", "key.pdf", stderrors.New("bad pdf"))
	wrapped := fmt.Errorf("processing row: %w", pe)
	if got := errorCode(wrapped); got != string(errors.ErrorExtractionFailed) {
		t.Errorf("errorCode = %q, want %q", got, errors.ErrorExtractionFailed)
	}
}

func TestErrorCodeFallsBackForPlainError(t *testing.T) {
	if got := errorCode(stderrors.New("context canceled")); got != string(errors.ErrorProcessingError) {
		t.Errorf("errorCode = %q, want fallback %q", got, errors.ErrorProcessingError)
	}
}
