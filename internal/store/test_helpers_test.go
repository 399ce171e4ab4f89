package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/writer"
)

// openTestStore opens a fresh on-disk store under the test's temp
// directory, matching the teacher's createTestStore pattern. On-disk
// rather than ":memory:" since SetMaxOpenConns(1) plus an in-memory DSN
// can otherwise hand out a second, separate in-memory database per
// connection.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// testSignature returns a minimal signature row for value.
func testSignature(value string) ir.Signature {
	return ir.Signature{
		Value:          value,
		SchemeVersion:  "v1",
		NormalizedHost: "api.example.com",
		PathTemplate:   "/v1/chat/completions",
		PathDepth:      2,
		ParamCount:     0,
		AuthTokenLike:  false,
		BytesBucket:    ir.BytesBucketLow,
		CandidateFlags: nil,
	}
}

// testClassification returns a minimal active, non-human-verified
// classification for signature.
func testClassification(signature string) ir.Classification {
	return ir.Classification{
		Signature:   signature,
		ServiceName: "",
		Category:    "",
		Source:      ir.SourceRule,
		Status:      ir.StatusActive,
		Taxonomy:    ir.TaxonomyAssignment{},
	}
}

// testRun returns a minimal running run.
func testRun(runID string) ir.Run {
	return ir.Run{
		RunID:             runID,
		RunKey:            runID + "-key",
		StartedAt:         time.Now().UTC().Truncate(time.Second),
		Status:            ir.RunStatusRunning,
		AggregateCounters: map[string]int64{},
	}
}

func intent(op writer.Op, runID string, record any) writer.Intent {
	return writer.Intent{Op: op, RunID: runID, Record: record}
}
