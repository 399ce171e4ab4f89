package canon

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTestPSL writes a minimal snapshot covering the standard sections
// exercised by the test suite: plain rules, a multi-label rule, a wildcard
// rule, and its exception.
func writeTestPSL(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "public_suffix_list.dat")
	content := `// ===BEGIN ICANN DOMAINS===
com
co.uk
org
*.ck
!www.ck
// ===END ICANN DOMAINS===
`
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write test PSL: %v", err)
	}
	return p
}
