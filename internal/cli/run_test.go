package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/llm"
	"github.com/roach88/shadowai/internal/taxonomy"
)

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("a", "b"))
	assert.Equal(t, "b", firstNonEmpty("", "b"))
	assert.Equal(t, "", firstNonEmpty("", ""))
	assert.Equal(t, "", firstNonEmpty())
}

func TestResolveInputFiles_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	files, err := resolveInputFiles(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}

func TestResolveInputFiles_DirectoryIsSortedAndFlat(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.log", "a.log", "c.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "d.log"), []byte("x"), 0o644))

	files, err := resolveInputFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 4)
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i])
	}
}

func TestResolveInputFiles_MissingPath(t *testing.T) {
	_, err := resolveInputFiles(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestBuildInputManifest_DeterministicForSameFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "b.log")
	require.NoError(t, os.WriteFile(a, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("world!"), 0o644))

	h1, err := buildInputManifest([]string{a, b})
	require.NoError(t, err)
	h2, err := buildInputManifest([]string{b, a})
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "manifest hash must not depend on input slice order")
}

func TestBuildInputManifest_ChangesWithFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	h1, err := buildInputManifest([]string{path})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("hello, a bit longer now"), 0o644))
	h2, err := buildInputManifest([]string{path})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestBuildFallbackTaxonomy_PicksFirstAllowedCodePerDimension(t *testing.T) {
	dir := t.TempDir()
	writeTestTaxonomy(t, dir)

	artifact, err := taxonomy.Load(dir)
	require.NoError(t, err)

	fallback := buildFallbackTaxonomy(artifact)
	for _, dim := range ir.AllDimensions {
		codes := artifact.AllowedCodes(dim)
		if len(codes) == 0 {
			assert.NotContains(t, fallback, dim)
			continue
		}
		assert.Equal(t, codes[0], fallback[dim])
	}
}

func TestEstimateTokens_GrowsWithBatchSize(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(nil))

	one := []llm.PayloadItem{{Signature: "sig-1", NormalizedHost: "api.example.com", PathTemplate: "/v1/chat"}}
	two := append(one, llm.PayloadItem{Signature: "sig-2", NormalizedHost: "api.other.com", PathTemplate: "/v1/completions"})
	assert.Greater(t, estimateTokens(two), estimateTokens(one))
}

func TestSigningKey_StableForSameRun(t *testing.T) {
	os.Unsetenv("EVIDENCE_SIGNING_KEY")
	k1 := signingKey("run-a")
	k2 := signingKey("run-a")
	k3 := signingKey("run-b")
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestSigningKey_UsesEnvOverride(t *testing.T) {
	t.Setenv("EVIDENCE_SIGNING_KEY", "super-secret")
	assert.Equal(t, []byte("super-secret"), signingKey("run-a"))
}

func writeTestTaxonomy(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte("2024.1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "COMMIT"), []byte("abc123\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cardinality.json"), []byte(`{
		"functional_scope": {"min": 1, "max": 1}
	}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "codes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codes", "functional_scope.txt"), []byte("code_assist\nsummarization\n"), 0o644))
}

func TestRunCommand_RequiresVendorAndMapping(t *testing.T) {
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}, StorePath: t.TempDir()}
	err := runRun(context.Background(), opts, "testdata", &cobra.Command{})
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitCommandError, exitErr.Code)
}
