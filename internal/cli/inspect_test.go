package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/store"
	"github.com/roach88/shadowai/internal/writer"
)

func TestInspectCommand_RequiresStore(t *testing.T) {
	opts := &InspectOptions{RootOptions: &RootOptions{Format: "text"}}
	err := runInspect(context.Background(), opts, "sig-1", &cobra.Command{})
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitCommandError, exitErr.Code)
}

func TestInspectCommand_UnknownSignatureIsUsageError(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "run.db")
	st, err := store.Open(storePath)
	require.NoError(t, err)
	st.Close()

	opts := &InspectOptions{RootOptions: &RootOptions{Format: "text"}, StorePath: storePath}
	err = runInspect(context.Background(), opts, "no-such-sig", &cobra.Command{})
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitUsageError, exitErr.Code)
}

func TestInspectCommand_ReportsSignatureWithoutClassification(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "run.db")
	st, err := store.Open(storePath)
	require.NoError(t, err)

	sig := ir.Signature{
		Value:          "sig-unclassified",
		SchemeVersion:  "v1",
		NormalizedHost: "api.example.com",
		PathTemplate:   "/v1/chat",
	}
	err = st.ApplyBatch(context.Background(), []writer.Intent{
		{Op: writer.OpUpsertSignature, Record: sig},
	})
	require.NoError(t, err)
	st.Close()

	opts := &InspectOptions{RootOptions: &RootOptions{Format: "text"}, StorePath: storePath}
	err = runInspect(context.Background(), opts, "sig-unclassified", &cobra.Command{})
	assert.NoError(t, err)
}

func TestInspectCommand_ReportsClassifiedSignature(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "run.db")
	st, err := store.Open(storePath)
	require.NoError(t, err)

	sig := ir.Signature{
		Value:          "sig-classified",
		SchemeVersion:  "v1",
		NormalizedHost: "api.example.com",
		PathTemplate:   "/v1/chat",
	}
	classification := ir.Classification{
		Signature: "sig-classified",
		Source:    ir.SourceRule,
		Status:    ir.StatusActive,
	}
	err = st.ApplyBatch(context.Background(), []writer.Intent{
		{Op: writer.OpUpsertSignature, Record: sig},
		{Op: writer.OpUpsertClassification, Record: classification},
	})
	require.NoError(t, err)
	st.Close()

	opts := &InspectOptions{RootOptions: &RootOptions{Format: "text"}, StorePath: storePath}
	err = runInspect(context.Background(), opts, "sig-classified", &cobra.Command{})
	assert.NoError(t, err)
}
