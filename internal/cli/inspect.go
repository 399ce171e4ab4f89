package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/shadowai/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions

	StorePath string
}

// NewInspectCommand creates the inspect command: a read-only lookup of a
// signature's current classification, for an operator checking a single
// verdict without opening the store directly.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "inspect --store <path> <signature>",
		Short:         "Show the current classification for a signature",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StorePath, "store", "", "path to the canonical SQLite store")

	return cmd
}

func runInspect(ctx context.Context, opts *InspectOptions, signature string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	if opts.StorePath == "" {
		return NewExitError(ExitCommandError, "--store is required")
	}

	st, err := store.Open(opts.StorePath)
	if err != nil {
		return WrapExitError(ExitStoreError, "open store", err)
	}
	defer st.Close()

	sigRec, found, err := st.GetSignature(ctx, signature)
	if err != nil {
		return WrapExitError(ExitStoreError, "get signature", err)
	}
	if !found {
		return NewExitError(ExitUsageError, fmt.Sprintf("no signature %q in this store", signature))
	}

	classification, found, err := st.GetClassification(ctx, signature)
	if err != nil {
		return WrapExitError(ExitStoreError, "get classification", err)
	}

	result := map[string]any{
		"signature": sigRec,
	}
	if found {
		result["classification"] = classification
	} else {
		result["classification"] = nil
	}
	return formatter.Success(result)
}
