package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shadowai/internal/ingest"
	"github.com/roach88/shadowai/internal/rules"
	"github.com/roach88/shadowai/internal/taxonomy"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	CollectAll bool
}

// NewValidateCommand creates the validate command: checks a rule set,
// taxonomy artifact, or vendor mapping document without executing a run.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <rules-or-mapping-path>",
		Short: "Validate a rule set, taxonomy artifact, or vendor mapping",
		Long: `Validates a declarative CUE/YAML document without executing a run.

A directory is checked as a rule set first, then as a taxonomy artifact;
a single file is checked as a vendor mapping document.

Example:
  shadowai validate ./rules
  shadowai validate ./taxonomy
  shadowai validate ./mappings/acme-proxy.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.CollectAll, "collect-all", false, "report every validation error instead of stopping at the first")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	info, err := os.Stat(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "path not accessible", err)
	}

	if !info.IsDir() {
		return validateMapping(formatter, path)
	}
	return validateDirectory(formatter, opts, path)
}

func validateDirectory(formatter *OutputFormatter, opts *ValidateOptions, dir string) error {
	mode := rules.LoadModeFailFast
	if opts.CollectAll {
		mode = rules.LoadModeCollectAll
	}

	result, loadErrs := rules.LoadRules(dir, mode)
	if len(loadErrs) == 0 {
		return formatter.Success(fmt.Sprintf("%s: %d rule(s) valid", dir, len(result.Rules)))
	}

	if isNotARuleSet(loadErrs) {
		if artifact, err := taxonomy.Load(dir); err == nil {
			return formatter.Success(fmt.Sprintf("%s: taxonomy artifact %s (%s) valid", dir, artifact.Version, artifact.DirHash[:12]))
		}
	}

	details := make([]string, len(loadErrs))
	for i, e := range loadErrs {
		details[i] = e.Error()
	}
	_ = formatter.Error("E_VALIDATE", fmt.Sprintf("%s: validation failed", dir), details)
	return NewExitError(ExitFailure, fmt.Sprintf("%d error(s) in %s", len(loadErrs), dir))
}

func validateMapping(formatter *OutputFormatter, path string) error {
	m, err := ingest.LoadMapping(path)
	if err != nil {
		_ = formatter.Error("E_VALIDATE", fmt.Sprintf("%s: validation failed", path), err.Error())
		return WrapExitError(ExitFailure, "mapping validation failed", err)
	}
	return formatter.Success(fmt.Sprintf("%s: vendor mapping %q valid (%d field(s))", path, m.Vendor, len(m.Fields)))
}

// isNotARuleSet reports whether loadErrs indicates the directory simply
// isn't a rule set (empty/missing "rule" document) rather than a malformed
// one, in which case falling back to the taxonomy loader is worth trying.
func isNotARuleSet(loadErrs []error) bool {
	if len(loadErrs) != 1 {
		return false
	}
	var le *rules.LoadError
	if e, ok := loadErrs[0].(*rules.LoadError); ok {
		le = e
	}
	if le == nil {
		return false
	}
	return le.Code == rules.ErrCodeEmpty || strings.Contains(le.Message, "no rule documents")
}
