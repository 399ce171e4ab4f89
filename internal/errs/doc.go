// Package errs carries shadowai's structured error types (§7): a
// PipelineError for stage-attributed run failures, an AnalyzerError for
// the LLM analyzer's closed ir.ErrorKind taxonomy, and an ExitError for
// mapping any error to a CLI process exit code.
package errs
