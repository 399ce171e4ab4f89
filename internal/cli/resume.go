package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/llm"
	"github.com/roach88/shadowai/internal/orchestrate"
	"github.com/roach88/shadowai/internal/rules"
	"github.com/roach88/shadowai/internal/selector"
	"github.com/roach88/shadowai/internal/store"
	"github.com/roach88/shadowai/internal/taxonomy"
	"github.com/roach88/shadowai/internal/writer"
)

// ResumeOptions holds flags for the resume command. A resumed run takes
// no input path — only the config an already-ingested run still needs
// for its remaining stages.
type ResumeOptions struct {
	*RootOptions

	StorePath   string
	OutDir      string
	LockPath    string
	RulesDir    string
	TaxonomyDir string
	DisableLLM  bool

	PromptVersion  string
	CharBudget     int
	USDPer1KTokens float64
	LLMModel       string
	LLMBaseURL     string
	LLMMaxWait     time.Duration
}

// NewResumeCommand creates the resume command. Ingestion is never
// re-registered here: a run that never completed it has nothing to
// resume from, and every later stage reconstructs its inputs by reading
// the store rather than from in-process state a sibling closure built
// earlier in the original process.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResumeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resume --store <path> <run-id>",
		Short: "Resume a run from its last completed stage",
		Long: `Continues a previously started run from runs.last_completed_stage,
re-registering every stage except ingestion.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StorePath, "store", "", "path to the canonical SQLite store")
	cmd.Flags().StringVar(&opts.OutDir, "out", "", "evidence bundle output directory")
	cmd.Flags().StringVar(&opts.LockPath, "lock", "", "run lock file path (defaults to <store>.lock)")
	cmd.Flags().StringVar(&opts.RulesDir, "rules", "./rules", "rule set directory")
	cmd.Flags().StringVar(&opts.TaxonomyDir, "taxonomy", "./taxonomy", "taxonomy artifact directory")
	cmd.Flags().BoolVar(&opts.DisableLLM, "disable-llm", false, "skip LLM analysis; rely on rule classification only")

	cmd.Flags().StringVar(&opts.PromptVersion, "prompt-version", "v1", "pinned LLM prompt version")
	cmd.Flags().IntVar(&opts.CharBudget, "llm-char-budget", 8000, "approximate serialized-byte budget per LLM batch")
	cmd.Flags().Float64Var(&opts.USDPer1KTokens, "llm-usd-per-1k-tokens", 0.01, "estimated LLM cost per 1K tokens, for budget conversion")
	cmd.Flags().StringVar(&opts.LLMModel, "llm-model", "gpt-4o-mini", "LLM model name")
	cmd.Flags().StringVar(&opts.LLMBaseURL, "llm-base-url", "", "override the OpenAI-compatible base URL")
	cmd.Flags().DurationVar(&opts.LLMMaxWait, "llm-max-wait", 30*time.Second, "max wait for budget availability before deferring a batch")

	return cmd
}

func runResume(ctx context.Context, opts *ResumeOptions, runID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	if opts.StorePath == "" {
		return NewExitError(ExitCommandError, "--store is required")
	}
	if opts.OutDir == "" {
		return NewExitError(ExitCommandError, "--out is required")
	}

	st, err := store.Open(opts.StorePath)
	if err != nil {
		return WrapExitError(ExitStoreError, "open store", err)
	}
	defer st.Close()

	run, found, err := st.GetRun(ctx, runID)
	if err != nil {
		return WrapExitError(ExitStoreError, "look up run", err)
	}
	if !found {
		return NewExitError(ExitUsageError, fmt.Sprintf("no run %q in this store", runID))
	}
	if run.LastCompletedStage == "" {
		return NewExitError(ExitUsageError, fmt.Sprintf("run %q has not completed ingestion; resume requires rerunning with its original input path via the run command", runID))
	}

	ruleResult, loadErrs := rules.LoadRules(opts.RulesDir, rules.LoadModeFailFast)
	if len(loadErrs) > 0 {
		return WrapExitError(ExitConfigError, "load rule set", loadErrs[0])
	}
	artifact, err := taxonomy.Load(opts.TaxonomyDir)
	if err != nil {
		return WrapExitError(ExitConfigError, "load taxonomy artifact", err)
	}

	lockPath := opts.LockPath
	if lockPath == "" {
		lockPath = opts.StorePath + ".lock"
	}
	lock, err := orchestrate.AcquireRunLock(lockPath)
	if err != nil {
		if err == orchestrate.ErrLockHeld {
			return formatter.Success("another run is already active for this store; exiting")
		}
		return WrapExitError(ExitStoreError, "acquire run lock", err)
	}
	defer lock.Release()

	wr := writer.NewWriter(st, 200, time.Second)
	queue := wr.Queue()

	pipeline, err := buildResumePipeline(st, wr, opts, ruleResult.Rules, artifact, run.Pinned)
	if err != nil {
		return WrapExitError(ExitConfigError, "build pipeline", err)
	}
	orch := orchestrate.NewOrchestrator(st, queue, pipeline)

	execErr := orch.Execute(ctx, run)
	drainErr := wr.Drain(ctx)

	if execErr != nil {
		failedAt := time.Now().UTC()
		_ = st.TransitionRunStatus(ctx, run.RunID, ir.RunStatusFailed, &failedAt)
		return WrapExitError(ExitFailure, "resumed pipeline execution failed", execErr)
	}
	if drainErr != nil {
		return WrapExitError(ExitStoreError, "flush final checkpoints", drainErr)
	}

	finalRun, found, err := st.GetRun(ctx, run.RunID)
	if err != nil || !found {
		return WrapExitError(ExitStoreError, "read final run state", err)
	}
	return formatter.Success(fmt.Sprintf("run %s: %s", finalRun.RunID, finalRun.Status))
}

// buildResumePipeline registers every stage except ingestion, the same
// way buildPipeline does for a fresh run — resume only ever re-enters
// the pipeline at selection or later.
func buildResumePipeline(s *store.Store, wr *writer.Writer, opts *ResumeOptions, ruleSet []rules.Rule, artifact *taxonomy.Artifact, pinned ir.PinnedVersions) (orchestrate.Pipeline, error) {
	pipeline := orchestrate.Pipeline{
		ir.StageSelection:    selectionStage(s, wr, selector.DefaultConfig()),
		ir.StageRuleClassify: ruleClassifyStage(s, wr, ruleSet, buildFallbackTaxonomy(artifact), pinned),
	}

	if !opts.DisableLLM {
		apiKey := os.Getenv("LLM_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("LLM_API_KEY is required unless --disable-llm is set")
		}
		validator, err := llm.NewSchemaValidator()
		if err != nil {
			return nil, fmt.Errorf("build schema validator: %w", err)
		}

		dailyBudget := 50.0
		if v := os.Getenv("DAILY_BUDGET_USD"); v != "" {
			if parsed, perr := strconv.ParseFloat(v, 64); perr == nil {
				dailyBudget = parsed
			}
		}
		budget := llm.NewBudget(dailyBudget, opts.USDPer1KTokens)
		analyzer := llm.NewOpenAIAnalyzer(apiKey, opts.LLMBaseURL, opts.LLMModel)
		pipeline[ir.StageLLMAnalysis] = llmAnalysisStage(s, wr, analyzer, validator, artifact, budget, opts.PromptVersion, opts.CharBudget, opts.LLMMaxWait)
	}

	pipeline[ir.StageEvidence] = evidenceStage(s, artifact, opts.OutDir)

	return pipeline, nil
}
