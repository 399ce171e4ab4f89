package cli

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shadowai/internal/canon"
	"github.com/roach88/shadowai/internal/evidence"
	"github.com/roach88/shadowai/internal/ingest"
	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/llm"
	"github.com/roach88/shadowai/internal/orchestrate"
	"github.com/roach88/shadowai/internal/rules"
	"github.com/roach88/shadowai/internal/selector"
	"github.com/roach88/shadowai/internal/sig"
	"github.com/roach88/shadowai/internal/store"
	"github.com/roach88/shadowai/internal/taxonomy"
	"github.com/roach88/shadowai/internal/workerpool"
	"github.com/roach88/shadowai/internal/writer"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	Vendor      string
	StorePath   string
	OutDir      string
	MappingPath string
	RulesDir    string
	TaxonomyDir string
	PSLPath     string
	RangeStart  string
	RangeEnd    string
	DisableLLM  bool
	DryRun      bool
	LockPath    string

	SignatureSchemeVersion string
	RuleVersion            string
	PromptVersion          string
	EngineSpecVersion      string

	ExpectedTaxonomyVersion string
	ExpectedTaxonomyCommit  string
	ExpectedTaxonomyHash    string

	MaxParseErrorRate float64
	CharBudget        int
	USDPer1KTokens    float64
	LLMModel          string
	LLMBaseURL        string
	LLMMaxWait        time.Duration
}

// NewRunCommand creates the run command: the full ingest-to-evidence
// pipeline over one vendor log input.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <input-path>",
		Short: "Run the classification pipeline over one vendor log input",
		Long: `Ingests a vendor access log (a single file or a directory of files),
canonicalizes and signs every request, selects risk-candidate signatures,
classifies them by rule and (unless disabled) by LLM analysis, and seals
an evidence bundle.

Example:
  shadowai run ./logs/2026-07-28 --vendor zscaler --store ./run.db --out ./evidence --mapping ./mappings/zscaler.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Vendor, "vendor", "", "vendor tag for this input")
	cmd.Flags().StringVar(&opts.StorePath, "store", "", "path to the canonical SQLite store")
	cmd.Flags().StringVar(&opts.OutDir, "out", "", "evidence bundle output directory")
	cmd.Flags().StringVar(&opts.MappingPath, "mapping", "", "vendor mapping document (.cue/.yaml)")
	cmd.Flags().StringVar(&opts.RulesDir, "rules", "./rules", "rule set directory")
	cmd.Flags().StringVar(&opts.TaxonomyDir, "taxonomy", "./taxonomy", "taxonomy artifact directory")
	cmd.Flags().StringVar(&opts.PSLPath, "psl", "./psl/public_suffix_list.dat", "public suffix list snapshot")
	cmd.Flags().StringVar(&opts.RangeStart, "range-start", "", "input range start (RFC 3339)")
	cmd.Flags().StringVar(&opts.RangeEnd, "range-end", "", "input range end (RFC 3339)")
	cmd.Flags().BoolVar(&opts.DisableLLM, "disable-llm", false, "skip LLM analysis; rely on rule classification only")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "preview ingestion and selection without touching the store")
	cmd.Flags().StringVar(&opts.LockPath, "lock", "", "run lock file path (defaults to <store>.lock)")

	cmd.Flags().StringVar(&opts.SignatureSchemeVersion, "signature-scheme-version", "v1", "pinned signature scheme version")
	cmd.Flags().StringVar(&opts.RuleVersion, "rule-version", "v1", "pinned rule version")
	cmd.Flags().StringVar(&opts.PromptVersion, "prompt-version", "v1", "pinned LLM prompt version")
	cmd.Flags().StringVar(&opts.EngineSpecVersion, "engine-spec-version", "v1", "pinned engine spec version")

	cmd.Flags().StringVar(&opts.ExpectedTaxonomyVersion, "expected-taxonomy-version", "", "compiled-in taxonomy version pin (empty trusts the resolved artifact)")
	cmd.Flags().StringVar(&opts.ExpectedTaxonomyCommit, "expected-taxonomy-commit", "", "compiled-in taxonomy commit pin")
	cmd.Flags().StringVar(&opts.ExpectedTaxonomyHash, "expected-taxonomy-hash", "", "compiled-in taxonomy directory hash pin")

	cmd.Flags().Float64Var(&opts.MaxParseErrorRate, "max-parse-error-rate", 0.05, "fail ingestion if more than this fraction of rows is unparseable")
	cmd.Flags().IntVar(&opts.CharBudget, "llm-char-budget", 8000, "approximate serialized-byte budget per LLM batch")
	cmd.Flags().Float64Var(&opts.USDPer1KTokens, "llm-usd-per-1k-tokens", 0.01, "estimated LLM cost per 1K tokens, for budget conversion")
	cmd.Flags().StringVar(&opts.LLMModel, "llm-model", "gpt-4o-mini", "LLM model name")
	cmd.Flags().StringVar(&opts.LLMBaseURL, "llm-base-url", "", "override the OpenAI-compatible base URL")
	cmd.Flags().DurationVar(&opts.LLMMaxWait, "llm-max-wait", 30*time.Second, "max wait for budget availability before deferring a batch")

	return cmd
}

func runRun(ctx context.Context, opts *RunOptions, inputPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	if opts.Vendor == "" || opts.MappingPath == "" {
		return NewExitError(ExitCommandError, "--vendor and --mapping are required")
	}

	mapping, err := ingest.LoadMapping(opts.MappingPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load vendor mapping", err)
	}
	mapping.Vendor = opts.Vendor

	canonicalizer, err := canon.New(opts.PSLPath, canon.DefaultConfig())
	if err != nil {
		return WrapExitError(ExitConfigError, "load public suffix list", err)
	}

	inputFiles, err := resolveInputFiles(inputPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve input path", err)
	}
	if len(inputFiles) == 0 {
		return NewExitError(ExitCommandError, "input path contains no files")
	}

	if opts.DryRun {
		return runDryRun(formatter, opts, inputFiles, mapping, canonicalizer)
	}

	ruleResult, loadErrs := rules.LoadRules(opts.RulesDir, rules.LoadModeFailFast)
	if len(loadErrs) > 0 {
		return WrapExitError(ExitConfigError, "load rule set", loadErrs[0])
	}

	artifact, err := taxonomy.Load(opts.TaxonomyDir)
	if err != nil {
		return WrapExitError(ExitConfigError, "load taxonomy artifact", err)
	}

	resolvedArtifact := orchestrate.PinnedArtifact{Version: artifact.Version, Commit: artifact.Commit, DirHash: artifact.DirHash}
	expectedArtifact := orchestrate.ExpectedArtifact{
		Version: firstNonEmpty(opts.ExpectedTaxonomyVersion, artifact.Version),
		Commit:  firstNonEmpty(opts.ExpectedTaxonomyCommit, artifact.Commit),
		DirHash: firstNonEmpty(opts.ExpectedTaxonomyHash, artifact.DirHash),
	}
	if err := orchestrate.EnforcePinning(resolvedArtifact, expectedArtifact); err != nil {
		return WrapExitError(ExitConfigError, "taxonomy artifact pin check failed", err)
	}

	st, err := store.Open(opts.StorePath)
	if err != nil {
		return WrapExitError(ExitStoreError, "open store", err)
	}
	defer st.Close()

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

	manifestHash, err := buildInputManifest(inputFiles)
	if err != nil {
		return WrapExitError(ExitFailure, "hash input manifest", err)
	}

	pinned := ir.PinnedVersions{
		SignatureScheme:      opts.SignatureSchemeVersion,
		Rule:                 opts.RuleVersion,
		Prompt:               opts.PromptVersion,
		Taxonomy:             artifact.Version,
		TaxonomyArtifactHash: artifact.DirHash,
		EngineSpec:           opts.EngineSpecVersion,
	}
	runKey := orchestrate.RunKey(orchestrate.RunKeyInput{
		InputManifestHash: manifestHash,
		RangeStart:        opts.RangeStart,
		RangeEnd:          opts.RangeEnd,
		Pinned:            pinned,
	})

	wr := writer.NewWriter(st, 200, time.Second)
	queue := wr.Queue()

	pipeline, err := buildPipeline(st, wr, opts, mapping, canonicalizer, ruleResult.Rules, artifact, pinned, inputFiles)
	if err != nil {
		return WrapExitError(ExitConfigError, "build pipeline", err)
	}
	orch := orchestrate.NewOrchestrator(st, queue, pipeline)

	run, err := orch.Resume(ctx, runKey, pinned, manifestHash)
	if err != nil {
		return WrapExitError(ExitStoreError, "resume run", err)
	}
	run.TaxonomyArtifactVersion = artifact.Version
	run.TaxonomyArtifactCommit = artifact.Commit

	execErr := orch.Execute(ctx, run)
	drainErr := wr.Drain(ctx)

	if execErr != nil {
		failedAt := time.Now().UTC()
		_ = st.TransitionRunStatus(ctx, run.RunID, ir.RunStatusFailed, &failedAt)
		return WrapExitError(ExitFailure, "pipeline execution failed", execErr)
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

// buildPipeline assembles every stage the run command registers with the
// orchestrator. Canonicalize and signature have no entries of their own —
// Execute simply skips a stage with no registered func (see
// orchestrate.Execute) — because their work is fused into ingestion: a
// canonical event only ever exists in the store fully formed, with its
// signature already attached, since canonical_events rows are insert-once
// (ON CONFLICT(lineage_hash) DO NOTHING) and never updated in place.
func buildPipeline(
	s *store.Store,
	wr *writer.Writer,
	opts *RunOptions,
	mapping ingest.VendorMapping,
	canonicalizer *canon.Canonicalizer,
	ruleSet []rules.Rule,
	artifact *taxonomy.Artifact,
	pinned ir.PinnedVersions,
	files []string,
) (orchestrate.Pipeline, error) {
	pipeline := orchestrate.Pipeline{
		ir.StageIngestion:    ingestionStage(s, wr, files, mapping, canonicalizer, ingest.Config{MaxParseErrorRate: opts.MaxParseErrorRate}, opts.SignatureSchemeVersion),
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

// parsedFile is the ingestion worker's per-file result: every row that
// made it through parsing, canonicalization, and signing.
type parsedFile struct {
	events []eventWithSignature
	pii    []ir.PIIAudit
}

type eventWithSignature struct {
	event     ir.CanonicalEvent
	signature ir.Signature
}

// ingestionStage reads every input file concurrently, and for each row
// parses, canonicalizes, and signs it before a single row ever reaches
// the store — the three stages the pipeline names separately (ingestion,
// canonicalize, signature) collapse into one closure here because a
// canonical_events row has nowhere to live half-formed between them.
func ingestionStage(s *store.Store, wr *writer.Writer, files []string, mapping ingest.VendorMapping, canonicalizer *canon.Canonicalizer, cfg ingest.Config, schemeVersion string) orchestrate.StageFunc {
	queue := wr.Queue()
	return func(ctx context.Context, run ir.Run) error {
		results, err := workerpool.Run(ctx, files, workerpool.DefaultConcurrency, func(ctx context.Context, path string) (parsedFile, error) {
			return parseAndSignFile(path, mapping, canonicalizer, cfg, schemeVersion)
		})
		if err != nil {
			return fmt.Errorf("ingestion: %w", err)
		}

		now := time.Now().UTC()
		for _, pf := range results {
			for _, ews := range pf.events {
				queue.Enqueue(writer.Intent{Op: writer.OpUpsertSignature, RunID: run.RunID, Record: ews.signature})
				queue.Enqueue(writer.Intent{
					Op:     writer.OpUpsertEvent,
					RunID:  run.RunID,
					Record: store.EventRecord{Event: ews.event, Signature: ews.signature.Value},
				})
			}
			for _, audit := range pf.pii {
				audit.RunID = run.RunID
				audit.RecordedAt = now
				queue.Enqueue(writer.Intent{Op: writer.OpInsertPIIAudit, RunID: run.RunID, Record: audit})
			}
		}
		return wr.Drain(ctx)
	}
}

// parseAndSignFile does the pure, store-free work for one input file: read
// rows, canonicalize each URL, derive its signature. A row whose URL fails
// to canonicalize (malformed URL, no registrable domain) is dropped rather
// than failing the file — the threshold check inside ParseWithThreshold
// already covers the coarser raw-parse failure rate.
func parseAndSignFile(path string, mapping ingest.VendorMapping, canonicalizer *canon.Canonicalizer, cfg ingest.Config, schemeVersion string) (parsedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return parsedFile{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	events, err := ingest.ParseWithThreshold(f, mapping, cfg)
	if err != nil {
		return parsedFile{}, fmt.Errorf("parse %s: %w", path, err)
	}

	var out parsedFile
	for _, ev := range events {
		res, err := canonicalizer.Canonicalize(ev.URL)
		if err != nil {
			continue
		}
		destReg, err := canonicalizer.RegistrableDomain(res.NormalizedHost)
		if err != nil {
			continue
		}
		ev.NormalizedPath = res.NormalizedPath
		ev.NormalizedQuery = res.NormalizedQuery
		ev.DestRegistrable = destReg

		signature, err := sig.Build(res, ev.Method, ev.BytesUp, schemeVersion)
		if err != nil {
			return parsedFile{}, fmt.Errorf("build signature for %s: %w", path, err)
		}
		out.events = append(out.events, eventWithSignature{event: ev, signature: signature})

		for _, p := range res.PII {
			out.pii = append(out.pii, ir.PIIAudit{
				Signature:       signature.Value,
				Kind:            p.Kind,
				FieldSource:     p.FieldSource,
				RedactionToken:  p.Token,
				OriginalHash:    ir.HashOriginal(p.Original),
				OccurrenceCount: 1,
			})
		}
	}
	return out, nil
}

// selectionStage reads this run's canonical events back from the store —
// never from ingestionStage's in-memory results — since a resumed run
// re-enters selection in a fresh process with no in-memory state at all.
func selectionStage(s *store.Store, wr *writer.Writer, cfg selector.Config) orchestrate.StageFunc {
	queue := wr.Queue()
	return func(ctx context.Context, run ir.Run) error {
		rows, err := s.ListEventsForSelection(ctx, run.RunID)
		if err != nil {
			return fmt.Errorf("selection: %w", err)
		}

		inputs := make([]selector.EventInput, len(rows))
		for i, r := range rows {
			inputs[i] = selector.EventInput{
				Signature:       r.Signature,
				UserID:          r.UserID,
				DestRegistrable: r.DestRegistrable,
				Timestamp:       r.Timestamp,
				Method:          sig.MethodGroup(r.Method),
				BytesUp:         r.BytesUp,
				CategoryHint:    r.CategoryHint,
			}
		}

		result := selector.Select(inputs, cfg, run.RunID)
		for sigVal, stats := range result.Stats {
			if prior, found, gerr := s.GetClassification(ctx, sigVal); gerr == nil && found {
				stats.TaxonomyEcho = prior.Taxonomy
			}
			queue.Enqueue(writer.Intent{Op: writer.OpUpsertSignatureStats, RunID: run.RunID, Record: *stats})
		}
		return wr.Drain(ctx)
	}
}

// ruleClassifyStage seeds an initial classification for every signature
// that does not already have one. A signature that already carries a
// classification — from an earlier run or a human review — is left
// alone; rule_classify never downgrades an existing verdict, only fills
// the gap for brand-new signatures.
func ruleClassifyStage(s *store.Store, wr *writer.Writer, ruleSet []rules.Rule, fallback map[ir.TaxonomyDimension]string, pinned ir.PinnedVersions) orchestrate.StageFunc {
	queue := wr.Queue()
	return func(ctx context.Context, run ir.Run) error {
		stats, err := s.ListSignatureStats(ctx, run.RunID)
		if err != nil {
			return fmt.Errorf("rule_classify: %w", err)
		}

		for _, stat := range stats {
			_, found, gerr := s.GetClassification(ctx, stat.Signature)
			if gerr != nil {
				return fmt.Errorf("rule_classify: get classification: %w", gerr)
			}
			if found {
				continue
			}

			sigRec, found, gerr := s.GetSignature(ctx, stat.Signature)
			if gerr != nil {
				return fmt.Errorf("rule_classify: get signature: %w", gerr)
			}
			if !found {
				continue
			}
			meta, _, gerr := s.RepresentativeEventMeta(ctx, run.RunID, stat.Signature)
			if gerr != nil {
				return fmt.Errorf("rule_classify: representative event: %w", gerr)
			}

			c, matched := rules.Classify(sigRec, meta.DestRegistrable, ruleSet, fallback)
			if !matched {
				c = ir.Classification{
					Signature: sigRec.Value,
					Source:    ir.SourceRule,
					Status:    ir.StatusActive,
				}
			}
			c.Pinned = pinned
			queue.Enqueue(writer.Intent{Op: writer.OpUpsertClassification, RunID: run.RunID, Record: c})
		}
		return wr.Drain(ctx)
	}
}

// buildFallbackTaxonomy picks the first allowed code per dimension (the
// artifact's codes are always returned sorted) as the rule engine's
// under-specification fallback — a dimension with no restricted code set
// gets no fallback and may be left empty by a rule that doesn't set it.
func buildFallbackTaxonomy(artifact *taxonomy.Artifact) map[ir.TaxonomyDimension]string {
	fallback := make(map[ir.TaxonomyDimension]string)
	for _, dim := range ir.AllDimensions {
		if codes := artifact.AllowedCodes(dim); len(codes) > 0 {
			fallback[dim] = codes[0]
		}
	}
	return fallback
}

// llmAnalysisStage dispatches every eligible signature's payload to the
// analyzer in budget-gated, character-bounded batches, run concurrently
// across the worker pool.
func llmAnalysisStage(s *store.Store, wr *writer.Writer, analyzer llm.Analyzer, validator *llm.SchemaValidator, artifact *taxonomy.Artifact, budget *llm.Budget, promptVersion string, charBudget int, maxWait time.Duration) orchestrate.StageFunc {
	queue := wr.Queue()
	return func(ctx context.Context, run ir.Run) error {
		stats, err := s.ListSignatureStats(ctx, run.RunID)
		if err != nil {
			return fmt.Errorf("llm_analysis: %w", err)
		}

		var candidates []llm.Candidate
		for _, stat := range stats {
			c, found, gerr := s.GetClassification(ctx, stat.Signature)
			if gerr != nil {
				return fmt.Errorf("llm_analysis: get classification: %w", gerr)
			}
			if !found || !llm.Eligible(c) {
				continue
			}

			sigRec, found, gerr := s.GetSignature(ctx, stat.Signature)
			if gerr != nil {
				return fmt.Errorf("llm_analysis: get signature: %w", gerr)
			}
			if !found {
				continue
			}
			meta, _, gerr := s.RepresentativeEventMeta(ctx, run.RunID, stat.Signature)
			if gerr != nil {
				return fmt.Errorf("llm_analysis: representative event: %w", gerr)
			}

			item := llm.BuildPayloadItem(sigRec, stat, meta.CategoryHint)
			candidates = append(candidates, llm.Candidate{Item: item, Flags: stat.CandidateFlags})
		}
		if len(candidates) == 0 {
			return nil
		}

		batches := llm.BuildBatches(candidates, charBudget)
		err = workerpool.RunEach(ctx, batches, workerpool.DefaultConcurrency, func(ctx context.Context, batch []llm.PayloadItem) error {
			return processLLMBatch(ctx, s, queue, run.RunID, analyzer, validator, artifact, budget, promptVersion, maxWait, batch)
		})
		if err != nil {
			return fmt.Errorf("llm_analysis: %w", err)
		}
		return wr.Drain(ctx)
	}
}

// processLLMBatch handles one batch end to end: budget reservation,
// dispatch, and the resulting state-machine transition per signature. A
// budget shortfall defers the whole batch to a later run rather than
// failing it.
func processLLMBatch(
	ctx context.Context,
	s *store.Store,
	queue *writer.Queue[writer.Intent],
	runID string,
	analyzer llm.Analyzer,
	validator *llm.SchemaValidator,
	artifact *taxonomy.Artifact,
	budget *llm.Budget,
	promptVersion string,
	maxWait time.Duration,
	batch []llm.PayloadItem,
) error {
	if !budget.Reserve(ctx, estimateTokens(batch), maxWait) {
		return nil
	}

	applyFailure := func(cause error) error {
		for _, item := range batch {
			prior, _, gerr := s.GetClassification(ctx, item.Signature)
			if gerr != nil {
				return fmt.Errorf("get prior classification: %w", gerr)
			}
			queue.Enqueue(writer.Intent{Op: writer.OpUpsertClassification, RunID: runID, Record: llm.ApplyError(prior, cause)})
		}
		return nil
	}

	resp, err := analyzer.Analyze(ctx, llm.Request{Items: batch, PromptVersion: promptVersion})
	if err != nil {
		return applyFailure(err)
	}

	verdicts, err := llm.ParseVerdicts(resp.Raw)
	if err != nil {
		return applyFailure(err)
	}

	for i, item := range batch {
		prior, _, gerr := s.GetClassification(ctx, item.Signature)
		if gerr != nil {
			return fmt.Errorf("get prior classification: %w", gerr)
		}

		var next ir.Classification
		if i < len(verdicts) {
			next = llm.ApplyVerdict(validator, artifact, prior, verdicts[i], promptVersion)
		} else {
			next = llm.ApplyError(prior, fmt.Errorf("missing verdict for signature %s", item.Signature))
		}
		queue.Enqueue(writer.Intent{Op: writer.OpUpsertClassification, RunID: runID, Record: next})
	}
	return nil
}

// estimateTokens is a rough chars-per-token heuristic for budget
// reservation; the exact token count isn't known until the provider
// responds, so this only needs to be in the right order of magnitude.
func estimateTokens(batch []llm.PayloadItem) int {
	total := 0
	for _, item := range batch {
		b, _ := json.Marshal(item)
		total += len(b) / 4
	}
	return total
}

// evidenceStage seals the run's evidence bundle and performs the run's
// only terminal status transition: succeeded if every classification
// ended active, partial if any ended needs_review or skipped. A bundle
// that fails its own self-validation leaves the run's status untouched —
// the caller treats a stage error as a run failure, never partial.
func evidenceStage(s *store.Store, artifact *taxonomy.Artifact, outDir string) orchestrate.StageFunc {
	dictionary := make(map[string][]string, len(ir.AllDimensions))
	for _, dim := range ir.AllDimensions {
		dictionary[string(dim)] = artifact.AllowedCodes(dim)
	}

	return func(ctx context.Context, run ir.Run) error {
		stats, err := s.ListSignatureStats(ctx, run.RunID)
		if err != nil {
			return fmt.Errorf("evidence: list signature stats: %w", err)
		}

		classifications := make([]ir.Classification, 0, len(stats))
		status := ir.RunStatusSucceeded
		for _, stat := range stats {
			c, found, gerr := s.GetClassification(ctx, stat.Signature)
			if gerr != nil {
				return fmt.Errorf("evidence: get classification: %w", gerr)
			}
			if !found {
				continue
			}
			classifications = append(classifications, c)
			if c.Status == ir.StatusNeedsReview || c.Status == ir.StatusSkipped {
				status = ir.RunStatusPartial
			}
		}

		run.Status = status
		input := evidence.BundleInput{
			Run:             run,
			ScopeRef:        run.RunKey,
			Classifications: classifications,
			SignatureStats:  stats,
			Dictionary:      dictionary,
			SigningKey:      signingKey(run.RunID),
		}
		if _, err := evidence.Emit(outDir, input, evidence.UUIDv7Generator{}); err != nil {
			return fmt.Errorf("evidence: emit: %w", err)
		}

		finishedAt := time.Now().UTC()
		return s.TransitionRunStatus(ctx, run.RunID, status, &finishedAt)
	}
}

// signingKey resolves the evidence bundle's HMAC key: an operator-supplied
// secret if set, otherwise a deterministic per-run fallback so bundle
// emission never fails for lack of a configured key in a dev environment.
func signingKey(runID string) []byte {
	if k := os.Getenv("EVIDENCE_SIGNING_KEY"); k != "" {
		return []byte(k)
	}
	sum := sha256.Sum256([]byte("shadowai/evidence-signing-fallback/" + runID))
	return sum[:]
}

// runDryRun previews ingestion and selection in memory only — no store,
// no lock, no evidence bundle — so an operator can sanity-check a vendor
// mapping and the A/B/C split before committing a run.
func runDryRun(formatter *OutputFormatter, opts *RunOptions, files []string, mapping ingest.VendorMapping, canonicalizer *canon.Canonicalizer) error {
	cfg := ingest.Config{MaxParseErrorRate: opts.MaxParseErrorRate}

	var inputs []selector.EventInput
	for _, path := range files {
		pf, err := parseAndSignFile(path, mapping, canonicalizer, cfg, opts.SignatureSchemeVersion)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("dry-run parse %s", path), err)
		}
		for _, ews := range pf.events {
			inputs = append(inputs, selector.EventInput{
				Signature:       ews.signature.Value,
				UserID:          ews.event.UserID,
				DestRegistrable: ews.event.DestRegistrable,
				Timestamp:       ews.event.Timestamp,
				Method:          sig.MethodGroup(ews.event.Method),
				BytesUp:         ews.event.BytesUp,
				CategoryHint:    ews.event.CategoryHint,
			})
		}
	}

	result := selector.Select(inputs, selector.DefaultConfig(), "dry-run")
	counts := map[ir.CandidateFlag]int{}
	for _, stats := range result.Stats {
		for _, f := range stats.CandidateFlags {
			counts[f]++
		}
	}
	coverageEligible := counts[ir.CandidateC] + result.ExclusionCount

	return formatter.Success(fmt.Sprintf(
		"dry run: %d file(s), %d event(s), %d signature(s) (A=%d B=%d C=%d), coverage sample: %d of %d",
		len(files), len(inputs), len(result.Stats),
		counts[ir.CandidateA], counts[ir.CandidateB], counts[ir.CandidateC],
		counts[ir.CandidateC], coverageEligible,
	))
}

// resolveInputFiles returns every regular file under path, sorted for
// deterministic manifest hashing, or path itself if it names a single
// file.
func resolveInputFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// buildInputManifest hashes the sorted {path, size} pairs of every input
// file — the identity-bearing fingerprint of "what was ingested", cheap
// enough to recompute on every invocation without reading file contents.
func buildInputManifest(files []string) (string, error) {
	type fileEntry struct {
		path string
		size int64
	}

	entries := make([]fileEntry, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", f, err)
		}
		entries = append(entries, fileEntry{path: f, size: info.Size()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	rows := make([]any, len(entries))
	for i, e := range entries {
		rows[i] = map[string]any{"path": e.path, "size": e.size}
	}
	return ir.CanonicalHash(ir.DomainRun, map[string]any{"files": rows})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
