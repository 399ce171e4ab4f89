package ir

import "time"

// ActionTag is the canonical action taken by the source device on a request.
type ActionTag string

const (
	ActionAllow   ActionTag = "allow"
	ActionBlock   ActionTag = "block"
	ActionWarn    ActionTag = "warn"
	ActionObserve ActionTag = "observe"
)

// MethodGroup buckets an HTTP method for signature derivation (§4.3).
type MethodGroup string

const (
	MethodGroupGET   MethodGroup = "GET"
	MethodGroupWRITE MethodGroup = "WRITE"
	MethodGroupOTHER MethodGroup = "OTHER"
)

// BytesBucket buckets an upload size for signature derivation (§4.3).
// T must never be conflated with candidate flag "C" (coverage sample) —
// they are unrelated letters from different vocabularies.
type BytesBucket string

const (
	BytesBucketTiny   BytesBucket = "T" // < 1 KiB
	BytesBucketLow    BytesBucket = "L"
	BytesBucketMedium BytesBucket = "M"
	BytesBucketHigh   BytesBucket = "H"
	BytesBucketMax    BytesBucket = "X"
)

// CandidateFlag is one of the A/B/C risk-candidate classes (§4.4).
type CandidateFlag string

const (
	CandidateA CandidateFlag = "A" // high volume
	CandidateB CandidateFlag = "B" // high-risk-small
	CandidateC CandidateFlag = "C" // coverage sample
)

// CanonicalEvent is one normalized request line, created once per input row
// and immutable thereafter (§3).
type CanonicalEvent struct {
	Timestamp       time.Time `json:"timestamp"` // UTC
	Vendor          string    `json:"vendor"`
	UserID          string    `json:"user_id"`     // opaque
	SourceAddr      string    `json:"source_addr"` // opaque
	DestHost        string    `json:"dest_host"`   // FQDN
	DestRegistrable string    `json:"dest_registrable_domain"`
	URL             string    `json:"url"`
	NormalizedPath  string    `json:"normalized_path"`
	NormalizedQuery string    `json:"normalized_query"`
	Method          string    `json:"method"`
	Action          ActionTag `json:"action"`
	BytesUp         int64     `json:"bytes_up"`
	BytesDown       int64     `json:"bytes_down"`
	CategoryHint    string    `json:"category_hint"`
	LineageHash     string    `json:"lineage_hash"` // content hash of source line
}

// Signature is the content-addressed identifier of a canonical request
// pattern, immutable within a given scheme version (§3, §4.3).
type Signature struct {
	Value          string          `json:"value"` // hex sha256 digest
	SchemeVersion  string          `json:"scheme_version"`
	NormalizedHost string          `json:"normalized_host"`
	PathTemplate   string          `json:"path_template"`
	PathDepth      int             `json:"path_depth"`
	ParamCount     int             `json:"param_count"`
	AuthTokenLike  bool            `json:"auth_token_like"`
	BytesBucket    BytesBucket     `json:"bytes_bucket"`
	CandidateFlags []CandidateFlag `json:"candidate_flags"`
}

// SourceTag identifies what produced a classification verdict.
type SourceTag string

const (
	SourceRule  SourceTag = "RULE"
	SourceLLM   SourceTag = "LLM"
	SourceHuman SourceTag = "HUMAN"
)

// ClassificationStatus is the lifecycle state of a classification record
// (§4.6 state machine).
type ClassificationStatus string

const (
	StatusActive      ClassificationStatus = "active"
	StatusNeedsReview ClassificationStatus = "needs_review"
	StatusSkipped     ClassificationStatus = "skipped"
)

// ErrorKind is the taxonomy of LLM analyzer / normalization failure (§7).
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindRateLimit       ErrorKind = "rate_limit"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindServerError     ErrorKind = "server_error"
	ErrorKindNetwork         ErrorKind = "network"
	ErrorKindContextLength   ErrorKind = "context_length_exceeded"
	ErrorKindInvalidRequest  ErrorKind = "invalid_request"
	ErrorKindInvalidAPIKey   ErrorKind = "invalid_api_key"
	ErrorKindAuthentication  ErrorKind = "authentication"
	ErrorKindSchemaViolation ErrorKind = "schema_violation"
	ErrorKindJSONParse       ErrorKind = "json_parse_error"
)

// TransientErrorKinds are retried with exponential backoff + jitter.
var TransientErrorKinds = map[ErrorKind]bool{
	ErrorKindRateLimit:   true,
	ErrorKindTimeout:     true,
	ErrorKindServerError: true,
	ErrorKindNetwork:     true,
}

// PermanentErrorKinds move a signature to status=skipped, never retried.
var PermanentErrorKinds = map[ErrorKind]bool{
	ErrorKindContextLength:  true,
	ErrorKindInvalidRequest: true,
	ErrorKindInvalidAPIKey:  true,
	ErrorKindAuthentication: true,
}

// SchemaErrorKinds get one retry with an error-aware prompt before moving
// to needs_review.
var SchemaErrorKinds = map[ErrorKind]bool{
	ErrorKindSchemaViolation: true,
	ErrorKindJSONParse:       true,
}

// TaxonomyDimension names one of the eight classification axes (§3).
type TaxonomyDimension string

const (
	DimFunctionalScope TaxonomyDimension = "functional_scope" // exactly 1
	DimIntegrationMode TaxonomyDimension = "integration_mode" // exactly 1
	DimUseCaseClass    TaxonomyDimension = "use_case_class"   // >= 1
	DimDataType        TaxonomyDimension = "data_type"        // >= 1
	DimChannel         TaxonomyDimension = "channel"          // >= 1
	DimRiskSurface     TaxonomyDimension = "risk_surface"     // >= 1
	DimLogEventType    TaxonomyDimension = "log_event_type"   // >= 1
	DimOutcomeBenefit  TaxonomyDimension = "outcome_benefit"  // >= 0
)

// AllDimensions lists every taxonomy dimension in a stable, canonical order.
var AllDimensions = []TaxonomyDimension{
	DimFunctionalScope,
	DimIntegrationMode,
	DimUseCaseClass,
	DimDataType,
	DimChannel,
	DimRiskSurface,
	DimLogEventType,
	DimOutcomeBenefit,
}

// TaxonomyAssignment holds the eight classification dimensions. Each field
// is stored canonicalized (sorted, deduplicated) so serialization is
// byte-stable regardless of construction order.
type TaxonomyAssignment struct {
	FunctionalScope []string `json:"functional_scope"`
	IntegrationMode []string `json:"integration_mode"`
	UseCaseClass    []string `json:"use_case_class"`
	DataType        []string `json:"data_type"`
	Channel         []string `json:"channel"`
	RiskSurface     []string `json:"risk_surface"`
	LogEventType    []string `json:"log_event_type"`
	OutcomeBenefit  []string `json:"outcome_benefit"`
}

// Get returns the codes assigned to a single dimension.
func (t TaxonomyAssignment) Get(dim TaxonomyDimension) []string {
	switch dim {
	case DimFunctionalScope:
		return t.FunctionalScope
	case DimIntegrationMode:
		return t.IntegrationMode
	case DimUseCaseClass:
		return t.UseCaseClass
	case DimDataType:
		return t.DataType
	case DimChannel:
		return t.Channel
	case DimRiskSurface:
		return t.RiskSurface
	case DimLogEventType:
		return t.LogEventType
	case DimOutcomeBenefit:
		return t.OutcomeBenefit
	default:
		return nil
	}
}

// Canonicalize returns a copy with every dimension's codes sorted and
// deduplicated.
func (t TaxonomyAssignment) Canonicalize() TaxonomyAssignment {
	return TaxonomyAssignment{
		FunctionalScope: sortDedup(t.FunctionalScope),
		IntegrationMode: sortDedup(t.IntegrationMode),
		UseCaseClass:    sortDedup(t.UseCaseClass),
		DataType:        sortDedup(t.DataType),
		Channel:         sortDedup(t.Channel),
		RiskSurface:     sortDedup(t.RiskSurface),
		LogEventType:    sortDedup(t.LogEventType),
		OutcomeBenefit:  sortDedup(t.OutcomeBenefit),
	}
}

func sortDedup(ss []string) []string {
	arr := IRStringArray(ss)
	out := make([]string, len(arr))
	for i, v := range arr {
		out[i] = string(v.(IRString))
	}
	return out
}

// PinnedVersions captures the version identifiers that participate in a
// run's and a classification's identity (§4.8).
type PinnedVersions struct {
	SignatureScheme      string `json:"signature_scheme_version"`
	Rule                 string `json:"rule_version"`
	Prompt               string `json:"prompt_version"`
	Taxonomy             string `json:"taxonomy_version"`
	TaxonomyArtifactHash string `json:"taxonomy_artifact_hash"`
	EngineSpec           string `json:"engine_spec_version"`
}

// Classification is the keyed-by-signature analytical verdict (§3).
type Classification struct {
	Signature       string               `json:"signature"` // key
	ServiceName     string               `json:"service_name"`
	UsageType       string               `json:"usage_type"`
	RiskLevel       string               `json:"risk_level"`
	Category        string               `json:"category"`
	Confidence      int64                `json:"confidence"` // 0-100, integer only
	Rationale       string               `json:"rationale"`
	Source          SourceTag            `json:"source"`
	Pinned          PinnedVersions       `json:"pinned_versions"`
	Status          ClassificationStatus `json:"status"`
	IsHumanVerified bool                 `json:"is_human_verified"`
	ErrorKind       ErrorKind            `json:"error_kind"`
	ErrorReason     string               `json:"error_reason"`
	RetryAfter      *time.Time           `json:"retry_after,omitempty"`
	FailureCount    int                  `json:"failure_count"`
	Taxonomy        TaxonomyAssignment   `json:"taxonomy"`
}

// SignatureStats are per-run aggregates keyed by (run, signature) (§3).
// Created during candidate selection; never updated after the run finishes.
type SignatureStats struct {
	RunID              string             `json:"run_id"`
	Signature          string             `json:"signature"`
	AccessCount        int64              `json:"access_count"`
	UniqueUserCount    int64              `json:"unique_user_count"`
	BytesUpSum         int64              `json:"bytes_up_sum"`
	BytesUpMax         int64              `json:"bytes_up_max"`
	BytesUpP95         int64              `json:"bytes_up_p95"`
	BurstMax5Min       int64              `json:"burst_max_5min"`
	DailyCumulativeMax int64              `json:"daily_cumulative_max"`
	CandidateFlags     []CandidateFlag    `json:"candidate_flags"`
	Sampled            bool               `json:"sampled"`
	TaxonomyEcho       TaxonomyAssignment `json:"taxonomy_echo"`
}

// RunStatus is the terminal or in-flight state of a run (§3, §8 S8).
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Stage names the orchestrator's pipeline stages, in execution order. Index
// position doubles as the checkpoint ordinal stored on Run.
type Stage string

const (
	StageIngestion    Stage = "ingestion"
	StageCanonicalize Stage = "canonicalize"
	StageSignature    Stage = "signature"
	StageSelection    Stage = "selection"
	StageRuleClassify Stage = "rule_classify"
	StageLLMAnalysis  Stage = "llm_analysis"
	StageEvidence     Stage = "evidence"
)

// Stages lists every pipeline stage in execution order.
var Stages = []Stage{
	StageIngestion,
	StageCanonicalize,
	StageSignature,
	StageSelection,
	StageRuleClassify,
	StageLLMAnalysis,
	StageEvidence,
}

// Run is execution metadata for one pipeline run (§3, §4.8).
type Run struct {
	RunID                   string           `json:"run_id"`
	RunKey                  string           `json:"run_key"`
	StartedAt               time.Time        `json:"started_at"`
	FinishedAt              *time.Time       `json:"finished_at,omitempty"`
	Status                  RunStatus        `json:"status"`
	LastCompletedStage      Stage            `json:"last_completed_stage"`
	InputManifestHash       string           `json:"input_manifest_hash"`
	Pinned                  PinnedVersions   `json:"pinned_versions"`
	TaxonomyArtifactVersion string           `json:"taxonomy_artifact_version"`
	TaxonomyArtifactCommit  string           `json:"taxonomy_artifact_commit"`
	AggregateCounters       map[string]int64 `json:"aggregate_counters"`
}

// PIIKind names a category of redacted data (§3).
type PIIKind string

const (
	PIIKindEmail      PIIKind = "email"
	PIIKindIPv4       PIIKind = "ipv4"
	PIIKindUUID       PIIKind = "uuid"
	PIIKindHex        PIIKind = "hex"
	PIIKindBase64Like PIIKind = "base64-like"
	PIIKindNumericID  PIIKind = "numeric_id"
)
