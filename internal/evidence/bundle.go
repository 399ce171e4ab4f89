package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/shadowai/internal/ir"
)

// ChangeLogEntry records one classification field that changed as a
// result of this run, for payloads/change_log.json.
type ChangeLogEntry struct {
	Signature string `json:"signature"`
	Field     string `json:"field"`
	Before    string `json:"before"`
	After     string `json:"after"`
}

// BundleInput is everything the emitter needs to seal one run's
// evidence bundle. Every field here is either a pure function of the
// run's committed rows or of run.StartedAt — nothing reads time.Now(),
// so two emissions for the same run key produce byte-identical files.
type BundleInput struct {
	Run             ir.Run
	ScopeRef        string
	Classifications []ir.Classification
	SignatureStats  []ir.SignatureStats
	ChangeLog       []ChangeLogEntry
	Dictionary      map[string][]string // taxonomy dimension -> allowed codes
	SigningKey      []byte
}

// Emit writes the deterministic evidence bundle tree under dir (created
// if absent) and returns the sealed manifest. It calls Validate on its
// own output before returning success — a validator failure is returned
// as an error so the caller can set the run to failed, never partial.
func Emit(dir string, in BundleInput, idGen IDGenerator) (Manifest, error) {
	for _, sub := range []string{"objects", "payloads", "payloads/analysis", "payloads/logs", "signatures", "hashes"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return Manifest{}, fmt.Errorf("emit: mkdir %s: %w", sub, err)
		}
	}

	payloadIndex, err := writePayloads(dir, in)
	if err != nil {
		return Manifest{}, fmt.Errorf("emit: %w", err)
	}

	objectIndex, objectsContent, err := writeObjects(dir, in, payloadIndex)
	if err != nil {
		return Manifest{}, fmt.Errorf("emit: %w", err)
	}

	manifestCore := map[string]any{
		"bundle_id":      idGen.Generate(),
		"bundle_version": BundleVersion,
		"created_at":     in.Run.StartedAt.UTC().Format(canonicalTimeFormat),
		"scope_ref":      in.ScopeRef,
		"object_index":   indexEntriesToCanonical(objectIndex),
		"payload_index":  indexEntriesToCanonical(payloadIndex),
	}
	manifestCoreBytes, err := ir.MarshalCanonical(manifestCore)
	if err != nil {
		return Manifest{}, fmt.Errorf("emit: marshal manifest core: %w", err)
	}

	c := newChain()
	c.add("objects/index.json", objectsContent)
	c.add("manifest.json", manifestCoreBytes)

	manifest := Manifest{
		BundleID:      manifestCore["bundle_id"].(string),
		BundleVersion: BundleVersion,
		CreatedAt:     in.Run.StartedAt.UTC(),
		ScopeRef:      in.ScopeRef,
		ObjectIndex:   objectIndex,
		PayloadIndex:  payloadIndex,
		HashChain:     c.entries,
	}

	manifestWithChain, err := canonicalManifest(manifest)
	if err != nil {
		return Manifest{}, fmt.Errorf("emit: marshal manifest with chain: %w", err)
	}
	manifestDigest := digestBytes(manifestWithChain)
	sigRef := signManifest(in.SigningKey, manifestDigest)
	manifest.Signing = []SignatureRef{sigRef}

	finalManifest, err := canonicalManifest(manifest)
	if err != nil {
		return Manifest{}, fmt.Errorf("emit: marshal final manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), finalManifest, 0o644); err != nil {
		return Manifest{}, fmt.Errorf("emit: write manifest.json: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, "hashes", "chain.json"), c.entries); err != nil {
		return Manifest{}, fmt.Errorf("emit: write hash chain: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, "signatures", "sig.json"), manifest.Signing); err != nil {
		return Manifest{}, fmt.Errorf("emit: write signature: %w", err)
	}

	if err := Validate(dir, in.SigningKey); err != nil {
		return Manifest{}, fmt.Errorf("emit: bundle failed self-validation: %w", err)
	}

	return manifest, nil
}

// canonicalTimeFormat is RFC 3339 with a fixed-precision fraction, so the
// same instant always serializes to the same string regardless of the
// monotonic reading attached to the in-memory time.Time.
const canonicalTimeFormat = "2006-01-02T15:04:05.000000000Z"

// canonicalManifest re-derives the canonical-JSON form of manifest for
// hashing/signing and for the on-disk manifest.json — the same map shape
// as manifestCore in Emit, plus hash_chain and signing.
func canonicalManifest(m Manifest) ([]byte, error) {
	return ir.MarshalCanonical(map[string]any{
		"bundle_id":      m.BundleID,
		"bundle_version": m.BundleVersion,
		"created_at":     m.CreatedAt.UTC().Format(canonicalTimeFormat),
		"scope_ref":      m.ScopeRef,
		"object_index":   indexEntriesToCanonical(m.ObjectIndex),
		"payload_index":  indexEntriesToCanonical(m.PayloadIndex),
		"hash_chain":     chainEntriesToCanonical(m.HashChain),
		"signing":        signingToCanonical(m.Signing),
	})
}

func indexEntriesToCanonical(entries []IndexEntry) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{"path": e.Path, "digest": e.Digest}
	}
	return out
}

func chainEntriesToCanonical(entries []ChainEntry) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{"path": e.Path, "digest": e.Digest}
	}
	return out
}

func signingToCanonical(refs []SignatureRef) []any {
	out := make([]any, len(refs))
	for i, r := range refs {
		out[i] = map[string]any{
			"target":    r.Target,
			"digest":    r.Digest,
			"algorithm": r.Algorithm,
			"signature": r.Signature,
		}
	}
	return out
}

// writePayloads writes every file under payloads/ and returns their
// index entries in a fixed, deterministic order.
func writePayloads(dir string, in BundleInput) ([]IndexEntry, error) {
	type file struct {
		relPath string
		value   any
	}
	dictionary := in.Dictionary
	if dictionary == nil {
		dictionary = map[string][]string{}
	}
	changeLog := in.ChangeLog
	if changeLog == nil {
		changeLog = []ChangeLogEntry{}
	}

	files := []file{
		{"payloads/run_manifest.json", in.Run},
		{"payloads/evidence_pack_manifest.json", map[string]any{
			"bundle_version": BundleVersion,
			"scope_ref":      in.ScopeRef,
			"run_id":         in.Run.RunID,
		}},
		{"payloads/dictionary.json", dictionary},
		{"payloads/summary.json", map[string]any{
			"aggregate_counters":    in.Run.AggregateCounters,
			"classification_count":  len(in.Classifications),
			"signature_stats_count": len(in.SignatureStats),
			"status":                in.Run.Status,
		}},
		{"payloads/change_log.json", changeLog},
		{"payloads/analysis/classifications.json", in.Classifications},
		{"payloads/analysis/signature_stats.json", in.SignatureStats},
		{"payloads/logs/run.log", []string{fmt.Sprintf("run %s reached stage %s", in.Run.RunID, in.Run.LastCompletedStage)}},
	}

	index := make([]IndexEntry, 0, len(files))
	for _, f := range files {
		data, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", f.relPath, err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.relPath), data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.relPath, err)
		}
		index = append(index, IndexEntry{Path: f.relPath, Digest: digestBytes(data)})
	}
	return index, nil
}

// writeObjects writes objects/index.json — the single enumerable index
// object summarizing the payload set — and returns its own index entry
// plus the raw bytes written, so the caller can feed them into the hash
// chain without re-reading the file.
func writeObjects(dir string, in BundleInput, payloadIndex []IndexEntry) ([]IndexEntry, []byte, error) {
	paths := make([]string, len(payloadIndex))
	for i, e := range payloadIndex {
		paths[i] = e.Path
	}
	data, err := json.Marshal(map[string]any{
		"run_id":  in.Run.RunID,
		"entries": paths,
		"count":   len(paths),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal objects/index.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "objects", "index.json"), data, 0o644); err != nil {
		return nil, nil, fmt.Errorf("write objects/index.json: %w", err)
	}
	return []IndexEntry{{Path: "objects/index.json", Digest: digestBytes(data)}}, data, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
