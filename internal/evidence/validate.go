package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/shadowai/internal/ir"
)

// Validate re-derives every index digest, hash-chain link, and signature
// in the bundle at dir and reports the first mismatch. It is the same
// check Emit runs on its own output before returning success; calling it
// independently lets a later process (e.g. an "inspect" CLI subcommand)
// verify a bundle it did not itself produce.
func Validate(dir string, signingKey []byte) error {
	manifestPath := filepath.Join(dir, "manifest.json")
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("validate: read manifest.json: %w", err)
	}

	var raw struct {
		BundleID      string         `json:"bundle_id"`
		BundleVersion string         `json:"bundle_version"`
		CreatedAt     string         `json:"created_at"`
		ScopeRef      string         `json:"scope_ref"`
		ObjectIndex   []IndexEntry   `json:"object_index"`
		PayloadIndex  []IndexEntry   `json:"payload_index"`
		HashChain     []ChainEntry   `json:"hash_chain"`
		Signing       []SignatureRef `json:"signing"`
	}
	if err := json.Unmarshal(manifestBytes, &raw); err != nil {
		return fmt.Errorf("validate: unmarshal manifest.json: %w", err)
	}

	for _, entry := range append(append([]IndexEntry{}, raw.ObjectIndex...), raw.PayloadIndex...) {
		if err := validateFileDigest(dir, entry); err != nil {
			return err
		}
	}

	if len(raw.HashChain) < 2 {
		return fmt.Errorf("validate: hash chain has %d entries, want at least 2 (objects index, manifest)", len(raw.HashChain))
	}
	objectsData, err := os.ReadFile(filepath.Join(dir, "objects", "index.json"))
	if err != nil {
		return fmt.Errorf("validate: read objects/index.json: %w", err)
	}
	c := newChain()
	objectsEntry := c.add("objects/index.json", objectsData)
	if objectsEntry.Digest != raw.HashChain[0].Digest {
		return fmt.Errorf("validate: hash chain entry 0 digest mismatch for objects/index.json")
	}

	manifestCoreBytes, err := manifestCoreBytesFromDisk(raw.BundleID, raw.BundleVersion, raw.CreatedAt, raw.ScopeRef, raw.ObjectIndex, raw.PayloadIndex)
	if err != nil {
		return fmt.Errorf("validate: rebuild manifest core: %w", err)
	}
	manifestEntry := c.add("manifest.json", manifestCoreBytes)
	if manifestEntry.Digest != raw.HashChain[1].Digest {
		return fmt.Errorf("validate: hash chain entry 1 (head) digest mismatch for manifest.json")
	}

	if len(raw.Signing) == 0 {
		return fmt.Errorf("validate: no signature present, need at least one entry referencing manifest.json")
	}
	foundManifestTarget := false
	for _, ref := range raw.Signing {
		if ref.Target != "manifest.json" {
			continue
		}
		foundManifestTarget = true
		if signingKey != nil && !verifySignature(signingKey, ref.Digest, ref) {
			return fmt.Errorf("validate: signature for manifest.json does not verify")
		}
	}
	if !foundManifestTarget {
		return fmt.Errorf("validate: no signature entry targets manifest.json")
	}

	return nil
}

func validateFileDigest(dir string, entry IndexEntry) error {
	data, err := os.ReadFile(filepath.Join(dir, entry.Path))
	if err != nil {
		return fmt.Errorf("validate: read %s: %w", entry.Path, err)
	}
	if got := digestBytes(data); got != entry.Digest {
		return fmt.Errorf("validate: digest mismatch for %s: index says %s, file hashes to %s", entry.Path, entry.Digest, got)
	}
	return nil
}

// manifestCoreBytesFromDisk rebuilds the exact canonical bytes Emit
// hashed for manifest.json before hash_chain/signing were attached, so
// Validate can recompute the chain's second link independently.
func manifestCoreBytesFromDisk(bundleID, bundleVersion, createdAt, scopeRef string, objectIndex, payloadIndex []IndexEntry) ([]byte, error) {
	return ir.MarshalCanonical(map[string]any{
		"bundle_id":      bundleID,
		"bundle_version": bundleVersion,
		"created_at":     createdAt,
		"scope_ref":      scopeRef,
		"object_index":   indexEntriesToCanonical(objectIndex),
		"payload_index":  indexEntriesToCanonical(payloadIndex),
	})
}
