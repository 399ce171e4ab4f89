package evidence

import "time"

// BundleVersion is the evidence bundle schema version recorded on every
// manifest.json; bumped only on a breaking layout change.
const BundleVersion = "1"

// IndexEntry records one file's relative path and content digest, the
// shape shared by manifest.object_index and manifest.payload_index.
type IndexEntry struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
}

// ChainEntry is one hash-chain record in hashes/: its own digest folds in
// the previous entry's digest, so the chain's head digest transitively
// covers every prior entry.
type ChainEntry struct {
	Path   string `json:"path"`
	Digest string `json:"digest"` // sha256(prev_digest || sha256(file_bytes))
}

// SignatureRef is one entry under signatures/, referencing a target file
// in the bundle by relative path and digest.
type SignatureRef struct {
	Target    string `json:"target"`
	Digest    string `json:"digest"`
	Algorithm string `json:"algorithm"`
	Signature string `json:"signature"`
}

// Manifest is manifest.json: the bundle's self-describing index.
type Manifest struct {
	BundleID      string         `json:"bundle_id"`
	BundleVersion string         `json:"bundle_version"`
	CreatedAt     time.Time      `json:"created_at"`
	ScopeRef      string         `json:"scope_ref"`
	ObjectIndex   []IndexEntry   `json:"object_index"`
	PayloadIndex  []IndexEntry   `json:"payload_index"`
	HashChain     []ChainEntry   `json:"hash_chain"`
	Signing       []SignatureRef `json:"signing"`
}
