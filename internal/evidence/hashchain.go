package evidence

import (
	"crypto/sha256"
	"encoding/hex"
)

// digestBytes returns the plain (non-chained) SHA-256 digest used for
// object_index/payload_index entries — one digest per file, independent
// of write order.
func digestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// chain accumulates ChainEntry records in hashes/: each entry's digest
// folds the previous entry's digest in with the new content's own plain
// digest, so the last entry (the "head") transitively covers every prior
// one — per spec, the head digest covers the manifest and the objects
// index, which this builder treats as a two-entry chain: the objects
// index first, the manifest content second.
type chain struct {
	prev    string
	entries []ChainEntry
}

func newChain() *chain {
	// Genesis value: digest of the empty byte string, so the first
	// entry's digest is still a pure function of its own content plus a
	// fixed, content-independent starting point.
	return &chain{prev: digestBytes(nil)}
}

func (c *chain) add(path string, content []byte) ChainEntry {
	own := digestBytes(content)
	h := sha256.New()
	h.Write([]byte(c.prev))
	h.Write([]byte(own))
	linked := hex.EncodeToString(h.Sum(nil))

	entry := ChainEntry{Path: path, Digest: linked}
	c.entries = append(c.entries, entry)
	c.prev = linked
	return entry
}

func (c *chain) head() string {
	return c.prev
}
