package canon

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// PSL is a parsed Public Suffix List snapshot. It is loaded once from a
// pinned file on disk — never fetched over the network and never
// substituted with a compiled-in default — so that registrable-domain
// extraction is reproducible across runs and the exact input is auditable
// by hash.
//
// golang.org/x/net/publicsuffix bakes a single list version into the
// binary at build time and exposes no API to load a caller-supplied
// snapshot, which is incompatible with the pinned-snapshot requirement
// here; the lookup algorithm below reimplements the (publicly documented,
// vendor-neutral) PSL matching algorithm over a snapshot file instead. See
// DESIGN.md for the full justification.
type PSL struct {
	exact     map[string]bool
	wildcard  map[string]bool
	exception map[string]bool
	hash      string
}

// LoadPSL parses a Public Suffix List snapshot file and records its SHA-256
// so the run's pinned-versions record can attest to the exact input used.
// A missing or unparseable snapshot is fatal — there is no heuristic
// fallback for registrable-domain extraction.
func LoadPSL(path string) (*PSL, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("canon: load PSL snapshot: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	p := &PSL{
		exact:     make(map[string]bool),
		wildcard:  make(map[string]bool),
		exception: make(map[string]bool),
	}

	scanner := bufio.NewScanner(io.TeeReader(f, h))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		line = strings.ToLower(line)
		switch {
		case strings.HasPrefix(line, "*."):
			p.wildcard[line[2:]] = true
		case strings.HasPrefix(line, "!"):
			p.exception[line[1:]] = true
		default:
			p.exact[line] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("canon: read PSL snapshot: %w", err)
	}
	if len(p.exact) == 0 && len(p.wildcard) == 0 {
		return nil, fmt.Errorf("canon: PSL snapshot %q contains no rules", path)
	}

	p.hash = hex.EncodeToString(h.Sum(nil))
	return p, nil
}

// SnapshotHash is the SHA-256 of the raw PSL file, recorded in pinned
// versions for audit.
func (p *PSL) SnapshotHash() string {
	return p.hash
}

// RegistrableDomain returns the eTLD+1 of host (e.g. "example.co.uk" for
// "www.example.co.uk"), or an error if host has no registrable part under
// this list (it is itself a public suffix, or has too few labels).
func (p *PSL) RegistrableDomain(host string) (string, error) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	labels := strings.Split(host, ".")
	if len(labels) == 0 || labels[0] == "" {
		return "", fmt.Errorf("canon: empty host")
	}

	bestK := 0
	bestIsException := false
	for k := 1; k <= len(labels); k++ {
		candidate := strings.Join(labels[len(labels)-k:], ".")

		isException := p.exception[candidate]
		isExact := p.exact[candidate]
		isWildcard := false
		if k >= 2 {
			rest := strings.Join(labels[len(labels)-k+1:], ".")
			isWildcard = p.wildcard[rest]
		}

		if isException || isExact || isWildcard {
			if k > bestK {
				bestK = k
				bestIsException = isException
			} else if k == bestK && isException {
				bestIsException = true
			}
		}
	}

	if bestK == 0 {
		// Implicit "*" rule: the last label alone is the public suffix.
		bestK = 1
	}

	publicSuffixLabels := bestK
	if bestIsException {
		publicSuffixLabels = bestK - 1
	}

	if publicSuffixLabels >= len(labels) {
		return "", fmt.Errorf("canon: %q has no registrable domain under the public suffix", host)
	}

	registrableLabels := publicSuffixLabels + 1
	return strings.Join(labels[len(labels)-registrableLabels:], "."), nil
}
