package canon

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/idna"

	"github.com/roach88/shadowai/internal/ir"
)

// PIIDetection is one token-abstraction event surfaced during
// canonicalization. The caller (the orchestrator's canonicalize stage)
// decides how much of Original to retain; canon itself never persists it.
type PIIDetection struct {
	Kind        ir.PIIKind
	FieldSource string // "path" or "query:<key>"
	Token       string
	Original    string
}

// Result is the outcome of canonicalizing a single URL.
type Result struct {
	NormalizedHost  string
	NormalizedPath  string
	NormalizedQuery string
	PathDepth       int
	ParamCount      int
	AuthTokenLike   bool
	PII             []PIIDetection
}

// Canonicalizer applies the fixed five-step normalization pipeline (§4.2):
// parse, host/IDN normalize, path collapse, query filter, PII token
// abstraction.
type Canonicalizer struct {
	cfg Config
	psl *PSL
}

// New builds a Canonicalizer. Loading the PSL snapshot happens once here;
// per the PSL's own contract, a missing or corrupt snapshot is a
// construction-time error, never a per-row one.
func New(pslPath string, cfg Config) (*Canonicalizer, error) {
	psl, err := LoadPSL(pslPath)
	if err != nil {
		return nil, err
	}
	return &Canonicalizer{cfg: cfg, psl: psl}, nil
}

// PSLHash is the SHA-256 of the loaded PSL snapshot, recorded in a run's
// pinned versions.
func (c *Canonicalizer) PSLHash() string {
	return c.psl.SnapshotHash()
}

// RegistrableDomain delegates to the loaded PSL. A lookup failure (host has
// no eTLD+1, e.g. a bare single-label internal hostname) is not fatal to
// the run — the caller degrades the row to a parse error.
func (c *Canonicalizer) RegistrableDomain(host string) (string, error) {
	return c.psl.RegistrableDomain(host)
}

// Canonicalize normalizes rawURL into a Result. A malformed URL returns an
// error; the caller is responsible for counting it as a parse error rather
// than failing the run.
func (c *Canonicalizer) Canonicalize(rawURL string) (Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Result{}, fmt.Errorf("canon: empty URL")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("canon: parse URL: %w", err)
	}
	if u.Hostname() == "" {
		return Result{}, fmt.Errorf("canon: URL has no host")
	}

	host, err := normalizeHost(u.Hostname(), u.Port())
	if err != nil {
		return Result{}, fmt.Errorf("canon: normalize host: %w", err)
	}

	var pii []PIIDetection
	normPath, pathDepth := c.normalizePath(u.Path, &pii)
	normQuery, paramCount, authLike := c.normalizeQuery(u.Query(), &pii)

	return Result{
		NormalizedHost:  host,
		NormalizedPath:  normPath,
		NormalizedQuery: normQuery,
		PathDepth:       pathDepth,
		ParamCount:      paramCount,
		AuthTokenLike:   authLike,
		PII:             pii,
	}, nil
}

func normalizeHost(hostname, port string) (string, error) {
	hostname = strings.ToLower(hostname)
	ascii, err := idna.Lookup.ToASCII(hostname)
	if err != nil {
		return "", fmt.Errorf("IDN conversion of %q: %w", hostname, err)
	}
	if port == "" || port == "80" || port == "443" {
		return ascii, nil
	}
	return ascii + ":" + port, nil
}

func (c *Canonicalizer) normalizePath(p string, pii *[]PIIDetection) (string, int) {
	if p == "" || p == "/" {
		return "/", 0
	}

	cleaned := path.Clean(p)
	segments := strings.Split(strings.Trim(cleaned, "/"), "/")

	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if token, kind, matched := abstractToken(seg); matched {
			*pii = append(*pii, PIIDetection{
				Kind:        kind,
				FieldSource: "path",
				Token:       token,
				Original:    seg,
			})
			out = append(out, token)
		} else {
			out = append(out, seg)
		}
	}

	return "/" + strings.Join(out, "/"), len(out)
}

func (c *Canonicalizer) normalizeQuery(q url.Values, pii *[]PIIDetection) (string, int, bool) {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var kept []string
	authLike := false
	for _, k := range keys {
		if c.cfg.isTracking(k) {
			continue
		}
		vals := q[k]
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		if !c.cfg.isAllowed(k) {
			continue
		}

		v := vals[0]
		if token, kind, matched := abstractToken(v); matched {
			*pii = append(*pii, PIIDetection{
				Kind:        kind,
				FieldSource: "query:" + k,
				Token:       token,
				Original:    v,
			})
			v = token
			if kind == ir.PIIKindUUID || kind == ir.PIIKindHex || kind == ir.PIIKindBase64Like {
				authLike = true
			}
		}
		kept = append(kept, k+"="+v)
	}

	return strings.Join(kept, "&"), len(kept), authLike
}
