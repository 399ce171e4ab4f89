package taxonomy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/shadowai/internal/ir"
)

// Cardinality is the allowed [Min, Max] count for one taxonomy dimension.
// Max of 0 means unbounded.
type Cardinality struct {
	Min int
	Max int
}

func (c Cardinality) satisfies(n int) bool {
	if n < c.Min {
		return false
	}
	if c.Max > 0 && n > c.Max {
		return false
	}
	return true
}

// Violation is one cardinality or unknown-code failure found by Validate.
type Violation struct {
	Dimension ir.TaxonomyDimension
	Message   string
}

// Artifact is a loaded, pinned taxonomy artifact.
type Artifact struct {
	Version string
	Commit  string
	DirHash string

	allowed     map[ir.TaxonomyDimension]map[string]bool
	cardinality map[ir.TaxonomyDimension]Cardinality
}

// Load reads a taxonomy artifact directory:
//
//	VERSION            plain-text artifact version
//	COMMIT              plain-text source commit
//	cardinality.json    {"<dimension>": {"min": N, "max": N}, ...}
//	codes/<dimension>.txt   one allowed code per line
//
// The directory hash is computed over every regular file's content,
// sorted by relative path, domain-separated exactly like any other
// content hash in this system — so an artifact pin check is just a
// string comparison against the run's recorded hash.
func Load(dir string) (*Artifact, error) {
	version, err := readTrimmed(filepath.Join(dir, "VERSION"))
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read VERSION: %w", err)
	}
	commit, err := readTrimmed(filepath.Join(dir, "COMMIT"))
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read COMMIT: %w", err)
	}

	cardinality, err := loadCardinality(filepath.Join(dir, "cardinality.json"))
	if err != nil {
		return nil, fmt.Errorf("taxonomy: load cardinality: %w", err)
	}

	allowed := make(map[ir.TaxonomyDimension]map[string]bool)
	for _, dim := range ir.AllDimensions {
		codes, err := loadCodes(filepath.Join(dir, "codes", string(dim)+".txt"))
		if err != nil {
			return nil, fmt.Errorf("taxonomy: load codes for %s: %w", dim, err)
		}
		allowed[dim] = codes
	}

	dirHash, err := hashDir(dir)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: hash artifact directory: %w", err)
	}

	return &Artifact{
		Version:     version,
		Commit:      commit,
		DirHash:     dirHash,
		allowed:     allowed,
		cardinality: cardinality,
	}, nil
}

// AllowedCodes returns the configured codes for a dimension, sorted. An
// empty result means the dimension places no restriction on codes (only
// cardinality applies).
func (a *Artifact) AllowedCodes(dim ir.TaxonomyDimension) []string {
	set := a.allowed[dim]
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Cardinality returns the configured [min, max] for a dimension.
func (a *Artifact) Cardinality(dim ir.TaxonomyDimension) (min, max int) {
	c := a.cardinality[dim]
	return c.Min, c.Max
}

// Validate checks an assignment's cardinality and code membership for
// every dimension, returning every violation found (never fails fast —
// callers want the complete picture for audit).
func (a *Artifact) Validate(assignment ir.TaxonomyAssignment) []Violation {
	var violations []Violation
	for _, dim := range ir.AllDimensions {
		codes := assignment.Get(dim)
		card := a.cardinality[dim]
		if !card.satisfies(len(codes)) {
			violations = append(violations, Violation{
				Dimension: dim,
				Message:   fmt.Sprintf("expected %d-%d codes, got %d", card.Min, card.Max, len(codes)),
			})
		}

		allowed := a.allowed[dim]
		if len(allowed) == 0 {
			continue
		}
		for _, c := range codes {
			if !allowed[c] {
				violations = append(violations, Violation{
					Dimension: dim,
					Message:   fmt.Sprintf("code %q is not in the allowed set", c),
				})
			}
		}
	}
	return violations
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func loadCardinality(path string) (map[ir.TaxonomyDimension]Cardinality, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]Cardinality
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	out := make(map[ir.TaxonomyDimension]Cardinality, len(raw))
	for k, v := range raw {
		out[ir.TaxonomyDimension(k)] = v
	}
	return out, nil
}

func loadCodes(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	codes := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		codes[line] = true
	}
	return codes, scanner.Err()
}

func hashDir(dir string) (string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				return relErr
			}
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(paths)

	contents := make(map[string]string, len(paths))
	for _, rel := range paths {
		b, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			return "", err
		}
		contents[rel] = string(b)
	}
	return ir.CanonicalHash(ir.DomainTaxonomyArtifact, map[string]any{"files": contents})
}
