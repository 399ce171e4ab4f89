package selector

import (
	"encoding/binary"
	"encoding/hex"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/roach88/shadowai/internal/ir"
)

// EventInput is the subset of a canonical event the selector needs. The
// orchestrator maps ir.CanonicalEvent + ir.Signature into this shape.
type EventInput struct {
	Signature       string
	UserID          string
	DestRegistrable string
	Timestamp       time.Time
	Method          ir.MethodGroup
	BytesUp         int64
	CategoryHint    string
}

// Result is the output of one selection pass: per-signature statistics
// (with candidate flags and sampling decision already attached) plus the
// count of coverage-eligible signatures that were not sampled.
type Result struct {
	Stats          map[string]*ir.SignatureStats
	ExclusionCount int64
}

type userDomainKey struct {
	user   string
	domain string
}

type userDomainDayKey struct {
	user   string
	domain string
	day    string // YYYY-MM-DD, UTC
}

// Select runs the full A/B/C pass. It is a pure aggregation: the result is
// independent of the input slice's order.
func Select(events []EventInput, cfg Config, runID string) Result {
	stats := make(map[string]*ir.SignatureStats)
	users := make(map[string]map[string]bool) // signature -> set of user ids

	// Pass 1: per-signature aggregates, plus raw bytes for percentile/max,
	// plus the flag-A check.
	bytesBySig := make(map[string][]int64)
	for _, e := range events {
		st, ok := stats[e.Signature]
		if !ok {
			st = &ir.SignatureStats{RunID: runID, Signature: e.Signature}
			stats[e.Signature] = st
			users[e.Signature] = make(map[string]bool)
		}
		st.AccessCount++
		users[e.Signature][e.UserID] = true
		st.BytesUpSum += e.BytesUp
		if e.BytesUp > st.BytesUpMax {
			st.BytesUpMax = e.BytesUp
		}
		bytesBySig[e.Signature] = append(bytesBySig[e.Signature], e.BytesUp)

		if e.BytesUp >= cfg.VolumeThreshold {
			addFlag(st, ir.CandidateA)
		}
	}
	for sigVal, st := range stats {
		st.UniqueUserCount = int64(len(users[sigVal]))
		st.BytesUpP95 = percentile95(bytesBySig[sigVal])
	}

	// Pass 2: (user, domain) burst and daily-cumulative tracking, computed
	// across ALL write events regardless of signature — burst is a
	// property of the actor/destination pair, not of a single signature.
	writesByPair := make(map[userDomainKey][]time.Time)
	dailyByPair := make(map[userDomainDayKey]int64)
	for _, e := range events {
		key := userDomainKey{e.UserID, e.DestRegistrable}
		if e.Method == ir.MethodGroupWRITE {
			writesByPair[key] = append(writesByPair[key], e.Timestamp)
		}
		day := e.Timestamp.UTC().Format("2006-01-02")
		dailyKey := userDomainDayKey{e.UserID, e.DestRegistrable, day}
		dailyByPair[dailyKey] += e.BytesUp
	}

	burstMaxByPair := make(map[userDomainKey]int64)
	for key, times := range writesByPair {
		burstMaxByPair[key] = maxBurstWindow(times, cfg.BurstWindow)
	}
	dailyMaxByPair := make(map[userDomainKey]int64)
	for key, sum := range dailyByPair {
		pair := userDomainKey{key.user, key.domain}
		if sum > dailyMaxByPair[pair] {
			dailyMaxByPair[pair] = sum
		}
	}

	// Pass 3: flag B — requires at least one write event on the signature,
	// plus a risky category hint, a qualifying burst, or a qualifying
	// daily cumulative on any (user, domain) pair the signature touched.
	hasWrite := make(map[string]bool)
	riskyHint := make(map[string]bool)
	pairsTouched := make(map[string]map[userDomainKey]bool)
	for _, e := range events {
		if e.Method == ir.MethodGroupWRITE {
			hasWrite[e.Signature] = true
		}
		if cfg.isRiskyCategory(e.CategoryHint) {
			riskyHint[e.Signature] = true
		}
		if pairsTouched[e.Signature] == nil {
			pairsTouched[e.Signature] = make(map[userDomainKey]bool)
		}
		pairsTouched[e.Signature][userDomainKey{e.UserID, e.DestRegistrable}] = true
	}

	for sigVal, st := range stats {
		if !hasWrite[sigVal] {
			continue
		}
		qualifies := riskyHint[sigVal]
		var burstMax, dailyMax int64
		for pair := range pairsTouched[sigVal] {
			if b := burstMaxByPair[pair]; b > burstMax {
				burstMax = b
			}
			if d := dailyMaxByPair[pair]; d > dailyMax {
				dailyMax = d
			}
		}
		st.BurstMax5Min = burstMax
		st.DailyCumulativeMax = dailyMax
		if burstMax >= int64(cfg.BurstWriteThreshold) {
			qualifies = true
		}
		if dailyMax >= cfg.DailyCumulativeThreshold {
			qualifies = true
		}
		if qualifies {
			addFlag(st, ir.CandidateB)
		}
	}

	// Pass 4: flag C — coverage sample over signatures not flagged A or B
	// whose max observed bytes_sent is below the volume threshold. The
	// draw is an independent, order-invariant hash of (runID, signature),
	// never a shared sequentially-advanced generator.
	var exclusions int64
	sigKeys := make([]string, 0, len(stats))
	for k := range stats {
		sigKeys = append(sigKeys, k)
	}
	sort.Strings(sigKeys) // deterministic iteration for reproducible logging only

	for _, sigVal := range sigKeys {
		st := stats[sigVal]
		if hasFlag(st, ir.CandidateA) || hasFlag(st, ir.CandidateB) {
			continue
		}
		if st.BytesUpMax >= cfg.VolumeThreshold {
			continue
		}
		if drawCoverage(runID, sigVal, cfg.CoverageSampleRate) {
			addFlag(st, ir.CandidateC)
			st.Sampled = true
		} else {
			exclusions++
		}
	}

	return Result{Stats: stats, ExclusionCount: exclusions}
}

func addFlag(st *ir.SignatureStats, f ir.CandidateFlag) {
	if hasFlag(st, f) {
		return
	}
	st.CandidateFlags = append(st.CandidateFlags, f)
}

func hasFlag(st *ir.SignatureStats, f ir.CandidateFlag) bool {
	for _, existing := range st.CandidateFlags {
		if existing == f {
			return true
		}
	}
	return false
}

// maxBurstWindow returns the largest count of timestamps falling within
// any window of length w, using the left-open/right-closed convention
// (t-w, t].
func maxBurstWindow(times []time.Time, w time.Duration) int64 {
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var maxCount int64
	left := 0
	for right := 0; right < len(sorted); right++ {
		for sorted[right].Sub(sorted[left]) > w {
			left++
		}
		count := int64(right - left + 1)
		if count > maxCount {
			maxCount = count
		}
	}
	return maxCount
}

func percentile95(vals []int64) int64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]int64, len(vals))
	copy(sorted, vals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * 0.95)
	return sorted[idx]
}

// drawCoverage makes a deterministic, order-independent inclusion draw for
// one signature: the PRNG is seeded purely from (runID, signature), never
// advanced across a shared stream, so the result does not depend on the
// order signatures are visited in.
func drawCoverage(runID, signature string, rate float64) bool {
	if rate <= 0 {
		return false
	}
	seedHash := ir.MustCanonicalHash("shadowai/coverage/v1", map[string]any{
		"run_id":    runID,
		"signature": signature,
	})
	raw, err := hex.DecodeString(seedHash[:32])
	if err != nil {
		return false // unreachable: seedHash is always a well-formed hex digest
	}
	seed1 := binary.BigEndian.Uint64(raw[0:8])
	seed2 := binary.BigEndian.Uint64(raw[8:16])

	r := rand.New(rand.NewPCG(seed1, seed2))
	return r.Float64() < rate
}
