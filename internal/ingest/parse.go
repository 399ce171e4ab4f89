package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/shadowai/internal/ir"
)

// defaultTimestampLayout is used when a mapping doesn't specify its own
// (most vendor logs use RFC 3339).
const defaultTimestampLayout = time.RFC3339

// Config bounds how tolerant Parse's caller is of unparseable rows.
type Config struct {
	MaxParseErrorRate float64 // e.g. 0.05 = fail if more than 5% of rows are unparseable
}

// Parse reads one vendor log file and maps each row to a CanonicalEvent
// shell: the raw, pre-canonicalization fields only — NormalizedPath,
// NormalizedQuery, and DestRegistrable are left zero-valued for the
// canonicalize stage to fill in. A row missing a required field, with an
// unparseable timestamp, or with a malformed integer column is counted
// in parseErrors and skipped; it never fails the parse outright.
func Parse(r io.Reader, mapping VendorMapping) (events []ir.CanonicalEvent, parseErrors int, err error) {
	reader := csv.NewReader(r)
	reader.Comma = mapping.resolveDelimiter()
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("ingest: read header: %w", err)
	}

	columns := make(map[CanonicalField]int, len(mapping.Fields))
	for field, fm := range mapping.Fields {
		if idx, ok := fm.columnIndex(header); ok {
			columns[field] = idx
		}
	}
	for _, required := range RequiredFields {
		if _, ok := columns[required]; !ok {
			return nil, 0, fmt.Errorf("ingest: required field %q has no matching column in header %v", required, header)
		}
	}

	layout := mapping.TimestampLayout
	if layout == "" {
		layout = defaultTimestampLayout
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			parseErrors++
			continue
		}

		event, ok := parseRow(record, columns, mapping, layout)
		if !ok {
			parseErrors++
			continue
		}
		events = append(events, event)
	}

	return events, parseErrors, nil
}

// ParseWithThreshold wraps Parse and turns an excessive parse-error rate
// into an error, per cfg.MaxParseErrorRate (§4.11). A file with zero rows
// at all never exceeds the threshold.
func ParseWithThreshold(r io.Reader, mapping VendorMapping, cfg Config) ([]ir.CanonicalEvent, error) {
	events, parseErrors, err := Parse(r, mapping)
	if err != nil {
		return nil, err
	}
	total := len(events) + parseErrors
	if total == 0 {
		return events, nil
	}
	rate := float64(parseErrors) / float64(total)
	if rate > cfg.MaxParseErrorRate {
		return events, fmt.Errorf("ingest: parse-error rate %.4f exceeds threshold %.4f (%d/%d rows unparseable)",
			rate, cfg.MaxParseErrorRate, parseErrors, total)
	}
	return events, nil
}

func parseRow(record []string, columns map[CanonicalField]int, mapping VendorMapping, layout string) (ir.CanonicalEvent, bool) {
	get := func(field CanonicalField) (string, bool) {
		idx, ok := columns[field]
		if !ok || idx >= len(record) {
			return "", false
		}
		v := strings.TrimSpace(record[idx])
		return v, v != ""
	}

	rawTimestamp, ok := get(FieldTimestamp)
	if !ok {
		return ir.CanonicalEvent{}, false
	}
	ts, err := time.Parse(layout, rawTimestamp)
	if err != nil {
		return ir.CanonicalEvent{}, false
	}

	destHost, ok := get(FieldDestHost)
	if !ok {
		return ir.CanonicalEvent{}, false
	}
	rawURL, ok := get(FieldURL)
	if !ok {
		return ir.CanonicalEvent{}, false
	}

	event := ir.CanonicalEvent{
		Timestamp:   ts.UTC(),
		Vendor:      mapping.Vendor,
		DestHost:    destHost,
		URL:         rawURL,
		LineageHash: lineageHash(mapping.Vendor, record),
	}

	if v, ok := get(FieldUserID); ok {
		event.UserID = v
	}
	if v, ok := get(FieldSourceAddr); ok {
		event.SourceAddr = v
	}
	if v, ok := get(FieldMethod); ok {
		event.Method = strings.ToUpper(v)
	}
	if v, ok := get(FieldCategoryHint); ok {
		event.CategoryHint = v
	}
	if v, ok := get(FieldAction); ok {
		if translated, known := mapping.ActionValues[v]; known {
			event.Action = translated
		} else {
			event.Action = ir.ActionTag(strings.ToLower(v))
		}
	}
	if v, ok := get(FieldBytesUp); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return ir.CanonicalEvent{}, false
		}
		event.BytesUp = n
	}
	if v, ok := get(FieldBytesDown); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return ir.CanonicalEvent{}, false
		}
		event.BytesDown = n
	}

	return event, true
}

// lineageHash is a content hash of the raw source row, computed purely
// from the input bytes — independent of canonicalization, so it is
// stable even if normalization rules change in a later scheme version.
func lineageHash(vendor string, record []string) string {
	fields := make([]any, len(record))
	for i, v := range record {
		fields[i] = v
	}
	return ir.MustCanonicalHash(ir.DomainLineage, map[string]any{
		"vendor": vendor,
		"row":    fields,
	})
}
