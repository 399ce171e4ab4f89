// Package ingest parses vendor-tagged web-access log files into
// ir.CanonicalEvent rows, guided by a declarative field-mapping document
// (§4.11, §6).
package ingest
