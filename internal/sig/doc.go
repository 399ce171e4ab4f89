// Package sig derives a content-addressed request signature from a
// canonicalized event: a SHA-256 digest over the normalized host, path
// template, retained query-key subset, HTTP method group, and upload-size
// bucket, domain-separated by the signature scheme version (§4.3).
package sig
