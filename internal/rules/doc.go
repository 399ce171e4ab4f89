// Package rules implements the declarative rule classifier (§4.5): a CUE
// rule set is loaded once per run and applied to each signature with
// "longest-match wins, then highest priority, then stable rule order" as
// the sole tie-break, producing a fully-specified eight-dimension taxonomy
// assignment.
package rules
