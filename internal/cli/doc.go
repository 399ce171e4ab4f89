// Package cli wires the shadowai pipeline into a cobra command surface:
// run, validate, resume, and inspect. Flag handling, output formatting,
// and exit-code conventions mirror the sync engine's original CLI package.
package cli
