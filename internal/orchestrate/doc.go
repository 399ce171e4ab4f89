// Package orchestrate drives one pipeline run end to end (§4.8):
// derives the run key/run id, acquires a process-wide file lock to
// prevent a double-run, enforces taxonomy pinning, and checkpoints stage
// transitions to the runs row so a crashed run resumes from its last
// committed stage rather than redoing work.
package orchestrate
