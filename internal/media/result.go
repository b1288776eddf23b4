package media

import "fmt"

// maxResultErrors caps the error strings retained per batch so a pathological
// source cannot balloon the response handed back to callers.
const maxResultErrors = 50

// ImportResult accumulates counters across one driver run. It is returned to
// the caller when the batch finishes and never persisted.
type ImportResult struct {
	Imported int
	Updated  int
	Skipped  int
	Failed   int
	Errors   []string

	truncated int
}

// RecordError counts a per-item failure and retains a capped, human-readable
// reason string.
func (r *ImportResult) RecordError(name string, err error) {
	r.Failed++
	if err == nil {
		return
	}
	if len(r.Errors) >= maxResultErrors {
		r.truncated++
		return
	}
	if name != "" {
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", name, err))
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// Total returns the number of entries the batch processed.
func (r *ImportResult) Total() int {
	return r.Imported + r.Updated + r.Skipped + r.Failed
}

// TruncatedErrors reports how many error strings were dropped by the cap.
func (r *ImportResult) TruncatedErrors() int {
	return r.truncated
}

// Merge folds another result into this one. Used by sync drivers that run
// several phases (e.g. pull then push) under one reported batch.
func (r *ImportResult) Merge(other ImportResult) {
	r.Imported += other.Imported
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	for _, msg := range other.Errors {
		if len(r.Errors) >= maxResultErrors {
			r.truncated++
			continue
		}
		r.Errors = append(r.Errors, msg)
	}
	r.truncated += other.truncated
}
