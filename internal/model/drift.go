// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// package model defines the data structures for configuration drift detection.
package model

import "time"

// DriftStatus classifies the state of a managed remote file relative to the
// content querioctl would render for it.
type DriftStatus string

const (
	// DriftInSync means the remote file matches the rendered content after
	// normalization.
	DriftInSync DriftStatus = "in-sync"

	// DriftModified means the remote file exists but differs from the
	// rendered content.
	DriftModified DriftStatus = "modified"

	// DriftMissing means the managed file does not exist on the remote host.
	DriftMissing DriftStatus = "missing"
)

// DriftReport describes the audit result for a single managed file on a host.
type DriftReport struct {
	HostID     int
	Path       string      // remote path of the managed file
	Status     DriftStatus // classification of the divergence
	Detail     string      // human-readable description of the difference
	Expected   string      // normalized content querioctl would deploy
	Actual     string      // normalized content found on the host
	DetectedAt time.Time
}

// HasDrift reports whether the report describes any divergence.
func (r DriftReport) HasDrift() bool {
	return r.Status != DriftInSync
}
