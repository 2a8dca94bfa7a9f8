// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// package model defines the core entities of querioctl: deployment targets,
// release history, pinned host keys, and the audit trail.
package model

import (
	"fmt"
	"time"
)

// Host represents one Querio deployment target (e.g., an EC2 instance).
// The inventory database is the source of truth for the fleet.
type Host struct {
	ID      int
	Name    string // unique label, e.g. "prod-eu-1"
	Address string // IP or DNS name used for SSH
	User    string // login user on the target
	Domain  string // public domain served by Nginx; empty until HTTPS setup
	Tags    string
	// Serial is the serial of the last release successfully deployed to this
	// host. 0 means the host has never been deployed.
	Serial   int
	IsActive bool
}

// String returns the user@address representation.
func (h Host) String() string {
	return fmt.Sprintf("%s@%s", h.User, h.Address)
}

// Deployment kinds.
const (
	KindProvision = "provision"
	KindDeploy    = "deploy"
	KindUpdate    = "update"
	KindHTTPS     = "https"
)

// Deployment statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Deployment is one recorded run against a host. Serials increase
// monotonically across the whole store, so the newest deployment of any host
// always carries the highest serial.
type Deployment struct {
	ID         int
	HostID     int
	Serial     int
	Kind       string
	GitRef     string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// KnownHostKey pins the SSH public key presented by a host. Connections to a
// host without a pinned key, or with a different key, are refused.
type KnownHostKey struct {
	Hostname string
	Key      string
}

// AuditLogEntry records a single administrative action.
type AuditLogEntry struct {
	ID        int
	Timestamp string
	Username  string
	Action    string
	Details   string
}

// BackupData is the serializable form of the whole database, used by the
// backup/restore commands and by cross-backend migration.
type BackupData struct {
	Hosts        []Host          `json:"hosts"`
	Deployments  []Deployment    `json:"deployments"`
	KnownHosts   []KnownHostKey  `json:"known_hosts"`
	AuditEntries []AuditLogEntry `json:"audit_entries"`
}
