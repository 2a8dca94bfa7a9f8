// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// package db provides the data access layer for querioctl.
// This file contains the SQLite implementation of the database store.
package db

import (
	"fmt"

	"github.com/querio/querioctl/internal/model"
	"github.com/uptrace/bun"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SqliteStore is the SQLite implementation of the Store interface.
type SqliteStore struct {
	bun *bun.DB
}

// GetAllHosts retrieves all hosts from the database.
func (s *SqliteStore) GetAllHosts() ([]model.Host, error) {
	return GetAllHostsBun(s.bun)
}

// GetAllActiveHosts retrieves all active hosts from the database.
func (s *SqliteStore) GetAllActiveHosts() ([]model.Host, error) {
	return GetAllActiveHostsBun(s.bun)
}

// GetHost retrieves a single host by id.
func (s *SqliteStore) GetHost(id int) (*model.Host, error) {
	return GetHostBun(s.bun, id)
}

// AddHost adds a new host to the database.
func (s *SqliteStore) AddHost(name, address, username, domain, tags string) (int, error) {
	id, err := AddHostBun(s.bun, name, address, username, domain, tags)
	if err == nil {
		_ = s.LogAction("ADD_HOST", fmt.Sprintf("host: %s (%s@%s)", name, username, address))
	}
	return id, err
}

// DeleteHost removes a host from the database by its ID.
func (s *SqliteStore) DeleteHost(id int) error {
	details := fmt.Sprintf("id: %d", id)
	if h, err := GetHostBun(s.bun, id); err == nil && h != nil {
		details = fmt.Sprintf("host: %s (%s)", h.Name, h.String())
	}
	err := DeleteHostBun(s.bun, id)
	if err == nil {
		_ = s.LogAction("DELETE_HOST", details)
	}
	return err
}

// ToggleHostStatus flips the active status of a host.
func (s *SqliteStore) ToggleHostStatus(id int) error {
	err := ToggleHostStatusBun(s.bun, id)
	if err == nil {
		_ = s.LogAction("TOGGLE_HOST_STATUS", fmt.Sprintf("host_id: %d", id))
	}
	return err
}

// UpdateHostSerial sets the serial for a given host ID.
// This is called during deployment, which is logged at a higher level.
func (s *SqliteStore) UpdateHostSerial(id, serial int) error {
	err := UpdateHostSerialBun(s.bun, id, serial)
	if err == nil {
		_ = s.LogAction("UPDATE_HOST_SERIAL", fmt.Sprintf("host_id: %d, serial: %d", id, serial))
	}
	return err
}

// UpdateHostDomain sets the public domain for a given host ID.
func (s *SqliteStore) UpdateHostDomain(id int, domain string) error {
	err := UpdateHostDomainBun(s.bun, id, domain)
	if err == nil {
		_ = s.LogAction("UPDATE_HOST_DOMAIN", fmt.Sprintf("host_id: %d, domain: '%s'", id, domain))
	}
	return err
}

// GetKnownHostKey returns the pinned host key for a hostname.
func (s *SqliteStore) GetKnownHostKey(hostname string) (string, error) {
	return GetKnownHostKeyBun(s.bun, hostname)
}

// AddKnownHostKey pins a host key for a hostname.
func (s *SqliteStore) AddKnownHostKey(hostname, key string) error {
	err := AddKnownHostKeyBun(s.bun, hostname, key)
	if err == nil {
		_ = s.LogAction("TRUST_HOST", fmt.Sprintf("hostname: %s", hostname))
	}
	return err
}

// CreateDeployment opens a new deployment record.
func (s *SqliteStore) CreateDeployment(hostID int, kind, gitRef string) (*model.Deployment, error) {
	d, err := CreateDeploymentBun(s.bun, hostID, kind, gitRef)
	if err == nil {
		_ = s.LogAction("START_DEPLOYMENT", fmt.Sprintf("host_id: %d, kind: %s, serial: %d", hostID, kind, d.Serial))
	}
	return d, err
}

// FinishDeployment closes a deployment record with a final status.
func (s *SqliteStore) FinishDeployment(id int, status, errText string) error {
	err := FinishDeploymentBun(s.bun, id, status, errText)
	if err == nil {
		_ = s.LogAction("FINISH_DEPLOYMENT", fmt.Sprintf("deployment_id: %d, status: %s", id, status))
	}
	return err
}

// GetDeploymentsForHost returns the newest deployments of a host.
func (s *SqliteStore) GetDeploymentsForHost(hostID, limit int) ([]model.Deployment, error) {
	return GetDeploymentsForHostBun(s.bun, hostID, limit)
}

// GetLatestDeployments returns the newest deployment per host id.
func (s *SqliteStore) GetLatestDeployments() (map[int]model.Deployment, error) {
	return GetLatestDeploymentsBun(s.bun)
}

// LogAction records an administrative action in the audit log.
func (s *SqliteStore) LogAction(action, details string) error {
	return LogActionBun(s.bun, action, details)
}

// GetAllAuditLogEntries retrieves the audit trail.
func (s *SqliteStore) GetAllAuditLogEntries() ([]model.AuditLogEntry, error) {
	return GetAllAuditLogEntriesBun(s.bun)
}

// ExportDataForBackup exports the whole database.
func (s *SqliteStore) ExportDataForBackup() (*model.BackupData, error) {
	return ExportDataForBackupBun(s.bun)
}

// ImportDataFromBackup imports a backup non-destructively.
func (s *SqliteStore) ImportDataFromBackup(d *model.BackupData) error {
	err := ImportDataFromBackupBun(s.bun, d)
	if err == nil {
		_ = s.LogAction("RESTORE_BACKUP", fmt.Sprintf("hosts: %d, known_hosts: %d", len(d.Hosts), len(d.KnownHosts)))
	}
	return err
}
