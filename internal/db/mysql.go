// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// This file contains the MySQL implementation of the database store.
package db

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/querio/querioctl/internal/model"
	"github.com/uptrace/bun"
)

// MySQLStore is the MySQL implementation of the Store interface.
type MySQLStore struct {
	bun *bun.DB
}

func (s *MySQLStore) GetAllHosts() ([]model.Host, error) {
	return GetAllHostsBun(s.bun)
}

func (s *MySQLStore) GetAllActiveHosts() ([]model.Host, error) {
	return GetAllActiveHostsBun(s.bun)
}

func (s *MySQLStore) GetHost(id int) (*model.Host, error) {
	return GetHostBun(s.bun, id)
}

func (s *MySQLStore) AddHost(name, address, username, domain, tags string) (int, error) {
	id, err := AddHostBun(s.bun, name, address, username, domain, tags)
	if err == nil {
		_ = s.LogAction("ADD_HOST", fmt.Sprintf("host: %s (%s@%s)", name, username, address))
	}
	return id, err
}

func (s *MySQLStore) DeleteHost(id int) error {
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

func (s *MySQLStore) ToggleHostStatus(id int) error {
	err := ToggleHostStatusBun(s.bun, id)
	if err == nil {
		_ = s.LogAction("TOGGLE_HOST_STATUS", fmt.Sprintf("host_id: %d", id))
	}
	return err
}

func (s *MySQLStore) UpdateHostSerial(id, serial int) error {
	err := UpdateHostSerialBun(s.bun, id, serial)
	if err == nil {
		_ = s.LogAction("UPDATE_HOST_SERIAL", fmt.Sprintf("host_id: %d, serial: %d", id, serial))
	}
	return err
}

func (s *MySQLStore) UpdateHostDomain(id int, domain string) error {
	err := UpdateHostDomainBun(s.bun, id, domain)
	if err == nil {
		_ = s.LogAction("UPDATE_HOST_DOMAIN", fmt.Sprintf("host_id: %d, domain: '%s'", id, domain))
	}
	return err
}

func (s *MySQLStore) GetKnownHostKey(hostname string) (string, error) {
	return GetKnownHostKeyBun(s.bun, hostname)
}

func (s *MySQLStore) AddKnownHostKey(hostname, key string) error {
	err := AddKnownHostKeyBun(s.bun, hostname, key)
	if err == nil {
		_ = s.LogAction("TRUST_HOST", fmt.Sprintf("hostname: %s", hostname))
	}
	return err
}

func (s *MySQLStore) CreateDeployment(hostID int, kind, gitRef string) (*model.Deployment, error) {
	d, err := CreateDeploymentBun(s.bun, hostID, kind, gitRef)
	if err == nil {
		_ = s.LogAction("START_DEPLOYMENT", fmt.Sprintf("host_id: %d, kind: %s, serial: %d", hostID, kind, d.Serial))
	}
	return d, err
}

func (s *MySQLStore) FinishDeployment(id int, status, errText string) error {
	err := FinishDeploymentBun(s.bun, id, status, errText)
	if err == nil {
		_ = s.LogAction("FINISH_DEPLOYMENT", fmt.Sprintf("deployment_id: %d, status: %s", id, status))
	}
	return err
}

func (s *MySQLStore) GetDeploymentsForHost(hostID, limit int) ([]model.Deployment, error) {
	return GetDeploymentsForHostBun(s.bun, hostID, limit)
}

func (s *MySQLStore) GetLatestDeployments() (map[int]model.Deployment, error) {
	return GetLatestDeploymentsBun(s.bun)
}

func (s *MySQLStore) LogAction(action, details string) error {
	return LogActionBun(s.bun, action, details)
}

func (s *MySQLStore) GetAllAuditLogEntries() ([]model.AuditLogEntry, error) {
	return GetAllAuditLogEntriesBun(s.bun)
}

func (s *MySQLStore) ExportDataForBackup() (*model.BackupData, error) {
	return ExportDataForBackupBun(s.bun)
}

func (s *MySQLStore) ImportDataFromBackup(d *model.BackupData) error {
	err := ImportDataFromBackupBun(s.bun, d)
	if err == nil {
		_ = s.LogAction("RESTORE_BACKUP", fmt.Sprintf("hosts: %d, known_hosts: %d", len(d.Hosts), len(d.KnownHosts)))
	}
	return err
}
