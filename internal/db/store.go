// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"github.com/querio/querioctl/internal/model"
)

// Store defines the interface for all database operations in querioctl.
// This allows for multiple database backends to be implemented.
type Store interface {
	// Host methods
	GetAllHosts() ([]model.Host, error)
	GetAllActiveHosts() ([]model.Host, error)
	GetHost(id int) (*model.Host, error)
	AddHost(name, address, username, domain, tags string) (int, error)
	DeleteHost(id int) error
	ToggleHostStatus(id int) error
	UpdateHostSerial(id, serial int) error
	UpdateHostDomain(id int, domain string) error

	// Known host key methods
	GetKnownHostKey(hostname string) (string, error)
	AddKnownHostKey(hostname, key string) error

	// Deployment methods
	CreateDeployment(hostID int, kind, gitRef string) (*model.Deployment, error)
	FinishDeployment(id int, status, errText string) error
	GetDeploymentsForHost(hostID, limit int) ([]model.Deployment, error)
	GetLatestDeployments() (map[int]model.Deployment, error)

	// Audit Log methods
	LogAction(action string, details string) error
	GetAllAuditLogEntries() ([]model.AuditLogEntry, error)

	// Backup methods
	ExportDataForBackup() (*model.BackupData, error)
	ImportDataFromBackup(d *model.BackupData) error
}
