// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"os/user"
	"time"

	"github.com/querio/querioctl/internal/model"
	"github.com/uptrace/bun"
)

// HostModel maps the `hosts` table for Bun queries.
type HostModel struct {
	bun.BaseModel `bun:"table:hosts"`
	ID            int            `bun:"id,pk,autoincrement"`
	Name          string         `bun:"name"`
	Address       string         `bun:"address"`
	Username      string         `bun:"username"`
	Domain        sql.NullString `bun:"domain"`
	Tags          sql.NullString `bun:"tags"`
	Serial        int            `bun:"serial"`
	IsActive      bool           `bun:"is_active"`
}

// DeploymentModel maps the `deployments` table.
type DeploymentModel struct {
	bun.BaseModel `bun:"table:deployments"`
	ID            int            `bun:"id,pk,autoincrement"`
	HostID        int            `bun:"host_id"`
	Serial        int            `bun:"serial"`
	Kind          string         `bun:"kind"`
	GitRef        sql.NullString `bun:"git_ref"`
	Status        string         `bun:"status"`
	Error         sql.NullString `bun:"error"`
	StartedAt     time.Time      `bun:"started_at"`
	FinishedAt    sql.NullTime   `bun:"finished_at"`
}

// KnownHostModel maps known_hosts.
type KnownHostModel struct {
	bun.BaseModel `bun:"table:known_hosts"`
	Hostname      string `bun:"hostname,pk"`
	Key           string `bun:"key"`
}

// AuditLogModel maps the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int    `bun:"id,pk,autoincrement"`
	Timestamp     string `bun:"timestamp"`
	Username      string `bun:"username"`
	Action        string `bun:"action"`
	Details       string `bun:"details"`
}

// --- Mapping helpers (centralized conversions) ---

func hostModelToModel(h HostModel) model.Host {
	out := model.Host{
		ID:       h.ID,
		Name:     h.Name,
		Address:  h.Address,
		User:     h.Username,
		Serial:   h.Serial,
		IsActive: h.IsActive,
	}
	if h.Domain.Valid {
		out.Domain = h.Domain.String
	}
	if h.Tags.Valid {
		out.Tags = h.Tags.String
	}
	return out
}

func deploymentModelToModel(d DeploymentModel) model.Deployment {
	out := model.Deployment{
		ID:        d.ID,
		HostID:    d.HostID,
		Serial:    d.Serial,
		Kind:      d.Kind,
		Status:    d.Status,
		StartedAt: d.StartedAt,
	}
	if d.GitRef.Valid {
		out.GitRef = d.GitRef.String
	}
	if d.Error.Valid {
		out.Error = d.Error.String
	}
	if d.FinishedAt.Valid {
		out.FinishedAt = d.FinishedAt.Time
	}
	return out
}

// GetAllHostsBun returns all hosts ordered by name.
func GetAllHostsBun(bdb *bun.DB) ([]model.Host, error) {
	ctx := context.Background()
	var hm []HostModel
	if err := bdb.NewSelect().Model(&hm).OrderExpr("name").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Host, 0, len(hm))
	for _, h := range hm {
		out = append(out, hostModelToModel(h))
	}
	return out, nil
}

// GetAllActiveHostsBun returns all active hosts ordered by name.
func GetAllActiveHostsBun(bdb *bun.DB) ([]model.Host, error) {
	ctx := context.Background()
	var hm []HostModel
	if err := bdb.NewSelect().Model(&hm).Where("is_active = ?", true).OrderExpr("name").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Host, 0, len(hm))
	for _, h := range hm {
		out = append(out, hostModelToModel(h))
	}
	return out, nil
}

// GetHostBun returns a single host by id, or nil when absent.
func GetHostBun(bdb *bun.DB, id int) (*model.Host, error) {
	ctx := context.Background()
	var h HostModel
	err := bdb.NewSelect().Model(&h).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m := hostModelToModel(h)
	return &m, nil
}

// AddHostBun inserts a new host and returns its id.
func AddHostBun(bdb *bun.DB, name, address, username, domain, tags string) (int, error) {
	ctx := context.Background()
	h := &HostModel{
		Name:     name,
		Address:  address,
		Username: username,
		Domain:   sql.NullString{String: domain, Valid: domain != ""},
		Tags:     sql.NullString{String: tags, Valid: tags != ""},
		Serial:   0,
		IsActive: true,
	}
	if _, err := bdb.NewInsert().Model(h).Exec(ctx); err != nil {
		return 0, MapDBError(err)
	}
	return h.ID, nil
}

// DeleteHostBun removes a host row.
func DeleteHostBun(bdb *bun.DB, id int) error {
	ctx := context.Background()
	_, err := bdb.NewDelete().Model((*HostModel)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// ToggleHostStatusBun flips is_active for a host.
func ToggleHostStatusBun(bdb *bun.DB, id int) error {
	ctx := context.Background()
	_, err := ExecRaw(ctx, bdb, "UPDATE hosts SET is_active = NOT is_active WHERE id = ?", id)
	return err
}

// UpdateHostSerialBun sets the serial for a given host ID.
func UpdateHostSerialBun(bdb *bun.DB, id, serial int) error {
	ctx := context.Background()
	_, err := ExecRaw(ctx, bdb, "UPDATE hosts SET serial = ? WHERE id = ?", serial, id)
	return err
}

// UpdateHostDomainBun sets the public domain for a given host ID.
func UpdateHostDomainBun(bdb *bun.DB, id int, domain string) error {
	ctx := context.Background()
	_, err := ExecRaw(ctx, bdb, "UPDATE hosts SET domain = ? WHERE id = ?", domain, id)
	return err
}

// GetKnownHostKeyBun returns the pinned key for a hostname, or "" when the
// host is not yet trusted.
func GetKnownHostKeyBun(bdb *bun.DB, hostname string) (string, error) {
	ctx := context.Background()
	var kh KnownHostModel
	err := bdb.NewSelect().Model(&kh).Where("hostname = ?", hostname).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return kh.Key, nil
}

// AddKnownHostKeyBun pins (or replaces) the host key for a hostname.
func AddKnownHostKeyBun(bdb *bun.DB, hostname, key string) error {
	ctx := context.Background()
	// Replace any previously pinned key; trust decisions happen in the UI.
	if _, err := ExecRaw(ctx, bdb, "DELETE FROM known_hosts WHERE hostname = ?", hostname); err != nil {
		return err
	}
	_, err := bdb.NewInsert().Model(&KnownHostModel{Hostname: hostname, Key: key}).Exec(ctx)
	return err
}

// CreateDeploymentBun opens a deployment record with the next store-wide
// serial inside a single transaction.
func CreateDeploymentBun(bdb *bun.DB, hostID int, kind, gitRef string) (*model.Deployment, error) {
	ctx := context.Background()

	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Get current max serial
	var max sql.NullInt64
	if err := QueryRawInto(ctx, tx, &max, "SELECT MAX(serial) FROM deployments"); err != nil {
		return nil, err
	}
	newSerial := 1
	if max.Valid {
		newSerial = int(max.Int64) + 1
	}

	d := &DeploymentModel{
		HostID:    hostID,
		Serial:    newSerial,
		Kind:      kind,
		GitRef:    sql.NullString{String: gitRef, Valid: gitRef != ""},
		Status:    model.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if _, err := tx.NewInsert().Model(d).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to insert deployment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	m := deploymentModelToModel(*d)
	return &m, nil
}

// FinishDeploymentBun closes a deployment record.
func FinishDeploymentBun(bdb *bun.DB, id int, status, errText string) error {
	ctx := context.Background()
	_, err := ExecRaw(ctx, bdb,
		"UPDATE deployments SET status = ?, error = ?, finished_at = ? WHERE id = ?",
		status, errText, time.Now().UTC(), id)
	return err
}

// GetDeploymentsForHostBun returns the newest deployments of a host, newest first.
func GetDeploymentsForHostBun(bdb *bun.DB, hostID, limit int) ([]model.Deployment, error) {
	ctx := context.Background()
	var dm []DeploymentModel
	q := bdb.NewSelect().Model(&dm).Where("host_id = ?", hostID).OrderExpr("serial DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Deployment, 0, len(dm))
	for _, d := range dm {
		out = append(out, deploymentModelToModel(d))
	}
	return out, nil
}

// GetLatestDeploymentsBun returns the newest deployment per host id.
func GetLatestDeploymentsBun(bdb *bun.DB) (map[int]model.Deployment, error) {
	ctx := context.Background()
	var dm []DeploymentModel
	if err := bdb.NewSelect().Model(&dm).OrderExpr("serial ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make(map[int]model.Deployment, len(dm))
	for _, d := range dm {
		// ascending serial order means the last write per host wins
		out[d.HostID] = deploymentModelToModel(d)
	}
	return out, nil
}

// LogActionBun appends a row to the audit log.
func LogActionBun(bdb *bun.DB, action, details string) error {
	ctx := context.Background()
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	entry := &AuditLogModel{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Username:  username,
		Action:    action,
		Details:   details,
	}
	_, err := bdb.NewInsert().Model(entry).Exec(ctx)
	return err
}

// GetAllAuditLogEntriesBun returns the audit trail, newest first.
func GetAllAuditLogEntriesBun(bdb *bun.DB) ([]model.AuditLogEntry, error) {
	ctx := context.Background()
	var am []AuditLogModel
	if err := bdb.NewSelect().Model(&am).OrderExpr("id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.AuditLogEntry, 0, len(am))
	for _, a := range am {
		out = append(out, model.AuditLogEntry{
			ID:        a.ID,
			Timestamp: a.Timestamp,
			Username:  a.Username,
			Action:    a.Action,
			Details:   a.Details,
		})
	}
	return out, nil
}

// ExportDataForBackupBun collects all tables into a BackupData document.
func ExportDataForBackupBun(bdb *bun.DB) (*model.BackupData, error) {
	hosts, err := GetAllHostsBun(bdb)
	if err != nil {
		return nil, fmt.Errorf("backup: export hosts: %w", err)
	}

	ctx := context.Background()
	var dm []DeploymentModel
	if err := bdb.NewSelect().Model(&dm).OrderExpr("serial ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("backup: export deployments: %w", err)
	}
	deployments := make([]model.Deployment, 0, len(dm))
	for _, d := range dm {
		deployments = append(deployments, deploymentModelToModel(d))
	}

	var km []KnownHostModel
	if err := bdb.NewSelect().Model(&km).Scan(ctx); err != nil {
		return nil, fmt.Errorf("backup: export known hosts: %w", err)
	}
	knownHosts := make([]model.KnownHostKey, 0, len(km))
	for _, k := range km {
		knownHosts = append(knownHosts, model.KnownHostKey{Hostname: k.Hostname, Key: k.Key})
	}

	audit, err := GetAllAuditLogEntriesBun(bdb)
	if err != nil {
		return nil, fmt.Errorf("backup: export audit log: %w", err)
	}

	return &model.BackupData{
		Hosts:        hosts,
		Deployments:  deployments,
		KnownHosts:   knownHosts,
		AuditEntries: audit,
	}, nil
}

// ImportDataFromBackupBun inserts backup data that does not already exist.
// The import is non-destructive: existing hosts (by name) and pinned keys
// (by hostname) are left alone.
func ImportDataFromBackupBun(bdb *bun.DB, d *model.BackupData) error {
	ctx := context.Background()

	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, h := range d.Hosts {
		var exists int
		err := QueryRawInto(ctx, tx, &exists, "SELECT 1 FROM hosts WHERE name = ?", h.Name)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("restore: check host %s: %w", h.Name, err)
		}
		hm := &HostModel{
			Name:     h.Name,
			Address:  h.Address,
			Username: h.User,
			Domain:   sql.NullString{String: h.Domain, Valid: h.Domain != ""},
			Tags:     sql.NullString{String: h.Tags, Valid: h.Tags != ""},
			Serial:   h.Serial,
			IsActive: h.IsActive,
		}
		if _, err := tx.NewInsert().Model(hm).Exec(ctx); err != nil {
			return fmt.Errorf("restore: insert host %s: %w", h.Name, err)
		}
	}

	for _, k := range d.KnownHosts {
		var exists int
		err := QueryRawInto(ctx, tx, &exists, "SELECT 1 FROM known_hosts WHERE hostname = ?", k.Hostname)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("restore: check known host %s: %w", k.Hostname, err)
		}
		if _, err := tx.NewInsert().Model(&KnownHostModel{Hostname: k.Hostname, Key: k.Key}).Exec(ctx); err != nil {
			return fmt.Errorf("restore: insert known host %s: %w", k.Hostname, err)
		}
	}

	return tx.Commit()
}
