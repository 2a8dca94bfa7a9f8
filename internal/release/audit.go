// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package release

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/querio/querioctl/internal/config"
	"github.com/querio/querioctl/internal/model"
	"github.com/querio/querioctl/internal/nginx"
)

// Audit compares the managed state on a host against what deploy would put
// there: the Nginx site file, the .env file and the app checkout. It reports
// drift; it never changes anything.
func Audit(c Conn, host model.Host, app config.AppConfig) ([]model.DriftReport, error) {
	now := time.Now().UTC()
	var reports []model.DriftReport

	// Nginx site file.
	expected, err := nginx.RenderSite(nginx.SiteData{
		ServerName: host.Domain,
		Port:       app.HealthPort,
		HealthPath: app.HealthPath,
	})
	if err != nil {
		return nil, err
	}
	var actual []byte
	if exists, err := c.Exists(nginx.SitePath); err != nil {
		return nil, err
	} else if exists {
		if actual, err = c.Download(nginx.SitePath); err != nil {
			return nil, err
		}
	}
	siteReport := model.DriftReport{
		HostID:     host.ID,
		Path:       nginx.SitePath,
		Status:     nginx.Compare(expected, actual),
		Expected:   nginx.Normalize(expected),
		Actual:     nginx.Normalize(actual),
		DetectedAt: now,
	}
	if siteReport.Status == model.DriftMissing {
		siteReport.Detail = "site file not found; run 'querioctl deploy'"
	}
	reports = append(reports, siteReport)

	// .env: presence and the key line, never the secret itself.
	envPath := path.Join(app.RemoteDir, ".env")
	envReport := model.DriftReport{HostID: host.ID, Path: envPath, DetectedAt: now}
	if exists, err := c.Exists(envPath); err != nil {
		return nil, err
	} else if !exists {
		envReport.Status = model.DriftMissing
		envReport.Detail = "env file not found; run 'querioctl deploy'"
	} else {
		content, err := c.Download(envPath)
		if err != nil {
			return nil, err
		}
		if strings.Contains(string(content), "GENAI_API_KEY=") {
			envReport.Status = model.DriftInSync
		} else {
			envReport.Status = model.DriftModified
			envReport.Detail = "GENAI_API_KEY entry missing"
		}
	}
	reports = append(reports, envReport)

	// Checkout: present and clean.
	checkoutReport := model.DriftReport{HostID: host.ID, Path: app.RemoteDir, DetectedAt: now}
	if exists, err := c.Exists(path.Join(app.RemoteDir, ".git")); err != nil {
		return nil, err
	} else if !exists {
		checkoutReport.Status = model.DriftMissing
		checkoutReport.Detail = "app checkout not found; run 'querioctl deploy'"
	} else {
		out, err := c.Run(fmt.Sprintf("git -C %s status --porcelain", app.RemoteDir))
		if err != nil {
			return nil, fmt.Errorf("failed to inspect checkout: %w", err)
		}
		if strings.TrimSpace(out) == "" {
			checkoutReport.Status = model.DriftInSync
		} else {
			checkoutReport.Status = model.DriftModified
			checkoutReport.Detail = "checkout has local modifications"
		}
	}
	reports = append(reports, checkoutReport)

	return reports, nil
}
