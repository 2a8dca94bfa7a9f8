// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package release drives deployments of the Querio app to a managed host.
// A full deploy refreshes the checkout, the .env file and the Nginx site
// before rebuilding the compose stack; an update only refreshes the checkout
// and rebuilds. Either way the release is gated on the health endpoint and
// the host's serial is only advanced after the gate passes.
package release

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path"
	"strings"
	"time"

	"github.com/querio/querioctl/internal/config"
	"github.com/querio/querioctl/internal/db"
	"github.com/querio/querioctl/internal/health"
	"github.com/querio/querioctl/internal/i18n"
	"github.com/querio/querioctl/internal/logging"
	"github.com/querio/querioctl/internal/model"
	"github.com/querio/querioctl/internal/nginx"
	"github.com/querio/querioctl/internal/state"
)

// Conn is the slice of the SSH session the pipeline needs. *sshexec.Session
// satisfies it; tests use a fake.
type Conn interface {
	Run(cmd string) (string, error)
	Upload(remotePath string, content []byte, mode os.FileMode) (bool, error)
	Download(remotePath string) ([]byte, error)
	Exists(remotePath string) (bool, error)
}

// waitHealthy and updateHostSerial are swapped out in tests.
var waitHealthy = health.Wait
var updateHostSerial = db.UpdateHostSerial

const (
	healthAttempts = 12
	healthDelay    = 5 * time.Second
)

// Pipeline runs deploys and updates against one host over an open connection.
type Pipeline struct {
	Host model.Host
	App  config.AppConfig
	Conn Conn
}

// Deploy runs the full pipeline: checkout, .env, Nginx site, compose build,
// health gate, serial bump.
func (p *Pipeline) Deploy(ctx context.Context) error {
	return p.run(ctx, model.KindDeploy)
}

// Update runs the quick pipeline: checkout refresh, compose build, health
// gate, serial bump. Env and Nginx are left untouched.
func (p *Pipeline) Update(ctx context.Context) error {
	return p.run(ctx, model.KindUpdate)
}

func (p *Pipeline) run(ctx context.Context, kind string) error {
	dep, err := db.CreateDeployment(p.Host.ID, kind, p.App.Branch)
	if err != nil {
		return fmt.Errorf(i18n.T("release.error_create_deployment"), err)
	}

	if err := p.steps(ctx, kind); err != nil {
		if ferr := db.FinishDeployment(dep.ID, model.StatusFailed, err.Error()); ferr != nil {
			logging.Errorf("failed to record failed deployment: %v", ferr)
		}
		return err
	}

	// The release succeeded; the serial now becomes the host's new baseline.
	if err := updateSerialWithRetry(p.Host.ID, dep.Serial); err != nil {
		if ferr := db.FinishDeployment(dep.ID, model.StatusFailed, err.Error()); ferr != nil {
			logging.Errorf("failed to record failed deployment: %v", ferr)
		}
		return err
	}
	if err := db.FinishDeployment(dep.ID, model.StatusSucceeded, ""); err != nil {
		return fmt.Errorf(i18n.T("release.error_finish_deployment"), err)
	}
	logging.Infof(i18n.T("release.success"), p.Host.String(), dep.Serial)
	return nil
}

// Record wraps a one-off host operation (provision, https) in a Deployment
// row so it shows up in status and history like releases do. The host's
// serial is not touched; only the deploy/update pipelines advance it.
func Record(hostID int, kind string, fn func() error) error {
	dep, err := db.CreateDeployment(hostID, kind, "")
	if err != nil {
		return fmt.Errorf(i18n.T("release.error_create_deployment"), err)
	}
	if err := fn(); err != nil {
		if ferr := db.FinishDeployment(dep.ID, model.StatusFailed, err.Error()); ferr != nil {
			logging.Errorf("failed to record failed %s run: %v", kind, ferr)
		}
		return err
	}
	if err := db.FinishDeployment(dep.ID, model.StatusSucceeded, ""); err != nil {
		return fmt.Errorf(i18n.T("release.error_finish_deployment"), err)
	}
	return nil
}

func (p *Pipeline) steps(ctx context.Context, kind string) error {
	if err := p.ensureCheckout(); err != nil {
		return err
	}
	if kind == model.KindDeploy {
		if err := p.writeEnvFile(); err != nil {
			return err
		}
		if err := p.configureNginx(); err != nil {
			return err
		}
	}
	if err := p.composeUp(); err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s%s", p.Host.Address, p.App.HealthPath)
	logging.Infof(i18n.T("release.waiting_for_health"), url)
	if err := waitHealthy(ctx, url, healthAttempts, healthDelay); err != nil {
		return fmt.Errorf(i18n.T("release.error_unhealthy"), err)
	}
	return nil
}

// ensureCheckout clones the app repository on first contact and hard-resets
// it to the remote branch on every run after that. Local edits on the host
// are deliberately discarded; the checkout is a build input, not a workspace.
func (p *Pipeline) ensureCheckout() error {
	gitDir := path.Join(p.App.RemoteDir, ".git")
	exists, err := p.Conn.Exists(gitDir)
	if err != nil {
		return err
	}

	var cmd string
	if exists {
		cmd = fmt.Sprintf("git -C %s fetch origin && git -C %s reset --hard origin/%s",
			p.App.RemoteDir, p.App.RemoteDir, p.App.Branch)
	} else {
		cmd = fmt.Sprintf("git clone --branch %s %s %s", p.App.Branch, p.App.RepoURL, p.App.RemoteDir)
	}
	if out, err := p.Conn.Run(cmd); err != nil {
		return fmt.Errorf(i18n.T("release.error_checkout"), strings.TrimSpace(out), err)
	}
	return nil
}

// writeEnvFile renders and uploads the app's .env. The API key comes from the
// in-memory mailbox and is wiped after use.
func (p *Pipeline) writeEnvFile() error {
	apiKey := state.APIKeyCache.Get()
	defer func() {
		for i := range apiKey {
			apiKey[i] = 0
		}
	}()
	if len(apiKey) == 0 {
		return errors.New(i18n.T("release.error_no_api_key"))
	}

	content := fmt.Sprintf("GENAI_API_KEY=%s\n", apiKey)
	envPath := path.Join(p.App.RemoteDir, ".env")
	changed, err := p.Conn.Upload(envPath, []byte(content), 0600)
	if err != nil {
		return fmt.Errorf(i18n.T("release.error_env_upload"), err)
	}
	if changed {
		logging.Debugf("updated %s", envPath)
	}
	return nil
}

// configureNginx uploads the managed site file, enables it and reloads Nginx.
// The reload only happens after a passing config test.
func (p *Pipeline) configureNginx() error {
	site, err := nginx.RenderSite(nginx.SiteData{
		ServerName: p.Host.Domain,
		Port:       p.App.HealthPort,
		HealthPath: p.App.HealthPath,
	})
	if err != nil {
		return err
	}

	changed, err := UploadSystemFile(p.Conn, nginx.SitePath, site)
	if err != nil {
		return fmt.Errorf(i18n.T("release.error_nginx_upload"), err)
	}

	enable := fmt.Sprintf("sudo -n ln -sf %s %s && sudo -n rm -f /etc/nginx/sites-enabled/default",
		nginx.SitePath, nginx.EnabledPath)
	if out, err := p.Conn.Run(enable); err != nil {
		return fmt.Errorf(i18n.T("release.error_nginx_enable"), strings.TrimSpace(out), err)
	}

	if !changed {
		return nil
	}
	return TestAndReloadNginx(p.Conn)
}

func (p *Pipeline) composeUp() error {
	compose := "docker compose"
	if p.App.ComposeProject != "" {
		compose += " -p " + p.App.ComposeProject
	}
	cmd := fmt.Sprintf("cd %s && %s up -d --build", p.App.RemoteDir, compose)
	if out, err := p.Conn.Run(cmd); err != nil {
		return fmt.Errorf(i18n.T("release.error_compose"), strings.TrimSpace(out), err)
	}
	return nil
}

// TestAndReloadNginx reloads Nginx, but only after `nginx -t` passes. A bad
// config never takes down a serving site.
func TestAndReloadNginx(c Conn) error {
	if out, err := c.Run("sudo -n nginx -t"); err != nil {
		return fmt.Errorf(i18n.T("release.error_nginx_test"), strings.TrimSpace(out), err)
	}
	if out, err := c.Run("sudo -n systemctl reload nginx"); err != nil {
		return fmt.Errorf(i18n.T("release.error_nginx_reload"), strings.TrimSpace(out), err)
	}
	return nil
}

// UploadSystemFile writes content to a root-owned path. The bytes go up over
// SFTP into the login user's home first, then move into place with sudo. The
// previous version, when present and different, is copied to a timestamped
// .bak next to the destination. Returns whether the destination changed.
func UploadSystemFile(c Conn, remotePath string, content []byte) (bool, error) {
	if existing, err := c.Download(remotePath); err == nil && string(existing) == string(content) {
		return false, nil
	}

	tmp := fmt.Sprintf(".querioctl-upload.%d", time.Now().UnixNano())
	if _, err := c.Upload(tmp, content, 0644); err != nil {
		return false, err
	}
	script := fmt.Sprintf(
		`if sudo -n test -f %[2]s; then sudo -n cp -p %[2]s %[2]s.bak.$(date +%%s); fi && sudo -n install -m 0644 %[1]s %[2]s; rc=$?; rm -f %[1]s; exit $rc`,
		tmp, remotePath)
	if out, err := c.Run(script); err != nil {
		return false, fmt.Errorf("failed to install %s: %s: %w", remotePath, strings.TrimSpace(out), err)
	}
	return true, nil
}

// updateSerialWithRetry retries the serial bump a few times when SQLite
// reports the database as locked (another querioctl run holding it briefly).
func updateSerialWithRetry(hostID, serial int) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
		}
		err = updateHostSerial(hostID, serial)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			break
		}
	}
	return fmt.Errorf(i18n.T("release.error_update_serial"), err)
}
