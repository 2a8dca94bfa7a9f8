// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package release

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/querio/querioctl/internal/config"
	"github.com/querio/querioctl/internal/db"
	"github.com/querio/querioctl/internal/model"
	"github.com/querio/querioctl/internal/state"
)

// fakeConn simulates a host: an in-memory filesystem plus scripted command
// results. Commands matching a key in fail (substring) return its error.
type fakeConn struct {
	files map[string][]byte
	ran   []string
	fail  map[string]error
}

func newFakeConn() *fakeConn {
	return &fakeConn{files: map[string][]byte{}, fail: map[string]error{}}
}

func (f *fakeConn) Run(cmd string) (string, error) {
	f.ran = append(f.ran, cmd)
	for needle, err := range f.fail {
		if strings.Contains(cmd, needle) {
			return "scripted failure", err
		}
	}
	return "", nil
}

func (f *fakeConn) Upload(remotePath string, content []byte, mode os.FileMode) (bool, error) {
	f.files[remotePath] = append([]byte(nil), content...)
	return true, nil
}

func (f *fakeConn) Download(remotePath string) ([]byte, error) {
	content, ok := f.files[remotePath]
	if !ok {
		return nil, os.ErrNotExist
	}
	return content, nil
}

func (f *fakeConn) Exists(remotePath string) (bool, error) {
	_, ok := f.files[remotePath]
	return ok, nil
}

func (f *fakeConn) cmdIndex(substr string) int {
	for i, cmd := range f.ran {
		if strings.Contains(cmd, substr) {
			return i
		}
	}
	return -1
}

var testApp = config.AppConfig{
	RepoURL:        "https://github.com/querio/querio.git",
	Branch:         "main",
	RemoteDir:      "/home/ubuntu/querio",
	ComposeProject: "querio",
	HealthPort:     8000,
	HealthPath:     "/api/health",
}

func setupPipeline(t *testing.T) (*Pipeline, *fakeConn) {
	t.Helper()
	if _, err := db.New("sqlite", ":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	hostID, err := db.AddHost("prod", "203.0.113.9", "ubuntu", "querio.example.com", "")
	if err != nil {
		t.Fatalf("failed to add host: %v", err)
	}
	host, err := db.GetHost(hostID)
	if err != nil || host == nil {
		t.Fatalf("failed to load host: %v", err)
	}

	state.APIKeyCache.Set([]byte("test-api-key"))
	t.Cleanup(state.APIKeyCache.Clear)

	conn := newFakeConn()
	return &Pipeline{Host: *host, App: testApp, Conn: conn}, conn
}

func stubHealth(t *testing.T, err error) {
	t.Helper()
	orig := waitHealthy
	waitHealthy = func(ctx context.Context, url string, attempts int, delay time.Duration) error {
		return err
	}
	t.Cleanup(func() { waitHealthy = orig })
}

func TestDeploySuccess(t *testing.T) {
	p, conn := setupPipeline(t)
	stubHealth(t, nil)

	if err := p.Deploy(context.Background()); err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}

	// First contact clones; there was no .git yet.
	if conn.cmdIndex("git clone --branch main") < 0 {
		t.Error("expected git clone on first deploy")
	}
	if env := conn.files["/home/ubuntu/querio/.env"]; !strings.Contains(string(env), "GENAI_API_KEY=test-api-key") {
		t.Errorf("env file not written correctly: %q", env)
	}
	// nginx -t must precede the reload.
	testIdx, reloadIdx := conn.cmdIndex("nginx -t"), conn.cmdIndex("reload nginx")
	if testIdx < 0 || reloadIdx < 0 || testIdx > reloadIdx {
		t.Errorf("nginx -t must gate the reload, got order %d/%d", testIdx, reloadIdx)
	}
	if conn.cmdIndex("docker compose -p querio up -d --build") < 0 {
		t.Error("expected compose up")
	}

	host, _ := db.GetHost(p.Host.ID)
	if host.Serial != 1 {
		t.Errorf("expected serial 1 after first deploy, got %d", host.Serial)
	}
	latest, _ := db.GetLatestDeployments()
	if latest[p.Host.ID].Status != model.StatusSucceeded {
		t.Errorf("expected succeeded deployment, got %+v", latest[p.Host.ID])
	}
}

func TestDeployResetsExistingCheckout(t *testing.T) {
	p, conn := setupPipeline(t)
	stubHealth(t, nil)
	conn.files["/home/ubuntu/querio/.git"] = []byte("gitdir")

	if err := p.Deploy(context.Background()); err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if conn.cmdIndex("reset --hard origin/main") < 0 {
		t.Error("expected hard reset on existing checkout")
	}
	if conn.cmdIndex("git clone") >= 0 {
		t.Error("must not clone over an existing checkout")
	}
}

func TestDeployFailedHealthKeepsSerial(t *testing.T) {
	p, _ := setupPipeline(t)
	stubHealth(t, errors.New("still 502"))

	if err := p.Deploy(context.Background()); err == nil {
		t.Fatal("expected error from failed health gate")
	}

	host, _ := db.GetHost(p.Host.ID)
	if host.Serial != 0 {
		t.Errorf("serial must not move on a failed deploy, got %d", host.Serial)
	}
	latest, _ := db.GetLatestDeployments()
	if latest[p.Host.ID].Status != model.StatusFailed {
		t.Errorf("expected failed deployment row, got %+v", latest[p.Host.ID])
	}
}

func TestDeployWithoutAPIKey(t *testing.T) {
	p, _ := setupPipeline(t)
	stubHealth(t, nil)
	state.APIKeyCache.Clear()

	if err := p.Deploy(context.Background()); err == nil {
		t.Fatal("expected error when no API key is cached")
	}
}

func TestUpdateSkipsEnvAndNginx(t *testing.T) {
	p, conn := setupPipeline(t)
	stubHealth(t, nil)

	if err := p.Update(context.Background()); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, ok := conn.files["/home/ubuntu/querio/.env"]; ok {
		t.Error("update must not touch .env")
	}
	if conn.cmdIndex("nginx") >= 0 {
		t.Error("update must not touch nginx")
	}
	if conn.cmdIndex("up -d --build") < 0 {
		t.Error("expected compose up")
	}

	host, _ := db.GetHost(p.Host.ID)
	if host.Serial != 1 {
		t.Errorf("expected serial bump after update, got %d", host.Serial)
	}
}

func TestFailingComposeAbortsBeforeHealth(t *testing.T) {
	p, conn := setupPipeline(t)
	called := false
	orig := waitHealthy
	waitHealthy = func(ctx context.Context, url string, attempts int, delay time.Duration) error {
		called = true
		return nil
	}
	t.Cleanup(func() { waitHealthy = orig })

	conn.fail["up -d --build"] = errors.New("exit 1")
	if err := p.Update(context.Background()); err == nil {
		t.Fatal("expected error from failing compose")
	}
	if called {
		t.Error("health gate must not run after a failed compose")
	}
}

func TestUploadSystemFile(t *testing.T) {
	conn := newFakeConn()

	changed, err := UploadSystemFile(conn, "/etc/nginx/sites-available/querio", []byte("server {}"))
	if err != nil {
		t.Fatalf("UploadSystemFile failed: %v", err)
	}
	if !changed {
		t.Error("first upload must report a change")
	}
	if conn.cmdIndex(".bak.$(date +%s)") < 0 {
		t.Error("install script must take a timestamped backup")
	}
	if conn.cmdIndex("sudo -n install -m 0644") < 0 {
		t.Error("install script must move the file into place with sudo")
	}
}

func TestUploadSystemFileUnchanged(t *testing.T) {
	conn := newFakeConn()
	conn.files["/etc/nginx/sites-available/querio"] = []byte("server {}")

	changed, err := UploadSystemFile(conn, "/etc/nginx/sites-available/querio", []byte("server {}"))
	if err != nil {
		t.Fatalf("UploadSystemFile failed: %v", err)
	}
	if changed {
		t.Error("identical content must be a no-op")
	}
	if len(conn.ran) != 0 {
		t.Errorf("no commands may run for identical content, ran: %v", conn.ran)
	}
}

func TestFailedSerialBumpClosesDeployment(t *testing.T) {
	p, _ := setupPipeline(t)
	stubHealth(t, nil)

	orig := updateHostSerial
	updateHostSerial = func(hostID, serial int) error {
		return errors.New("disk I/O error")
	}
	t.Cleanup(func() { updateHostSerial = orig })

	if err := p.Deploy(context.Background()); err == nil {
		t.Fatal("expected error from failed serial update")
	}

	// The row must not stay stuck at running.
	latest, err := db.GetLatestDeployments()
	if err != nil {
		t.Fatalf("GetLatestDeployments failed: %v", err)
	}
	if latest[p.Host.ID].Status != model.StatusFailed {
		t.Errorf("expected failed deployment row, got %+v", latest[p.Host.ID])
	}
	host, _ := db.GetHost(p.Host.ID)
	if host.Serial != 0 {
		t.Errorf("serial must not move when the bump failed, got %d", host.Serial)
	}
}

func TestRecordLeavesHistory(t *testing.T) {
	p, _ := setupPipeline(t)

	if err := Record(p.Host.ID, model.KindProvision, func() error { return nil }); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	latest, err := db.GetLatestDeployments()
	if err != nil {
		t.Fatalf("GetLatestDeployments failed: %v", err)
	}
	if d := latest[p.Host.ID]; d.Kind != model.KindProvision || d.Status != model.StatusSucceeded {
		t.Errorf("expected succeeded provision row, got %+v", d)
	}

	// A failing run is recorded too, and the error passes through.
	wantErr := errors.New("apt broke")
	if err := Record(p.Host.ID, model.KindHTTPS, func() error { return wantErr }); err != wantErr {
		t.Fatalf("Record must return the operation's error, got %v", err)
	}
	latest, _ = db.GetLatestDeployments()
	if d := latest[p.Host.ID]; d.Kind != model.KindHTTPS || d.Status != model.StatusFailed {
		t.Errorf("expected failed https row, got %+v", d)
	}

	// One-off operations never advance the host serial.
	host, _ := db.GetHost(p.Host.ID)
	if host.Serial != 0 {
		t.Errorf("Record must not move the serial, got %d", host.Serial)
	}
}
