// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package certbot

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/querio/querioctl/internal/model"
	"github.com/querio/querioctl/internal/nginx"
)

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

func (f *fakeConn) didRun(substr string) bool {
	for _, cmd := range f.ran {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}

var testHost = model.Host{
	ID:      1,
	Name:    "prod",
	Address: "203.0.113.9",
	User:    "ubuntu",
	Domain:  "querio.example.com",
}

func stubDNS(t *testing.T, addrs map[string][]string) {
	t.Helper()
	orig := lookupHost
	lookupHost = func(ctx context.Context, host string) ([]string, error) {
		if a, ok := addrs[host]; ok {
			return a, nil
		}
		return nil, errors.New("no such host")
	}
	t.Cleanup(func() { lookupHost = orig })
}

func stubHealth(t *testing.T, err error) (urls *[]string) {
	t.Helper()
	var seen []string
	orig := waitHealthy
	waitHealthy = func(ctx context.Context, url string, attempts int, delay time.Duration) error {
		seen = append(seen, url)
		return err
	}
	t.Cleanup(func() { waitHealthy = orig })
	return &seen
}

func managedSite(t *testing.T) []byte {
	t.Helper()
	site, err := nginx.RenderSite(nginx.SiteData{Port: 8000})
	if err != nil {
		t.Fatalf("RenderSite failed: %v", err)
	}
	return site
}

func TestSetupRequiresDomain(t *testing.T) {
	host := testHost
	host.Domain = ""
	if err := Setup(context.Background(), newFakeConn(), host, "ops@example.com", "/api/health"); err == nil {
		t.Fatal("expected error for host without domain")
	}
}

func TestSetupRefusesOnDNSMismatch(t *testing.T) {
	stubDNS(t, map[string][]string{"querio.example.com": {"198.51.100.1"}})
	conn := newFakeConn()

	err := Setup(context.Background(), conn, testHost, "ops@example.com", "/api/health")
	if err == nil {
		t.Fatal("expected error when DNS points elsewhere")
	}
	if len(conn.ran) != 0 {
		t.Errorf("nothing may run on the host before DNS checks out, ran: %v", conn.ran)
	}
}

func TestSetupResolvesHostAddress(t *testing.T) {
	// EC2-style: the host is registered by public DNS name, not IP.
	host := testHost
	host.Address = "ec2-203-0-113-9.compute.amazonaws.com"
	stubDNS(t, map[string][]string{
		"querio.example.com": {"203.0.113.9"},
		host.Address:         {"203.0.113.9"},
	})
	stubHealth(t, nil)
	conn := newFakeConn()
	conn.files[nginx.SitePath] = managedSite(t)
	conn.fail["test -d"] = errors.New("missing")

	if err := Setup(context.Background(), conn, host, "ops@example.com", "/api/health"); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
}

func TestSetupRequiresManagedSite(t *testing.T) {
	stubDNS(t, map[string][]string{"querio.example.com": {"203.0.113.9"}})
	err := Setup(context.Background(), newFakeConn(), testHost, "ops@example.com", "/api/health")
	if err == nil {
		t.Fatal("expected error when the site file is missing")
	}
}

func TestSetupHappyPath(t *testing.T) {
	stubDNS(t, map[string][]string{"querio.example.com": {"203.0.113.9"}})
	urls := stubHealth(t, nil)
	conn := newFakeConn()
	conn.files[nginx.SitePath] = managedSite(t)
	conn.fail["test -d"] = errors.New("missing")

	if err := Setup(context.Background(), conn, testHost, "ops@example.com", "/api/health"); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if !conn.didRun("certbot --nginx -d querio.example.com --non-interactive --agree-tos -m ops@example.com") {
		t.Errorf("expected certbot invocation, ran: %v", conn.ran)
	}
	if !conn.didRun("nginx -t") {
		t.Error("expected nginx config test after the server_name rewrite")
	}
	if len(*urls) != 1 || (*urls)[0] != "https://querio.example.com/api/health" {
		t.Errorf("unexpected health verification: %v", *urls)
	}
}

func TestSetupSkipsExistingCertificate(t *testing.T) {
	stubDNS(t, map[string][]string{"querio.example.com": {"203.0.113.9"}})
	stubHealth(t, nil)
	conn := newFakeConn()
	conn.files[nginx.SitePath] = managedSite(t)
	// test -d succeeds: the live directory exists.

	if err := Setup(context.Background(), conn, testHost, "ops@example.com", "/api/health"); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if conn.didRun("certbot --nginx") {
		t.Error("certbot must not run when a certificate already exists")
	}
}

func TestSetupFailsWhenHTTPSUnhealthy(t *testing.T) {
	stubDNS(t, map[string][]string{"querio.example.com": {"203.0.113.9"}})
	stubHealth(t, errors.New("tls handshake failed"))
	conn := newFakeConn()
	conn.files[nginx.SitePath] = managedSite(t)

	if err := Setup(context.Background(), conn, testHost, "ops@example.com", "/api/health"); err == nil {
		t.Fatal("expected error when HTTPS health check fails")
	}
}
