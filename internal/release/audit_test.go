// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package release

import (
	"testing"

	"github.com/querio/querioctl/internal/model"
	"github.com/querio/querioctl/internal/nginx"
)

func auditFor(t *testing.T, conn *fakeConn) map[string]model.DriftReport {
	t.Helper()
	host := model.Host{ID: 1, Address: "203.0.113.9", Domain: "querio.example.com"}
	reports, err := Audit(conn, host, testApp)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	byPath := make(map[string]model.DriftReport, len(reports))
	for _, r := range reports {
		byPath[r.Path] = r
	}
	return byPath
}

func TestAuditFreshHost(t *testing.T) {
	byPath := auditFor(t, newFakeConn())

	for _, path := range []string{nginx.SitePath, "/home/ubuntu/querio/.env", "/home/ubuntu/querio"} {
		r, ok := byPath[path]
		if !ok {
			t.Fatalf("no report for %s", path)
		}
		if r.Status != model.DriftMissing {
			t.Errorf("%s on a fresh host: got %v, want missing", path, r.Status)
		}
	}
}

func TestAuditHealthyHost(t *testing.T) {
	conn := newFakeConn()
	site, err := nginx.RenderSite(nginx.SiteData{
		ServerName: "querio.example.com",
		Port:       testApp.HealthPort,
		HealthPath: testApp.HealthPath,
	})
	if err != nil {
		t.Fatalf("RenderSite failed: %v", err)
	}
	conn.files[nginx.SitePath] = site
	conn.files["/home/ubuntu/querio/.env"] = []byte("GENAI_API_KEY=xyz\n")
	conn.files["/home/ubuntu/querio/.git"] = []byte("gitdir")

	byPath := auditFor(t, conn)
	for path, r := range byPath {
		if r.Status != model.DriftInSync {
			t.Errorf("%s: got %v (%s), want in-sync", path, r.Status, r.Detail)
		}
	}
}

func TestAuditDetectsTampering(t *testing.T) {
	conn := newFakeConn()
	conn.files[nginx.SitePath] = []byte("server { proxy_pass http://127.0.0.1:9999; }")
	conn.files["/home/ubuntu/querio/.env"] = []byte("SOME_OTHER_KEY=1\n")

	byPath := auditFor(t, conn)
	if byPath[nginx.SitePath].Status != model.DriftModified {
		t.Errorf("tampered site file: got %v, want modified", byPath[nginx.SitePath].Status)
	}
	if byPath["/home/ubuntu/querio/.env"].Status != model.DriftModified {
		t.Errorf("env without key: got %v, want modified", byPath["/home/ubuntu/querio/.env"].Status)
	}
}
