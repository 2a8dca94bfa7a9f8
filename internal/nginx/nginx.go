// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package nginx renders and inspects the managed Nginx site file for the
// Querio app. The site file is generated from an embedded template; the audit
// command compares the remote copy against the expected rendering to detect
// drift. Certbot rewrites the site file on the host when it installs a
// certificate, so comparison is normalized and ignores comments.
package nginx

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/querio/querioctl/internal/model"
)

//go:embed templates/site.conf.tmpl
var templateFS embed.FS

const (
	// SiteName is the basename of the managed site file.
	SiteName = "querio"
	// SitePath is where the managed site file lives on the host.
	SitePath = "/etc/nginx/sites-available/" + SiteName
	// EnabledPath is the symlink that activates the site.
	EnabledPath = "/etc/nginx/sites-enabled/" + SiteName
)

// SiteData holds the values rendered into the site template.
type SiteData struct {
	ServerName string
	Port       int
	HealthPath string
}

var siteTemplate = template.Must(template.ParseFS(templateFS, "templates/site.conf.tmpl"))

// RenderSite renders the managed site file. An empty ServerName becomes "_",
// Nginx's catch-all, for hosts that have no domain yet.
func RenderSite(data SiteData) ([]byte, error) {
	if data.ServerName == "" {
		data.ServerName = "_"
	}
	if data.HealthPath == "" {
		data.HealthPath = "/api/health"
	}
	var buf bytes.Buffer
	if err := siteTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render nginx site: %w", err)
	}
	return buf.Bytes(), nil
}

var serverNameRe = regexp.MustCompile(`(?m)^(\s*server_name\s+)[^;]*;`)

// SetServerName rewrites every server_name directive in content to name. It
// returns an error when content carries no server_name directive at all, so
// callers don't silently upload an unchanged file.
func SetServerName(content []byte, name string) ([]byte, error) {
	if !serverNameRe.Match(content) {
		return nil, fmt.Errorf("no server_name directive found in site file")
	}
	return serverNameRe.ReplaceAll(content, []byte("${1}"+name+";")), nil
}

// Normalize strips comments and collapses whitespace so that two site files
// can be compared on their directives alone.
func Normalize(content []byte) string {
	var out []string
	for _, line := range strings.Split(string(content), "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Compare classifies the remote site file against the expected rendering.
// A nil actual means the file is missing from the host. A site file that
// certbot has rewritten for HTTPS is compared more loosely: the listen and
// server_name directives belong to certbot then, but the proxy directives we
// own must still be present.
func Compare(expected, actual []byte) model.DriftStatus {
	if actual == nil {
		return model.DriftMissing
	}
	want := Normalize(expected)
	got := Normalize(actual)
	if want == got {
		return model.DriftInSync
	}

	if bytes.Contains(actual, []byte("managed by Certbot")) {
		for _, line := range strings.Split(want, "\n") {
			if strings.HasPrefix(line, "listen ") || strings.HasPrefix(line, "server_name ") {
				continue
			}
			if !strings.Contains(got, line) {
				return model.DriftModified
			}
		}
		return model.DriftInSync
	}

	return model.DriftModified
}
