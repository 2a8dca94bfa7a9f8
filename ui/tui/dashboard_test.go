// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"testing"

	"github.com/querio/querioctl/internal/config"
	"github.com/querio/querioctl/internal/model"
)

func TestHealthURL(t *testing.T) {
	m := dashboardModel{app: config.AppConfig{HealthPath: "/api/health"}}

	withDomain := model.Host{Address: "203.0.113.9", Domain: "querio.example.com"}
	if got := m.healthURL(withDomain); got != "https://querio.example.com/api/health" {
		t.Errorf("healthURL with domain = %q", got)
	}

	bare := model.Host{Address: "203.0.113.9"}
	if got := m.healthURL(bare); got != "http://203.0.113.9/api/health" {
		t.Errorf("healthURL without domain = %q", got)
	}
}

func TestSelectedHostOutOfRange(t *testing.T) {
	m := newDashboardModel(config.AppConfig{})
	if h := m.selectedHost(); h != nil {
		t.Errorf("empty dashboard must have no selection, got %+v", h)
	}
}
