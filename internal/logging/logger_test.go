// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package logging

import (
	"testing"

	clog "github.com/charmbracelet/log"
)

func TestSetDebugTogglesLevel(t *testing.T) {
	SetDebug(true)
	if L.GetLevel() != clog.DebugLevel {
		t.Fatalf("expected debug level, got %v", L.GetLevel())
	}
	SetDebug(false)
	if L.GetLevel() != clog.InfoLevel {
		t.Fatalf("expected info level, got %v", L.GetLevel())
	}
}
