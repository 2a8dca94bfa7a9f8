// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package i18n

import (
	"strings"
	"testing"
)

func TestTranslations(t *testing.T) {
	Init("en")
	if got := T("cli.cancelled"); got != "Cancelled." {
		t.Errorf("unexpected translation: %q", got)
	}

	// Arguments are applied with fmt verbs from the message.
	if got := T("cli.host_ok", "ubuntu@203.0.113.9"); got != "ubuntu@203.0.113.9: OK" {
		t.Errorf("unexpected formatted translation: %q", got)
	}
}

func TestUnknownMessageFallsBackToID(t *testing.T) {
	Init("en")
	if got := T("does.not_exist"); got != "does.not_exist" {
		t.Errorf("expected message ID fallback, got %q", got)
	}
}

func TestGermanLocale(t *testing.T) {
	SetLang("de")
	defer SetLang("en")

	if GetLang() != "de" {
		t.Fatalf("GetLang = %q, want de", GetLang())
	}
	if got := T("cli.cancelled"); got != "Abgebrochen." {
		t.Errorf("unexpected German translation: %q", got)
	}
}

func TestAllMessagesPresentInBothLocales(t *testing.T) {
	Init("de")
	// Spot-check that the German file keeps up with the English one for a
	// few high-traffic messages.
	for _, id := range []string{"release.success", "hosts.added", "tui.title", "provision.error_step"} {
		if got := T(id); got == id || strings.TrimSpace(got) == "" {
			t.Errorf("message %s missing from German locale", id)
		}
	}
}
