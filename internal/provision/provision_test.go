// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"errors"
	"strings"
	"testing"
)

// fakeRunner scripts remote command results. Commands not listed in fail
// succeed with empty output.
type fakeRunner struct {
	ran  []string
	fail map[string]error
}

func (f *fakeRunner) Run(cmd string) (string, error) {
	f.ran = append(f.ran, cmd)
	if err, ok := f.fail[cmd]; ok {
		return "scripted failure", err
	}
	return "", nil
}

func (f *fakeRunner) didRun(substr string) bool {
	for _, cmd := range f.ran {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}

func TestApplySkipsSatisfiedSteps(t *testing.T) {
	// Every check succeeds, so only apt-update (which has no check) applies.
	r := &fakeRunner{}
	if err := Apply(r); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !r.didRun("sudo -n true") {
		t.Error("expected sudo preflight")
	}
	if !r.didRun("apt-get update") {
		t.Error("expected apt-update to always run")
	}
	if r.didRun("get.docker.com") {
		t.Error("docker install must be skipped when the check passes")
	}
}

func TestApplyRunsFailedChecks(t *testing.T) {
	r := &fakeRunner{fail: map[string]error{
		"command -v docker >/dev/null": errors.New("exit 1"),
	}}
	if err := Apply(r); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !r.didRun("get.docker.com") {
		t.Error("expected docker install after failed check")
	}
}

func TestApplyAbortsOnStepFailure(t *testing.T) {
	failing := aptGet + " update -y"
	r := &fakeRunner{fail: map[string]error{failing: errors.New("exit 100")}}
	err := Apply(r)
	if err == nil {
		t.Fatal("expected error from failing step")
	}
	// Nothing after the failing step may have run.
	if r.ran[len(r.ran)-1] != failing {
		t.Errorf("run did not abort at the failing step, last cmd: %q", r.ran[len(r.ran)-1])
	}
}

func TestApplyRequiresPasswordlessSudo(t *testing.T) {
	r := &fakeRunner{fail: map[string]error{"sudo -n true": errors.New("sudo: a password is required")}}
	if err := Apply(r); err == nil {
		t.Fatal("expected error when sudo needs a password")
	}
	if len(r.ran) != 1 {
		t.Errorf("no steps may run without sudo, ran: %v", r.ran)
	}
}

func TestStepsAreNonInteractive(t *testing.T) {
	for _, s := range Steps() {
		if strings.Contains(s.Apply, "apt-get") && !strings.Contains(s.Apply, "DEBIAN_FRONTEND=noninteractive") {
			t.Errorf("step %s runs apt-get interactively", s.Name)
		}
	}
}
