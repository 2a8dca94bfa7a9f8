// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package provision prepares a fresh Ubuntu host to run the Querio app
// behind Nginx. Every step is guarded by a check so re-running after a
// failure is safe; the first failing step aborts the run.
package provision

import (
	"fmt"

	"github.com/querio/querioctl/internal/i18n"
	"github.com/querio/querioctl/internal/logging"
)

// Runner executes a command on the target host. *sshexec.Session satisfies
// this; tests use a fake.
type Runner interface {
	Run(cmd string) (string, error)
}

// Step is one idempotent provisioning action. When Check is non-empty and
// succeeds on the host, Apply is skipped.
type Step struct {
	Name  string
	Check string
	Apply string
}

// aptGet runs apt-get non-interactively under sudo.
const aptGet = "sudo -n env DEBIAN_FRONTEND=noninteractive apt-get"

// Steps returns the ordered provisioning plan.
func Steps() []Step {
	return []Step{
		{
			Name:  "apt-update",
			Apply: aptGet + " update -y",
		},
		{
			Name:  "base-packages",
			Check: "command -v git >/dev/null && command -v curl >/dev/null",
			Apply: aptGet + " install -y git ca-certificates curl",
		},
		{
			Name:  "docker-engine",
			Check: "command -v docker >/dev/null",
			Apply: "curl -fsSL https://get.docker.com | sudo -n sh",
		},
		{
			Name:  "docker-compose-plugin",
			Check: "docker compose version >/dev/null 2>&1",
			Apply: aptGet + " install -y docker-compose-plugin",
		},
		{
			Name:  "docker-service",
			Check: "systemctl is-active --quiet docker",
			Apply: "sudo -n systemctl enable --now docker",
		},
		{
			Name:  "docker-group",
			Check: "id -nG | grep -qw docker",
			Apply: `sudo -n usermod -aG docker "$(id -un)"`,
		},
		{
			Name:  "nginx",
			Check: "command -v nginx >/dev/null",
			Apply: aptGet + " install -y nginx",
		},
		{
			Name: "firewall",
			// Nothing to do unless ufw is installed and active.
			Check: `! command -v ufw >/dev/null || sudo -n ufw status | grep -q inactive`,
			Apply: "sudo -n ufw allow OpenSSH && sudo -n ufw allow 80/tcp && sudo -n ufw allow 443/tcp",
		},
	}
}

// Apply runs the provisioning plan on r. It first verifies passwordless sudo,
// since every step needs it and a mid-run password prompt would hang the
// session.
func Apply(r Runner) error {
	if out, err := r.Run("sudo -n true"); err != nil {
		return fmt.Errorf(i18n.T("provision.error_sudo"), out, err)
	}

	for _, step := range Steps() {
		if step.Check != "" {
			if _, err := r.Run(step.Check); err == nil {
				logging.Debugf("provision step %s: already satisfied, skipping", step.Name)
				continue
			}
		}
		logging.Infof(i18n.T("provision.step_running"), step.Name)
		if out, err := r.Run(step.Apply); err != nil {
			return fmt.Errorf(i18n.T("provision.error_step"), step.Name, out, err)
		}
	}
	return nil
}
