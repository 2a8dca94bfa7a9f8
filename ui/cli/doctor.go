// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// doctor.go contains the 'doctor' command: local preflight checks that catch
// the usual setup problems before they surface mid-deploy on a host.

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/querio/querioctl/internal/db"
	"github.com/querio/querioctl/internal/sshexec"
)

// checkResult is the outcome of a single doctor check.
type checkResult struct {
	Name    string
	OK      bool
	Warning bool
	Message string
}

// doctorCmd represents the 'doctor' command.
var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Short:   "Check the local setup (config, deploy key, database)",
	Long:    `Runs local preflight checks: the config file, the deploy key, the SSH agent and the inventory database. No hosts are contacted.`,
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		results := runDoctorChecks()

		failed := 0
		for _, r := range results {
			marker := "ok"
			if r.Warning {
				marker = "warn"
			}
			if !r.OK {
				marker = "FAIL"
				failed++
			}
			line := fmt.Sprintf("  [%-4s] %s", marker, r.Name)
			if r.Message != "" {
				line += " - " + r.Message
			}
			fmt.Println(line)
		}
		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

func runDoctorChecks() []checkResult {
	return []checkResult{
		checkConfig(),
		checkDeployKey(),
		checkDatabase(),
	}
}

func checkConfig() checkResult {
	r := checkResult{Name: "config", OK: true}
	if appConfig.App.RepoURL == "" {
		r.OK = false
		r.Message = "app.repo_url is not set; deploy has nothing to clone"
		return r
	}
	if appConfig.HTTPS.Email == "" {
		r.Warning = true
		r.Message = "https.email is not set; the https command will need --email"
	}
	return r
}

// checkDeployKey verifies the configured key exists and parses. An encrypted
// key is fine, it just means a passphrase prompt later. Without a key, a
// running SSH agent is the only way in.
func checkDeployKey() checkResult {
	r := checkResult{Name: "deploy key", OK: true}
	keyPath := appConfig.SSH.KeyPath
	if keyPath == "" {
		if os.Getenv("SSH_AUTH_SOCK") == "" {
			r.OK = false
			r.Message = "ssh.key_path is not set and no SSH agent is running"
		} else {
			r.Warning = true
			r.Message = "no deploy key configured; relying on the SSH agent"
		}
		return r
	}

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		r.OK = false
		r.Message = fmt.Sprintf("cannot read %s: %v", keyPath, err)
		return r
	}
	if _, err := ssh.ParsePrivateKey(keyBytes); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) || sshexec.IsPassphraseRequired(err) {
			r.Message = "key is passphrase-protected; you will be prompted on first use"
			return r
		}
		r.OK = false
		r.Message = fmt.Sprintf("cannot parse %s: %v", keyPath, err)
	}
	return r
}

func checkDatabase() checkResult {
	r := checkResult{Name: "database", OK: true}
	hosts, err := db.GetAllHosts()
	if err != nil {
		r.OK = false
		r.Message = fmt.Sprintf("cannot query %s database: %v", appConfig.Database.Type, err)
		return r
	}
	if len(hosts) == 0 {
		r.Warning = true
		r.Message = "no hosts in the inventory yet; run 'querioctl hosts add'"
		return r
	}
	r.Message = fmt.Sprintf("%d host(s) in the inventory", len(hosts))
	return r
}
