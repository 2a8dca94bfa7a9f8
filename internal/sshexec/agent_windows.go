//go:build windows
// +build windows

// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// This file contains the Windows-specific implementation for locating the
// SSH agent.
package sshexec

import (
	"net"
	"os"

	"github.com/Microsoft/go-winio"
	"github.com/davidmz/go-pageant"
	"golang.org/x/crypto/ssh/agent"
)

// getSSHAgent attempts to connect to a running SSH agent on Windows.
// It first tries Pageant-compatible agents (like PuTTY's). If that fails, it
// falls back to the OpenSSH agent via named pipes, using the SSH_AUTH_SOCK
// environment variable or the default pipe name.
func getSSHAgent() agent.Agent {
	// 1. Try Pageant-like agents (PuTTY, gpg-agent)
	if pageant.Available() {
		return pageant.New()
	}

	// 2. Try OpenSSH agent named pipes
	var agentConn net.Conn
	var err error
	if sshAgentSocket := os.Getenv("SSH_AUTH_SOCK"); sshAgentSocket != "" {
		agentConn, err = winio.DialPipe(sshAgentSocket, nil)
	} else {
		agentConn, err = winio.DialPipe(`\\.\pipe\openssh-ssh-agent`, nil)
	}

	if err == nil && agentConn != nil {
		return agent.NewClient(agentConn)
	}

	return nil
}
