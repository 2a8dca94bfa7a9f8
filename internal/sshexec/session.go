// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshexec provides the SSH/SFTP transport for talking to managed
// hosts. Host keys are pinned in the database; unknown or mismatched keys
// abort the connection. Authentication uses the configured deploy key first
// and falls back to a running SSH agent.
package sshexec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/querio/querioctl/internal/db"
)

// ErrPassphraseRequired is returned when the deploy key is encrypted and no
// passphrase was supplied.
var ErrPassphraseRequired = errors.New("private key is encrypted and requires a passphrase")

// IsPassphraseRequired reports whether err means the deploy key needs a
// passphrase before it can be used.
func IsPassphraseRequired(err error) bool {
	return errors.Is(err, ErrPassphraseRequired)
}

// Session handles the connection to a single managed host.
type Session struct {
	client *ssh.Client
	sftp   *sftp.Client
}

// hostKeyCallback validates the presented host key against the pinned key in
// the database. First connections must go through 'querioctl trust-host'.
func hostKeyCallback(hostname string, remote net.Addr, key ssh.PublicKey) error {
	// The hostname passed to the callback can include the port. Strip it so
	// we look up the same value trust-host stored.
	host, _, err := net.SplitHostPort(hostname)
	if err != nil {
		host = hostname
	}

	presentedKey := string(ssh.MarshalAuthorizedKey(key))

	knownKey, err := db.GetKnownHostKey(host)
	if err != nil {
		return fmt.Errorf("failed to query known_hosts database: %w", err)
	}

	if knownKey == "" {
		return fmt.Errorf("unknown host key for %s. run 'querioctl trust-host' to add it", host)
	}

	if knownKey != presentedKey {
		return fmt.Errorf("!!! HOST KEY MISMATCH FOR %s !!!\nRemote key presented: %s\nThis could be a man-in-the-middle attack", host, presentedKey)
	}

	return nil
}

// normalizeAddr appends port 22 when host carries no port.
func normalizeAddr(host string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		return net.JoinHostPort(host, "22")
	}
	return host
}

// parseSigner loads the deploy key, decrypting it with passphrase when one is
// cached. An encrypted key without a passphrase yields ErrPassphraseRequired
// so callers can prompt and retry.
func parseSigner(privateKey, passphrase []byte) (ssh.Signer, error) {
	if len(passphrase) > 0 {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(privateKey, passphrase)
		if err != nil {
			return nil, fmt.Errorf("unable to decrypt private key: %w", err)
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, ErrPassphraseRequired
		}
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}
	return signer, nil
}

// NewSession opens an SSH connection to host as user. keyPath names the
// operator deploy key on local disk; an empty keyPath skips straight to the
// agent fallback.
func NewSession(host, user, keyPath string, passphrase []byte) (*Session, error) {
	addr := normalizeAddr(host)

	var finalErr error

	// --- Attempt 1: the configured deploy key ---
	if keyPath != "" {
		keyBytes, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read deploy key %s: %w", keyPath, err)
		}
		signer, err := parseSigner(keyBytes, passphrase)
		if err != nil {
			return nil, err
		}

		config := &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         10 * time.Second,
		}

		client, err := ssh.Dial("tcp", addr, config)
		if err == nil {
			sftpClient, sftpErr := sftp.NewClient(client)
			if sftpErr != nil {
				client.Close()
				return nil, fmt.Errorf("failed to create sftp client: %w", sftpErr)
			}
			return &Session{client: client, sftp: sftpClient}, nil
		}

		// Anything other than an auth failure fails fast; the agent cannot
		// help with a bad host key or an unreachable host.
		if !strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("connection with deploy key failed: %w", err)
		}
		finalErr = err
	}

	// --- Attempt 2: the SSH agent as a fallback ---
	agentClient := getSSHAgent()
	if agentClient == nil {
		if finalErr != nil {
			return nil, fmt.Errorf("deploy key authentication failed, and no SSH agent available for fallback: %w", finalErr)
		}
		return nil, fmt.Errorf("no authentication method available (no deploy key configured and no ssh agent found)")
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("connection with ssh agent failed: %w", err)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}

	return &Session{client: client, sftp: sftpClient}, nil
}

// Run executes cmd on the remote host and returns its combined output. The
// output is returned even on failure so callers can surface it.
func (s *Session) Run(cmd string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer sess.Close()

	out, err := sess.CombinedOutput(cmd)
	if err != nil {
		return string(out), fmt.Errorf("remote command %q failed: %w", cmd, err)
	}
	return string(out), nil
}

// Exists reports whether path exists on the remote host.
func (s *Session) Exists(path string) (bool, error) {
	_, err := s.sftp.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat remote path %s: %w", path, err)
}

// Download reads and returns the content of a remote file.
func (s *Session) Download(path string) ([]byte, error) {
	f, err := s.sftp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file %s: %w", path, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read from remote file %s: %w", path, err)
	}
	return content, nil
}

// backupPath names the timestamped copy taken before an overwrite.
func backupPath(path string, now time.Time) string {
	return fmt.Sprintf("%s.bak.%d", path, now.Unix())
}

// Upload writes content to remotePath via a temporary file and an atomic
// rename. When the destination already exists with different content, the old
// version is first copied to a timestamped .bak file next to it. Unchanged
// files are left alone and reported as such.
func (s *Session) Upload(remotePath string, content []byte, mode os.FileMode) (changed bool, err error) {
	existing, err := s.Download(remotePath)
	if err == nil {
		if bytes.Equal(existing, content) {
			return false, nil
		}
		bak := backupPath(remotePath, time.Now())
		if err := s.writeFile(bak, existing, mode); err != nil {
			return false, fmt.Errorf("failed to back up %s: %w", remotePath, err)
		}
	}

	tmpPath := fmt.Sprintf("%s.querioctl.%d", remotePath, time.Now().UnixNano())
	if err := s.writeFile(tmpPath, content, mode); err != nil {
		return false, err
	}

	if err := s.sftp.PosixRename(tmpPath, remotePath); err != nil {
		_ = s.sftp.Remove(tmpPath)
		return false, fmt.Errorf("failed to atomically rename %s: %w", remotePath, err)
	}

	return true, nil
}

func (s *Session) writeFile(path string, content []byte, mode os.FileMode) error {
	f, err := s.sftp.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		_ = s.sftp.Remove(path)
		return fmt.Errorf("failed to write remote file %s: %w", path, err)
	}
	f.Close()

	if err := s.sftp.Chmod(path, mode); err != nil {
		_ = s.sftp.Remove(path)
		return fmt.Errorf("failed to chmod remote file %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates dir and any missing parents on the remote host.
func (s *Session) MkdirAll(dir string) error {
	if err := s.sftp.MkdirAll(dir); err != nil {
		return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
	}
	return nil
}

// Close closes the underlying SSH and SFTP clients.
func (s *Session) Close() {
	if s.sftp != nil {
		s.sftp.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
}

// ProbeHostKey connects to a host just to retrieve its public key, for
// 'querioctl trust-host'. No authentication takes place.
func ProbeHostKey(host string) (ssh.PublicKey, error) {
	keyChan := make(chan ssh.PublicKey, 1)

	config := &ssh.ClientConfig{
		User: "querioctl-probe",
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			keyChan <- key
			// Return a sentinel error to gracefully stop the handshake.
			return fmt.Errorf("querioctl: successfully retrieved host key")
		},
		Timeout: 5 * time.Second,
	}

	_, err := ssh.Dial("tcp", normalizeAddr(host), config)
	if err != nil {
		if strings.Contains(err.Error(), "querioctl: successfully retrieved host key") {
			return <-keyChan, nil
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", host, err)
	}

	return nil, fmt.Errorf("ssh.Dial succeeded unexpectedly, could not retrieve key")
}
