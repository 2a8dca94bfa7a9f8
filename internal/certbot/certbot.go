// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package certbot turns a deployed HTTP site into an HTTPS one via Let's
// Encrypt. It refuses to run until DNS actually points at the host, because
// certbot's HTTP challenge would only burn rate limits otherwise.
package certbot

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/querio/querioctl/internal/health"
	"github.com/querio/querioctl/internal/i18n"
	"github.com/querio/querioctl/internal/logging"
	"github.com/querio/querioctl/internal/model"
	"github.com/querio/querioctl/internal/nginx"
	"github.com/querio/querioctl/internal/release"
)

// lookupHost and waitHealthy are swapped out in tests.
var (
	lookupHost = func(ctx context.Context, host string) ([]string, error) {
		return net.DefaultResolver.LookupHost(ctx, host)
	}
	waitHealthy = health.Wait
)

const liveDir = "/etc/letsencrypt/live/"

// Setup requests and installs a certificate for the host's domain and
// verifies the HTTPS health endpoint afterwards. It is safe to re-run; an
// existing certificate skips the certbot call.
func Setup(ctx context.Context, c release.Conn, host model.Host, email, healthPath string) error {
	domain := host.Domain
	if domain == "" {
		return fmt.Errorf(i18n.T("certbot.error_no_domain"), host.Name)
	}

	if err := checkDNS(ctx, domain, host.Address); err != nil {
		return err
	}

	// The site file must already be managed; https builds on deploy.
	exists, err := c.Exists(nginx.SitePath)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf(i18n.T("certbot.error_no_site"), nginx.SitePath)
	}

	site, err := c.Download(nginx.SitePath)
	if err != nil {
		return err
	}
	updated, err := nginx.SetServerName(site, domain)
	if err != nil {
		return err
	}
	changed, err := release.UploadSystemFile(c, nginx.SitePath, updated)
	if err != nil {
		return err
	}
	if changed {
		if err := release.TestAndReloadNginx(c); err != nil {
			return err
		}
	}

	// An existing certificate means certbot already rewrote the site file;
	// requesting again would be pointless at best.
	if _, err := c.Run("sudo -n test -d " + liveDir + domain); err == nil {
		logging.Infof(i18n.T("certbot.cert_exists"), domain)
	} else {
		cmd := fmt.Sprintf("sudo -n certbot --nginx -d %s --non-interactive --agree-tos -m %s", domain, email)
		if out, err := c.Run(cmd); err != nil {
			return fmt.Errorf(i18n.T("certbot.error_certbot"), strings.TrimSpace(out), err)
		}
	}

	url := "https://" + domain + healthPath
	logging.Infof(i18n.T("certbot.verifying"), url)
	if err := waitHealthy(ctx, url, 6, 5*time.Second); err != nil {
		return fmt.Errorf(i18n.T("certbot.error_unhealthy"), err)
	}
	return nil
}

// checkDNS verifies that the domain resolves to the host's address. When the
// address is itself a name (an EC2 public DNS name, say), both sides are
// resolved and must share at least one IP.
func checkDNS(ctx context.Context, domain, address string) error {
	domainAddrs, err := lookupHost(ctx, domain)
	if err != nil {
		return fmt.Errorf(i18n.T("certbot.error_dns_lookup"), domain, err)
	}

	hostIPs := []string{address}
	if net.ParseIP(address) == nil {
		if hostIPs, err = lookupHost(ctx, address); err != nil {
			return fmt.Errorf(i18n.T("certbot.error_dns_lookup"), address, err)
		}
	}

	for _, da := range domainAddrs {
		for _, ha := range hostIPs {
			if da == ha {
				return nil
			}
		}
	}
	return fmt.Errorf(i18n.T("certbot.error_dns_mismatch"), domain, strings.Join(domainAddrs, ", "), address)
}
