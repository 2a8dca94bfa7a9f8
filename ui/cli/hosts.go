// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// hosts.go contains the 'hosts' command group for managing the host
// inventory: adding, listing, removing and de/activating hosts.

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/querio/querioctl/internal/db"
	"github.com/querio/querioctl/internal/i18n"
)

var hostDomain string
var hostTags string

// hostsCmd groups the inventory subcommands.
var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage the host inventory",
	Long: `Manage the deployment targets. A host is identified by a short name and
a user@address SSH target; an optional domain enables the https command.`,
}

// hostsAddCmd adds a host to the inventory.
var hostsAddCmd = &cobra.Command{
	Use:   "add <name> <user@address>",
	Short: "Add a host to the inventory",
	Long: `Adds a deployment target. The second argument is the SSH target in
user@address form; address may be an IP or a DNS name.

Example:
  querioctl hosts add prod ubuntu@203.0.113.9 --domain querio.example.com`,
	Args:    cobra.ExactArgs(2),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		name := args[0]

		target := args[1]
		if !strings.Contains(target, "@") {
			return fmt.Errorf("%s", i18n.T("hosts.error_bad_target", target))
		}
		parts := strings.SplitN(target, "@", 2)
		user, address := parts[0], parts[1]
		if user == "" || address == "" {
			return fmt.Errorf("%s", i18n.T("hosts.error_bad_target", target))
		}

		id, err := db.AddHost(name, address, user, hostDomain, hostTags)
		if err != nil {
			if err == db.ErrDuplicate {
				return fmt.Errorf("%s", i18n.T("hosts.error_duplicate", name))
			}
			return fmt.Errorf("%s", i18n.T("hosts.error_add", err))
		}
		fmt.Printf("%s\n", i18n.T("hosts.added", name, id))
		fmt.Printf("%s\n", i18n.T("hosts.trust_reminder", name))
		return nil
	},
}

// hostsListCmd lists the inventory.
var hostsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all hosts",
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		hosts, err := db.GetAllHosts()
		if err != nil {
			return err
		}
		if len(hosts) == 0 {
			fmt.Println(i18n.T("cli.no_hosts"))
			return nil
		}
		for _, h := range hosts {
			status := "active"
			if !h.IsActive {
				status = "inactive"
			}
			line := fmt.Sprintf("%d: %s (%s, serial %d, %s)", h.ID, h.Name, h.String(), h.Serial, status)
			if h.Domain != "" {
				line += " domain=" + h.Domain
			}
			if h.Tags != "" {
				line += " tags=" + h.Tags
			}
			fmt.Println(line)
		}
		return nil
	},
}

// hostsRemoveCmd deletes a host after confirmation. Deployment history for
// the host goes with it.
var hostsRemoveCmd = &cobra.Command{
	Use:     "remove <host>",
	Short:   "Remove a host from the inventory",
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		all, err := db.GetAllHosts()
		if err != nil {
			return err
		}
		host, err := findHostByIdentifier(args[0], all)
		if err != nil {
			return err
		}

		ans := promptForConfirmation(i18n.T("hosts.remove_confirm", host.Name, host.String()))
		if ans != "yes" && ans != "y" {
			fmt.Println(i18n.T("cli.cancelled"))
			return nil
		}
		if err := db.DeleteHost(host.ID); err != nil {
			return fmt.Errorf("%s", i18n.T("hosts.error_remove", err))
		}
		fmt.Printf("%s\n", i18n.T("hosts.removed", host.Name))
		return nil
	},
}

// hostsActivateCmd toggles a host between active and inactive. Inactive
// hosts are skipped by deploy/update/audit runs over "all hosts".
var hostsActivateCmd = &cobra.Command{
	Use:     "activate <host>",
	Short:   "Toggle a host between active and inactive",
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		all, err := db.GetAllHosts()
		if err != nil {
			return err
		}
		host, err := findHostByIdentifier(args[0], all)
		if err != nil {
			return err
		}
		if err := db.ToggleHostStatus(host.ID); err != nil {
			return fmt.Errorf("%s", i18n.T("hosts.error_toggle", err))
		}
		if host.IsActive {
			fmt.Printf("%s\n", i18n.T("hosts.deactivated", host.Name))
		} else {
			fmt.Printf("%s\n", i18n.T("hosts.activated", host.Name))
		}
		return nil
	},
}

// hostsSetDomainCmd sets or clears the domain on a host.
var hostsSetDomainCmd = &cobra.Command{
	Use:     "set-domain <host> <domain>",
	Short:   "Set the domain used by the https command",
	Args:    cobra.ExactArgs(2),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		all, err := db.GetAllHosts()
		if err != nil {
			return err
		}
		host, err := findHostByIdentifier(args[0], all)
		if err != nil {
			return err
		}
		if err := db.UpdateHostDomain(host.ID, args[1]); err != nil {
			return fmt.Errorf("%s", i18n.T("hosts.error_set_domain", err))
		}
		fmt.Printf("%s\n", i18n.T("hosts.domain_set", host.Name, args[1]))
		return nil
	},
}

// hostsHistoryCmd prints the release history of a host, newest first.
var hostsHistoryCmd = &cobra.Command{
	Use:     "history <host>",
	Short:   "Show the release history of a host",
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		all, err := db.GetAllHosts()
		if err != nil {
			return err
		}
		host, err := findHostByIdentifier(args[0], all)
		if err != nil {
			return err
		}
		deps, err := db.GetDeploymentsForHost(host.ID, 20)
		if err != nil {
			return err
		}
		if len(deps) == 0 {
			fmt.Println(i18n.T("hosts.no_history", host.Name))
			return nil
		}
		for _, d := range deps {
			fmt.Printf("#%-4d %-8s %-10s %-12s %s\n", d.Serial, d.Kind, d.Status, d.GitRef, d.StartedAt.Format(time.RFC3339))
		}
		return nil
	},
}

// auditLogCmd prints the local audit trail of inventory mutations.
var auditLogCmd = &cobra.Command{
	Use:     "audit-log",
	Short:   "Show the audit trail of inventory changes",
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		entries, err := db.GetAllAuditLogEntries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println(i18n.T("hosts.no_audit_entries"))
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-20s %-22s %s\n", e.Timestamp, e.Username, e.Action, e.Details)
		}
		return nil
	},
}

func init() {
	hostsAddCmd.Flags().StringVar(&hostDomain, "domain", "", "Domain served by this host (used by the https command)")
	hostsAddCmd.Flags().StringVar(&hostTags, "tags", "", "Free-form tags (e.g. env:prod)")
	hostsCmd.AddCommand(hostsAddCmd, hostsListCmd, hostsRemoveCmd, hostsActivateCmd, hostsSetDomainCmd, hostsHistoryCmd, auditLogCmd)
}
