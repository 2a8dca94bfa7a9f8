// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface (CLI) for querioctl using the
// Cobra library. It defines the root command, subcommands (like provision,
// deploy, https), flags, and the main entry point for execution.

package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql" // Blank import for the mysql backend
	_ "github.com/jackc/pgx/v5/stdlib" // Blank import for the postgres backend
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/querio/querioctl/buildvars"
	"github.com/querio/querioctl/internal/certbot"
	"github.com/querio/querioctl/internal/config"
	"github.com/querio/querioctl/internal/db"
	"github.com/querio/querioctl/internal/i18n"
	"github.com/querio/querioctl/internal/logging"
	"github.com/querio/querioctl/internal/model"
	"github.com/querio/querioctl/internal/provision"
	"github.com/querio/querioctl/internal/release"
	"github.com/querio/querioctl/internal/sshexec"
	"github.com/querio/querioctl/internal/state"
	"github.com/querio/querioctl/ui/tui"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)
var cfgFile string
var verbose bool
var httpsEmail string // Flag for the https command

var appConfig config.Config

// configDefaults are the built-in settings for a fresh install. The repo URL
// still has to come from the operator's config file.
var configDefaults = map[string]any{
	"database.type":   "sqlite",
	"database.dsn":    "./querioctl.db",
	"language":        "en",
	"app.branch":      "main",
	"app.remote_dir":  "querio",
	"app.health_port": 8000,
	"app.health_path": "/api/health",
}

func setupDefaultServices(cmd *cobra.Command, args []string) error {
	// Load optional config file argument from cli
	optionalConfigPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	appConfig, err = config.LoadConfig[config.Config](cmd, configDefaults, optionalConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// Initialize i18n
	i18n.Init(appConfig.Language)

	// First run: persist the resolved defaults so subsequent runs have a
	// config file to inspect. Failure to write is not fatal; the app runs on
	// in-memory defaults.
	if optionalConfigPath == nil {
		if path, werr := config.EnsureConfigFile(&appConfig); werr != nil {
			logging.Warnf("could not write default config file: %v", werr)
		} else if path != "" {
			fmt.Printf("%s\n", i18n.T("cli.config_created", path))
		}
	}

	// Initialize the database if not already initialized by tests or earlier setup.
	if !db.IsInitialized() {
		if _, err := db.New(appConfig.Database.Type, appConfig.Database.Dsn); err != nil {
			return fmt.Errorf("%s", i18n.T("config.error_init_db", err))
		}
	}

	return nil
}

// Execute runs the CLI entrypoint. The root main package should call this
// function and handle process exit.
func Execute() error {
	defer state.PassphraseCache.Clear()
	defer state.APIKeyCache.Clear()

	return NewRootCmd().Execute()
}

func applyDefaultFlags(cmd *cobra.Command) {
	// Avoid redefining flags if they already exist (NewRootCmd may be called
	// multiple times in tests). pflag panics on duplicate flag definitions.
	if cmd.Flags().Lookup("database.type") == nil {
		cmd.Flags().String("database.type", "sqlite", "Database type (e.g., sqlite, postgres)")
	}
	if cmd.Flags().Lookup("database.dsn") == nil {
		cmd.Flags().String("database.dsn", "./querioctl.db", "Database connection string (DSN)")
	}
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	// Only proceed if the user has explicitly set the --config flag.
	if cmd.Flags().Changed("config") {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return nil, fmt.Errorf("could not read --config flag: %w", err)
		}
		if path == "" {
			return nil, nil
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
		}
		return &path, nil
	}
	return nil, nil
}

// NewRootCmd creates and configures a new root cobra command. This function
// is used to create the main application command as well as fresh instances
// for isolated testing.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "querioctl",
		Short: "querioctl manages Querio deployments over SSH",
		Long: `querioctl provisions hosts and deploys the Querio RAG service to them.
A host inventory database is the source of truth: which hosts exist, which
host keys are trusted, and which release serial each host runs. Commands
push state to the hosts over SSH; nothing needs to be installed there.

Running without a subcommand will launch the interactive dashboard.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logging.SetDebug(true)
				db.SetDebug(true)
			}
			return setupDefaultServices(cmd, args)
		},
		Run: func(cmd *cobra.Command, args []string) {
			// The database and i18n are already initialized by
			// PersistentPreRunE, so we can just run the TUI.
			tui.Run(appConfig.App)
		},
	}

	cmd.Version = resolveBuildVersion(nil)

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (also enables DB logs)")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("language", "en", `output language ("en", "de")`)
	applyDefaultFlags(cmd)

	applyDefaultFlags(provisionCmd)
	applyDefaultFlags(deployCmd)
	applyDefaultFlags(updateCmd)
	applyDefaultFlags(httpsCmd)
	if httpsCmd.Flags().Lookup("email") == nil {
		httpsCmd.Flags().StringVarP(&httpsEmail, "email", "m", "", "Registration email for Let's Encrypt (overrides config)")
	}
	applyDefaultFlags(statusCmd)
	applyDefaultFlags(auditCmd)
	applyDefaultFlags(trustHostCmd)
	applyDefaultFlags(dbMaintainCmd)
	applyDefaultFlags(doctorCmd)
	applyDefaultFlags(backupCmd)
	applyDefaultFlags(restoreCmd)
	applyDefaultFlags(hostsCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("version: %s\n", resolveBuildVersion(nil))
			fmt.Printf("commit: %s\n", gitCommit)
			if buildDate != "" {
				fmt.Printf("built: %s\n", buildDate)
			}
		},
	}

	cmd.AddCommand(
		provisionCmd,
		deployCmd,
		updateCmd,
		httpsCmd,
		statusCmd,
		auditCmd,
		trustHostCmd,
		hostsCmd,
		doctorCmd,
		dbMaintainCmd,
		backupCmd,
		restoreCmd,
		versionCmd,
	)

	return cmd
}

// resolveBuildVersion computes the best-available version for the running
// binary, preferring ldflags values and falling back to module build info.
func resolveBuildVersion(info *debug.BuildInfo) string {
	resolved := buildvars.VersionOrDefault(version)
	if info == nil {
		info, _ = debug.ReadBuildInfo()
	}
	if resolved == "dev" && info != nil && info.Main.Version != "" && info.Main.Version != "(devel)" {
		resolved = info.Main.Version
	}
	if resolved == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolved = gitCommit
	}
	return resolved
}

// findHostByIdentifier resolves a host argument, which may be a database id,
// a host name, or user@address.
func findHostByIdentifier(identifier string, hosts []model.Host) (*model.Host, error) {
	if id, err := strconv.Atoi(identifier); err == nil {
		for i := range hosts {
			if hosts[i].ID == id {
				return &hosts[i], nil
			}
		}
	}
	for i := range hosts {
		if hosts[i].Name == identifier || hosts[i].String() == identifier || hosts[i].Address == identifier {
			return &hosts[i], nil
		}
	}
	return nil, fmt.Errorf("%s", i18n.T("cli.error_host_not_found", identifier))
}

// targetHosts returns the hosts a command should act on: the one named by
// args, or every active host when args is empty.
func targetHosts(args []string) ([]model.Host, error) {
	if len(args) > 0 {
		all, err := db.GetAllHosts()
		if err != nil {
			return nil, err
		}
		h, err := findHostByIdentifier(args[0], all)
		if err != nil {
			return nil, err
		}
		return []model.Host{*h}, nil
	}

	hosts, err := db.GetAllActiveHosts()
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, errors.New(i18n.T("cli.error_no_active_hosts"))
	}
	return hosts, nil
}

// openSession connects to a host with the configured deploy key. When the key
// is encrypted, the passphrase is prompted once and cached for the process.
func openSession(host model.Host) (*sshexec.Session, error) {
	pass := state.PassphraseCache.Get()
	sess, err := sshexec.NewSession(host.Address, host.User, appConfig.SSH.KeyPath, pass)
	for i := range pass {
		pass[i] = 0
	}
	if sshexec.IsPassphraseRequired(err) {
		entered, perr := promptSecret(i18n.T("cli.prompt_passphrase"))
		if perr != nil {
			return nil, perr
		}
		state.PassphraseCache.Set(entered)
		sess, err = sshexec.NewSession(host.Address, host.User, appConfig.SSH.KeyPath, entered)
	}
	return sess, err
}

// promptSecret reads a secret from the terminal without echoing it.
func promptSecret(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New(i18n.T("cli.error_no_terminal"))
	}
	fmt.Print(prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("%s", i18n.T("cli.error_read_secret", err))
	}
	return secret, nil
}

// ensureAPIKey makes sure the GENAI API key is available for .env rendering.
// The environment variable wins so CI can deploy non-interactively.
func ensureAPIKey() error {
	if len(state.APIKeyCache.Get()) > 0 {
		return nil
	}
	if key := os.Getenv("QUERIOCTL_GENAI_API_KEY"); key != "" {
		state.APIKeyCache.Set([]byte(key))
		return nil
	}
	key, err := promptSecret(i18n.T("cli.prompt_api_key"))
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return errors.New(i18n.T("cli.error_empty_api_key"))
	}
	state.APIKeyCache.Set(key)
	return nil
}

// forEachTarget runs fn against every target host over its own session and
// reports per-host success or failure. It returns an error when any host
// failed, so the process exits non-zero.
func forEachTarget(args []string, fn func(host model.Host, sess *sshexec.Session) error) error {
	hosts, err := targetHosts(args)
	if err != nil {
		return err
	}

	failures := 0
	for _, host := range hosts {
		sess, err := openSession(host)
		if err != nil {
			fmt.Printf("%s\n", i18n.T("cli.host_fail", host.String(), err))
			failures++
			continue
		}
		err = fn(host, sess)
		sess.Close()
		if err != nil {
			fmt.Printf("%s\n", i18n.T("cli.host_fail", host.String(), err))
			failures++
			continue
		}
		fmt.Printf("%s\n", i18n.T("cli.host_ok", host.String()))
	}
	if failures > 0 {
		return fmt.Errorf("%s", i18n.T("cli.error_hosts_failed", failures, len(hosts)))
	}
	return nil
}

// provisionCmd represents the 'provision' command.
// It prepares a fresh host with everything the Querio app needs: Docker,
// Nginx, and firewall rules. Safe to re-run at any time.
var provisionCmd = &cobra.Command{
	Use:   "provision [host]",
	Short: "Install Docker, Nginx, and firewall rules on a host",
	Long: `Prepares an Ubuntu host to run the Querio app. Installs git, Docker and
the compose plugin, Nginx, and opens HTTP/HTTPS in ufw when it is active.
Every step checks the host first, so re-running after a failure is safe.

If a host is specified, provisions only that host. If no host is
specified, provisions all active hosts.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return forEachTarget(args, func(host model.Host, sess *sshexec.Session) error {
			return release.Record(host.ID, model.KindProvision, func() error {
				return provision.Apply(sess)
			})
		})
	},
}

// deployCmd represents the 'deploy' command: the full pipeline including the
// .env file and the Nginx site.
var deployCmd = &cobra.Command{
	Use:   "deploy [host]",
	Short: "Deploy the Querio app to one or all hosts",
	Long: `Runs the full deployment pipeline: refresh the app checkout, write the
.env file, install the managed Nginx site, rebuild the compose stack, and
gate the release on the health endpoint. The host's release serial only
advances after the health check passes.

If a host is specified, deploys only to that host. If no host is
specified, deploys to all active hosts.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := ensureAPIKey(); err != nil {
			return err
		}
		return forEachTarget(args, func(host model.Host, sess *sshexec.Session) error {
			p := &release.Pipeline{Host: host, App: appConfig.App, Conn: sess}
			return p.Deploy(cmd.Context())
		})
	},
}

// updateCmd represents the 'update' command: the quick code-only pipeline.
var updateCmd = &cobra.Command{
	Use:   "update [host]",
	Short: "Quick-deploy a code update (no env or Nginx changes)",
	Long: `Refreshes the app checkout and rebuilds the compose stack, leaving the
.env file and Nginx configuration untouched. Use this for routine code
updates; use 'deploy' when configuration changed.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return forEachTarget(args, func(host model.Host, sess *sshexec.Session) error {
			p := &release.Pipeline{Host: host, App: appConfig.App, Conn: sess}
			return p.Update(cmd.Context())
		})
	},
}

// httpsCmd represents the 'https' command.
var httpsCmd = &cobra.Command{
	Use:   "https <host>",
	Short: "Enable HTTPS for a host's domain via Let's Encrypt",
	Long: `Requests and installs a Let's Encrypt certificate for the host's domain
using certbot on the host. Refuses to run until the domain's DNS points at
the host, and verifies the HTTPS health endpoint afterwards.

The host must have a domain set ('querioctl hosts add ... --domain') and
must already be deployed.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		email := httpsEmail
		if email == "" {
			email = appConfig.HTTPS.Email
		}
		if email == "" {
			return errors.New(i18n.T("cli.error_no_email"))
		}
		return forEachTarget(args, func(host model.Host, sess *sshexec.Session) error {
			return release.Record(host.ID, model.KindHTTPS, func() error {
				return certbot.Setup(cmd.Context(), sess, host, email, appConfig.App.HealthPath)
			})
		})
	},
}

// statusCmd represents the 'status' command: the inventory plus each host's
// latest deployment at a glance.
var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show all hosts and their latest deployments",
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
		latest, err := db.GetLatestDeployments()
		if err != nil {
			return err
		}

		fmt.Printf("%-4s %-16s %-28s %-24s %-7s %-8s %s\n",
			"ID", "NAME", "TARGET", "DOMAIN", "SERIAL", "ACTIVE", "LAST DEPLOYMENT")
		for _, h := range hosts {
			last := "-"
			if d, ok := latest[h.ID]; ok {
				last = fmt.Sprintf("%s %s (#%d)", d.Kind, d.Status, d.Serial)
			}
			active := "yes"
			if !h.IsActive {
				active = "no"
			}
			domain := h.Domain
			if domain == "" {
				domain = "-"
			}
			fmt.Printf("%-4d %-16s %-28s %-24s %-7d %-8s %s\n",
				h.ID, h.Name, h.String(), domain, h.Serial, active, last)
		}
		return nil
	},
}

// auditCmd represents the 'audit' command.
// It connects to hosts and verifies that the managed files (Nginx site,
// .env, app checkout) still match what deploy put there.
var auditCmd = &cobra.Command{
	Use:   "audit [host]",
	Short: "Audit hosts for configuration drift",
	Long: `Connects to hosts and compares the managed files against what a deploy
would put there: the Nginx site file, the .env file and the app checkout.
Reports drift without changing anything. Exits non-zero when drift is
found.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		drifted := false
		err := forEachTarget(args, func(host model.Host, sess *sshexec.Session) error {
			reports, err := release.Audit(sess, host, appConfig.App)
			if err != nil {
				return err
			}
			for _, r := range reports {
				marker := "ok"
				if r.HasDrift() {
					drifted = true
					marker = strings.ToUpper(string(r.Status))
				}
				line := fmt.Sprintf("  [%s] %s", marker, r.Path)
				if r.Detail != "" {
					line += " - " + r.Detail
				}
				fmt.Println(line)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if drifted {
			return errors.New(i18n.T("cli.error_drift_found"))
		}
		return nil
	},
}

// trustHostCmd represents the 'trust-host' command.
// It facilitates the initial trust of a new host by fetching its public SSH
// key, displaying its fingerprint, and prompting the user to save it to the
// database as a known host.
var trustHostCmd = &cobra.Command{
	Use:   "trust-host <host>",
	Short: "Pin a host's public key in the inventory",
	Long: `Connects to a host for the first time, retrieves its public key, and
prompts the user to save it to the database. This is a required step
before querioctl can manage a new host.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		target := args[0]
		hostname := target
		if strings.Contains(target, "@") {
			hostname = strings.SplitN(target, "@", 2)[1]
		}

		// When the argument names an inventory host, pin its address.
		if all, err := db.GetAllHosts(); err == nil {
			if h, ferr := findHostByIdentifier(target, all); ferr == nil {
				hostname = h.Address
			}
		}

		fmt.Printf("%s\n", i18n.T("trust_host.retrieving", hostname))
		pubKey, err := sshexec.ProbeHostKey(hostname)
		if err != nil {
			return fmt.Errorf("%s", i18n.T("trust_host.error_get_key", err))
		}

		fmt.Printf("The authenticity of host '%s' can't be established.\n", hostname)
		fmt.Printf("Key fingerprint: %s\n", ssh.FingerprintSHA256(pubKey))

		ans := promptForConfirmation("Are you sure you want to continue connecting (yes/no)? ")
		if ans != "yes" && ans != "y" {
			fmt.Println(i18n.T("cli.cancelled"))
			return nil
		}

		keyStr := string(ssh.MarshalAuthorizedKey(pubKey))
		if err := db.AddKnownHostKey(hostname, keyStr); err != nil {
			return fmt.Errorf("%s", i18n.T("trust_host.error_save_key", err))
		}
		fmt.Printf("%s\n", i18n.T("trust_host.added", hostname))
		return nil
	},
}

// dbMaintainCmd runs database maintenance tasks for the configured database.
var dbMaintainCmd = &cobra.Command{
	Use:     "db-maintain",
	Short:   "Run database maintenance (VACUUM/OPTIMIZE) for the configured DB",
	Long:    `Runs engine-specific maintenance tasks (VACUUM, OPTIMIZE TABLE, PRAGMA optimize).`,
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := db.RunDBMaintenance(appConfig.Database.Type, appConfig.Database.Dsn); err != nil {
			return fmt.Errorf("maintenance failed: %w", err)
		}
		fmt.Println("Maintenance completed successfully")
		return nil
	},
}

// promptForConfirmation displays a prompt and reads a line from stdin.
func promptForConfirmation(prompt string) string {
	fmt.Print(prompt)
	var answer string
	_, _ = fmt.Scanln(&answer)
	return strings.TrimSpace(strings.ToLower(answer))
}
