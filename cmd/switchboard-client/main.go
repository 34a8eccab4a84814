package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"switchboard-sdk/internal/config"
	"switchboard-sdk/internal/logging"
	"switchboard-sdk/pkg/client"
	"switchboard-sdk/pkg/directory"
	"switchboard-sdk/pkg/types"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const appName = "switchboard-client"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// cli holds what every subcommand shares: flags, the loaded configuration and the logger.
type cli struct {
	configPath string
	server     string
	userID     string
	role       string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Command line client for switchboard classroom sessions",
		Long: `switchboard-client talks to a switchboard server.

It lists and manages sessions over the REST API, and joins a session over
WebSocket to listen for messages or send one.

Settings come from a TOML file, SWITCHBOARD_* environment variables and flags,
flags taking precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.load,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", os.Getenv("SWITCHBOARD_CONFIG_FILE"), "TOML configuration file")
	pf.StringVar(&c.server, "server", "", "server base URL (overrides configuration)")
	pf.StringVarP(&c.userID, "user", "u", "", "user ID to act as")
	pf.StringVarP(&c.role, "role", "r", "", "role to act as: student or instructor")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		sessionsCmd(c),
		healthCmd(c),
		listenCmd(c),
		sendCmd(c),
		versionCmd(),
	)
	return root
}

// load resolves configuration for the running command: file > env > defaults, then flags.
func (c *cli) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfigWithPrecedence(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server.URL = c.server
	}
	if flags.Changed("user") {
		cfg.Identity.UserID = c.userID
	}
	if flags.Changed("role") {
		cfg.Identity.Role = types.Role(c.role)
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.cfg = cfg
	c.logger = logging.NewWithWriter(cmd.ErrOrStderr(), appName, cfg.Log.Level, cfg.Log.Pretty)
	return nil
}

// newClient builds a session client for the configured identity.
func (c *cli) newClient(extra ...client.Option) (*client.Client, error) {
	id := c.cfg.Identity
	if id.UserID == "" {
		return nil, fmt.Errorf("a user ID is required (--user or SWITCHBOARD_USER_ID)")
	}
	if id.Role == "" {
		return nil, fmt.Errorf("a role is required (--role or SWITCHBOARD_ROLE)")
	}
	opts := append(c.cfg.ClientOptions(c.logger), extra...)
	return client.New(id.UserID, id.Role, opts...)
}

func (c *cli) directory() (*directory.Client, error) {
	return directory.New(c.cfg.Server.URL, directory.WithLogger(c.logger))
}
