package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const releaseVersion = "0.3.0"

type Config struct {
	bind           string
	port           int
	publicURL      string
	allowedOrigins []string
	store          string
	natsURL        string
	kvBucket       string
	events         bool
	catalog        string
	imageTimeout   time.Duration
	leaderboard    bool
	mdns           bool
	verbose        bool
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.store {
	case "memory", "nats":
	default:
		return fmt.Errorf("unknown store %q (want memory or nats)", c.store)
	}
	if c.catalog == "" {
		return errors.New("--catalog is required")
	}
	return nil
}

func (c *Config) addr() string {
	return fmt.Sprintf("%s:%d", c.bind, c.port)
}

func (c *Config) baseURL() string {
	if c.publicURL != "" {
		return strings.TrimSuffix(c.publicURL, "/")
	}
	host := c.bind
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.port)
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("JIGSAW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "jigsaw-gateway",
		Short:         "Hosts shared jigsaw tables and relays piece moves between players.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: JIGSAW_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: JIGSAW_PORT)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "externally reachable base URL used in join links (env: JIGSAW_PUBLIC_URL)")
	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", []string{"*"}, "CORS origins allowed to call the API (env: JIGSAW_ALLOWED_ORIGINS)")
	fs.StringVar(&cfg.store, "store", "memory", "session store backend, memory or nats (env: JIGSAW_STORE)")
	fs.StringVar(&cfg.natsURL, "nats-url", "nats://localhost:4222", "NATS server for the session store and events (env: JIGSAW_NATS_URL)")
	fs.StringVar(&cfg.kvBucket, "kv-bucket", "PUZZLE_SESSIONS", "JetStream KeyValue bucket holding sessions (env: JIGSAW_KV_BUCKET)")
	fs.BoolVar(&cfg.events, "events", false, "publish lifecycle events to JetStream (env: JIGSAW_EVENTS)")
	fs.StringVar(&cfg.catalog, "catalog", "go/internal/assets/catalog.yaml", "path to the puzzle catalog (env: JIGSAW_CATALOG)")
	fs.DurationVar(&cfg.imageTimeout, "image-timeout", 15*time.Second, "timeout when probing puzzle images (env: JIGSAW_IMAGE_TIMEOUT)")
	fs.BoolVar(&cfg.leaderboard, "leaderboard", false, "serve top scores from Postgres, configured via DB_* (env: JIGSAW_LEADERBOARD)")
	fs.BoolVar(&cfg.mdns, "mdns", false, "advertise the gateway on the local network (env: JIGSAW_MDNS)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: JIGSAW_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(newDiscoverCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("jigsaw-gateway v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func newDiscoverCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List gateways advertised on the local network.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return discover(cmd.Context(), cmd.OutOrStdout(), timeout)
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "how long to listen for announcements")

	return cmd
}
