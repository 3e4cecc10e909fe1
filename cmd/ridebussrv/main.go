package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/decred/slog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ridebus/pkg/server"
)

type Config struct {
	bind            string
	port            int
	prefix          string
	grace           time.Duration
	gcInterval      time.Duration
	failStreak      int
	rotateEveryCard bool
	seed            int64
	debugLevel      string
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if _, ok := slog.LevelFromString(c.debugLevel); !ok {
		return fmt.Errorf("invalid debug level: %q", c.debugLevel)
	}
	if c.failStreak < 1 {
		return errors.New("--fail-streak must be at least 1")
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RIDEBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "ridebussrv",
		Short:         "Authoritative room server for the ride-the-bus dealer game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       server.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: RIDEBUS_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: RIDEBUS_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: RIDEBUS_PREFIX)")
	fs.DurationVar(&cfg.grace, "grace", server.DefaultGracePeriod, "time an empty room survives before deletion (env: RIDEBUS_GRACE)")
	fs.DurationVar(&cfg.gcInterval, "gc-interval", 0, "room sweep interval, 0 = half the grace period (env: RIDEBUS_GC_INTERVAL)")
	fs.IntVar(&cfg.failStreak, "fail-streak", 3, "consecutive failed cards before the dealer rotates (env: RIDEBUS_FAIL_STREAK)")
	fs.BoolVar(&cfg.rotateEveryCard, "rotate-every-card", false, "rotate the dealer after every card instead of on fail streaks (env: RIDEBUS_ROTATE_EVERY_CARD)")
	fs.Int64Var(&cfg.seed, "seed", 0, "deterministic RNG seed for decks, 0 = random (env: RIDEBUS_SEED)")
	fs.StringVar(&cfg.debugLevel, "debuglevel", "info", "logging level: trace, debug, info, warn, error (env: RIDEBUS_DEBUGLEVEL)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("ridebussrv v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func run(ctx context.Context, cfg *Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := slog.NewBackend(os.Stdout)
	level, _ := slog.LevelFromString(cfg.debugLevel)

	registryLog := backend.Logger("RGST")
	registryLog.SetLevel(level)
	roomLog := backend.Logger("ROOM")
	roomLog.SetLevel(level)
	gatewayLog := backend.Logger("GWAY")
	gatewayLog.SetLevel(level)

	registry := server.NewRegistry(server.RegistryConfig{
		Log:             registryLog,
		RoomLog:         roomLog,
		GracePeriod:     cfg.grace,
		Seed:            cfg.seed,
		FailStreakLimit: cfg.failStreak,
		RotateEveryCard: cfg.rotateEveryCard,
	})

	srv := server.NewServer(gatewayLog, registry)
	defer srv.Stop()

	go registry.Run(ctx, cfg.gcInterval)

	return srv.ListenAndServe(ctx, cfg.bind, cfg.port, strings.TrimSuffix(cfg.prefix, "/"))
}

func main() {
	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
