package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rvpalivoda/authsession"
	"github.com/rvpalivoda/authsession/storage"
)

type app struct {
	session *authsession.Session
	out     io.Writer
	closers []func() error
}

type appKey struct{}

// run adapts fn to a cobra RunE and releases the session and store when
// it returns.
func run(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a := cmd.Context().Value(appKey{}).(*app)
		defer a.close()
		return fn(cmd.Context(), a, args)
	}
}

func (a *app) close() {
	if a.session != nil {
		a.session.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// BuildRootCmd assembles the sessionctl command tree.
func BuildRootCmd() *cobra.Command {
	var (
		configFile string
		server     string
		storeKind  string
		storeDir   string
		logLevel   string
		audit      bool
	)

	cmd := &cobra.Command{
		Use:          "sessionctl",
		Short:        "Manage an authenticated client session",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("server") {
				cfg.Server = server
			}
			if flags.Changed("store") {
				cfg.Store.Kind = storeKind
			}
			if flags.Changed("store-dir") {
				cfg.Store.Dir = storeDir
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("audit") {
				cfg.Audit = audit
			}

			a, err := open(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.out = cmd.OutOrStdout()
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (YAML)")
	cmd.PersistentFlags().StringVarP(&server, "server", "s", "", "auth server base URL")
	cmd.PersistentFlags().StringVar(&storeKind, "store", "file", "session store: file, bolt, redis or memory")
	cmd.PersistentFlags().StringVar(&storeDir, "store-dir", "", "directory for the file and bolt stores")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	cmd.PersistentFlags().BoolVar(&audit, "audit", false, "log session audit events")

	cmd.AddCommand(
		loginCmd(),
		registerCmd(),
		recoverCmd(),
		logoutCmd(),
		renewCmd(),
		whoamiCmd(),
		requestCmd(),
		passwordCmd(),
		pinCmd(),
		twoFACmd(),
		wordsCmd(),
	)
	return cmd
}

func open(ctx context.Context, cfg *Config, logOut io.Writer) (*app, error) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: logOut, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()

	a := &app{}
	kv, err := openStore(cfg.Store, a)
	if err != nil {
		a.close()
		return nil, err
	}

	sc := authsession.DefaultConfig()
	sc.HTTP.BaseURL = cfg.Server
	sc.HTTP.Timeout = cfg.Timeout
	sc.HTTP.UserAgent = "sessionctl"
	sc.Renewal.Proactive = cfg.Proactive
	sc.Audit.Enabled = cfg.Audit

	b := authsession.New().
		WithConfig(sc).
		WithStore(kv).
		WithLogger(logger)
	if cfg.Audit {
		auditLog := logger.Level(zerolog.InfoLevel).With().Str("component", "audit").Logger()
		b = b.WithAuditSink(authsession.NewLogSink(auditLog))
	}
	s, err := b.Build(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.session = s
	return a, nil
}

func openStore(cfg StoreConfig, a *app) (storage.KV, error) {
	var kv storage.KV
	switch cfg.Kind {
	case "memory":
		kv = storage.NewMemory()
	case "file", "":
		dir, err := cfg.dir()
		if err != nil {
			return nil, err
		}
		f, err := storage.NewFile(dir)
		if err != nil {
			return nil, err
		}
		kv = f
	case "bolt":
		path, err := cfg.boltPath()
		if err != nil {
			return nil, err
		}
		db, err := storage.OpenBolt(storage.BoltOptions{Path: path})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		kv = db
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		a.closers = append(a.closers, client.Close)
		kv = storage.NewRedis(client, cfg.RedisPrefix, cfg.RedisTTL)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Kind)
	}

	key, err := cfg.sealKey()
	if err != nil || key == nil {
		return kv, err
	}
	return storage.NewSealed(kv, key)
}
