package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/junolabs/qrpoints/internal/catalog"
	"github.com/junolabs/qrpoints/internal/httpapi"
	"github.com/junolabs/qrpoints/internal/oplog"
	"github.com/junolabs/qrpoints/internal/store/gormstore"
	"github.com/junolabs/qrpoints/internal/store/pgstore"
	"github.com/junolabs/qrpoints/pkg/qrcode"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	flagListenAddr        = "listen-addr"
	flagDatabaseURL       = "database-url"
	flagCatalogBaseURL    = "catalog-base-url"
	flagCatalogTimeout    = "catalog-timeout"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionCookieName = "session-cookie-name"
	envPrefix             = "QRPOINTS"

	defaultCatalogTimeout = 3 * time.Second
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "qrpointsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := httpapi.Config{}
	cmd := &cobra.Command{
		Use:           "qrpointsd",
		Short:         "Shop code records and loyalty point API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagDatabaseURL, "", "database connection string (sqlite path or postgres:// URL)")
	cmd.Flags().String(flagCatalogBaseURL, "", "base URL of the catalog lookup service (required)")
	cmd.Flags().Duration(flagCatalogTimeout, defaultCatalogTimeout, "per-request catalog lookup timeout")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagSessionSigningKey, "", "session JWT signing key (required)")
	cmd.Flags().String(flagSessionIssuer, "", "expected session JWT issuer")
	cmd.Flags().String(flagSessionCookieName, "", "session cookie name")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *httpapi.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagListenAddr, flagDatabaseURL, flagCatalogBaseURL, flagCatalogTimeout, flagAllowedOrigins, flagSessionSigningKey, flagSessionIssuer, flagSessionCookieName} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.CatalogBaseURL = strings.TrimSpace(v.GetString(flagCatalogBaseURL))
	cfg.CatalogTimeout = v.GetDuration(flagCatalogTimeout)
	cfg.AllowedOrigins = httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagSessionSigningKey)
	cfg.SessionIssuer = strings.TrimSpace(v.GetString(flagSessionIssuer))
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagSessionCookieName))

	return cfg.Validate()
}

func runServer(ctx context.Context, cfg httpapi.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	catalogClient := catalog.New(cfg.CatalogBaseURL, logger, catalog.WithTimeout(cfg.CatalogTimeout))
	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := qrcode.NewService(store, catalogClient, clock,
		qrcode.WithOperationLogger(oplog.NewZapOperationLogger(logger)))
	if err != nil {
		return fmt.Errorf("service init: %w", err)
	}

	server, err := httpapi.NewServer(cfg, service, catalogClient, logger)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	return server.Run(ctx)
}

func openStore(ctx context.Context, dsn string) (qrcode.Store, func(), error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	switch driver {
	case "postgres":
		// Postgres schema is managed by external migrations.
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.New(pool), pool.Close, nil
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
		if err != nil {
			return nil, nil, err
		}
		if err := prepareSchema(db); err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() { _ = sqlDB.Close() }
		return gormstore.New(db.WithContext(ctx)), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "qrpoints.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// prepareSchema creates both tables before the first request is served;
// the points table is never created lazily on a write path.
func prepareSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&gormstore.Code{}, &gormstore.PointBalance{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
