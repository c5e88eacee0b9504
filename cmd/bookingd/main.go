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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/bookings/internal/config"
	"github.com/MarkoPoloResearchLab/bookings/internal/dispatch"
	"github.com/MarkoPoloResearchLab/bookings/internal/httpapi"
	"github.com/MarkoPoloResearchLab/bookings/internal/scheduler"
	"github.com/MarkoPoloResearchLab/bookings/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagSigningKey      = "token-signing-key"
	flagTokenIssuer     = "token-issuer"
	flagAllowedOrigins  = "allowed-origins"
	flagStartingGrant   = "starting-grant"
	flagReserveTimeout  = "reservation-timeout"
	flagCancelWindow    = "cancellation-window"
	flagAttendanceLock  = "attendance-lock"
	flagCheckInWindow   = "check-in-window"
	flagTransferLock    = "transfer-lock"
	flagReapSpec        = "reap-spec"
	flagFinalizeSpec    = "finalize-spec"
	flagCapacitySpec    = "capacity-spec"
	configDatabaseURL   = "database_url"
	configListenAddr    = "listen_addr"
	configSigningKey    = "token_signing_key"
	configTokenIssuer   = "token_issuer"
	configOrigins       = "allowed_origins"
	configStartingGrant = "starting_grant"
	configReserve       = "reservation_timeout"
	configCancel        = "cancellation_window"
	configAttendance    = "attendance_lock"
	configCheckIn       = "check_in_window"
	configTransfer      = "transfer_lock"
	configReapSpec      = "reap_spec"
	configFinalizeSpec  = "finalize_spec"
	configCapacitySpec  = "capacity_spec"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bookingd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "bookingd",
		Short:         "Points-backed course booking server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, "", "postgres:// connection string or sqlite path")
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagSigningKey, "", "HS256 key for capability tokens")
	cmd.Flags().String(flagTokenIssuer, "", "issuer claim expected on capability tokens")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")
	cmd.Flags().Int64(flagStartingGrant, 0, "points granted on member registration")
	cmd.Flags().Duration(flagReserveTimeout, 0, "how long a waitlist reservation holds points")
	cmd.Flags().Duration(flagCancelWindow, 0, "refund deadline ahead of course start")
	cmd.Flags().Duration(flagAttendanceLock, 0, "grace period after course end before finalization")
	cmd.Flags().Duration(flagCheckInWindow, 0, "how early before start attendance marking opens")
	cmd.Flags().Duration(flagTransferLock, 0, "transfer escrow lifetime")
	cmd.Flags().String(flagReapSpec, "", "cron spec for the reservation reaper")
	cmd.Flags().String(flagFinalizeSpec, "", "cron spec for course finalization")
	cmd.Flags().String(flagCapacitySpec, "", "cron spec for minimum capacity confirmation")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]struct {
		flag string
		env  string
	}{
		configDatabaseURL:   {flagDatabaseURL, "DATABASE_URL"},
		configListenAddr:    {flagListenAddr, "LISTEN_ADDR"},
		configSigningKey:    {flagSigningKey, "TOKEN_SIGNING_KEY"},
		configTokenIssuer:   {flagTokenIssuer, "TOKEN_ISSUER"},
		configOrigins:       {flagAllowedOrigins, "ALLOWED_ORIGINS"},
		configStartingGrant: {flagStartingGrant, "STARTING_GRANT"},
		configReserve:       {flagReserveTimeout, "RESERVATION_TIMEOUT"},
		configCancel:        {flagCancelWindow, "CANCELLATION_WINDOW"},
		configAttendance:    {flagAttendanceLock, "ATTENDANCE_LOCK"},
		configCheckIn:       {flagCheckInWindow, "CHECK_IN_WINDOW"},
		configTransfer:      {flagTransferLock, "TRANSFER_LOCK"},
		configReapSpec:      {flagReapSpec, "REAP_SPEC"},
		configFinalizeSpec:  {flagFinalizeSpec, "FINALIZE_SPEC"},
		configCapacitySpec:  {flagCapacitySpec, "CAPACITY_SPEC"},
	}
	for key, binding := range bindings {
		if err := viper.BindEnv(key, binding.env); err != nil {
			return err
		}
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(binding.flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configDatabaseURL)
	cfg.ListenAddr = viper.GetString(configListenAddr)
	cfg.TokenSigningKey = viper.GetString(configSigningKey)
	cfg.TokenIssuer = viper.GetString(configTokenIssuer)
	cfg.AllowedOrigins = config.ParseAllowedOrigins(viper.GetString(configOrigins))
	cfg.StartingGrant = viper.GetInt64(configStartingGrant)
	cfg.ReservationTimeout = viper.GetDuration(configReserve)
	cfg.CancellationWindow = viper.GetDuration(configCancel)
	cfg.AttendanceLock = viper.GetDuration(configAttendance)
	cfg.CheckInWindow = viper.GetDuration(configCheckIn)
	cfg.TransferLock = viper.GetDuration(configTransfer)
	cfg.ReapSpec = viper.GetString(configReapSpec)
	cfg.FinalizeSpec = viper.GetString(configFinalizeSpec)
	cfg.CapacitySpec = viper.GetString(configCapacitySpec)

	return cfg.Validate()
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if driver == "sqlite" {
		if err := gormstore.Migrate(gormDB); err != nil {
			return err
		}
	}

	store := gormstore.New(gormDB)

	// The dispatcher handler is bound after the service exists.
	var service *booking.Service
	dispatcher := dispatch.New(func(ctx context.Context, courseID string) error {
		_, err := service.PromoteAvailable(ctx, courseID)
		return err
	}, dispatch.WithLogger(logger))

	service, err = booking.NewService(store, func() time.Time { return time.Now().UTC() },
		booking.WithLogger(logger),
		booking.WithPolicy(cfg.Policy()),
		booking.WithEventSink(dispatcher),
	)
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	sweeper, err := scheduler.New(service, scheduler.Config{
		ReapSpec:     cfg.ReapSpec,
		FinalizeSpec: cfg.FinalizeSpec,
		CapacitySpec: cfg.CapacitySpec,
	}, logger)
	if err != nil {
		return fmt.Errorf("scheduler init: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	authenticator, err := httpapi.NewTokenAuthenticator([]byte(cfg.TokenSigningKey), cfg.TokenIssuer)
	if err != nil {
		return fmt.Errorf("authenticator init: %w", err)
	}

	server := httpapi.NewServer(service, authenticator, logger, cfg.AllowedOrigins, cfg.StartingGrant)
	return server.Run(ctx, cfg.ListenAddr)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
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
			path = "bookings.db"
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
