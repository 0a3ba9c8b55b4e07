package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BenEgeDeniz/lalapanel/internal/api"
	"github.com/BenEgeDeniz/lalapanel/internal/audit"
	"github.com/BenEgeDeniz/lalapanel/internal/auth"
	"github.com/BenEgeDeniz/lalapanel/internal/certs"
	"github.com/BenEgeDeniz/lalapanel/internal/config"
	"github.com/BenEgeDeniz/lalapanel/internal/dbprov"
	"github.com/BenEgeDeniz/lalapanel/internal/nginx"
	"github.com/BenEgeDeniz/lalapanel/internal/orch"
	"github.com/BenEgeDeniz/lalapanel/internal/run"
	"github.com/BenEgeDeniz/lalapanel/internal/sitefs"
	"github.com/BenEgeDeniz/lalapanel/internal/store"
	"github.com/BenEgeDeniz/lalapanel/internal/sysacct"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to configuration file (default: OS-appropriate path)")
	listenAddr = flag.String("listen", "", "Override listen address (e.g., :8080)")
	devMode    = flag.Bool("dev", false, "Enable development mode")
)

func main() {
	flag.Parse()

	if *devMode {
		os.Setenv(config.EnvDevMode, "1")
	}

	logLevel := slog.LevelInfo
	var handler slog.Handler
	if config.IsDevMode() {
		logLevel = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	logger.Info("starting lalapanel", "version", version)

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	logger.Info("data directories", "data", cfg.DataDir, "sites", cfg.SitesDir, "logs", cfg.LogDir)

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randomHex(32)
		if err := config.Save(cfgPath); err != nil {
			logger.Error("failed to persist generated jwt secret", "error", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "panel.db"))
	if err != nil {
		logger.Error("failed to open metadata store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := bootstrapAdmin(st, logger); err != nil {
		logger.Error("failed to bootstrap admin credential", "error", err)
		os.Exit(1)
	}

	auditLog, err := audit.Open(filepath.Join(cfg.LogDir, "audit.log"))
	if err != nil {
		logger.Error("failed to open audit log", "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	runner := run.ExecRunner{}

	siteFS, err := sitefs.NewManager(cfg.SitesDir)
	if err != nil {
		logger.Error("failed to prepare sites directory", "error", err)
		os.Exit(1)
	}

	vhosts := nginx.NewGenerator(runner, cfg.NginxAvailableDir, cfg.NginxEnabledDir, cfg.SitesDir, cfg.LogDir)
	certMgr := certs.NewManager(cfg.DataDir, cfg.CertsDir, cfg.ACMEDirectoryURL, logger)
	dbProv := dbprov.NewProvisioner(runner, logger)
	accounts := sysacct.NewManager(runner, cfg.SSHDConfigPath, logger)

	if !config.IsDevMode() {
		if err := accounts.EnsureJail(context.Background()); err != nil {
			logger.Warn("ssh jail setup failed; sftp-only accounts will not be chrooted", "error", err)
		}
	}

	o := orch.New(st, siteFS, vhosts, certMgr, dbProv, accounts, auditLog, logger,
		cfg.ACMEEmail, cfg.PHPVersions)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		results, err := o.RenewCertificates(ctx)
		if err != nil {
			logger.Error("certificate renewal run failed", "error", err)
			return
		}
		logger.Info("certificate renewal run finished", "renewed", len(results))
	}); err != nil {
		logger.Error("failed to schedule certificate renewals", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := st.ClearOldLoginAttempts(ctx, 24*time.Hour); err != nil {
			logger.Error("clearing old login attempts failed", "error", err)
		}
	}); err != nil {
		logger.Error("failed to schedule login attempt cleanup", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	authSvc := auth.NewService(st, []byte(cfg.JWTSecret))
	apiServer := api.NewServer(o, st, authSvc, cfg.PHPVersions, logger)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      apiServer,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // certificate requests block the response
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("lalapanel api listening", "address", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}

// bootstrapAdmin creates the admin credential on first start and prints
// the generated password exactly once.
func bootstrapAdmin(st *store.Store, logger *slog.Logger) error {
	ctx := context.Background()
	if _, err := st.GetCredential(ctx); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	password := randomHex(16)
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := st.SetCredential(ctx, "admin", hash); err != nil {
		return err
	}

	fmt.Printf("\n==========================================\n")
	fmt.Printf("  Admin credential created\n")
	fmt.Printf("  Username: admin\n")
	fmt.Printf("  Password: %s\n", password)
	fmt.Printf("  This password will not be shown again.\n")
	fmt.Printf("==========================================\n\n")
	logger.Info("admin credential bootstrapped")
	return nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
