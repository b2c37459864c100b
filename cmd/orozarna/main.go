package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/orozarna/internal/config"
	"github.com/erazemk/orozarna/internal/custody"
	"github.com/erazemk/orozarna/internal/db"
	"github.com/erazemk/orozarna/internal/serial"
)

var (
	configPath string
	dbPath     string
	addr       string
	logPath    string
	debug      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "orozarna",
	Short:        "Custody ledger for club equipment kits",
	SilenceUsage: true,
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.ReadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database.Path = dbPath
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flags.Changed("log") {
		cfg.Server.LogPath = logPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app bundles what every command needs. The caller must call Close.
type app struct {
	cfg           *config.Config
	db            *sql.DB
	custody       *custody.Service
	schemaVersion uint
	closeLog      func()
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	closeLog, err := setupLogger(cfg.Server.LogPath, debug)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.CheckSchema(database); err != nil {
		database.Close()
		closeLog()
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		closeLog()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	version, err := db.CheckSchema(database)
	if err != nil {
		database.Close()
		closeLog()
		return nil, err
	}

	svc, err := newService(cfg, database)
	if err != nil {
		database.Close()
		closeLog()
		return nil, err
	}

	return &app{cfg: cfg, db: database, custody: svc, schemaVersion: version, closeLog: closeLog}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Error("closing database", "error", err)
	}
	a.closeLog()
}

// newService builds the custody service from cfg.
func newService(cfg *config.Config, database *sql.DB) (*custody.Service, error) {
	svc := custody.NewService(database)
	svc.Logger = slog.Default()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	svc.Warnings = custody.WarningConfig{
		OverdueGraceDays:        cfg.Warnings.OverdueGraceDays,
		ExtendedCustodyDays:     cfg.Warnings.ExtendedCustodyDays,
		MaintenanceIntervalDays: cfg.Warnings.MaintenanceIntervalDays,
		Location:                loc,
	}

	if cfg.Attestation.Text != "" {
		svc.Attestation.Text = cfg.Attestation.Text
	}
	if cfg.Attestation.Version != "" {
		svc.Attestation.Version = cfg.Attestation.Version
	}

	if cfg.Serial.IdentityPath != "" {
		cipher, err := serial.LoadAgeCipher(cfg.Serial.IdentityPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Warn("serial identity missing, serial sealing disabled", "path", cfg.Serial.IdentityPath)
		case err != nil:
			return nil, fmt.Errorf("loading serial identity: %w", err)
		default:
			svc.Serial = cipher
		}
	}
	return svc, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "orozarna.toml", "config file path")
	pf.StringVarP(&dbPath, "db", "d", "", "SQLite database path (overrides config)")
	pf.StringVarP(&logPath, "log", "l", "", "log file path (overrides config)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")

	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)

	initCmd.Flags().StringP("user", "u", "admin", "admin username")
	rootCmd.AddCommand(initCmd)

	userAddCmd.Flags().StringP("role", "r", "member", "role: admin, armorer, coach or member")
	userAddCmd.Flags().Bool("verified-adult", false, "allow off-site requests")
	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)

	kitRegisterCmd.Flags().StringP("name", "n", "", "kit name")
	kitRegisterCmd.Flags().String("description", "", "kit description")
	kitRegisterCmd.Flags().String("serial", "", "serial number, sealed before storage")
	kitRegisterCmd.Flags().String("as", "admin", "username recorded as the registering actor")
	kitCmd.AddCommand(kitRegisterCmd)
	rootCmd.AddCommand(kitCmd)

	rootCmd.AddCommand(warningsCmd)
	rootCmd.AddCommand(verifyCmd)

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
