// Package cmd implements the forgescan-admin CLI. Commands talk to the
// database directly through the application services, so the CLI works
// even when the API server is down or the gate is blocking everything.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/internal/config"
	"github.com/forgescan/api/internal/infra/postgres"
	"github.com/forgescan/api/pkg/domain/rule"
	"github.com/forgescan/api/pkg/logger"
)

var (
	version string

	// Global flags
	flagOutput  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "forgescan-admin",
	Short: "ForgeScan platform administration CLI",
	Long: `forgescan-admin manages the ForgeScan platform: tenants and their
plans, release gate decisions, and audit evidence exports.

Connection settings come from the same environment variables the API
server reads (DB_HOST, DB_USER, ...).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("forgescan-admin", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tenantCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(evidenceCmd)
}

// services bundles everything a command might need. Each invocation
// opens its own connection; commands are short-lived.
type services struct {
	db          *postgres.DB
	Tenant      *app.TenantService
	Enforcement *app.EnforcementService
	Evidence    *app.EvidenceService
}

func (s *services) Close() {
	_ = s.db.Close()
}

func connect() (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log := logger.NewNop()
	if flagVerbose {
		log = logger.NewDefault()
	}

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	tenantRepo := postgres.NewTenantRepository(db)
	findingRepo := postgres.NewFindingRepository(db)
	assetRepo := postgres.NewAssetRepository(db)
	evidenceRepo := postgres.NewEvidenceRepository(db)
	decisionRepo := postgres.NewEnforcementRepository(db)

	bundle := rule.DefaultBundle()
	if cfg.Rules.BundlePath != "" {
		bundle, err = rule.LoadBundleFile(cfg.Rules.BundlePath)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("load rule bundle: %w", err)
		}
	}

	remediation, err := app.NewRemediationService(findingRepo, assetRepo, bundle, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &services{
		db:          db,
		Tenant:      app.NewTenantService(tenantRepo, log),
		Enforcement: app.NewEnforcementService(db, tenantRepo, decisionRepo, evidenceRepo, remediation, log),
		Evidence:    app.NewEvidenceService(evidenceRepo, log),
	}, nil
}
