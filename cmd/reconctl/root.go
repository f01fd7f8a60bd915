package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lvonguyen/reconlens/internal/config"
	"github.com/lvonguyen/reconlens/internal/enrichment"
)

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool
	cfg        *config.Config
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "reconctl",
	Short: "Passive recon enrichment and risk scoring",
	Long: `reconctl enriches IPv4 addresses and domains from passive intel sources
(IPQuery, Censys, SecurityTrails) and scores the combined result.

Credentials are read from the environment variables named in the config file
(CENSYS_API_TOKEN, CENSYS_ORG_ID and SECURITYTRAILS_API_KEY by default). Sources
without a credential are skipped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			if !cmd.Flags().Changed("config") && errors.Is(err, os.ErrNotExist) {
				cfg = config.DefaultConfig()
			} else {
				return fmt.Errorf("failed to load config: %w", err)
			}
		}

		if verbose {
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			logger = l
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log upstream calls to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON instead of a summary")

	rootCmd.Version = "0.1.0-dev"
}

// Execute runs the root command, cancelling in-flight lookups on SIGINT.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// buildSources wires every adapter from the loaded config and the
// environment credentials.
func buildSources() (enrichment.Sources, *enrichment.SecurityTrailsClient) {
	creds := cfg.Credentials()
	trails := enrichment.NewSecurityTrailsClient(enrichment.SecurityTrailsConfig{
		BaseURL: cfg.Sources.SecurityTrails.BaseURL,
		APIKey:  creds.SecurityTrailsAPIKey,
		Timeout: cfg.Sources.SecurityTrails.Timeout,
	}, logger)

	return enrichment.Sources{
		IdentityGeo: enrichment.NewIPQueryProvider(enrichment.IPQueryConfig{
			BaseURL: cfg.Sources.IPQuery.BaseURL,
			Timeout: cfg.Sources.IPQuery.Timeout,
		}, logger),
		HostExposure: enrichment.NewCensysProvider(enrichment.CensysConfig{
			BaseURL: cfg.Sources.Censys.BaseURL,
			Token:   creds.CensysToken,
			OrgID:   creds.CensysOrgID,
			Timeout: cfg.Sources.Censys.Timeout,
		}, logger),
		DNSCore:       trails.Core(),
		DNSSubdomains: trails.Subdomains(),
	}, trails
}
