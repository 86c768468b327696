// Package main provides the entry point for the civichero CLI.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	logLevel   string

	// cfg is the configuration in effect, loaded before any command runs.
	cfg = config.Default()

	rootCmd = &cobra.Command{
		Use:   "civichero",
		Short: "Civic lessons read aloud, and phone verification for the CivicHero app",
		Long: paragraph(
			fmt.Sprintf("\nRead civic education lessons %s, and run the phone verification service behind the CivicHero app.", keyword("aloud")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	c, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = c
	return applyLogLevel(cfg.Log.Level)
}

func applyLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().String("audit", "", "SQLite file for the verification audit trail")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("audit.path", rootCmd.PersistentFlags().Lookup("audit"))

	rootCmd.AddCommand(speakCmd, serveCmd, otpCmd, auditCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	path, err := config.Init(viper.GetViper())
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}
	configFile = path

	if viper.ConfigFileUsed() != "" {
		return
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
