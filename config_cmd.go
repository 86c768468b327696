package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/civichero/civichero/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configCmd = &cobra.Command{
		Use:     "config",
		Hidden:  false,
		Short:   "Edit the civichero config file",
		Long:    paragraph(fmt.Sprintf("\n%s the civichero config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
		Example: paragraph("civichero config\ncivichero config --config path/to/config.yml\ncivichero config show"),
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := ensureConfigFile(); err != nil {
				return err
			}

			c, err := editor.Cmd("CivicHero", configFile)
			if err != nil {
				return fmt.Errorf("unable to set config file: %w", err)
			}
			c.Stdin = os.Stdin
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			if err := c.Run(); err != nil {
				return fmt.Errorf("unable to run command: %w", err)
			}

			fmt.Println("Wrote config file to:", configFile)
			return nil
		},
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the configuration in effect",
		Long:  paragraph("\nPrint the configuration in effect after merging the config file, CIVICHERO_* environment variables and flags."),
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			out, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			if used := viper.ConfigFileUsed(); used != "" {
				fmt.Println(subtleStyle.Render("# " + used))
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
)

func init() {
	configCmd.AddCommand(configShowCmd)
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		defaults, err := config.DefaultFile()
		if err != nil {
			return err
		}
		if err := os.WriteFile(configFile, defaults, 0o600); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
