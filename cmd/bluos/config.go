package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/bluos/internal/config"
	"github.com/muurk/bluos/internal/discovery"
	"github.com/muurk/bluos/internal/ui"
)

var forceInit bool

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Long: `Write a configuration file with every setting at its default.

With --device, the address is saved as the endpoint so later commands skip
discovery.`,
	Example: `  bluos config init
  bluos config init --device 192.168.1.40
  bluos config init --config ./bluos.yaml --force`,
	// The file may not parse yet; only start logging
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Default()
		return setupLogging()
	},
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file without asking")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := targetConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		ok := ui.Confirm(os.Stdin, os.Stdout, "Config file exists",
			[]string{path, "All settings will be reset to their defaults"},
			"Overwrite it?")
		if !ok {
			return nil
		}
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	out := config.Default()
	if deviceFlag != "" {
		out.Endpoint = discovery.NormalizeEndpoint(deviceFlag)
	}
	if err := out.Save(path); err != nil {
		return err
	}

	details := []ui.Detail{{Key: "Path", Value: path}}
	if out.Endpoint != "" {
		details = append(details, ui.Detail{Key: "Endpoint", Value: out.Endpoint})
	}
	ui.NewPrinter(os.Stdout).PrintSuccess("Configuration written", details...)
	return nil
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after defaults are filled in, as YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := targetConfigPath()
		if err != nil {
			return err
		}
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n%s", path, data)
		return nil
	},
}

func targetConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}
