package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/boshu2/contextkeeper/internal/config"
)

var (
	configShow bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and manage contextkeeper configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (CONTEXTKEEPER_*)
  3. Project config (.contextkeeper/config.yaml)
  4. Home config (~/.contextkeeper/config.yaml)
  5. Defaults

Environment variables:
  CONTEXTKEEPER_CONFIG          - Explicit config file path (overrides default project config location)
  CONTEXTKEEPER_OUTPUT          - Default output format (text, json)
  CONTEXTKEEPER_BASE_DIR        - Data directory path
  CONTEXTKEEPER_VERBOSE         - Enable verbose output (true/1)
  CONTEXTKEEPER_TRANSCRIPTS_DIR - Agent transcripts directory

Examples:
  ck config --show           # Show resolved configuration
  ck config --show -o json   # Output as JSON`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		// Show help if no flags
		return cmd.Help()
	}

	// Get resolved config with sources
	resolved := config.Resolve(GetOutput(), "", GetVerbose())

	if GetOutput() == "json" {
		data, err := json.MarshalIndent(resolved, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	// Print table format
	fmt.Println("Contextkeeper Configuration")
	fmt.Println("===========================")
	fmt.Println()

	fmt.Println("Config files:")
	homeConfig := filepath.Join(os.Getenv("HOME"), ".contextkeeper", "config.yaml")
	if _, err := os.Stat(homeConfig); err == nil {
		fmt.Printf("  ✓ Home:    %s\n", homeConfig)
	} else {
		fmt.Printf("  ✗ Home:    %s (not found)\n", homeConfig)
	}

	cwd, _ := os.Getwd()
	projectConfig := filepath.Join(cwd, ".contextkeeper", "config.yaml")
	if _, err := os.Stat(projectConfig); err == nil {
		fmt.Printf("  ✓ Project: %s\n", projectConfig)
	} else {
		fmt.Printf("  ✗ Project: %s (not found)\n", projectConfig)
	}

	fmt.Println()
	fmt.Println("Resolved values:")
	fmt.Printf("  output:   %v  (from %s)\n", resolved.Output.Value, resolved.Output.Source)
	fmt.Printf("  base_dir: %v  (from %s)\n", resolved.BaseDir.Value, resolved.BaseDir.Source)
	fmt.Printf("  verbose:  %v  (from %s)\n", resolved.Verbose.Value, resolved.Verbose.Source)

	fmt.Println()
	fmt.Println("Environment variables (if set):")
	envVars := []string{
		"CONTEXTKEEPER_CONFIG",
		"CONTEXTKEEPER_OUTPUT",
		"CONTEXTKEEPER_BASE_DIR",
		"CONTEXTKEEPER_VERBOSE",
		"CONTEXTKEEPER_TRANSCRIPTS_DIR",
	}
	anySet := false
	for _, env := range envVars {
		if v := os.Getenv(env); v != "" {
			fmt.Printf("  %s=%s\n", env, v)
			anySet = true
		}
	}
	if !anySet {
		fmt.Println("  (none set)")
	}

	return nil
}
