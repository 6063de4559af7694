package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// GlobalConfig represents the client configuration stored in config.json
type GlobalConfig struct {
	APIURL string `json:"api_url"`
}

var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = defaultGetConfigPath
)

func defaultGetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "citadoc"), nil
}

func defaultGetConfigPath() (string, error) {
	configDir, err := getConfigDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// GetConfigDir returns the platform-specific configuration directory
func GetConfigDir() (string, error) {
	return getConfigDirFunc()
}

// GetConfigPath returns the full path to the config.json file
func GetConfigPath() (string, error) {
	return getConfigPathFunc()
}

// LoadGlobalConfig reads and parses the global config.json file
// Returns nil config (not error) if file doesn't exist
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveGlobalConfig writes the config to config.json with 0600 permissions
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DeleteGlobalConfig removes the config.json file
func DeleteGlobalConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.Remove(configPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete config file: %w", err)
	}

	return nil
}

// IsValidAPIURL reports whether raw is an absolute http(s) URL
func IsValidAPIURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ConfigSource represents where the API URL came from
type ConfigSource string

const (
	SourceFlag         ConfigSource = "flag"
	SourceEnv          ConfigSource = "env"
	SourceGlobalConfig ConfigSource = "global_config"
	SourceDefault      ConfigSource = "default"
)

// ResolveAPIURL returns the API URL and its source.
// Checks in order: flag -> env -> global_config -> default
func ResolveAPIURL(flagAPIURL string) (ConfigSource, string, error) {
	if flagAPIURL != "" {
		return SourceFlag, flagAPIURL, nil
	}

	if envURL := os.Getenv(envAPIURL); envURL != "" {
		return SourceEnv, envURL, nil
	}

	config, err := LoadGlobalConfig()
	if err != nil {
		return "", "", err
	}
	if config != nil && config.APIURL != "" {
		return SourceGlobalConfig, config.APIURL, nil
	}

	return SourceDefault, defaultAPIURL, nil
}

// ConfigCmd creates the config command group.
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage client configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-url <url>",
		Short: "Save the API URL to the global config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !IsValidAPIURL(args[0]) {
				return fmt.Errorf("invalid API URL %q (expected http:// or https://)", args[0])
			}
			if err := SaveGlobalConfig(&GlobalConfig{APIURL: args[0]}); err != nil {
				return err
			}
			path, _ := GetConfigPath()
			fmt.Printf("Saved API URL to %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the API URL in effect and where it comes from",
		RunE: func(cmd *cobra.Command, args []string) error {
			flagURL, _ := cmd.Flags().GetString("api-url")
			source, apiURL, err := ResolveAPIURL(flagURL)
			if err != nil {
				return err
			}
			fmt.Printf("API URL: %s (%s)\n", apiURL, source)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Delete the global config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return DeleteGlobalConfig()
		},
	})

	return cmd
}
