/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/longkey1/newschat/internal/newschat/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "newschat",
	Short: "A terminal client for the news chatbot",
	Long: `newschat is a command-line client for a news chatbot service.
Replies stream in as they are written, the conversation is kept per session,
and the session survives restarts.
You can configure the tool using a TOML configuration file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/newschat/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Set environment variable prefix and automatic env
	viper.SetEnvPrefix("NEWSCHAT") // Set prefix for environment variables
	viper.AutomaticEnv()           // read in environment variables that match

	// Determine config directory for user config
	home, err := os.UserHomeDir()
	cobra.CheckErr(err)
	userConfigDir := filepath.Join(home, ".config", "newschat")

	// An empty state_dir means "next to the config file", see session.GetStateDir
	defaultConfig := config.NewDefaultConfig("")

	viper.SetDefault("api_url", defaultConfig.APIURL)
	viper.SetDefault("ws_path", defaultConfig.WSPath)
	viper.SetDefault("state_backend", defaultConfig.StateBackend)
	viper.SetDefault("state_dir", defaultConfig.StateDir)
	viper.SetDefault("history_timeout", defaultConfig.HistoryTimeout)
	viper.SetDefault("response_timeout", defaultConfig.ResponseTimeout)
	viper.SetDefault("reconnect_min_delay", defaultConfig.ReconnectMinDelay)
	viper.SetDefault("reconnect_max_delay", defaultConfig.ReconnectMaxDelay)
	viper.SetDefault("reconnect_per_minute", defaultConfig.ReconnectPerMinute)
	viper.SetDefault("ping_interval", defaultConfig.PingInterval)
	viper.SetDefault("log_level", defaultConfig.LogLevel)
	viper.SetDefault("log_file", defaultConfig.LogFile)
	viper.SetDefault("dictation_command", defaultConfig.DictationCommand)
	viper.SetDefault("suggestions", defaultConfig.Suggestions)

	// Bind environment variables
	// API_URL is accepted without prefix, as the web client does
	viper.BindEnv("api_url", "NEWSCHAT_API_URL", "API_URL")
	viper.BindEnv("state_backend", "NEWSCHAT_STATE_BACKEND")
	viper.BindEnv("log_level", "NEWSCHAT_LOG_LEVEL")
	viper.BindEnv("dictation_command", "NEWSCHAT_DICTATION_COMMAND")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	} else {
		readConfigFiles([]string{
			"/etc/newschat",
			"/usr/local/etc/newschat",
		}, userConfigDir)
	}

	if verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		fmt.Fprintln(os.Stderr, "Environment variables:")
		fmt.Fprintln(os.Stderr, "  NEWSCHAT_API_URL:", viper.GetString("api_url"))
		fmt.Fprintln(os.Stderr, "  NEWSCHAT_STATE_BACKEND:", viper.GetString("state_backend"))
		fmt.Fprintln(os.Stderr, "  NEWSCHAT_LOG_LEVEL:", viper.GetString("log_level"))
	}
}

// readConfigFiles loads the first system-wide config found in systemConfigPaths
// and merges the user config from userConfigDir on top of it.
func readConfigFiles(systemConfigPaths []string, userConfigDir string) {
	viper.SetConfigType("toml")
	viper.SetConfigName("config")

	// Load system-wide config first (lower priority)
	for _, path := range systemConfigPaths {
		viper.AddConfigPath(path)
	}
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Loaded system-wide config:", viper.ConfigFileUsed())
		}
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading system-wide config file: %v\n", err)
		}
	}

	// Load user config (higher priority) - merge with system config.
	// The search paths would find the system file again, so name the file.
	userConfigFile := filepath.Join(userConfigDir, "config.toml")
	if _, err := os.Stat(userConfigFile); err != nil {
		return
	}
	viper.SetConfigFile(userConfigFile)
	if err := viper.MergeInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error merging user config file: %v\n", err)
	} else if verbose {
		fmt.Fprintln(os.Stderr, "Merged user config:", viper.ConfigFileUsed())
	}
}
