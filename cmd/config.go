package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/longkey1/newschat/internal/newschat/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configFields = "configfile, api_url, ws_url, ws_path, state_backend, state_dir, history_timeout, response_timeout, reconnect_min_delay, reconnect_max_delay, reconnect_per_minute, ping_interval, log_level, log_file, dictation_command, suggestions"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [field]",
	Short: "Display current configuration",
	Long: `Display the current configuration values.
This command shows all configuration values loaded from the config file and environment variables.

If a field name is specified, only that field's value is displayed.
Available fields: ` + configFields + `

Examples:
  newschat config                  # Show all configuration
  newschat config api_url          # Show only the server URL
  newschat config ws_url           # Show the derived WebSocket URL
  newschat config state_backend    # Show where the session is kept`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		// Load configuration from file
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		wsURL, err := cfg.WebSocketURL()
		if err != nil {
			wsURL = fmt.Sprintf("(invalid: %v)", err)
		}

		// If a field is specified, show only that field
		if len(args) > 0 {
			field := strings.ToLower(args[0])
			switch field {
			case "configfile":
				fmt.Println(viper.ConfigFileUsed())
			case "api_url", "apiurl":
				fmt.Println(redactURL(cfg.APIURL))
			case "ws_url", "wsurl":
				fmt.Println(redactURL(wsURL))
			case "ws_path", "wspath":
				fmt.Println(cfg.WSPath)
			case "state_backend", "statebackend":
				fmt.Println(cfg.StateBackend)
			case "state_dir", "statedir":
				fmt.Println(cfg.StateDir)
			case "history_timeout":
				fmt.Println(cfg.HistoryTimeout)
			case "response_timeout":
				fmt.Println(cfg.ResponseTimeout)
			case "reconnect_min_delay":
				fmt.Println(cfg.ReconnectMinDelay)
			case "reconnect_max_delay":
				fmt.Println(cfg.ReconnectMaxDelay)
			case "reconnect_per_minute":
				fmt.Println(cfg.ReconnectPerMinute)
			case "ping_interval":
				fmt.Println(cfg.PingInterval)
			case "log_level", "loglevel":
				fmt.Println(cfg.LogLevel)
			case "log_file", "logfile":
				fmt.Println(cfg.LogFile)
			case "dictation_command":
				fmt.Println(cfg.DictationCommand)
			case "suggestions":
				fmt.Println(strings.Join(cfg.Suggestions, "\n"))
			default:
				fmt.Fprintf(os.Stderr, "Unknown field: %s\n", args[0])
				fmt.Fprintf(os.Stderr, "Available fields: %s\n", configFields)
				os.Exit(1)
			}
			return
		}

		// Display all configuration values
		fmt.Printf("ConfigFile: %s\n", viper.ConfigFileUsed())
		fmt.Printf("APIURL: %s\n", redactURL(cfg.APIURL))
		fmt.Printf("WebSocketURL: %s\n", redactURL(wsURL))
		fmt.Printf("StateBackend: %s\n", cfg.StateBackend)
		fmt.Printf("StateDir: %s\n", cfg.StateDir)
		fmt.Printf("HistoryTimeout: %s\n", cfg.HistoryTimeout)
		fmt.Printf("ResponseTimeout: %s\n", cfg.ResponseTimeout)
		fmt.Printf("ReconnectDelay: %s - %s (max %d/min)\n", cfg.ReconnectMinDelay, cfg.ReconnectMaxDelay, cfg.ReconnectPerMinute)
		fmt.Printf("PingInterval: %s\n", cfg.PingInterval)
		fmt.Printf("LogLevel: %s\n", cfg.LogLevel)
		fmt.Printf("LogFile: %s\n", cfg.LogFile)
		fmt.Printf("DictationCommand: %s\n", cfg.DictationCommand)
		fmt.Printf("Suggestions: %s\n", strings.Join(cfg.Suggestions, " | "))
	},
}

// redactURL hides the password of a URL with embedded credentials
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

func init() {
	rootCmd.AddCommand(configCmd)
}
