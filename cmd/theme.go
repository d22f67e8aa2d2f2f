package cmd

import (
	"fmt"

	"github.com/longkey1/newschat/internal/newschat/session"
	"github.com/spf13/cobra"
)

// themeCmd represents the theme command
var themeCmd = &cobra.Command{
	Use:   "theme [light|dark|toggle]",
	Short: "Show or change the colour theme",
	Long: `Show or change the colour theme of the chat view.

Without an argument the saved theme is printed.

Examples:
  newschat theme          # Show the saved theme
  newschat theme dark     # Switch to the dark theme
  newschat theme toggle   # Switch to the other theme`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(session.ThemeLight), string(session.ThemeDark), "toggle"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			fmt.Println(a.session.Theme())
			return nil
		}

		var theme session.Theme
		if args[0] == "toggle" {
			theme, err = a.session.ToggleTheme()
		} else {
			theme, err = session.ParseTheme(args[0])
			if err == nil {
				err = a.session.SetTheme(theme)
			}
		}
		if err != nil {
			return err
		}

		fmt.Printf("Theme set to %s.\n", theme)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(themeCmd)
}
