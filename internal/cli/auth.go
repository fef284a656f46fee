package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var loginTokenFile string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store credentials for an account",
	Long: `Store an OAuth token for the selected account in the system keyring.

The token is read as JSON from --token-file, or from stdin when the flag is
omitted. Expired access tokens are refreshed automatically using the stored
refresh token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if loginTokenFile != "" {
			data, err = os.ReadFile(loginTokenFile)
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}

		var token oauth2.Token
		if err := json.Unmarshal(data, &token); err != nil {
			return fmt.Errorf("token is not valid JSON: %w", err)
		}
		if token.AccessToken == "" && token.RefreshToken == "" {
			return fmt.Errorf("token carries neither an access token nor a refresh token")
		}

		provider := buildTokenProvider()
		if err := provider.SignIn(&token); err != nil {
			return err
		}
		if !globalFlags.Quiet {
			fmt.Printf("Signed in as account %q\n", globalFlags.Account)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials for an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := buildTokenProvider()
		if err := provider.SignOut(); err != nil {
			return err
		}
		if !globalFlags.Quiet {
			fmt.Printf("Signed out account %q\n", globalFlags.Account)
		}
		return nil
	},
}

func oauthConfig() *oauth2.Config {
	config := &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
	}
	if cfg.OAuthTokenURL != "" {
		config.Endpoint = oauth2.Endpoint{TokenURL: cfg.OAuthTokenURL}
	}
	return config
}

func init() {
	loginCmd.Flags().StringVar(&loginTokenFile, "token-file", "", "Path to a JSON token file")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
