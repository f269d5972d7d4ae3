package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/credential"
	"github.com/nhle/taskpulse/internal/remote"
)

func addLogin(topLevel *cobra.Command) {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the API token in the system keyring",
		Example: `
taskpulse login --token eyJhbGciOiJIUzI1NiIs...
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := checkToken(token)
			if err != nil {
				return err
			}
			if err := credential.Set(credential.TokenKey, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored token for %s.\n", userID)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the backend")

	topLevel.AddCommand(cmd)
}

func checkToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("--token is required")
	}
	userID, err := remote.UserIDFromToken(token)
	if err != nil {
		return "", fmt.Errorf("token is not usable: %w", err)
	}
	return userID, nil
}
