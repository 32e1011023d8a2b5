package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ookla/speedtest-extract/pkg/config"
)

func newAuthCmd() *cobra.Command {
	var apiKey string
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store the API secret in the system keyring",
		Long: `Store the API secret in the system keyring so it can be left out of the config file.
The secret is looked up by api key whenever api_secret is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprint(cmd.ErrOrStderr(), "API secret: ")
			secret, err := readSecret()
			if err != nil {
				return err
			}
			if err = config.StoreSecret(apiKey, secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret stored for api key %s\n", apiKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key the secret belongs to")
	_ = cmd.MarkFlagRequired("api-key")
	return cmd
}

// readSecret reads a secret from stdin without echoing it on terminals.
func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
