package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/assistant"
)

// newSecretCmd creates the `rolobot secret` command group for the OS keyring.
func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the API key in the OS keyring",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Store the provider API key in the OS keyring",
			RunE: func(_ *cobra.Command, _ []string) error {
				fmt.Print("API key: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				key := strings.TrimSpace(line)
				if key == "" {
					return fmt.Errorf("empty key")
				}
				if err := assistant.StoreKeyring("api_key", key); err != nil {
					return fmt.Errorf("store key: %w", err)
				}
				fmt.Println("API key stored in the OS keyring.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the provider API key from the OS keyring",
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := assistant.DeleteKeyring("api_key"); err != nil {
					return fmt.Errorf("delete key: %w", err)
				}
				fmt.Println("API key removed from the OS keyring.")
				return nil
			},
		},
	)
	return cmd
}
