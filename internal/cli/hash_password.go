package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dppd-rp/portal/password"
)

func newHashPasswordCommand() *cobra.Command {
	cfg := password.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print an argon2id hash for ADMIN_PASSWORD_HASH",
		Long: `Read a password from the first line of stdin and print its argon2id PHC
string, suitable for ADMIN_PASSWORD_HASH.

Example:
  printf '%s\n' "$PASSWORD" | dppd-portal hash-password`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				return errors.New("no password on stdin")
			}
			pass := strings.TrimRight(scanner.Text(), "\r")
			if pass == "" {
				return errors.New("password must not be empty")
			}

			hasher, err := password.NewHasher(cfg)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pass)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().Uint32Var(&cfg.Memory, "memory", cfg.Memory, "argon2 memory in KiB")
	cmd.Flags().Uint32Var(&cfg.Time, "time", cfg.Time, "argon2 iterations")
	cmd.Flags().Uint8Var(&cfg.Parallelism, "parallelism", cfg.Parallelism, "argon2 parallelism")
	return cmd
}
