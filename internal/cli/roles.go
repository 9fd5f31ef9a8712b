package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRolesCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage the stored role configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Write missing default permissions and page definitions",
		Long: `Merge the built-in permission and page definitions into the stored role
configuration. Existing definitions and role mappings are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			rdb, err := openRedis(cmd.Context(), cfg.Redis.URL)
			if err != nil {
				return err
			}
			defer rdb.Close()

			engine, err := buildEngine(cfg, rdb, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			seeded, err := engine.SeedRoleConfig(cmd.Context())
			if err != nil {
				return fmt.Errorf("seed role config: %w", err)
			}
			if seeded {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "role config defaults written")
			} else {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "role config already up to date")
			}
			return err
		},
	})
	return cmd
}
