package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

type importOptions struct {
	from string
}

// newImportCatalogCmd creates the 'import-catalog' subcommand, which loads a
// YAML or JSON catalog file into the configured database backend.
func newImportCatalogCmd() *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import-catalog",
		Short: "Replaces the database catalog with the contents of a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.from == "" {
				return errors.New("--from is required")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := appInstance.ImportCatalog(cmd.Context(), opts.from)
			if err != nil {
				return fmt.Errorf("import catalog: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d novels from %s\n", n, opts.from)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", "", "catalog file to import (yaml or json)")
	return cmd
}
