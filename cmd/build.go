package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newBuildCmd creates the 'build' subcommand, a single crawl-and-publish pass.
func newBuildCmd() *cobra.Command {
	var modifiedOnly bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Crawls every tracked novel once and writes the feed",
		Long: `Fetches the chapter list of each catalog entry, keeps the paid chapters
released inside the staleness window and writes the RSS document to the
configured output. Exits non-zero when the feed could not be written.

With --modified it instead rewrites the site's own chapter feed, splitting
each title and adding translator metadata, and writes it to
output.modified_object_name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if modifiedOnly {
				return runModifiedCommand(cmd)
			}
			return runBuildCommand(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&modifiedOnly, "modified", false, "rewrite the site chapter feed instead of crawling novels")
	return cmd
}

func runModifiedCommand(cmd *cobra.Command) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	summary, err := appInstance.GetModified().Build(cmd.Context())
	if err != nil {
		return fmt.Errorf("build modified feed: %w", err)
	}
	appInstance.GetLogger().Info("modified build finished",
		zap.Int("items", summary.Items),
		zap.Int("skipped", summary.Skipped),
		zap.String("uri", summary.OutputURI),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "modified: %d items written to %s (%d skipped)\n",
		summary.Items, summary.OutputURI, summary.Skipped)
	return nil
}

func runBuildCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()

	summary, err := appInstance.GetRunner().Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("build feed: %w", err)
	}
	logger.Info("build command finished",
		zap.String("run_id", summary.ID),
		zap.String("status", string(summary.Status)),
		zap.Int("items", summary.Items),
		zap.String("uri", summary.OutputURI),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d items written to %s\n", summary.ID, summary.Items, summary.OutputURI)
	return nil
}
