package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/pipeline"
)

// newAuditCmd creates the 'audit' subcommand, which lists the paid chapters
// of every tracked novel regardless of age.
func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Lists paid chapters per novel without the staleness cutoff",
		Long: `Fetches every catalog entry with the quick check disabled and no
staleness window, then prints one line per novel with its paid chapter
count, latest release date and newest chapter, most recent first.
Nothing is written to the feed output.`,
		Args: cobra.NoArgs,
		RunE: runAuditCommand,
	}
}

func runAuditCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()

	cat, err := appInstance.GetCatalog().Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	results, err := appInstance.GetRunner().Collect(cmd.Context(), cat, pipeline.CollectOptions{
		Window:         0,
		SkipQuickCheck: true,
	})
	if err != nil {
		logger.Warn("audit interrupted, listing partial results", zap.Error(err))
	}
	for _, res := range results {
		if res.Outcome == crawler.OutcomeFetchFailed || res.Outcome == crawler.OutcomePanicked {
			logger.Warn("novel not audited",
				zap.String("novel", res.Title),
				zap.String("outcome", string(res.Outcome)),
				zap.Error(res.Err),
			)
		}
	}
	return writeAudit(cmd.OutOrStdout(), pipeline.Audit(results))
}

func writeAudit(out io.Writer, rows []pipeline.AuditRow) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tPAID\tLATEST\tNEWEST")
	for _, row := range rows {
		latest, newest := "-", "-"
		if !row.Latest.IsZero() {
			latest = row.Latest.UTC().Format(time.DateOnly)
		}
		if row.NewestName != "" {
			newest = row.NewestName
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", row.Title, row.Paid, latest, newest)
	}
	return tw.Flush()
}
