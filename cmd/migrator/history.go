package main

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/persistence"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var limit int
	var status, platform string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded migration runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tenantID, err := c.app.tenantID()
			if err != nil {
				return err
			}
			filter := migration.RunFilter{SourcePlatform: platform}
			if status != "" {
				s := migration.RunStatus(status)
				if !s.IsValid() {
					return fmt.Errorf("unknown status %q", status)
				}
				filter.Status = &s
			}

			db, err := c.app.database(ctx)
			if err != nil {
				return err
			}
			runs, err := persistence.NewGormRunRepository(db.DB).FindRecent(ctx, tenantID, filter, limit)
			if err != nil {
				return err
			}

			table := tablewriter.NewTable(cmd.OutOrStdout())
			table.Header("Run", "Status", "Source", "Total", "Migrated", "Failed", "Skipped", "Validation", "Started")
			for _, run := range runs {
				started := ""
				if run.StartedAt != nil {
					started = run.StartedAt.Format(time.DateTime)
				}
				if err := table.Append(
					run.ID.String(),
					string(run.Status),
					run.SourcePlatform,
					fmt.Sprint(run.TotalRecords),
					fmt.Sprint(run.SucceededRecords),
					fmt.Sprint(run.FailedRecords),
					fmt.Sprint(run.SkippedRecords),
					string(run.ValidationStatus),
					started,
				); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", persistence.DefaultRunHistoryLimit, "number of runs to show")
	cmd.Flags().StringVar(&status, "status", "", "only runs in this status")
	cmd.Flags().StringVar(&platform, "platform", "", "only runs from this source platform")
	return cmd
}
