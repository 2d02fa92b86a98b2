package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/erp/migrator/internal/infrastructure/mappingconfig"
)

func newCheckCmd(c *cli) *cobra.Command {
	var mapping string
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a mapping configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if mapping == "" {
				mapping = c.app.cfg.Migration.MappingFile
			}
			if mapping == "" {
				return errors.New("--mapping is required")
			}

			opts := []mappingconfig.Option{mappingconfig.WithLogger(c.app.log)}
			if strict {
				opts = append(opts, mappingconfig.WithStrictFields())
			}
			cfg, err := mappingconfig.NewLoader(opts...).Load(mapping)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s -> %s (version %s)\n",
				cfg.Metadata.SourcePlatform, cfg.Metadata.TargetPlatform, cfg.Metadata.Version)
			_, _ = fmt.Fprintf(out, "unresolved references: %s\n\n", cfg.Policy(nil))

			table := tablewriter.NewTable(out)
			table.Header("#", "Entity type", "Target model", "Aliases")
			for i, name := range cfg.MigrationSequence {
				model := ""
				if em, ok := cfg.Entity(name); ok {
					model = em.TargetModel
				}
				if err := table.Append(fmt.Sprint(i+1), name, model, strings.Join(cfg.AliasesFor(name), ", ")); err != nil {
					return err
				}
			}
			if err := table.Render(); err != nil {
				return err
			}

			var categories []string
			for _, category := range cfg.ValidationCategories() {
				categories = append(categories, category.Name+"="+category.EntityType)
			}
			_, _ = fmt.Fprintf(out, "\nvalidation: %s\n", strings.Join(categories, ", "))
			for _, warning := range cfg.Lint() {
				_, _ = fmt.Fprintf(out, "warning: %s\n", warning)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mapping, "mapping", "", "mapping configuration file")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject unknown fields")
	return cmd
}
