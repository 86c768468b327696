package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/internal/audit"
	"github.com/civichero/civichero/internal/phone"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	auditLimit int

	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Inspect the verification audit trail",
		Args:  cobra.NoArgs,
	}

	auditRecentCmd = &cobra.Command{
		Use:   "recent",
		Short: "List recent verification events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			trail, err := openAudit(cmd)
			if err != nil {
				return err
			}
			defer trail.Close() //nolint:errcheck

			events, err := trail.Recent(cmd.Context(), auditLimit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println(subtleStyle.Render("No events recorded."))
				return nil
			}
			for _, e := range events {
				fmt.Printf("%-16s %-16s %-15s %s\n",
					humanize.Time(e.CreatedAt),
					e.Kind,
					phone.Mask(e.Phone),
					subtleStyle.Render(e.Detail),
				)
			}
			return nil
		},
	}

	auditPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete events older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			trail, err := openAudit(cmd)
			if err != nil {
				return err
			}
			defer trail.Close() //nolint:errcheck

			retention := cfg.Audit.Retention.Std()
			n, err := trail.Prune(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %s events older than %s.\n", humanize.Comma(n), retention)
			return nil
		},
	}
)

func init() {
	auditRecentCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "number of events to show")
	auditCmd.AddCommand(auditRecentCmd, auditPruneCmd)
}

func openAudit(cmd *cobra.Command) (*audit.Store, error) {
	if cfg.Audit.Path == "" {
		return nil, errors.New("no audit trail configured: set audit.path or pass --audit")
	}
	return audit.Open(cmd.Context(), cfg.Audit.Path, log.Default())
}
