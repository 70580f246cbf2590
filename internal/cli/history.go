package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rmed/simpleice/internal/config"
	"github.com/rmed/simpleice/internal/store"
)

type attemptCounts struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// countAttempts reads the journal's attempt counts for a mail. It returns nil
// when no journal is configured or none has been written yet.
func countAttempts(ctx context.Context, cfg *config.Config, name string) (*attemptCounts, error) {
	if cfg.Store.Journal == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.Store.Journal); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	db, err := openJournal(cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	total, err := db.CountDeliveries(ctx, name, "")
	if err != nil {
		return nil, err
	}
	failed, err := db.CountDeliveries(ctx, name, store.OutcomeFailed)
	if err != nil {
		return nil, err
	}
	return &attemptCounts{Total: total, Failed: failed}, nil
}

func newHistoryCmd() *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "history [name]",
		Short: "Show delivery attempts",
		Long:  "Show the delivery attempts recorded by check cycles, newest first.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			opts := store.ListDeliveryOptions{Limit: limitFlag}
			if len(args) > 0 {
				opts.MailName = args[0]
			}
			deliveries, err := db.ListDeliveries(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(cmd, toJSONDeliveries(deliveries))
			}
			if len(deliveries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No deliveries recorded.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ATTEMPTED\tNAME\tOUTCOME\tRECIPIENTS\tERROR")
			for _, d := range deliveries {
				errText := d.Error
				if d.ErrorKind != "" {
					errText = "[" + d.ErrorKind + "] " + errText
				}
				if len(errText) > 60 {
					errText = errText[:57] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					d.AttemptedAt.Local().Format("02/01/2006 15:04"),
					d.MailName, d.Outcome, d.Recipient, errText,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 20, "max attempts to show (0 for all)")
	return cmd
}
