package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/drmonteiro/brands-ai/internal/monitoring"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Fail runs left waiting at an approval gate past the thread TTL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ttl, _ := cmd.Flags().GetDuration("older-than")
		if ttl <= 0 {
			ttl = threadTTL()
		}
		if ttl <= 0 {
			return eris.New("thread TTL is disabled; pass --older-than or set monitoring.thread_ttl_hours")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := monitoring.NewReaper(st, st, ttl, nil).Reap(ctx, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "reap")
		}
		_, _ = fmt.Fprintf(os.Stdout, "Reaped %d abandoned run(s)\n", n)
		return nil
	},
}

func init() {
	reapCmd.Flags().Duration("older-than", 0, "override monitoring.thread_ttl_hours (e.g. 48h)")
	rootCmd.AddCommand(reapCmd)
}
