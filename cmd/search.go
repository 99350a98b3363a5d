package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/drmonteiro/brands-ai/internal/approval"
	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/pipeline"
	"github.com/drmonteiro/brands-ai/internal/stream"
)

var (
	searchForceRefresh bool
	searchAutoApprove  bool
	searchJSON         bool
)

var searchCmd = &cobra.Command{
	Use:   "search <city>",
	Short: "Run the discovery pipeline for a city",
	Long: "Runs the discovery pipeline for one city and prints progress to stderr. " +
		"Without --auto-approve the command stops at the first approval gate and prints the thread id to resume with.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.Executor.Start(ctx, args[0], pipeline.StartOptions{ForceRefresh: searchForceRefresh})
		if err != nil {
			return eris.Wrap(err, "search")
		}
		return followRun(ctx, env.Executor, s, searchAutoApprove, searchJSON, os.Stdout, os.Stderr)
	},
}

// resumer continues a suspended run.
type resumer interface {
	Resume(ctx context.Context, req pipeline.ResumeRequest) (*stream.Stream, error)
}

// followRun prints the events of s until the run ends. At an approval gate
// it either resumes with approve (auto) or prints how to resume and stops.
func followRun(ctx context.Context, r resumer, s *stream.Stream, auto, asJSON bool, out, progress io.Writer) error {
	for {
		ev, ok := s.Next(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return eris.New("run ended without a result")
		}

		switch ev.Type {
		case model.EventProgress:
			_, _ = fmt.Fprintln(progress, ev.Message)

		case model.EventError:
			return eris.Errorf("run failed: %s", ev.Message)

		case model.EventComplete:
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ev)
			}
			formatBrands(out, ev.VerifiedBrands, ev.Cached)
			return nil

		case model.EventWaitingApproval:
			formatGate(progress, ev)
			if !auto {
				_, _ = fmt.Fprintf(progress, "\nResume with: brands resume %s %s --action approve\n", ev.ThreadID, ev.NextNode)
				return nil
			}
			next, err := r.Resume(ctx, pipeline.ResumeRequest{
				ThreadID: ev.ThreadID,
				Gate:     ev.NextNode,
				Action:   string(approval.ActionApprove),
			})
			if err != nil {
				return eris.Wrapf(err, "auto-approve %s", ev.NextNode)
			}
			s = next
		}
	}
}

// formatGate writes what a gate is waiting on.
func formatGate(out io.Writer, ev model.Event) {
	_, _ = fmt.Fprintf(out, "Waiting for approval at %s (thread %s)\n", ev.NextNode, ev.ThreadID)
	for _, q := range ev.Queries {
		_, _ = fmt.Fprintf(out, "  query: %s\n", q)
	}
	for _, b := range ev.PotentialBrands {
		_, _ = fmt.Fprintf(out, "  brand: %s (%s)\n", b.Name, b.WebsiteURL)
	}
}

// formatBrands writes a tabular list of verified brands to w.
func formatBrands(out io.Writer, brands []model.BrandLead, cached bool) {
	if len(brands) == 0 {
		_, _ = fmt.Fprintln(out, "No new brands found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tWEBSITE\tSTORES\tPRICE_USD\tLOCATIONS")
	_, _ = fmt.Fprintln(w, "----\t-------\t------\t---------\t---------")
	for _, b := range brands {
		price := "-"
		if b.AverageSuitPriceUSD > 0 {
			price = fmt.Sprintf("%.0f", b.AverageSuitPriceUSD)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			b.Name,
			b.WebsiteURL,
			b.StoreCount,
			price,
			strings.Join(b.StoreLocations, ", "),
		)
	}
	_ = w.Flush()
	if cached {
		_, _ = fmt.Fprintln(out, "(cached result)")
	}
}

func init() {
	searchCmd.Flags().BoolVar(&searchForceRefresh, "force-refresh", false, "ignore a cached result for the city")
	searchCmd.Flags().BoolVar(&searchAutoApprove, "auto-approve", false, "approve every gate without review")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the complete event as JSON")
	rootCmd.AddCommand(searchCmd)
}
