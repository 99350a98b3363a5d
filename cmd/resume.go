package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/drmonteiro/brands-ai/internal/pipeline"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <thread-id> <gate>",
	Short: "Resume a run suspended at an approval gate",
	Long:  "Resumes a run waiting at the discovery or persistence gate with approve, modify or reject.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		thread, gate := args[0], args[1]
		action, _ := cmd.Flags().GetString("action")
		data, _ := cmd.Flags().GetString("data")
		auto, _ := cmd.Flags().GetBool("auto-approve")
		asJSON, _ := cmd.Flags().GetBool("json")

		var raw json.RawMessage
		if data != "" {
			if !json.Valid([]byte(data)) {
				return eris.New("--data is not valid JSON")
			}
			raw = json.RawMessage(data)
		}

		env, err := initPipeline(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.Executor.Resume(ctx, pipeline.ResumeRequest{
			ThreadID: thread,
			Gate:     gate,
			Action:   action,
			Data:     raw,
		})
		if err != nil {
			return eris.Wrap(err, "resume")
		}
		return followRun(ctx, env.Executor, s, auto, asJSON, os.Stdout, os.Stderr)
	},
}

func init() {
	resumeCmd.Flags().String("action", "approve", "approve, modify or reject")
	resumeCmd.Flags().String("data", "", `replacement payload as JSON, e.g. '{"queries":["..."]}'`)
	resumeCmd.Flags().Bool("auto-approve", false, "approve any later gate without review")
	resumeCmd.Flags().Bool("json", false, "print the complete event as JSON")
	rootCmd.AddCommand(resumeCmd)
}
