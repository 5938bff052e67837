package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sponsorscope/scope/pkg/scopeclient"
)

var (
	analyzeServer   string
	analyzePlatform string
	analyzeNoWait   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <handle>",
	Short: "Submit a handle for analysis and wait for the report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := scopeclient.New(analyzeServer)

		res, err := client.Submit(cmd.Context(), args[0], analyzePlatform)
		if err != nil {
			return eris.Wrap(err, "submit")
		}
		zap.L().Info("submitted",
			zap.String("job_id", res.JobID),
			zap.String("status", res.Status))

		if analyzeNoWait {
			fmt.Println(res.JobID)
			return nil
		}

		report, err := client.WaitForReport(cmd.Context(), res.JobID, scopeclient.PollOptions{
			MaxAttempts:     cfg.Poll.MaxAttempts,
			InitialInterval: time.Duration(cfg.Poll.InitialIntervalSec * float64(time.Second)),
			MaxInterval:     time.Duration(cfg.Poll.MaxIntervalSec * float64(time.Second)),
		})
		if err != nil {
			return eris.Wrap(err, "wait for report")
		}

		var pretty map[string]any
		if err := json.Unmarshal(report, &pretty); err != nil {
			return eris.Wrap(err, "decode report")
		}
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return eris.Wrap(err, "format report")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeServer, "server", "http://localhost:8080", "scope server base URL")
	analyzeCmd.Flags().StringVar(&analyzePlatform, "platform", "", "platform (defaults to instagram)")
	analyzeCmd.Flags().BoolVar(&analyzeNoWait, "no-wait", false, "print the job id and exit without polling")
	rootCmd.AddCommand(analyzeCmd)
}
