package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sponsorscope/scope/internal/governance"
)

var governCmd = &cobra.Command{
	Use:   "govern",
	Short: "Operate the governance controls through the shared state store",
	Long:  "Reads and writes governance state directly in the shared state store, so changes propagate to every running server sharing that backend.",
}

var governStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kill-switch state and budget usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline, store, err := buildPipeline(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "open state store")
		}
		defer store.Close()

		usage, err := pipeline.Budget().Snapshot(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "read budget")
		}
		out, err := json.MarshalIndent(map[string]any{
			"killswitch": pipeline.KillSwitch().Status(cmd.Context()),
			"budget":     usage,
		}, "", "  ")
		if err != nil {
			return eris.Wrap(err, "format status")
		}
		fmt.Println(string(out))
		return nil
	},
}

var governKillSwitchCmd = &cobra.Command{
	Use:   "killswitch <scans|read> <enable|disable>",
	Short: "Toggle a kill switch component",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		component, action := args[0], args[1]
		if component != governance.ComponentScans && component != governance.ComponentRead {
			return eris.Errorf("unknown component %q (want scans or read)", component)
		}
		var enabled bool
		switch action {
		case "enable":
			enabled = true
		case "disable":
			enabled = false
		default:
			return eris.Errorf("unknown action %q (want enable or disable)", action)
		}

		pipeline, store, err := buildPipeline(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "open state store")
		}
		defer store.Close()

		if err := pipeline.KillSwitch().Set(cmd.Context(), component, enabled); err != nil {
			return eris.Wrap(err, "write kill switch")
		}
		fmt.Printf("%s %sd\n", component, action)
		return nil
	},
}

var governNoticeCmd = &cobra.Command{
	Use:   "notice <text>",
	Short: "Post a system notice shown with maintenance responses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline, store, err := buildPipeline(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "open state store")
		}
		defer store.Close()

		if err := pipeline.KillSwitch().AddNotice(cmd.Context(), args[0]); err != nil {
			return eris.Wrap(err, "write notice")
		}
		fmt.Println("notice posted")
		return nil
	},
}

var governUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's refinement token and spend usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline, store, err := buildPipeline(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "open state store")
		}
		defer store.Close()

		usage, err := pipeline.Budget().Snapshot(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "read budget")
		}
		out, err := json.MarshalIndent(usage, "", "  ")
		if err != nil {
			return eris.Wrap(err, "format usage")
		}
		fmt.Println(string(out))
		return nil
	},
}

var governResetUsageCmd = &cobra.Command{
	Use:   "reset-usage",
	Short: "Zero today's budget counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline, store, err := buildPipeline(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "open state store")
		}
		defer store.Close()

		if err := pipeline.Budget().Reset(cmd.Context()); err != nil {
			return eris.Wrap(err, "reset budget")
		}
		fmt.Println("usage reset")
		return nil
	},
}

func init() {
	governCmd.AddCommand(governStatusCmd, governKillSwitchCmd, governNoticeCmd, governUsageCmd, governResetUsageCmd)
	rootCmd.AddCommand(governCmd)
}
