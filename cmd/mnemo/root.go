package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mnemo-backend/application/capture"
	"mnemo-backend/infrastructure/config"
	"mnemo-backend/infrastructure/di"
	"mnemo-backend/pkg/pipeline"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mnemo",
		Short:         "Memory consolidation and reflection engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration file")

	root.AddCommand(
		newCaptureCommand(&configPath),
		newReflectCommand(&configPath),
		newConsolidateCommand(&configPath),
		newScheduleCommand(&configPath),
	)
	return root
}

// withContainer loads configuration, builds the container and tears it
// down after fn returns
func withContainer(configPath string, fn func(ctx context.Context, c *di.Container) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	return fn(ctx, container)
}

func newCaptureCommand(configPath *string) *cobra.Command {
	var (
		userID     string
		domains    []string
		tags       []string
		importance float64
		occurredAt string
	)

	cmd := &cobra.Command{
		Use:   "capture [content]",
		Short: "Capture one memory through the ingest pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(*configPath, func(ctx context.Context, c *di.Container) error {
				occurred := time.Now()
				if occurredAt != "" {
					parsed, err := time.Parse(time.RFC3339, occurredAt)
					if err != nil {
						return fmt.Errorf("invalid --occurred-at (want RFC3339): %w", err)
					}
					occurred = parsed
				}

				res := c.Ingest.Run(ctx, capture.RawInput{
					UserID:     userID,
					Content:    strings.Join(args, " "),
					OccurredAt: occurred,
					Domains:    domains,
					Tags:       tags,
					Importance: importance,
				})
				if res.Failed() {
					return res.Err
				}

				c.Logger.Info("memory captured",
					zap.String("user_id", userID),
					zap.String("status", string(res.Status)))
				return printResult(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user the memory belongs to")
	cmd.Flags().StringSliceVar(&domains, "domain", nil, "life domain, repeatable")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag, repeatable")
	cmd.Flags().Float64Var(&importance, "importance", 0, "explicit importance in [0,1]")
	cmd.Flags().StringVar(&occurredAt, "occurred-at", "", "when the memory happened, RFC3339")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newReflectCommand(configPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "reflect",
		Short: "Run reflection over a user's candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(*configPath, func(ctx context.Context, c *di.Container) error {
				candidates, err := c.Store.GetByUserID(ctx, userID)
				if err != nil {
					return err
				}
				if len(candidates) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no candidates to reflect on")
					return nil
				}

				for _, candidate := range candidates {
					journal := c.Reflection.Reflect(ctx, candidate)
					fmt.Fprintf(cmd.OutOrStdout(),
						"%s  drift=%.2f coherence=%.2f modulation=%+.2f eligible=%t decay=%dd\n",
						candidate.ID().String(),
						journal.OverallDrift().Value(),
						journal.Coherence().Value(),
						journal.SignalModulation().Value(),
						journal.ConsolidationEligible(),
						journal.DecayDays())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user to reflect for")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newConsolidateCommand(configPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run one consolidation cycle for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(*configPath, func(ctx context.Context, c *di.Container) error {
				result := c.Consolidation.RunCycle(ctx, userID)
				if result.Status == pipeline.StatusFailed {
					return result.Err
				}

				fmt.Fprintf(cmd.OutOrStdout(),
					"cycle %s: considered %d candidates, formed %d groups, wrote %d records\n",
					result.Status,
					result.CandidatesConsidered,
					result.GroupsFormed,
					len(result.Records))
				for _, record := range result.Records {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n",
						record.ID().String(), record.Title())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user to consolidate for")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newScheduleCommand(configPath *string) *cobra.Command {
	var (
		userIDs  []string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run periodic consolidation cycles until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(*configPath, func(ctx context.Context, c *di.Container) error {
				cycleInterval := interval
				if cycleInterval <= 0 {
					cycleInterval = c.Config.Scheduler.CycleInterval.Std()
				}

				for _, userID := range userIDs {
					if err := c.Scheduler.Start(userID, cycleInterval); err != nil {
						return err
					}
				}

				c.Logger.Info("scheduler running",
					zap.Strings("users", userIDs),
					zap.Duration("interval", cycleInterval))
				<-ctx.Done()

				c.Logger.Info("shutting down")
				c.Scheduler.StopAll()
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&userIDs, "user", nil, "user to schedule, repeatable")
	cmd.Flags().DurationVar(&interval, "interval", 0, "cycle interval, defaults to the configured value")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// printResult renders a pipeline result as indented JSON for scripting
func printResult(cmd *cobra.Command, res pipeline.Result) error {
	out := map[string]interface{}{
		"pipeline": res.Pipeline,
		"status":   res.Status,
		"duration": res.Duration.String(),
	}
	var stages []map[string]interface{}
	for _, stage := range res.Stages {
		stages = append(stages, map[string]interface{}{
			"name":     stage.Name,
			"status":   stage.Status,
			"duration": stage.Duration.String(),
		})
	}
	out["stages"] = stages

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
