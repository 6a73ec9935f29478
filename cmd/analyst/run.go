package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/analyst/config"
	"github.com/mohammad-safakhou/analyst/internal/agent"
	"github.com/mohammad-safakhou/analyst/internal/dataset"
	"github.com/mohammad-safakhou/analyst/internal/telemetry"
)

func runCMD(cfgPath *string) *cobra.Command {
	var goal, file string
	var rows int
	run := &cobra.Command{
		Use:   "run",
		Short: "Analyse a local CSV file once and print the combined script",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(goal) == "" {
				return fmt.Errorf("--goal is required")
			}
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if rows <= 0 {
				rows = cfg.Agents.SampleRows
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			sample, err := dataset.Sample(f, name, rows)
			f.Close()
			if err != nil {
				return err
			}

			tel, err := telemetry.Setup(ctx, cfg.Telemetry, version)
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())

			rdb, err := newRedis(ctx, cfg.Storage.Redis)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
			}
			services, err := newServices(cfg, rdb)
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}

			orch := agent.NewOrchestrator(services)
			artifact, trace, err := orch.Run(ctx, catalog, sample, goal)
			for _, e := range trace {
				fmt.Fprintf(cmd.ErrOrStderr(), "--- step %d: %s\n", e.Step, e.Result.AgentName)
				if e.Result.Commentary != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), e.Result.Commentary)
				}
			}
			if err != nil {
				return fmt.Errorf("%s: %w", agent.KindOf(err), err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), artifact.Code)
			return nil
		},
	}
	run.Flags().StringVar(&goal, "goal", "", "what the analysis should achieve")
	run.Flags().StringVar(&file, "dataset", "", "path to a CSV file")
	run.Flags().IntVar(&rows, "rows", 0, "sample chunk size (default agents.sample_rows)")
	_ = run.MarkFlagRequired("dataset")
	return run
}
