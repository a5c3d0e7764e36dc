package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hubscout/hubscout/config"
	srv "github.com/hubscout/hubscout/internal/server"
	"github.com/hubscout/hubscout/internal/store"
	"github.com/hubscout/hubscout/internal/telemetry"
	"github.com/spf13/cobra"
)

func planCMD() *cobra.Command {
	var cfgPath string
	var budgetMS int64
	var plan = &cobra.Command{
		Use:   "plan <site-url>",
		Short: "Run a single planning pass and print the plan as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			logger := log.New(os.Stderr, "[PLAN] ", log.LstdFlags)

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			var st *store.Store
			if dsn, err := cfg.Storage.Postgres.DSN(); err == nil {
				st, err = store.NewWithDSN(ctx, dsn)
				if err != nil {
					logger.Printf("warn: store unavailable, planning without history: %v", err)
					st = nil
				} else {
					defer st.Close()
				}
			} else {
				logger.Printf("warn: postgres not configured, planning without history")
			}

			svc, err := srv.NewPlannerService(cfg, st, nil, telemetry.NewBroker(), logger)
			if err != nil {
				return err
			}
			outcome, err := svc.PlanSite(ctx, args[0], budgetMS)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(outcome, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	plan.Flags().Int64Var(&budgetMS, "budget-ms", 0, "planning budget in milliseconds (0 = config default)")
	plan.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return plan
}
