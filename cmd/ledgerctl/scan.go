package main

import (
	"context"
	"errors"

	"github.com/smallbiznis/entitlements/internal/scheduler"
	"github.com/spf13/cobra"
)

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Renewal scan",
	}
	cmd.AddCommand(newScanRunCommand())
	return cmd
}

func newScanRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Renew and deactivate every invoice whose period has ended",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				err := svc.scheduler.RunOnce(ctx)
				if errors.Is(err, scheduler.ErrScanInProgress) {
					cmd.Println("renewal scan already running on another instance")
					return nil
				}
				if err != nil {
					return err
				}
				cmd.Println("renewal scan finished")
				return nil
			})
		},
	}
}
