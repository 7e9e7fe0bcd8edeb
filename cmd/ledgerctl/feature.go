package main

import (
	"context"
	"strings"

	featuredomain "github.com/smallbiznis/entitlements/internal/feature/domain"
	"github.com/smallbiznis/entitlements/internal/invoice/format"
	"github.com/spf13/cobra"
)

func newFeatureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature",
		Short: "Manage the feature catalog",
	}
	cmd.AddCommand(
		newFeatureRegisterCommand(),
		newFeatureUpdateCommand(),
		newFeatureListCommand(),
		newFeatureSlugsCommand(),
	)
	return cmd
}

func newFeatureRegisterCommand() *cobra.Command {
	var (
		name     string
		currency string
		amount   string
		kind     string
		slugs    string
		details  string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a purchasable feature",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cents, err := format.ParseAmount(amount)
			if err != nil {
				return err
			}
			req := featuredomain.CreateRequest{
				Name:         name,
				Currency:     currency,
				AmountCents:  cents,
				Kind:         featuredomain.Kind(kind),
				FeatureSlugs: slugs,
			}
			if cmd.Flags().Changed("details") {
				req.Details = &details
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				resp, err := svc.features.Register(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Feature name (unique)")
	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO 4217 currency code")
	cmd.Flags().StringVar(&amount, "amount", "0", "Price in major units, e.g. 49.99")
	cmd.Flags().StringVar(&kind, "kind", string(featuredomain.KindStandard), "standard, standard_one_time, custom or custom_one_time")
	cmd.Flags().StringVar(&slugs, "slugs", "", "Comma-separated entitlement slugs")
	cmd.Flags().StringVar(&details, "details", "", "Free-form details")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newFeatureUpdateCommand() *cobra.Command {
	var (
		name     string
		currency string
		amount   string
		kind     string
		slugs    string
		details  string
	)
	cmd := &cobra.Command{
		Use:   "update <feature-id>",
		Short: "Update a feature; price and slugs are frozen while an active invoice uses it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFeatureID(args[0])
			if err != nil {
				return err
			}
			req := featuredomain.UpdateRequest{ID: id}
			flags := cmd.Flags()
			if flags.Changed("name") {
				req.Name = &name
			}
			if flags.Changed("currency") {
				req.Currency = &currency
			}
			if flags.Changed("amount") {
				cents, err := format.ParseAmount(amount)
				if err != nil {
					return err
				}
				req.AmountCents = &cents
			}
			if flags.Changed("kind") {
				k := featuredomain.Kind(kind)
				req.Kind = &k
			}
			if flags.Changed("slugs") {
				req.FeatureSlugs = &slugs
			}
			if flags.Changed("details") {
				req.Details = &details
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				resp, err := svc.features.Update(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&currency, "currency", "", "New currency")
	cmd.Flags().StringVar(&amount, "amount", "", "New price in major units")
	cmd.Flags().StringVar(&kind, "kind", "", "New kind")
	cmd.Flags().StringVar(&slugs, "slugs", "", "Replacement comma-separated slugs")
	cmd.Flags().StringVar(&details, "details", "", "New details")
	return cmd
}

func newFeatureListCommand() *cobra.Command {
	var (
		kind      string
		recurring bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List features",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req featuredomain.ListRequest
			if kind != "" {
				k := featuredomain.Kind(kind)
				req.Kind = &k
			}
			if cmd.Flags().Changed("recurring") {
				req.Recurring = &recurring
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				items, err := svc.features.List(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only this kind")
	cmd.Flags().BoolVar(&recurring, "recurring", false, "Only recurring (true) or one-time (false) features")
	return cmd
}

func newFeatureSlugsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "slugs [candidate...]",
		Short: "Show which candidate slugs are on the allow-list",
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates := featuredomain.ParseSlugCandidates(strings.Join(args, " "))
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				return printJSON(cmd.OutOrStdout(), svc.features.MatchingSlugs(candidates))
			})
		},
	}
}
