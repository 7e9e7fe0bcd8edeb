package main

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	featuredomain "github.com/smallbiznis/entitlements/internal/feature/domain"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	"github.com/smallbiznis/entitlements/internal/invoice/format"
	"github.com/smallbiznis/entitlements/internal/invoice/render"
	"github.com/spf13/cobra"
)

func newInvoiceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Manage invoices and their entitlements",
	}
	cmd.AddCommand(
		newInvoiceCreateCommand(),
		newInvoiceShowCommand(),
		newInvoiceListCommand(),
		newInvoiceFeaturesCommand(),
		newInvoiceChildSlugsCommand(),
		newInvoiceRenewCommand(),
		newInvoiceSaveCommand(),
	)
	return cmd
}

func newInvoiceCreateCommand() *cobra.Command {
	var (
		org         string
		kind        string
		currency    string
		amountDue   string
		start       string
		end         string
		forceActive bool
		features    []string
		childSlugs  string
		notes       string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an invoice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := invoicedomain.CreateRequest{
				Kind:              invoicedomain.Kind(kind),
				Currency:          currency,
				ForceActive:       forceActive,
				ChildFeatureSlugs: invoicedomain.SlugString(childSlugs),
			}
			if org != "" {
				id, err := snowflake.ParseString(org)
				if err != nil {
					return err
				}
				req.OrganizationID = id
			}
			if cmd.Flags().Changed("amount-due") {
				cents, err := format.ParseAmount(amountDue)
				if err != nil {
					return err
				}
				req.AmountDueCents = &cents
			}
			var err error
			if req.SubscriptionStartAt, err = parseDate(start); err != nil {
				return err
			}
			if req.SubscriptionEndAt, err = parseDate(end); err != nil {
				return err
			}
			for _, raw := range features {
				id, err := parseFeatureID(raw)
				if err != nil {
					return err
				}
				req.FeatureIDs = append(req.FeatureIDs, id)
			}
			if cmd.Flags().Changed("notes") {
				req.Notes = &notes
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				view, err := svc.invoices.Create(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "Organization id")
	cmd.Flags().StringVar(&kind, "kind", string(invoicedomain.KindOrganization), "organization or standalone")
	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO 4217 currency code")
	cmd.Flags().StringVar(&amountDue, "amount-due", "", "Amount due in major units")
	cmd.Flags().StringVar(&start, "start", "", "Subscription start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Subscription end (YYYY-MM-DD), defaults to start plus the configured term")
	cmd.Flags().BoolVar(&forceActive, "force-active", false, "Keep the invoice active until it expires regardless of payment")
	cmd.Flags().StringArrayVar(&features, "feature", nil, "Feature id to link; repeat for quantity")
	cmd.Flags().StringVar(&childSlugs, "child-slugs", "", "Comma-separated slugs passed down to child accounts")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes")
	return cmd
}

func newInvoiceShowCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <invoice>",
		Short: `Show an invoice; accepts "123" or "Invoice #123"`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := invoicedomain.ParseInvoiceID(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				view, err := svc.invoices.Get(ctx, id)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), view)
				}
				lines, err := statementLines(ctx, svc.features, view.FeatureIDs)
				if err != nil {
					return err
				}
				return render.NewTextRenderer().Render(cmd.OutOrStdout(), render.StatementInput{
					Invoice: *view,
					Lines:   lines,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a statement")
	return cmd
}

func statementLines(ctx context.Context, features featuredomain.Service, featureIDs []string) ([]render.Line, error) {
	catalog := make(map[string]render.Line)
	for _, raw := range featureIDs {
		if _, ok := catalog[raw]; ok {
			continue
		}
		id, err := parseFeatureID(raw)
		if err != nil {
			return nil, err
		}
		feature, err := features.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		catalog[raw] = render.Line{
			Name:      feature.Name,
			Kind:      string(feature.Kind),
			UnitCents: feature.AmountCents,
		}
	}
	return render.GroupLines(featureIDs, catalog), nil
}

func newInvoiceListCommand() *cobra.Command {
	var (
		org   string
		scope string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := invoicedomain.ListRequest{Scope: invoicedomain.Scope(scope)}
			if org != "" {
				id, err := snowflake.ParseString(org)
				if err != nil {
					return err
				}
				req.OrganizationID = &id
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				items, err := svc.invoices.List(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "Only invoices of this organization")
	cmd.Flags().StringVar(&scope, "scope", "", "first, renewal, active, inactive, current, expired or should_expire")
	return cmd
}

func newInvoiceFeaturesCommand() *cobra.Command {
	var quantities []string
	cmd := &cobra.Command{
		Use:   "features <invoice>",
		Short: "Set how many of each feature the invoice carries",
		Long:  `Sets the complete feature multiset. Features not named are removed; repeat --set for each feature.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := invoicedomain.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			requested, err := parseQuantities(quantities)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				view, err := svc.invoices.SetFeatureQuantities(ctx, id, requested)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
	cmd.Flags().StringArrayVar(&quantities, "set", nil, "featureID=count")
	return cmd
}

func newInvoiceChildSlugsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "child-slugs <invoice> <slugs>",
		Short: "Set the slugs passed down to child accounts",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := invoicedomain.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			input := invoicedomain.SlugString(strings.Join(args[1:], ","))
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				view, err := svc.invoices.SetChildFeatureSlugs(ctx, id, input)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func newInvoiceRenewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "renew <invoice>",
		Short: "Create the following invoice, or show the existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := invoicedomain.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				view, err := svc.invoices.CreateFollowingInvoice(ctx, id)
				if err != nil {
					return err
				}
				if view == nil {
					cmd.Println("invoice was never active; nothing to renew")
					return nil
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func newInvoiceSaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save <invoice>",
		Short: "Recompute paid amount and active flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := invoicedomain.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				view, err := svc.invoices.Save(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}
