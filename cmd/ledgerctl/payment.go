package main

import (
	"context"
	"strings"

	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	"github.com/smallbiznis/entitlements/internal/invoice/format"
	paymentdomain "github.com/smallbiznis/entitlements/internal/payment/domain"
	"github.com/spf13/cobra"
)

func newPaymentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Record and list payments",
	}
	cmd.AddCommand(newPaymentRecordCommand(), newPaymentListCommand())
	return cmd
}

func newPaymentRecordCommand() *cobra.Command {
	var (
		amount    string
		paidAt    string
		reference string
	)
	cmd := &cobra.Command{
		Use:   "record <invoice>",
		Short: "Record a payment against an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := invoicedomain.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			cents, err := format.ParseAmount(amount)
			if err != nil {
				return err
			}
			req := paymentdomain.RecordRequest{InvoiceID: id, AmountCents: cents}
			if req.PaidAt, err = parseDate(paidAt); err != nil {
				return err
			}
			if ref := strings.TrimSpace(reference); ref != "" {
				req.Reference = &ref
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				resp, err := svc.payments.RecordPayment(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in major units")
	cmd.Flags().StringVar(&paidAt, "paid-at", "", "Payment date (YYYY-MM-DD), defaults to now")
	cmd.Flags().StringVar(&reference, "reference", "", "External reference")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newPaymentListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <invoice>",
		Short: "List payments of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := invoicedomain.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, svc services) error {
				items, err := svc.payments.ListByInvoice(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
}
