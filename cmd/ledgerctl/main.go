package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Operate the entitlement ledger",
		Long:         `ledgerctl manages the feature catalog, invoices and payments of the entitlement ledger and can run the renewal scan by hand.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newFeatureCommand(),
		newInvoiceCommand(),
		newPaymentCommand(),
		newScanCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
