package main

import "github.com/spf13/cobra"

func nackCmd() *cobra.Command {
	var (
		leaseID string
		reason  string
	)

	cmd := &cobra.Command{
		Use:   "nack <delivery-id>...",
		Short: "Return leased deliveries to pending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildClient()
			if err != nil {
				return err
			}
			if leaseID == "" {
				return usageErrorf("--lease-id is required")
			}

			body := map[string]any{"delivery_ids": args, "lease_id": leaseID, "reason": reason}
			var resp nackResponse
			if err := c.do(cmd.Context(), "POST", "/v1/messages/nack", body, &resp); err != nil {
				return err
			}

			newPrinter().warn("returned %d delivery(s) to pending", resp.NackedCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&leaseID, "lease-id", "", "lease ID the deliveries were leased under (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "optional reason recorded for diagnostics")
	return cmd
}
