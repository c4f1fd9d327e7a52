package main

import "github.com/spf13/cobra"

func ackCmd() *cobra.Command {
	var leaseID string

	cmd := &cobra.Command{
		Use:   "ack <delivery-id>...",
		Short: "Acknowledge leased deliveries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildClient()
			if err != nil {
				return err
			}
			if leaseID == "" {
				return usageErrorf("--lease-id is required")
			}

			body := map[string]any{"delivery_ids": args, "lease_id": leaseID}
			var resp ackResponse
			if err := c.do(cmd.Context(), "POST", "/v1/messages/ack", body, &resp); err != nil {
				return err
			}

			newPrinter().success("acknowledged %d delivery(s)", resp.AcknowledgedCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&leaseID, "lease-id", "", "lease ID the deliveries were leased under (required)")
	return cmd
}
