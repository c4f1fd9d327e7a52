package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// retrieveCmd wraps the legacy GET /v1/messages/pending path: fetch
// and immediately ack, for clients that haven't moved to lease/ack.
func retrieveCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Fetch pending messages (legacy: marks them delivered immediately)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildClient()
			if err != nil {
				return err
			}
			if limit < 1 || limit > 100 {
				return usageErrorf("--limit must be between 1 and 100")
			}

			var resp leaseResponse
			path := fmt.Sprintf("/v1/messages/pending?limit=%d", limit)
			if err := c.do(cmd.Context(), "GET", path, nil, &resp); err != nil {
				return err
			}

			newPrinter().messageTable(resp.Messages)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of messages to retrieve (1-100)")
	return cmd
}
