package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func leaseCmd() *cobra.Command {
	var (
		limit                    int
		leaseSeconds             int
		includeHistory           bool
		conversationHistoryLimit int
	)

	cmd := &cobra.Command{
		Use:   "lease",
		Short: "Lease pending messages without acking them",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildClient()
			if err != nil {
				return err
			}
			if limit < 1 || limit > 100 {
				return usageErrorf("--limit must be between 1 and 100")
			}
			if leaseSeconds < 1 || leaseSeconds > 3600 {
				return usageErrorf("--lease-seconds must be between 1 and 3600")
			}

			body := map[string]any{
				"limit":                        limit,
				"lease_seconds":                leaseSeconds,
				"include_conversation_history": includeHistory,
				"conversation_history_limit":   conversationHistoryLimit,
			}

			var resp leaseResponse
			if err := c.do(cmd.Context(), "POST", "/v1/messages/lease", body, &resp); err != nil {
				return err
			}

			p := newPrinter()
			p.messageTable(resp.Messages)
			if includeHistory {
				fmt.Fprintf(p.w, "\nconversation history: %d message(s)\n", len(resp.ConversationHistory))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of messages to lease (1-100)")
	cmd.Flags().IntVar(&leaseSeconds, "lease-seconds", 60, "lease duration in seconds (1-3600)")
	cmd.Flags().BoolVar(&includeHistory, "include-history", false, "include recent conversation history")
	cmd.Flags().IntVar(&conversationHistoryLimit, "history-limit", 20, "conversation history size (1-100)")
	return cmd
}
