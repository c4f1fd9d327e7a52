package main

import "github.com/spf13/cobra"

func sendCmd() *cobra.Command {
	var (
		chatBotID   string
		destType    string
		userID      string
		channelID   string
		content     string
		replyToID   string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an outbound chat message through a relay-owned bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildClient()
			if err != nil {
				return err
			}
			if chatBotID == "" {
				return usageErrorf("--chat-bot-id is required")
			}
			if content == "" {
				return usageErrorf("--content is required")
			}
			switch destType {
			case "dm":
				if userID == "" {
					return usageErrorf("--user-id is required for --type dm")
				}
			case "channel":
				if channelID == "" {
					return usageErrorf("--channel-id is required for --type channel")
				}
			default:
				return usageErrorf("--type must be dm or channel")
			}

			req := sendRequest{
				ChatBotID: chatBotID,
				Destination: sendDestination{
					Type:      destType,
					UserID:    userID,
					ChannelID: channelID,
				},
				Content:              content,
				ReplyToChatMessageID: replyToID,
			}

			var resp sendResponse
			if err := c.do(cmd.Context(), "POST", "/v1/messages/send", req, &resp); err != nil {
				return err
			}

			newPrinter().success("sent chat_message_id=%s channel_id=%s", resp.ChatMessageID, resp.ChannelID)
			return nil
		},
	}

	cmd.Flags().StringVar(&chatBotID, "chat-bot-id", "", "chat bot to send through (required)")
	cmd.Flags().StringVar(&destType, "type", "channel", "destination type: dm or channel")
	cmd.Flags().StringVar(&userID, "user-id", "", "destination user ID (for --type dm)")
	cmd.Flags().StringVar(&channelID, "channel-id", "", "destination channel ID (for --type channel)")
	cmd.Flags().StringVar(&content, "content", "", "message content (required)")
	cmd.Flags().StringVar(&replyToID, "reply-to", "", "chat message ID this reply is in response to")
	return cmd
}
