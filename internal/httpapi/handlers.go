package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/chatrelay/internal/ingress"
	"github.com/nextlevelbuilder/chatrelay/internal/relayerr"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", ConfigPath: s.configPath})
}

// handlePending is the legacy /v1/messages/pending path: a lease with
// an effectively infinite duration, acked within the same
// transaction, so consumers still on it get exactly the behavior
// lease+ack gives new consumers.
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	backendID := store.BackendIDFromContext(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	limit = clampInt(limit, 1, 100)

	leased, err := s.queue.LeasePendingLegacy(r.Context(), backendID, limit)
	if err != nil {
		writeRelayErr(w, err)
		return
	}

	envelopes := make([]messageEnvelope, len(leased))
	for i, l := range leased {
		envelopes[i] = toEnvelope(l)
	}
	writeJSON(w, http.StatusOK, leaseResponse{Messages: envelopes})
}

func (s *Server) handleLease(w http.ResponseWriter, r *http.Request) {
	backendID := store.BackendIDFromContext(r.Context())

	var req leaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRelayErr(w, &relayerr.ValidationError{Msg: "invalid request body"})
		return
	}
	if req.Limit < 1 || req.Limit > 100 {
		writeRelayErr(w, &relayerr.ValidationError{Field: "limit", Msg: "must be between 1 and 100"})
		return
	}
	if req.LeaseSeconds < 1 || req.LeaseSeconds > 3600 {
		writeRelayErr(w, &relayerr.ValidationError{Field: "lease_seconds", Msg: "must be between 1 and 3600"})
		return
	}
	if req.IncludeConversationHistory && (req.ConversationHistoryLimit < 1 || req.ConversationHistoryLimit > 100) {
		writeRelayErr(w, &relayerr.ValidationError{Field: "conversation_history_limit", Msg: "must be between 1 and 100"})
		return
	}

	leased, history, err := s.queue.Lease(r.Context(), backendID, req.Limit, req.LeaseSeconds, req.IncludeConversationHistory, req.ConversationHistoryLimit)
	if err != nil {
		writeRelayErr(w, err)
		return
	}

	resp := leaseResponse{Messages: make([]messageEnvelope, len(leased))}
	for i, l := range leased {
		resp.Messages[i] = toEnvelope(l)
	}
	if req.IncludeConversationHistory {
		resp.ConversationHistory = make([]chatMessage, len(history))
		for i, m := range history {
			resp.ConversationHistory[i] = toChatMessage(m)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	backendID := store.BackendIDFromContext(r.Context())

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRelayErr(w, &relayerr.ValidationError{Msg: "invalid request body"})
		return
	}
	if len(req.DeliveryIDs) == 0 {
		writeRelayErr(w, &relayerr.ValidationError{Field: "delivery_ids", Msg: "must be non-empty"})
		return
	}
	if req.LeaseID == "" {
		writeRelayErr(w, &relayerr.ValidationError{Field: "lease_id", Msg: "is required"})
		return
	}

	n, err := s.queue.Ack(r.Context(), backendID, req.DeliveryIDs, req.LeaseID)
	if err != nil {
		writeRelayErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{AcknowledgedCount: n})
}

func (s *Server) handleNack(w http.ResponseWriter, r *http.Request) {
	backendID := store.BackendIDFromContext(r.Context())

	var req nackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRelayErr(w, &relayerr.ValidationError{Msg: "invalid request body"})
		return
	}
	if len(req.DeliveryIDs) == 0 {
		writeRelayErr(w, &relayerr.ValidationError{Field: "delivery_ids", Msg: "must be non-empty"})
		return
	}
	if req.LeaseID == "" {
		writeRelayErr(w, &relayerr.ValidationError{Field: "lease_id", Msg: "is required"})
		return
	}

	n, err := s.queue.Nack(r.Context(), backendID, req.DeliveryIDs, req.LeaseID, req.Reason)
	if err != nil {
		writeRelayErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nackResponse{NackedCount: n})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRelayErr(w, &relayerr.ValidationError{Msg: "invalid request body"})
		return
	}
	if len(req.Content) == 0 {
		writeRelayErr(w, &relayerr.ValidationError{Field: "content", Msg: "must be non-empty"})
		return
	}
	if !s.chatBotEnabled[req.ChatBotID] {
		writeRelayErr(w, &relayerr.NotFoundError{Entity: "chat_bot_id", ID: req.ChatBotID})
		return
	}

	var dest ingress.Destination
	switch req.Destination.Type {
	case "dm":
		if req.Destination.UserID == "" {
			writeRelayErr(w, &relayerr.ValidationError{Field: "destination.user_id", Msg: "is required for type dm"})
			return
		}
		dest = ingress.Destination{Type: ingress.DestinationDM, UserID: req.Destination.UserID}
	case "channel":
		if req.Destination.ChannelID == "" {
			writeRelayErr(w, &relayerr.ValidationError{Field: "destination.channel_id", Msg: "is required for type channel"})
			return
		}
		dest = ingress.Destination{Type: ingress.DestinationChannel, ChannelID: req.Destination.ChannelID}
	default:
		writeRelayErr(w, &relayerr.ValidationError{Field: "destination.type", Msg: "must be dm or channel"})
		return
	}

	chatMessageID, channelID, err := s.sender.Send(r.Context(), req.ChatBotID, dest, req.Content, req.ReplyToChatMessageID)
	if err != nil {
		writeRelayErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{ChatMessageID: chatMessageID, ChannelID: channelID})
}
