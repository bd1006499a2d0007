package handlers

import (
	"net/http"
	"strings"

	"github.com/dvloznov/cashflow-tracker/internal/aiservice"
	"github.com/dvloznov/cashflow-tracker/internal/api/middleware"
	"github.com/dvloznov/cashflow-tracker/internal/assistant"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/rs/zerolog"
)

// ChatbotHandler handles the chat assistant endpoints.
type ChatbotHandler struct {
	repo      UserTransactions
	assistant *assistant.Assistant
	log       zerolog.Logger
}

// NewChatbotHandler creates a new chatbot handler.
func NewChatbotHandler(repo UserTransactions, a *assistant.Assistant, log zerolog.Logger) *ChatbotHandler {
	return &ChatbotHandler{repo: repo, assistant: a, log: log}
}

type chatRequest struct {
	UserMessage         string                  `json:"userMessage"`
	ConversationHistory []aiservice.ChatMessage `json:"conversationHistory"`
}

// Chat handles POST /api/chatbot/chat
func (h *ChatbotHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := requestLog(h.log, r)
	userID := middleware.UserIDFromContext(ctx)

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Message is required")
		return
	}

	u, err := h.repo.GetUser(ctx, userID)
	if err != nil {
		writeStoreError(w, log, err, "User not found", "Failed to load user")
		return
	}
	recent, err := h.repo.FindTransactions(ctx, domain.TransactionFilter{
		UserID: userID,
		Limit:  assistant.RecentLimit,
		Newest: true,
	})
	if err != nil {
		writeStoreError(w, log, err, "User not found", "Failed to load transactions")
		return
	}

	reply := h.assistant.Reply(ctx, assistant.ChatInput{
		User:    u,
		Message: req.UserMessage,
		Recent:  recent,
		History: req.ConversationHistory,
	})
	middleware.WriteJSON(w, http.StatusOK, reply)
}

// History handles GET /api/chatbot/history. Conversations are not stored
// server side; clients keep and resend their own history.
func (h *ChatbotHandler) History(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"history": []aiservice.ChatMessage{},
		"message": "Chat history stored in session",
	})
}
