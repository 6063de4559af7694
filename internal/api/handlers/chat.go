package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/citadoc/internal/api"
	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/pagination"
	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/go-chi/chi/v5"
)

type ChatService interface {
	Query(ctx context.Context, input service.QueryInput) (*service.QueryResult, error)
	ListConversations(ctx context.Context, input service.ListConversationsInput) (*service.ListConversationsOutput, error)
	Messages(ctx context.Context, conversationID string) ([]domain.Message, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type QueryRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
}

type QueryResponse struct {
	ConversationID string            `json:"conversation_id"`
	Answer         string            `json:"answer"`
	Citations      []domain.Citation `json:"citations"`
}

type ConversationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type MessageResponse struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Citations []domain.Citation `json:"citations,omitempty"`
	CreatedAt string            `json:"created_at"`
}

type MessagesResponse struct {
	ConversationID string            `json:"conversation_id"`
	MessageCount   int               `json:"message_count"`
	Messages       []MessageResponse `json:"messages"`
}

func conversationToResponse(c *domain.Conversation) *ConversationResponse {
	return &ConversationResponse{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}
}

func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.QueryInput{Message: req.Message}
	if req.ConversationID != nil {
		input.ConversationID = *req.ConversationID
	}

	result, err := h.svc.Query(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	citations := result.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}

	api.Success(w, http.StatusOK, QueryResponse{
		ConversationID: result.ConversationID,
		Answer:         result.Answer,
		Citations:      citations,
	})
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	input := service.ListConversationsInput{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  parseLimit(r),
	}

	output, err := h.svc.ListConversations(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, pagination.NewPage(output.Items, output.Cursor, output.HasMore, conversationToResponse))
}

func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	messages, err := h.svc.Messages(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]MessageResponse, len(messages))
	for i, m := range messages {
		responses[i] = MessageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			Citations: m.Citations,
			CreatedAt: formatTime(m.CreatedAt),
		}
	}

	api.Success(w, http.StatusOK, MessagesResponse{
		ConversationID: id,
		MessageCount:   len(responses),
		Messages:       responses,
	})
}
