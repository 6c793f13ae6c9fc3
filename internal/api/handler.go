package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	ctxpkg "github.com/parleychat/parley/internal/context"
	"github.com/parleychat/parley/internal/db"
	"github.com/parleychat/parley/internal/dispatch"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/queue"
	"github.com/parleychat/parley/internal/ratelimit"
)

// Identity and tier arrive as trusted headers set by the auth layer in
// front of this service.
const (
	headerUserID = "X-User-ID"
	headerTier   = "X-User-Tier"
)

const limitReachedDetail = "Daily prompt limit reached for Basic tier. Upgrade to Pro for unlimited access."

type Handler struct {
	store   *db.Store
	limiter *ratelimit.Limiter
	queue   *queue.Queue
	logger  *zap.Logger
}

func NewHandler(store *db.Store, limiter *ratelimit.Limiter, q *queue.Queue, logger *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		limiter: limiter,
		queue:   q,
		logger:  logger,
	}
}

type MessageRequest struct {
	Content string `json:"content"`
}

type MessageResponse struct {
	Message string          `json:"message"`
	Data    *models.Message `json:"data"`
}

type CreateChatroomRequest struct {
	Title string `json:"title"`
}

// SendMessage admits the request, persists the user turn, snapshots the
// history, and enqueues the dispatch unit of work. It returns as soon as
// the user turn and the task are durable; the assistant reply arrives
// asynchronously.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	chatroomID := r.URL.Query().Get("chatroom_id")
	if chatroomID == "" {
		http.Error(w, "Invalid chatroom ID", http.StatusBadRequest)
		return
	}

	userID := r.Header.Get(headerUserID)
	if userID == "" {
		http.Error(w, "Missing user identity", http.StatusUnauthorized)
		return
	}
	tier := r.Header.Get(headerTier)
	if tier == "" {
		tier = models.TierBasic
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Admission happens before anything is persisted, so a rejected
	// request leaves no turn behind.
	if err := h.limiter.Admit(r.Context(), userID, tier); err != nil {
		if errors.Is(err, ratelimit.ErrDailyLimitReached) {
			http.Error(w, limitReachedDetail, http.StatusTooManyRequests)
			return
		}
		h.logger.Error("rate limit check failed", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	userMsg := &models.Message{
		ChatroomID: chatroomID,
		Sender:     models.SenderUser,
		Content:    req.Content,
	}
	if err := h.store.SaveMessage(userMsg); err != nil {
		// No dispatch is enqueued when the user turn did not persist.
		h.logger.Error("failed to save user message",
			zap.String("chatroom_id", chatroomID),
			zap.Error(err))
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	history, err := h.store.GetMessages(chatroomID)
	if err != nil {
		h.logger.Error("failed to read chat history",
			zap.String("chatroom_id", chatroomID),
			zap.Error(err))
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	// Snapshot everything before the triggering turn; the pending message
	// travels separately in the payload.
	snapshot := make([]ctxpkg.Message, 0, len(history))
	for _, m := range history {
		if m.ID == userMsg.ID {
			continue
		}
		snapshot = append(snapshot, ctxpkg.Message{Role: m.Sender, Content: m.Content})
	}

	payload := dispatch.Payload{
		ChatroomID:  chatroomID,
		History:     snapshot,
		UserMessage: req.Content,
	}
	if err := h.queue.Enqueue(r.Context(), queue.TaskProcessResponse, payload); err != nil {
		h.logger.Error("failed to enqueue dispatch task",
			zap.String("chatroom_id", chatroomID),
			zap.Error(err))
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(MessageResponse{
		Message: "Message sent successfully",
		Data:    userMsg,
	}); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// GetMessages returns every turn in the chatroom in append order.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	chatroomID := r.URL.Query().Get("chatroom_id")
	if chatroomID == "" {
		http.Error(w, "Invalid chatroom ID", http.StatusBadRequest)
		return
	}

	messages, err := h.store.GetMessages(chatroomID)
	if err != nil {
		h.logger.Error("failed to get messages", zap.String("chatroom_id", chatroomID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(messages); err != nil {
		h.logger.Error("failed to encode messages", zap.Error(err))
	}
}

// Chatrooms lists the caller's chatrooms on GET and creates one on POST.
func (h *Handler) Chatrooms(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		http.Error(w, "Missing user identity", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		chatrooms, err := h.store.GetChatrooms(userID)
		if err != nil {
			h.logger.Error("failed to get chatrooms", zap.String("user_id", userID), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(chatrooms); err != nil {
			h.logger.Error("failed to encode chatrooms", zap.Error(err))
		}

	case http.MethodPost:
		var req CreateChatroomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		room, err := h.store.CreateChatroom(userID, req.Title)
		if err != nil {
			h.logger.Error("failed to create chatroom", zap.String("user_id", userID), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(room); err != nil {
			h.logger.Error("failed to encode chatroom", zap.Error(err))
		}

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
