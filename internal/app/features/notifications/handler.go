// internal/app/features/notifications/handler.go

// Package notifications serves a user's delivered-notification history and
// read receipts.
package notifications

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bloodbridge/bloodbridge/internal/app/features/shared"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the notification persistence surface. Implemented by
// notificationstore.Store and notificationstore.Memory.
type Store interface {
	ListByRecipient(ctx context.Context, recipientID primitive.ObjectID, limit int64) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, recipientID primitive.ObjectID) error
	UnreadCount(ctx context.Context, recipientID primitive.ObjectID) (int64, error)
}

// Handler holds the dependencies for the notification endpoints.
type Handler struct {
	Store Store
	Log   *zap.Logger
}

// NewHandler constructs a notifications Handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	return &Handler{Store: store, Log: logger}
}

// ServeList handles GET /notifications?limit=. Results are the caller's own,
// newest first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.CurrentUserID(r)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)

	list, err := h.Store.ListByRecipient(r.Context(), userID, limit)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	unread, err := h.Store.UnreadCount(r.Context(), userID)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"notifications": list,
		"unread":        unread,
	})
}

// ServeMarkRead handles POST /notifications/{id}/read. Marking someone
// else's notification is indistinguishable from marking one that does not
// exist.
func (h *Handler) ServeMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.CurrentUserID(r)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.Store.MarkRead(r.Context(), id, userID); err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
