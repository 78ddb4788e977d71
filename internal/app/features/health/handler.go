package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bloodbridge/bloodbridge/internal/app/system/realtime"
	"github.com/bloodbridge/bloodbridge/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client   *mongo.Client
	Realtime *realtime.RedisPublisher // nil when the push channel is disabled
	Log      *zap.Logger
}

// NewHandler constructs a health Handler with the Mongo client and logger.
func NewHandler(client *mongo.Client, rt *realtime.RedisPublisher, logger *zap.Logger) *Handler {
	return &Handler{
		Client:   client,
		Realtime: rt,
		Log:      logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Realtime string `json:"realtime,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "realtime":"connected" }
//
// On DB failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable", "error":"…"}
//
// The realtime channel is informational only: a Redis outage degrades
// delivery but email still works, so it never fails the health check.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	if h.Realtime != nil {
		resp.Realtime = "connected"
		if err := h.Realtime.Health(ctx); err != nil {
			h.Log.Warn("health-check: redis ping failed", zap.Error(err))
			resp.Realtime = "disconnected"
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}
