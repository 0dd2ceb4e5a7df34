package health

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/recoveryhub/internal/app/features/errors"
	"github.com/dalemusser/recoveryhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Check is one backing service the app cannot run without.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// MongoCheck pings the primary.
func MongoCheck(client *mongo.Client) Check {
	return Check{
		Name: "mongo",
		Ping: func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresCheck pings the board's relational store.
func PostgresCheck(p Pinger) Check {
	return Check{Name: "postgres", Ping: p.Ping}
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Checks []Check
	Log    *zap.Logger
}

// NewHandler constructs a health Handler that runs checks in order.
func NewHandler(logger *zap.Logger, checks ...Check) *Handler {
	return &Handler{Checks: checks, Log: logger}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Message  string            `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "services":{"mongo":"connected","postgres":"connected"} }
//
// On failure: 503 and
//
//	{ "status":"error", "services":{"mongo":"disconnected"}, "message":"mongo unavailable", "error":"…" }
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := healthResponse{Status: "ok", Services: make(map[string]string, len(h.Checks))}
	for _, c := range h.Checks {
		if err := c.Ping(ctx); err != nil {
			h.Log.Error("health-check: ping failed", zap.String("service", c.Name), zap.Error(err))
			resp.Status = "error"
			resp.Services[c.Name] = "disconnected"
			resp.Message = c.Name + " unavailable"
			resp.Error = err.Error()
			uierrors.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Services[c.Name] = "connected"
	}
	uierrors.WriteJSON(w, http.StatusOK, resp)
}
