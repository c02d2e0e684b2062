package http

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ride-pool/pkg/auth"
	"ride-pool/pkg/logger"
	"ride-pool/pkg/websocket"
)

// NewRouter builds the service mux: the pool API, the user notification
// socket, health and metrics.
func NewRouter(
	h *PoolHandler,
	jwtManager *auth.JWTManager,
	wsManager *websocket.Manager,
	gatherer prometheus.Gatherer,
	log logger.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":                "ok",
			"websocket_connections": wsManager.GetConnectionCount(),
		})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	h.Register(mux, jwtManager)

	mux.HandleFunc("GET /ws/users/{user_id}", func(w http.ResponseWriter, r *http.Request) {
		userSocket(w, r, jwtManager, wsManager, log)
	})

	return mux
}

// userSocket authenticates the socket and registers it for notifications.
// Any role may connect, but only to its own user id.
func userSocket(w http.ResponseWriter, r *http.Request, jwtManager *auth.JWTManager, wsManager *websocket.Manager, log logger.Logger) {
	userID := r.PathValue("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	websocket.NewHandler(log, jwtManager, func(conn *websocket.Connection) {
		if conn.Claims.UserID != userID {
			log.WithFields(logger.LogFields{
				"url_user_id": userID,
				"jwt_user_id": conn.Claims.UserID,
			}).Error("websocket_user_id_mismatch", fmt.Errorf("user_id mismatch"))
			conn.Close()
			return
		}

		wsManager.AddConnection(userID, conn)
		conn.ReadPump(
			func(msgType int, p []byte) {
				log.WithFields(logger.LogFields{"user_id": userID}).Debug("user_ws_message", "Message from user ignored")
			},
			func() {
				wsManager.RemoveConnection(userID, conn)
			},
		)
	}, "").ServeHTTP(w, r)
}
