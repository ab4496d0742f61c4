package binsim

import (
	"encoding/json"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// minBottleDim is the classify fixture's rule: a frame smaller than this on
// either side is "not a bottle". It gives tests and the CLI a deterministic
// way to exercise both verdicts.
const minBottleDim = 32

type Handlers struct {
	store           *Store
	auth            *Auth
	hub             *Hub
	pointsPerBottle int
	upgrader        websocket.Upgrader
}

func NewHandlers(store *Store, auth *Auth, hub *Hub, pointsPerBottle int) *Handlers {
	return &Handlers{
		store:           store,
		auth:            auth,
		hub:             hub,
		pointsPerBottle: pointsPerBottle,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	u, ok := h.store.Authenticate(req.Name, req.Password)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}

	token, err := h.auth.Issue(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "token signing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"user":         publicUser(u),
	})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	u, ok := h.store.UserByID(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}

	writeJSON(w, http.StatusOK, publicUser(u))
}

func (h *Handlers) ValidateQR(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "reason": "missing token"})
		return
	}

	valid, reason := h.store.ValidateBinToken(token)
	body := map[string]interface{}{"valid": valid}
	if reason != "" {
		body["reason"] = reason
	}
	writeJSON(w, http.StatusOK, body)
}

// Scan classifies the uploaded still and awards points. The verdict is a
// fixture: decodable images of bottle-plausible size pass, everything else
// is "not a bottle". The same result is also pushed over the notification
// stream, so clients see the HTTP and push copies race like in production.
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "missing image field")
		return
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	result := map[string]interface{}{
		"is_valid":       false,
		"points_awarded": 0,
	}

	switch {
	case err != nil:
		result["reason"] = "not a bottle image"
	case cfg.Width < minBottleDim || cfg.Height < minBottleDim:
		result["reason"] = "not a bottle"
	default:
		total, ok := h.store.Award(userID, h.pointsPerBottle)
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "user not found")
			return
		}
		result["is_valid"] = true
		result["points_awarded"] = h.pointsPerBottle
		result["total_points"] = total
		result["label"] = "plastic_bottle"
		result["confidence"] = 0.97
	}

	go h.hub.Push(userID, "scan_result", result)

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	total, scans, ok := h.store.Summary(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_points": total,
		"scan_count":   scans,
	})
}

// Notifications upgrades to the per-user push stream. The path user id must
// match the authenticated user.
func (h *Handlers) Notifications(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	if pathID := chi.URLParam(r, "userID"); pathID != userID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "stream belongs to another user")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("binsim: websocket upgrade failed", "error", err)
		return
	}

	h.hub.Register(userID, conn)
	defer func() {
		h.hub.Unregister(userID, conn)
		_ = conn.Close()
	}()

	// Drain client frames until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func publicUser(u *User) map[string]interface{} {
	return map[string]interface{}{
		"id":     u.ID,
		"name":   u.Name,
		"role":   u.Role,
		"points": u.Points,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}
