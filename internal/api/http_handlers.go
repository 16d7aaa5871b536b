package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	authapp "gridmud-server/internal/app/auth"
	charapp "gridmud-server/internal/app/character"
	eventsapp "gridmud-server/internal/app/events"
	invapp "gridmud-server/internal/app/inventory"
	"gridmud-server/internal/app/projector"
	"gridmud-server/internal/app/relay"
	"gridmud-server/internal/app/session"
	"gridmud-server/internal/store"
)

type Handler struct {
	logger      zerolog.Logger
	auth        *authapp.Service
	characters  *charapp.Service
	store       *store.Store
	hub         *relay.Hub
	inventory   *invapp.Service
	eventLog    *eventsapp.Log
	corsOrigin  string
	maxBodySize int64
}

type contextKey string

const userIDContextKey contextKey = "user_id"

func NewHandler(logger zerolog.Logger, auth *authapp.Service, characters *charapp.Service, st *store.Store, hub *relay.Hub, inv *invapp.Service, eventLog *eventsapp.Log, corsOrigin string, maxBodySize int64) *Handler {
	return &Handler{
		logger:      logger,
		auth:        auth,
		characters:  characters,
		store:       st,
		hub:         hub,
		inventory:   inv,
		eventLog:    eventLog,
		corsOrigin:  corsOrigin,
		maxBodySize: maxBodySize,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.cors)

	r.Get("/healthz", h.health)
	r.Get("/readyz", h.ready)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/auth/register", h.register)
		v1.Post("/auth/login", h.login)
		v1.Get("/game/ws", h.gameWS)

		v1.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Get("/characters", h.listCharacters)
			protected.Post("/characters", h.createCharacter)
			protected.Get("/characters/{characterID}", h.getCharacter)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	res, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authapp.ErrEmailInUse):
			writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
		case errors.Is(err, authapp.ErrInvalidEmail), errors.Is(err, authapp.ErrWeakPassword):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		default:
			h.logger.Error().Err(err).Msg("register failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listCharacters(w http.ResponseWriter, r *http.Request) {
	uid, ok := userIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	chars, err := h.characters.ListByUser(r.Context(), uid)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", uid.String()).Msg("list characters failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": chars})
}

func (h *Handler) createCharacter(w http.ResponseWriter, r *http.Request) {
	uid, ok := userIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	var req struct {
		Name   string `json:"name"`
		Class  string `json:"class"`
		Race   string `json:"race"`
		Gender string `json:"gender"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	c, err := h.characters.Create(r.Context(), uid, req.Name, req.Class, req.Race, req.Gender)
	if err != nil {
		if errors.Is(err, charapp.ErrInvalidName) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		h.logger.Error().Err(err).Msg("create character failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) getCharacter(w http.ResponseWriter, r *http.Request) {
	uid, ok := userIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	cid, err := uuid.Parse(chi.URLParam(r, "characterID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid character id"})
		return
	}
	c, err := h.characters.GetByIDForUser(r.Context(), uid, cid)
	if err != nil {
		switch {
		case errors.Is(err, charapp.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "character not found"})
		case errors.Is(err, charapp.ErrForbidden):
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "forbidden"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, c)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// gameWS authenticates, upgrades, and runs one play session for the
// duration of the connection. The session owns all game state; the pumps
// only shuttle frames.
func (h *Handler) gameWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing token"})
		return
	}
	uid, err := h.auth.ParseToken(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid token"})
		return
	}
	cid, err := uuid.Parse(r.URL.Query().Get("character_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid character_id"})
		return
	}
	char, err := h.characters.GetByIDForUser(r.Context(), uid, cid)
	if err != nil {
		switch {
		case errors.Is(err, charapp.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "character not found"})
		case errors.Is(err, charapp.ErrForbidden):
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "forbidden"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.hub.Register(char.Name, char.CharacterID)
	proj := projector.New(char.CharacterID, h.store, h.store, h.logger)
	sess, err := session.New(h.logger, h.store, h.inventory, h.hub, proj, h.eventLog, char, client)
	if err != nil {
		h.logger.Error().Err(err).Str("character", char.Name).Msg("session setup failed")
		h.hub.Unregister(client)
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()
	go h.writePump(conn, sess)

	h.readPump(ctx, conn, sess)
	cancel()
	<-done
	_ = conn.Close()
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	conn.SetReadLimit(2048)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "command":
			if err := sess.HandleInput(ctx, msg.Text); err != nil {
				return
			}
		default:
			h.logger.Debug().Str("type", msg.Type).Msg("ignoring unknown client frame")
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sess *session.Session) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-sess.Out():
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing bearer token"})
			return
		}
		uid, err := h.auth.ParseToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid token"})
			return
		}
		ctx := context.WithValue(r.Context(), userIDContextKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(userIDContextKey)
	uid, ok := v.(uuid.UUID)
	return uid, ok
}

func (h *Handler) cors(next http.Handler) http.Handler {
	origin := h.corsOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
