package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/moodtunes/internal/auth"
	"github.com/justestif/moodtunes/internal/catalog"
	"github.com/justestif/moodtunes/internal/chat"
	"github.com/justestif/moodtunes/internal/history"
	"github.com/justestif/moodtunes/internal/session"
)

const (
	stateCookieName = "oauth_state"
	maxBodyBytes    = 1 << 20
	defaultHistory  = 50
	maxHistory      = 200

	msgAuthRequired = "Authentication required"
	msgInternal     = "Something went wrong with your request. Please try again."
)

// ChatService is the chat pipeline used by the handlers.
type ChatService interface {
	HandleMessage(ctx context.Context, sessionID, text string) (chat.Result, error)
	SavePlaylist(ctx context.Context, sessionID, name string, uris []string) (catalog.Playlist, error)
	History(ctx context.Context, sessionID string, n int) ([]history.Message, error)
	EndSession(ctx context.Context, sessionID string) error
}

// Sessions opens and validates session credentials.
type Sessions interface {
	Open(ctx context.Context, c session.Credential) error
	EnsureValid(ctx context.Context, id string) (session.Credential, error)
}

// Authenticator runs the OAuth login flow.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, state string, r *http.Request) (*oauth2.Token, error)
}

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	auth        Authenticator
	sessions    Sessions
	provider    chat.CatalogProvider
	chat        ChatService
	frontendURL string
	now         func() time.Time
	logger      *zap.Logger
}

// HandlersConfig holds the dependencies of Handlers.
type HandlersConfig struct {
	Auth        Authenticator
	Sessions    Sessions
	Provider    chat.CatalogProvider
	Chat        ChatService
	FrontendURL string
	Logger      *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg HandlersConfig) *Handlers {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		auth:        cfg.Auth,
		sessions:    cfg.Sessions,
		provider:    cfg.Provider,
		chat:        cfg.Chat,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		now:         time.Now,
		logger:      logger,
	}
}

// ============================================================================
// Auth
// ============================================================================

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate oauth state", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback completes the OAuth flow (GET /callback), opens a session and
// hands its ID to the front end.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing state cookie")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	token, err := h.auth.Exchange(r.Context(), stateCookie.Value, r)
	if err != nil {
		h.logger.Warn("oauth exchange failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Authentication failed")
		return
	}

	user, err := h.provider.Catalog(token.AccessToken).CurrentUser(r.Context())
	if err != nil {
		h.logger.Error("failed to get current user", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to get user info")
		return
	}

	id, err := h.open(r.Context(), user.ID, token)
	if err != nil {
		h.logger.Error("failed to open session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	h.logger.Info("listener logged in",
		zap.String("session_id", id),
		zap.String("user_id", user.ID))

	target := h.frontendURL + "/?" + url.Values{"sessionId": {id}}.Encode()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func (h *Handlers) open(ctx context.Context, userID string, token *oauth2.Token) (string, error) {
	id, err := session.NewID()
	if err != nil {
		return "", err
	}
	if err := h.sessions.Open(ctx, session.FromToken(id, userID, token, h.now())); err != nil {
		return "", err
	}
	return id, nil
}

// ============================================================================
// Session
// ============================================================================

type verifyRequest struct {
	SessionID    string `json:"sessionId"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type verifyResponse struct {
	Valid     bool   `json:"valid"`
	SessionID string `json:"sessionId,omitempty"`
	IsNew     bool   `json:"isNew,omitempty"`
	Error     string `json:"error,omitempty"`
}

// VerifySession checks a session (POST /api/session/verify). When the
// session is unusable and the body carries a token pair, a new session is
// opened for it.
func (h *Handlers) VerifySession(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.SessionID != "" {
		_, err := h.sessions.EnsureValid(r.Context(), req.SessionID)
		if err == nil {
			writeJSON(w, http.StatusOK, verifyResponse{Valid: true, SessionID: req.SessionID})
			return
		}
		if !isAuthError(err) {
			h.logger.Error("session validation failed", zap.String("session_id", req.SessionID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, verifyResponse{Error: msgInternal})
			return
		}
	}

	if req.Token != "" {
		id, err := h.open(r.Context(), "", &oauth2.Token{AccessToken: req.Token, RefreshToken: req.RefreshToken})
		if err != nil {
			h.logger.Error("failed to open session", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, verifyResponse{Error: msgInternal})
			return
		}
		writeJSON(w, http.StatusOK, verifyResponse{Valid: true, SessionID: id, IsNew: true})
		return
	}

	writeJSON(w, http.StatusUnauthorized, verifyResponse{Error: msgAuthRequired})
}

// History returns a session's recent messages (GET /api/session/{id}/history).
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	limit := defaultHistory
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxHistory)
	}

	msgs, err := h.chat.History(r.Context(), id, limit)
	if err != nil {
		h.fail(w, id, "history", err)
		return
	}
	if msgs == nil {
		msgs = []history.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "messages": msgs})
}

// EndSession deletes a session (DELETE /api/session/{id}).
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.chat.EndSession(r.Context(), id); err != nil {
		h.fail(w, id, "end session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ============================================================================
// Chat
// ============================================================================

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type rejectedResponse struct {
	Reply    string          `json:"response"`
	Rejected bool            `json:"rejected"`
	Tracks   []catalog.Track `json:"tracks"`
}

// Chat answers a message with a reply and tracks (POST /api/chat).
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusUnauthorized, msgAuthRequired)
		return
	}

	result, err := h.chat.HandleMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		var toxic *chat.ToxicContentError
		switch {
		case errors.As(err, &toxic):
			writeJSON(w, http.StatusOK, rejectedResponse{Reply: toxic.Reply, Rejected: true, Tracks: []catalog.Track{}})
		case errors.Is(err, chat.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "Message is required")
		default:
			h.fail(w, req.SessionID, "chat", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type playlistRequest struct {
	Name      string   `json:"name"`
	TrackURIs []string `json:"trackUris"`
	SessionID string   `json:"sessionId"`
}

type playlistResponse struct {
	Success  bool             `json:"success"`
	Playlist catalog.Playlist `json:"playlist"`
}

// CreatePlaylist saves tracks as a playlist (POST /api/playlist).
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusUnauthorized, msgAuthRequired)
		return
	}

	pl, err := h.chat.SavePlaylist(r.Context(), req.SessionID, req.Name, req.TrackURIs)
	if err != nil {
		if errors.Is(err, chat.ErrNoTracks) {
			writeError(w, http.StatusBadRequest, "trackUris is required")
			return
		}
		h.fail(w, req.SessionID, "create playlist", err)
		return
	}
	writeJSON(w, http.StatusCreated, playlistResponse{Success: true, Playlist: pl})
}

// ============================================================================
// Helpers
// ============================================================================

// isAuthError reports whether err means the listener must log in again.
func isAuthError(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrRefreshFailed) ||
		errors.Is(err, catalog.ErrUnauthorized)
}

func (h *Handlers) fail(w http.ResponseWriter, sessionID, op string, err error) {
	if isAuthError(err) {
		h.logger.Info("request not authorized",
			zap.String("session_id", sessionID),
			zap.String("op", op),
			zap.Error(err))
		writeError(w, http.StatusUnauthorized, msgAuthRequired)
		return
	}
	h.logger.Error("request failed",
		zap.String("session_id", sessionID),
		zap.String("op", op),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, msgInternal)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
