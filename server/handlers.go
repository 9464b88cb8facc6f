// Package server exposes the messaging layer over HTTP: a websocket
// endpoint for live channel subscriptions and a request/response API
// for authentication, history snapshots, and social-graph mutations.
package server

import (
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/gorilla/websocket"
)

type Server struct {
	log      *slog.Logger
	auth     services.IAuthService
	chat     services.IChatService
	rooms    services.IRoomService
	friends  services.IFriendService
	users    repositories.IUserIndex
	monitor  *observability.Monitor
	upgrader websocket.Upgrader
}

func New(log *slog.Logger,
	authService services.IAuthService,
	chatService services.IChatService,
	roomService services.IRoomService,
	friendService services.IFriendService,
	userIndex repositories.IUserIndex,
	monitor *observability.Monitor) *Server {
	return &Server{
		log:      log,
		auth:     authService,
		chat:     chatService,
		rooms:    roomService,
		friends:  friendService,
		users:    userIndex,
		monitor:  monitor,
		upgrader: defaultUpgrader,
	}
}

// Routes builds the full HTTP surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /rooms", s.handleListRooms)
	mux.HandleFunc("POST /rooms/{id}/invite", s.handleInvite)
	mux.HandleFunc("GET /friends", s.handleListFriends)
	mux.HandleFunc("GET /friends/pending", s.handlePendingRequests)
	mux.HandleFunc("POST /friends/requests", s.handleSendRequest)
	mux.HandleFunc("POST /friends/requests/{id}/respond", s.handleRespond)
	mux.HandleFunc("GET /users/search", s.handleSearchUsers)
	if s.monitor != nil {
		mux.HandleFunc("GET /stats", s.handleStats)
	}
	return mux
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.Latest())
}

// identify extracts the authenticated user from the Authorization
// bearer header, falling back to the token query parameter used by
// websocket clients.
func (s *Server) identify(r *http.Request) (*auth.CustomClaims, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, errors.ErrUnauthorized
	}
	return auth.ValidateToken(token)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	token, err := s.auth.Register(req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"token": string(token)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": string(token)})
}

// handleHistory serves the snapshot a client fetches once per channel
// open, ascending by sequence.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims, err := s.identify(r)
	if err != nil {
		s.writeError(w, errors.ErrUnauthorized)
		return
	}
	ch, err := domain.ParseChannel(r.URL.Query().Get("channel"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	messages, err := s.chat.History(ch, claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	claims, err := s.identify(r)
	if err != nil {
		s.writeError(w, errors.ErrUnauthorized)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	room, err := s.rooms.CreateRoom(r.Context(), req.Name, claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, room)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	claims, err := s.identify(r)
	if err != nil {
		s.writeError(w, errors.ErrUnauthorized)
		return
	}
	rooms, err := s.rooms.RoomsFor(claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	s.writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	claims, err := s.identify(r)
	if err != nil {
		s.writeError(w, errors.ErrUnauthorized)
		return
	}
	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	room, err := s.rooms.Invite(r.Context(), domain.RoomID(r.PathValue("id")), claims.UserID, req.UserIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	claims, err := s.identify(r)
	if err != nil {
		s.writeError(w, errors.ErrUnauthorized)
		return
	}
	friends, err := s.friends.Friends(claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if friends == nil {
		friends = []string{}
	}
	s.writeJSON(w, http.StatusOK, friends)
}

func (s *Server) handlePendingRequests(w http.ResponseWriter, r *http.Request) {
	claims, err := s.identify(r)
	if err != nil {
		s.writeError(w, errors.ErrUnauthorized)
		return
	}
	pending, err := s.friends.Pending(claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if pending == nil {
		pending = []domain.FriendRequest{}
	}
	s.writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	claims, err := s.identify(r)
	if err != nil {
		s.writeError(w, errors.ErrUnauthorized)
		return
	}
	var req struct {
		ToUser string `json:"to_user"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	request, err := s.friends.Send(r.Context(), claims.UserID, req.ToUser)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, request)
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	claims, err := s.identify(r)
	if err != nil {
		s.writeError(w, errors.ErrUnauthorized)
		return
	}
	var req struct {
		Decision string `json:"decision"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	decision := domain.DecisionDecline
	if req.Decision == string(domain.DecisionAccept) {
		decision = domain.DecisionAccept
	}
	request, err := s.friends.Respond(r.Context(), r.PathValue("id"), claims.UserID, decision)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, request)
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	claims, err := s.identify(r)
	if err != nil {
		s.writeError(w, errors.ErrUnauthorized)
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 50 {
			limit = parsed
		}
	}
	users, err := s.users.Search(r.Context(), r.URL.Query().Get("q"), claims.UserID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy to HTTP statuses. Validation
// errors are reported once; nothing here is retried automatically.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case goerrors.Is(err, errors.ErrUnauthorized), goerrors.Is(err, errors.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case goerrors.Is(err, errors.ErrForbidden), goerrors.Is(err, errors.ErrNotAMember):
		status = http.StatusForbidden
	case goerrors.Is(err, errors.ErrRoomNotFound),
		goerrors.Is(err, errors.ErrRequestNotFound),
		goerrors.Is(err, errors.ErrUserNotFound):
		status = http.StatusNotFound
	case goerrors.Is(err, errors.ErrDuplicateRequest),
		goerrors.Is(err, errors.ErrUserAlreadyExists),
		goerrors.Is(err, errors.ErrNotPending):
		status = http.StatusConflict
	case goerrors.Is(err, errors.ErrInvalidName),
		goerrors.Is(err, errors.ErrSelfRequest),
		goerrors.Is(err, errors.ErrInvalidPassword):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("internal error", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
