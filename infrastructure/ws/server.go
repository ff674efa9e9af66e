package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"lanshare/auth"
	"lanshare/domain"
	"lanshare/errors"
	"lanshare/repositories"
	"lanshare/services"
)

type contextKey string

const identityKey contextKey = "identity"

// Server is the HTTP boundary: login, the websocket endpoint, and the
// request/response operations that don't need a live socket.
type Server struct {
	chat    services.IChatService
	groups  services.IGroupService
	tokens  *auth.TokenManager
	log     *slog.Logger
	msgRate float64
	burst   int

	upgrader websocket.Upgrader
}

func NewServer(chat services.IChatService, groups services.IGroupService,
	tokens *auth.TokenManager, msgRate float64, burst int, log *slog.Logger) *Server {
	return &Server{
		chat:    chat,
		groups:  groups,
		tokens:  tokens,
		log:     log,
		msgRate: msgRate,
		burst:   burst,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// LAN deployment, same-origin enforcement is not useful here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/users", s.handleUsers).Methods(http.MethodGet)
	api.HandleFunc("/online", s.handleOnline).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}", s.handleDeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/files/{id}", s.handleDeleteFile).Methods(http.MethodDelete)

	api.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups", s.handleListGroups).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}", s.handleGroupInfo).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}", s.handleUpdateGroup).Methods(http.MethodPut)
	api.HandleFunc("/groups/{id}", s.handleDeleteGroup).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id}/members", s.handleSetMembers).Methods(http.MethodPut)
	api.HandleFunc("/groups/{id}/members/{identity}", s.handleAddMember).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}/members/{identity}", s.handleRemoveMember).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id}/admins/{identity}", s.handleSetAdmin).Methods(http.MethodPut)
	api.HandleFunc("/groups/{id}/leave", s.handleLeaveGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}/admin-only", s.handleSetAdminOnly).Methods(http.MethodPut)
	api.HandleFunc("/groups/{id}/mute", s.handleMute).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}/mute", s.handleUnmute).Methods(http.MethodDelete)
	return r
}

// authMiddleware accepts the session token either as a Bearer header or
// a token query parameter. Browsers cannot set headers on websocket
// upgrades, hence the query fallback.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		claims, err := s.tokens.Validate(token)
		if err != nil {
			s.writeError(w, errors.ErrUnauthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, claims.Identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) string {
	identity, _ := r.Context().Value(identityKey).(string)
	return identity
}

// resolveRoomScope maps a caller-supplied room token to a room the
// caller may read: the public room, a group room, or their own personal
// room. Another identity's personal room holds direct messages the
// caller is not part of and is refused.
func resolveRoomScope(identity, token string) (domain.RoomToken, error) {
	if token == "" {
		return "", nil
	}
	dest, err := domain.ParseDestination(token)
	if err != nil {
		return "", err
	}
	if dest.Kind == domain.DestinationDirect && dest.Identity != identity {
		return "", errors.ErrAccessDenied
	}
	return dest.Room(), nil
}

type loginRequest struct {
	Identity string `json:"identity"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ErrInvalidInput)
		return
	}
	if err := auth.ValidateLogin(auth.LoginRequest{Identity: req.Identity}); err != nil {
		s.writeError(w, err)
		return
	}
	token, err := s.tokens.Generate(req.Identity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{Token: token, Identity: req.Identity})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "identity", identity, "error", err)
		return
	}
	c := NewConnection(conn, identity, s.chat, s.msgRate, s.burst, s.log)
	// Run blocks for the lifetime of the socket; the HTTP handler
	// goroutine is exactly that lifetime.
	c.Run(r.Context())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	q := r.URL.Query()
	room, err := resolveRoomScope(identity, q.Get("room"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	filter := repositories.HistoryFilter{
		Self: q.Get("self") == "1",
		Peer: q.Get("peer"),
		Room: room,
	}
	messages, err := s.chat.History(identity, filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	identities, err := s.chat.ListIdentities()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, identities)
}

func (s *Server) handleOnline(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.chat.ListOnline())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	room, err := resolveRoomScope(identityFrom(r), q.Get("room"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	hits, err := s.chat.Search(r.Context(), string(room), q.Get("q"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, errors.ErrInvalidInput)
		return
	}
	if err := s.chat.DeleteMessage(r.Context(), identityFrom(r), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.DeleteFile(r.Context(), identityFrom(r), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Members     []string `json:"members"`
	Admins      []string `json:"admins"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ErrInvalidInput)
		return
	}
	group, err := s.groups.Create(identityFrom(r), req.Name, req.Description, req.Icon, req.Members, req.Admins)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.List(identityFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleGroupInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.groups.Info(mux.Vars(r)["id"], identityFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

type updateGroupRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req updateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ErrInvalidInput)
		return
	}
	if err := s.groups.UpdateInfo(mux.Vars(r)["id"], identityFrom(r), req.Name, req.Description, req.Icon); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.Delete(mux.Vars(r)["id"], identityFrom(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setMembersRequest struct {
	Members []string `json:"members"`
	Admins  []string `json:"admins"`
}

func (s *Server) handleSetMembers(w http.ResponseWriter, r *http.Request) {
	var req setMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ErrInvalidInput)
		return
	}
	if err := s.groups.SetMembersAndAdmins(mux.Vars(r)["id"], identityFrom(r), req.Members, req.Admins); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.groups.AddMember(vars["id"], identityFrom(r), vars["identity"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.groups.RemoveMember(vars["id"], identityFrom(r), vars["identity"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setAdminRequest struct {
	IsAdmin bool `json:"is_admin"`
}

func (s *Server) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	var req setAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ErrInvalidInput)
		return
	}
	vars := mux.Vars(r)
	if err := s.groups.SetAdmin(vars["id"], identityFrom(r), vars["identity"], req.IsAdmin); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.Leave(mux.Vars(r)["id"], identityFrom(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adminOnlyRequest struct {
	AdminOnly bool `json:"admin_only"`
}

func (s *Server) handleSetAdminOnly(w http.ResponseWriter, r *http.Request) {
	var req adminOnlyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ErrInvalidInput)
		return
	}
	if err := s.groups.SetAdminOnly(mux.Vars(r)["id"], identityFrom(r), req.AdminOnly); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.Mute(mux.Vars(r)["id"], identityFrom(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnmute(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.Unmute(mux.Vars(r)["id"], identityFrom(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.Code(err)
	status := map[string]int{
		"unauthenticated": http.StatusUnauthorized,
		"access_denied":   http.StatusForbidden,
		"not_found":       http.StatusNotFound,
		"last_admin":      http.StatusConflict,
		"invalid_input":   http.StatusBadRequest,
	}[code]
	if status == 0 {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, errorResponse{Code: code, Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to encode response", "error", err)
	}
}
