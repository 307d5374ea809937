package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"encore/internal/registry"
	"encore/internal/reviews"
	"encore/internal/token"
	"encore/pkg/types"
)

// RoomStats is the slice of the chat gateway the API reads for reporting.
type RoomStats interface {
	Count(roomKey string) int
	Stats() map[string]int
}

// Server is the HTTP boundary. No business logic lives here: handlers
// decode, delegate, and map error kinds to status codes. The kind-to-status
// mapping exists only in this package.
type Server struct {
	registry *registry.Manager
	ledger   *reviews.Ledger
	issuer   *token.Issuer
	rooms    RoomStats
	router   *http.ServeMux
}

// NewServer creates the API server with all business dependencies.
func NewServer(reg *registry.Manager, ledger *reviews.Ledger, issuer *token.Issuer, rooms RoomStats) *Server {
	s := &Server{
		registry: reg,
		ledger:   ledger,
		issuer:   issuer,
		rooms:    rooms,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionSubtree))))
	s.router.Handle("/api/reviews/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleReviewByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// statusForKind is the single place error kinds become HTTP statuses.
func statusForKind(kind types.Kind) int {
	switch kind {
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindInvalidArgument:
		return http.StatusBadRequest
	case types.KindInvalidStateTransition, types.KindCapacityExceeded:
		return http.StatusConflict
	case types.KindPermissionDenied:
		return http.StatusForbidden
	case types.KindConfigurationError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleSessions covers the collection: POST creates, GET lists (optionally
// filtered by creator_id).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodGet:
		if creatorID := r.URL.Query().Get("creator_id"); creatorID != "" {
			s.listByCreator(w, r, creatorID)
			return
		}
		s.listSessions(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionSubtree dispatches /api/sessions/{...} paths: the reserved
// collection views (live, upcoming, stats), a single session, and the
// per-session actions (start, end, join, leave, token, reviews).
func (s *Server) handleSessionSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if path == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) == 1 {
		switch segments[0] {
		case "live":
			s.listLive(w, r)
			return
		case "upcoming":
			s.listUpcoming(w, r)
			return
		case "stats":
			s.sessionStats(w, r)
			return
		}
		s.handleSessionByID(w, r, segments[0])
		return
	}

	if len(segments) == 2 {
		sessionID := segments[0]
		switch segments[1] {
		case "start", "end", "join", "leave":
			s.handleLifecycleAction(w, r, sessionID, segments[1])
			return
		case "token":
			s.issueCredential(w, r, sessionID)
			return
		case "reviews":
			s.handleSessionReviews(w, r, sessionID)
			return
		}
	}

	s.sendError(w, "Not found", http.StatusNotFound)
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		s.getSession(w, r, sessionID)
	case http.MethodPatch, http.MethodPut:
		s.updateSession(w, r, sessionID)
	case http.MethodDelete:
		s.removeSession(w, r, sessionID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var in types.CreateSessionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	session, err := s.registry.Create(r.Context(), &in)
	if err != nil {
		s.sendTaggedError(w, err)
		return
	}

	s.sendJSON(w, http.StatusCreated, map[string]interface{}{"session": session})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.registry.ListAll(r.Context())
	if err != nil {
		s.sendTaggedError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) listLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.registry.ListLive(r.Context())
	if err != nil {
		s.sendTaggedError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) listUpcoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.registry.ListUpcoming(r.Context())
	if err != nil {
		s.sendTaggedError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) listByCreator(w http.ResponseWriter, r *http.Request, creatorID string) {
	sessions, err := s.registry.ListByCreator(r.Context(), creatorID)
	if err != nil {
		s.sendTaggedError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) sessionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.registry.Stats(r.Context())
	if err != nil {
		s.sendTaggedError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"sessions":   stats,
		"chat_rooms": s.rooms.Stats(),
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := s.registry.Get(r.Context(), sessionID)
	if err != nil {
		s.sendTaggedError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"session":         session,
		"chat_room_count": s.rooms.Count(sessionID),
	})
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var patch types.SessionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	session, err := s.registry.Update(r.Context(), sessionID, &patch)
	if err != nil {
		s.sendTaggedError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

func (s *Server) removeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := s.registry.Remove(r.Context(), sessionID); err != nil {
		s.sendTaggedError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"deleted": sessionID})
}

func (s *Server) handleLifecycleAction(w http.ResponseWriter, r *http.Request, sessionID, action string) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var session *types.Session
	var err error
	switch action {
	case "start":
		session, err = s.registry.Start(r.Context(), sessionID)
	case "end":
		session, err = s.registry.End(r.Context(), sessionID)
	case "join":
		session, err = s.registry.Join(r.Context(), sessionID)
	case "leave":
		session, err = s.registry.Leave(r.Context(), sessionID)
	}
	if err != nil {
		s.sendTaggedError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

type issueCredentialRequest struct {
	Role string `json:"role"`
}

func (s *Server) issueCredential(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req issueCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = types.RoleAudience
	}

	credential, err := s.issuer.IssueForSession(r.Context(), sessionID, req.Role)
	if err != nil {
		s.sendTaggedError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, credential)
}

func (s *Server) handleSessionReviews(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodPost:
		var in types.CreateReviewInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		review, err := s.ledger.Create(r.Context(), sessionID, &in)
		if err != nil {
			s.sendTaggedError(w, err)
			return
		}
		s.sendJSON(w, http.StatusCreated, map[string]interface{}{"review": review})
	case http.MethodGet:
		list, err := s.ledger.ListForSession(r.Context(), sessionID)
		if err != nil {
			s.sendTaggedError(w, err)
			return
		}
		s.sendJSON(w, http.StatusOK, map[string]interface{}{"reviews": list})
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReviewByID(w http.ResponseWriter, r *http.Request) {
	reviewID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/reviews/"), "/")
	if reviewID == "" {
		s.sendError(w, "Review ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		studentID := r.URL.Query().Get("student_id")
		if studentID == "" {
			s.sendError(w, "student_id query parameter required", http.StatusBadRequest)
			return
		}
		if err := s.ledger.Delete(r.Context(), reviewID, studentID); err != nil {
			s.sendTaggedError(w, err)
			return
		}
		s.sendJSON(w, http.StatusOK, map[string]interface{}{"deleted": reviewID})
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, status, map[string]interface{}{"error": message})
}

// sendTaggedError maps a core error onto the wire.
func (s *Server) sendTaggedError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	if kind == types.KindUnexpected {
		log.Printf("Unexpected error: %v", err)
		s.sendJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "internal error",
			"kind":  kind.String(),
		})
		return
	}
	s.sendJSON(w, statusForKind(kind), map[string]interface{}{
		"error": err.Error(),
		"kind":  kind.String(),
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
