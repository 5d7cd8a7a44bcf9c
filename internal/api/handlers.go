package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatherly/gatherly/internal/database"
	"github.com/gatherly/gatherly/internal/server"
	"github.com/gatherly/gatherly/internal/types"
)

const defaultMessageLimit = 50

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Id    int    `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type CreateMessageRequest struct {
	Content string `json:"content"`
}

type CreatePostRequest struct {
	Content string `json:"content"`
}

type JoinEventRequest struct {
	Status string `json:"status"`
}

// ParticipationListResponse carries an event's roster along with how full
// the event is, so clients can render remaining capacity.
type ParticipationListResponse struct {
	EventId        int                   `json:"event_id"`
	Capacity       int                   `json:"capacity"`
	Attending      int                   `json:"attending"`
	Participations []types.Participation `json:"participations"`
}

func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func pathId(r *http.Request, name string) (int, error) {
	return strconv.Atoi(r.PathValue(name))
}

// resolveTopic fetches the group and event from the path and verifies the
// event belongs to the group. A mismatched pair is indistinguishable from a
// missing one.
func (s *App) resolveTopic(w http.ResponseWriter, r *http.Request) (database.Group, database.Event, bool) {
	groupId, err := pathId(r, "group_id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Group{}, database.Event{}, false
	}

	eventId, err := pathId(r, "event_id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Group{}, database.Event{}, false
	}

	group, err := s.db.GetGroup(groupId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Group{}, database.Event{}, false
	}

	event, err := s.db.GetEvent(eventId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Group{}, database.Event{}, false
	}

	if event.GroupId != group.Id {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Group{}, database.Event{}, false
	}

	return group, event, true
}

func (s *App) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *App) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	credential, err := s.tokens.Encode(dbUser.Id, s.tokenTTL)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, LoginResponse{
		Id:    dbUser.Id,
		Email: dbUser.EmailAddress,
		Token: credential,
	})
}

// logout revokes the presented credential. The credential stays invalid for
// its remaining lifetime even though it is self-contained.
func (s *App) logout(w http.ResponseWriter, r *http.Request) {
	credential, ok := credentialFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.revocations.Revoke(r.Context(), credential); err != nil {
		s.log.Printf("revoke credential: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *App) session(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.User{
		Id:           user.Id,
		EmailAddress: user.EmailAddress,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	})
}

func (s *App) getMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, event, ok := s.resolveTopic(w, r)
	if !ok {
		return
	}

	allowed, err := s.authz.CanAccessChat(user.Id, group.Id, event.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !allowed {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit := defaultMessageLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.db.ListMessages(group.Id, event.Id, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	payloads := make([]*types.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		payloads = append(payloads, types.NewMessagePayload(msg, msg.Username))
	}

	s.writeJson(w, http.StatusOK, payloads)
}

// createMessage persists a message over REST and fans it out to any live
// websocket subscribers of the same topic.
func (s *App) createMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, event, ok := s.resolveTopic(w, r)
	if !ok {
		return
	}

	allowed, err := s.authz.CanAccessChat(user.Id, group.Id, event.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !allowed {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		errResp := NewUnprocessableError("Content can't be blank")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbMsg, err := s.db.CreateMessage(database.CreateMessageParams{
		GroupId: group.Id,
		EventId: event.Id,
		UserId:  user.Id,
		Content: content,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	username, err := s.db.GetDisplayName(user.Id)
	if err != nil {
		s.log.Printf("resolve display name for user %d: %v", user.Id, err)
		username = user.EmailAddress
	}

	payload := types.NewMessagePayload(dbMsg, username)
	s.cs.Publish(server.TopicKey{GroupId: group.Id, EventId: event.Id}, payload)

	s.writeJson(w, http.StatusCreated, payload)
}

func (s *App) getPosts(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, event, ok := s.resolveTopic(w, r)
	if !ok {
		return
	}

	allowed, err := s.authz.CanAccessPosts(user.Id, group.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !allowed {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	posts, err := s.db.ListPosts(group.Id, event.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	payloads := make([]*types.PostPayload, 0, len(posts))
	for _, post := range posts {
		payloads = append(payloads, types.NewPostPayload(post, post.Username))
	}

	s.writeJson(w, http.StatusOK, payloads)
}

func (s *App) createPost(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, event, ok := s.resolveTopic(w, r)
	if !ok {
		return
	}

	allowed, err := s.authz.CanAccessPosts(user.Id, group.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !allowed {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		errResp := NewUnprocessableError("Content can't be blank")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbPost, err := s.db.CreatePost(database.CreatePostParams{
		GroupId: group.Id,
		EventId: event.Id,
		UserId:  user.Id,
		Content: content,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	username, err := s.db.GetDisplayName(user.Id)
	if err != nil {
		s.log.Printf("resolve display name for user %d: %v", user.Id, err)
		username = user.EmailAddress
	}

	s.writeJson(w, http.StatusCreated, types.NewPostPayload(dbPost, username))
}

func (s *App) listParticipations(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	eventId, err := pathId(r, "event_id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	event, err := s.db.GetEvent(eventId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := s.authz.IsGroupMember(user.Id, event.GroupId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !member {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participations, err := s.db.ListParticipations(event.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	attending, err := s.db.CountAttending(event.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	payloads := make([]types.Participation, 0, len(participations))
	for _, p := range participations {
		payloads = append(payloads, types.NewParticipationPayload(p))
	}

	s.writeJson(w, http.StatusOK, ParticipationListResponse{
		EventId:        event.Id,
		Capacity:       event.Capacity,
		Attending:      attending,
		Participations: payloads,
	})
}

// joinEvent creates a participation. The capacity check and the insert run
// atomically in the store, so concurrent joins cannot oversubscribe an
// event.
func (s *App) joinEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	eventId, err := pathId(r, "event_id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	event, err := s.db.GetEvent(eventId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := s.authz.IsGroupMember(user.Id, event.GroupId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !member {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req JoinEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	status := req.Status
	if status == "" {
		status = database.StatusAttending
	}
	if !database.ValidStatus(status) {
		errResp := NewUnprocessableError("Status is not included in the list")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participation, err := s.db.CreateParticipation(user.Id, event.Id, status)
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, database.ErrEventAtCapacity):
			errResp = NewUnprocessableError("Event is at capacity")
		case errors.Is(err, database.ErrAlreadyJoined):
			errResp = NewUnprocessableError("User has already joined this event")
		default:
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.NewParticipationPayload(participation))
}

func (s *App) leaveEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	eventId, err := pathId(r, "event_id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteParticipation(user.Id, eventId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sessionId, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.cs, user, sessionId, s.log)
	s.cs.RegisterClient(client)
	go client.WritePump()
	go client.ReadPump()
}
