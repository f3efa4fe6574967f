package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/adapta/internal/chat"
	"github.com/MikeSquared-Agency/adapta/internal/inference"
	"github.com/MikeSquared-Agency/adapta/internal/store"
)

const previewLimit = 100

const (
	msgServiceError = "The climate service is temporarily unavailable. Please try again later."
	msgUnreachable  = "Could not connect to the climate service. Check that it is running."
)

type askRequest struct {
	Question       string  `json:"question" validate:"required,min=3,max=1000"`
	ConversationID *string `json:"conversation_id" validate:"omitempty,uuid"`
}

type askResponse struct {
	Success        bool   `json:"success"`
	Answer         string `json:"answer"`
	Status         string `json:"status"`
	ConversationID string `json:"conversation_id"`
}

type newConversationResponse struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversation_id"`
}

type messageJSON struct {
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	InteractionTime time.Time `json:"interaction_time"`
}

type conversationJSON struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	LastInteractionAt time.Time     `json:"last_interaction_at"`
	CreatedAt         time.Time     `json:"created_at"`
	Messages          []messageJSON `json:"messages"`
}

type conversationResponse struct {
	Success      bool             `json:"success"`
	Conversation conversationJSON `json:"conversation"`
}

type summaryJSON struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	LastInteractionAt time.Time `json:"last_interaction_at"`
	PairCount         int       `json:"pair_count"`
	LastQuestion      string    `json:"last_question"`
	LastAnswerPreview string    `json:"last_answer_preview"`
}

type conversationsResponse struct {
	Success       bool          `json:"success"`
	Conversations []summaryJSON `json:"conversations"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type climateHealthResponse struct {
	Status    string `json:"status"`
	APIStatus int    `json:"api_status,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decodeAsk(w, r, &req) {
		return
	}

	var convID *uuid.UUID
	if req.ConversationID != nil {
		id, err := uuid.Parse(*req.ConversationID)
		if err != nil {
			writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
			return
		}
		convID = &id
	}

	user := userFromContext(r.Context())
	res, err := s.chat.Ask(r.Context(), user, req.Question, convID)
	if err != nil {
		s.askError(w, user, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Success:        true,
		Answer:         res.Answer,
		Status:         res.Status,
		ConversationID: res.ConversationID.String(),
	})
}

// decodeAsk trims the question before validation so that whitespace does
// not count towards its length.
func (s *Server) decodeAsk(w http.ResponseWriter, r *http.Request, req *askRequest) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	raw := struct {
		Question       string  `json:"question"`
		ConversationID *string `json:"conversation_id"`
	}{}
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	req.Question = strings.TrimSpace(raw.Question)
	if raw.ConversationID != nil && *raw.ConversationID != "" {
		req.ConversationID = raw.ConversationID
	}
	return s.check(w, req)
}

func (s *Server) askError(w http.ResponseWriter, user string, err error) {
	var se *inference.ServiceError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
	case errors.As(err, &se):
		s.logger.Error("climate api returned an error", "user", user, "status", se.StatusCode, "error", err)
		writeError(w, http.StatusInternalServerError, msgServiceError)
	case errors.Is(err, inference.ErrUnreachable):
		s.logger.Error("climate api unreachable", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, msgUnreachable)
	default:
		s.logger.Error("ask failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) climateHealth(w http.ResponseWriter, r *http.Request) {
	h, err := s.climate.Health(r.Context())
	if err != nil {
		s.logger.Warn("climate api health check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, climateHealthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}

	status := "unhealthy"
	if h.Healthy {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, climateHealthResponse{Status: status, APIStatus: h.StatusCode})
}

func (s *Server) newConversation(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	c, err := s.chat.NewConversation(r.Context(), user)
	if err != nil {
		s.logger.Error("create conversation failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusOK, newConversationResponse{Success: true, ConversationID: c.ID.String()})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	user := userFromContext(r.Context())
	c, err := s.chat.Conversation(r.Context(), user, id)
	if err != nil {
		s.storeError(w, user, err)
		return
	}

	out := conversationJSON{
		ID:                c.ID.String(),
		Title:             c.Title,
		LastInteractionAt: c.LastInteractionAt,
		CreatedAt:         c.CreatedAt,
		Messages:          make([]messageJSON, 0, len(c.Messages)),
	}
	for _, m := range c.Messages {
		out.Messages = append(out.Messages, messageJSON{
			Question:        m.Question,
			Answer:          m.Answer,
			InteractionTime: m.InteractionTime,
		})
	}
	writeJSON(w, http.StatusOK, conversationResponse{Success: true, Conversation: out})
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	user := userFromContext(r.Context())
	if err := s.chat.DeleteConversation(r.Context(), user, id); err != nil {
		s.storeError(w, user, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	list, err := s.chat.Conversations(r.Context(), user)
	if err != nil {
		s.storeError(w, user, err)
		return
	}

	out := make([]summaryJSON, 0, len(list))
	for _, c := range list {
		out = append(out, summaryJSON{
			ID:                c.ID.String(),
			Title:             c.Title,
			LastInteractionAt: c.LastInteractionAt,
			PairCount:         c.PairCount,
			LastQuestion:      c.LastQuestion,
			LastAnswerPreview: chat.Truncate(c.LastAnswer, previewLimit),
		})
	}
	writeJSON(w, http.StatusOK, conversationsResponse{Success: true, Conversations: out})
}

func (s *Server) storeError(w http.ResponseWriter, user string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	s.logger.Error("store operation failed", "user", user, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// conversationID parses the {id} path segment. Anything that is not a UUID
// cannot name a conversation and is reported as not found.
func conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return uuid.Nil, false
	}
	return id, true
}
