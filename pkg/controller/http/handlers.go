package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
	"github.com/secmon-lab/mnemos/pkg/usecase"
	"github.com/secmon-lab/mnemos/pkg/utils/errutil"
)

// statusOf maps the error taxonomy to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConsentRequired):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrPIIRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return goerr.Wrap(model.ErrInvalidInput, "malformed JSON request body",
			goerr.V("cause", err.Error()),
		)
	}
	return nil
}

type memoryItemResponse struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	Category        string    `json:"category"`
	Scope           string    `json:"scope"`
	SessionID       string    `json:"sessionId"`
	UserID          string    `json:"userId,omitempty"`
	ConversationID  string    `json:"conversationId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	PIIRedacted     bool      `json:"piiRedacted"`
	RequiresConsent bool      `json:"requiresConsent"`
}

func toMemoryItemResponse(m *model.MemoryItem) memoryItemResponse {
	return memoryItemResponse{
		ID:              string(m.ID),
		Content:         m.Content,
		Category:        string(m.Category),
		Scope:           string(m.Scope),
		SessionID:       m.SessionID,
		UserID:          m.UserID,
		ConversationID:  m.ConversationID,
		CreatedAt:       m.CreatedAt,
		ExpiresAt:       m.ExpiresAt,
		PIIRedacted:     m.PIIRedacted,
		RequiresConsent: m.RequiresConsent,
	}
}

type preferenceResponse struct {
	Key           string    `json:"key"`
	Value         string    `json:"value"`
	SchemaVersion int       `json:"schemaVersion"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
		SessionID      string `json:"sessionId"`
		UserID         string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	mctx, err := s.uc.GetConversationContext(r.Context(), req.ConversationID, req.SessionID, req.UserID)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	memories := make([]memoryItemResponse, len(mctx.RelevantMemories))
	for i, m := range mctx.RelevantMemories {
		memories[i] = toMemoryItemResponse(m)
	}
	prefs := make(map[string]preferenceResponse, len(mctx.UserPreferences))
	for k, p := range mctx.UserPreferences {
		prefs[k] = preferenceResponse{
			Key:           p.Key,
			Value:         p.Value,
			SchemaVersion: p.SchemaVersion,
			UpdatedAt:     p.UpdatedAt,
		}
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"conversationId":    mctx.ConversationID,
		"sessionId":         mctx.SessionID,
		"relevantMemories":  memories,
		"entityMentions":    mctx.EntityMentions,
		"topicContinuity":   mctx.TopicContinuity,
		"userPreferences":   prefs,
		"conversationStage": string(mctx.ConversationStage),
	})
}

func (s *Server) handleAddMemories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Turns []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"turns"`
		SessionID      string `json:"sessionId"`
		UserID         string `json:"userId"`
		ConversationID string `json:"conversationId"`
		Category       string `json:"category"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	turns := make([]model.Turn, len(req.Turns))
	for i, t := range req.Turns {
		turns[i] = model.Turn{Role: t.Role, Content: t.Content}
	}

	ids, err := s.uc.Add(r.Context(), usecase.AddInput{
		Turns:          turns,
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Category:       types.Category(req.Category),
	})
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = string(id)
	}
	respondJSON(w, r, http.StatusCreated, map[string]any{"ids": idStrs})
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string `json:"query"`
		SessionID string `json:"sessionId"`
		UserID    string `json:"userId"`
		Category  string `json:"category"`
		Limit     int    `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	scored, err := s.uc.Search(r.Context(), usecase.SearchInput{
		Query:     req.Query,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Category:  types.Category(req.Category),
		Limit:     req.Limit,
	})
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	type scoredResponse struct {
		Item  memoryItemResponse `json:"item"`
		Score float64            `json:"score"`
	}
	results := make([]scoredResponse, len(scored))
	for i, sc := range scored {
		results[i] = scoredResponse{Item: toMemoryItemResponse(sc.Item), Score: sc.Score}
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleCleanupMemories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		UserID    string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	deleted, err := s.uc.Cleanup(r.Context(), usecase.CleanupInput{
		SessionID: req.SessionID,
		UserID:    req.UserID,
	})
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{"deletedCount": deleted})
}

func (s *Server) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	rec, err := s.uc.GetConsent(r.Context(), userID)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	respondJSON(w, r, http.StatusOK, toConsentResponse(rec))
}

type consentResponse struct {
	UserID                string    `json:"userId"`
	ConsentGiven          bool      `json:"consentGiven"`
	ConsentDate           time.Time `json:"consentDate"`
	ConsentVersion        string    `json:"consentVersion"`
	DataProcessing        bool      `json:"dataProcessing"`
	PersonalizedResponses bool      `json:"personalizedResponses"`
	RetentionConsent      bool      `json:"retentionConsent"`
}

func toConsentResponse(rec *model.ConsentRecord) consentResponse {
	return consentResponse{
		UserID:                rec.UserID,
		ConsentGiven:          rec.ConsentGiven,
		ConsentDate:           rec.ConsentDate,
		ConsentVersion:        rec.ConsentVersion,
		DataProcessing:        rec.DataProcessing,
		PersonalizedResponses: rec.PersonalizedResponses,
		RetentionConsent:      rec.RetentionConsent,
	}
}

func (s *Server) handlePutConsent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req struct {
		ConsentGiven          bool      `json:"consentGiven"`
		ConsentDate           time.Time `json:"consentDate"`
		ConsentVersion        string    `json:"consentVersion"`
		DataProcessing        bool      `json:"dataProcessing"`
		PersonalizedResponses bool      `json:"personalizedResponses"`
		RetentionConsent      bool      `json:"retentionConsent"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	rec := &model.ConsentRecord{
		UserID:                userID,
		ConsentGiven:          req.ConsentGiven,
		ConsentDate:           req.ConsentDate,
		ConsentVersion:        req.ConsentVersion,
		DataProcessing:        req.DataProcessing,
		PersonalizedResponses: req.PersonalizedResponses,
		RetentionConsent:      req.RetentionConsent,
	}
	if err := s.uc.RecordConsent(r.Context(), rec); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{"status": "recorded"})
}

func (s *Server) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := s.uc.RevokeConsent(r.Context(), userID); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{"status": "revoked"})
}
