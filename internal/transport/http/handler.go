package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/tripchat/internal/domain"
	"github.com/cwrk-planet/tripchat/internal/logger"
	"github.com/cwrk-planet/tripchat/internal/service"
	"github.com/cwrk-planet/tripchat/pkg/chatproto"

	"github.com/go-chi/chi/v5"
)

type HistoryReader interface {
	GetMessages(ctx context.Context, tripID string, limit int, before string) (domain.Page, error)
}

type MembersReader interface {
	Members(tripID string) []domain.Membership
}

type Handler struct {
	history HistoryReader
	members MembersReader
}

func NewHandler(history HistoryReader, members MembersReader) *Handler {
	return &Handler{history: history, members: members}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: errorBody{Code: code, Message: msg}})
}

// GET /trips/{tripID}/messages?limit=&before=
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	before := r.URL.Query().Get("before")

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	page, err := h.history.GetMessages(r.Context(), tripID, limit, before)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCursor):
			writeError(w, http.StatusBadRequest, "invalid_cursor", "unknown before cursor")
		case errors.Is(err, domain.ErrInvalidTrip):
			writeError(w, http.StatusBadRequest, "invalid_trip", err.Error())
		default:
			logger.FromContext(r.Context()).Error("handler.GetMessages", slog.String("trip", tripID), slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "history_unavailable", "failed to load messages")
		}
		return
	}

	resp := chatproto.MessagesPage{
		Messages: make([]chatproto.Message, 0, len(page.Messages)),
		HasMore:  page.HasMore,
	}
	for _, m := range page.Messages {
		resp.Messages = append(resp.Messages, service.ToProtoMessage(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /trips/{tripID}/members
func (h *Handler) GetMembers(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")

	ms := h.members.Members(tripID)
	resp := chatproto.MembersList{TripID: tripID, Members: make([]chatproto.Member, 0, len(ms))}
	for _, m := range ms {
		resp.Members = append(resp.Members, chatproto.Member{
			UserID:       m.UserID,
			ConnectionID: m.ConnectionID,
			JoinedAt:     m.JoinedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
