package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eda/internal/users/models"
	dErrors "eda/pkg/domain-errors"
	"eda/pkg/platform/httputil"
	"eda/pkg/requestcontext"
)

// Service is the ingestion use case behind POST /new-user.
type Service interface {
	CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.UserRecord, error)
}

// Handler exposes user ingestion over HTTP.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the user routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/new-user", h.HandleCreateUser)
}

// HandleCreateUser answers 200 with an empty body once the user is stored
// and announced, 400 for bad input and 500 when a backend failed.
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req models.CreateUserRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "rejected new-user request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if _, err := h.svc.CreateUser(ctx, req); err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) {
			h.logger.WarnContext(ctx, "invalid new-user request",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
