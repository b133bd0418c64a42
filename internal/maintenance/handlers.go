// Package maintenance relays package uploads and backup or migrate triggers
// to the remote backend.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/upstream"
)

// Relay performs maintenance calls on the remote backend.
type Relay interface {
	UploadPackage(ctx context.Context, filename string, content io.Reader) (json.RawMessage, error)
	TriggerMaintenance(ctx context.Context, action string) (json.RawMessage, error)
}

// Handler exposes the maintenance endpoints.
type Handler struct {
	relay  Relay
	logger zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(relay Relay, logger *zerolog.Logger) *Handler {
	h := &Handler{relay: relay, logger: zerolog.Nop()}
	if logger != nil {
		h.logger = logger.With().Str("component", "maintenance").Logger()
	}
	return h
}

// Routes mounts the maintenance endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Post("/backup", h.trigger(upstream.ActionBackup))
	r.Post("/migrate", h.trigger(upstream.ActionMigrate))
}

type uploadMeta struct {
	Filename string `json:"filename" validate:"required,max=255"`
	Ext      string `json:"extension" validate:"oneof=.zip"`
}

// Upload handles POST /maintenance/upload. The multipart field "file" is
// streamed to the backend without being buffered.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "maintenance relay not configured", nil)
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "multipart body required", nil)
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			common.WriteError(w, common.Validation("payload failed validation", nil).WithDetails(map[string]string{"file": "required"}))
			return
		}
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed multipart body", nil)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		name := filepath.Base(part.FileName())
		meta := uploadMeta{Filename: part.FileName(), Ext: strings.ToLower(filepath.Ext(name))}
		if err := common.ValidateStruct(meta); err != nil {
			_ = part.Close()
			common.WriteError(w, err)
			return
		}
		h.logger.Info().Str("file", name).Str("terminal_id", terminal(r)).Msg("relaying maintenance package")
		body, err := h.relay.UploadPackage(r.Context(), name, part)
		_ = part.Close()
		if err != nil {
			h.logger.Error().Err(err).Str("file", name).Msg("maintenance upload failed")
			common.WriteError(w, err)
			return
		}
		common.Data(w, http.StatusOK, body)
		return
	}
}

type triggerPayload struct {
	Confirm bool `json:"confirm" validate:"required"`
}

func (h *Handler) trigger(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.relay == nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "maintenance relay not configured", nil)
			return
		}
		var payload triggerPayload
		if err := common.DecodeJSON(r, &payload); err != nil {
			common.WriteError(w, err)
			return
		}
		if err := common.ValidateStruct(payload); err != nil {
			common.WriteError(w, err)
			return
		}
		h.logger.Info().Str("action", action).Str("terminal_id", terminal(r)).Msg("maintenance triggered")
		body, err := h.relay.TriggerMaintenance(r.Context(), action)
		if err != nil {
			h.logger.Error().Err(err).Str("action", action).Msg("maintenance trigger failed")
			common.WriteError(w, err)
			return
		}
		common.Data(w, http.StatusOK, body)
	}
}

func terminal(r *http.Request) string {
	id, _ := common.TerminalID(r.Context())
	return id
}
