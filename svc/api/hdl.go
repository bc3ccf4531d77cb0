package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"

	"snipvault/cfg"
	"snipvault/pkg/domain"
	"snipvault/svc/svc"
	"snipvault/svc/util"
)

// identityHeader carries the caller identity asserted by the upstream auth
// layer. An absent header means an anonymous caller.
const identityHeader = "X-Auth-User"

type Hdl struct {
	snippets *svc.Snippets
	cfg      *cfg.Cfg
}

type CreateReq struct {
	Content       string `json:"content"`
	Title         string `json:"title,omitempty"`
	Language      string `json:"language,omitempty"`
	ExpiryMinutes int    `json:"expiry_minutes,omitempty"`
}
type CreateResp struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
type ListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Hdl) CreateSnippet(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().
			Str("content_type", contentType).
			Str("request_id", requestID).
			Msg("invalid Content-Type header")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(map[string]string{
			"error":      "expected Content-Type: application/json",
			"request_id": requestID,
		})
		return
	}
	limit := h.cfg.MaxSnippetSize * 2
	if clHeader := r.Header.Get("Content-Length"); clHeader != "" {
		cl, err := strconv.ParseInt(clHeader, 10, 64)
		if err != nil || cl < 0 {
			log.Warn().Str("content_length", clHeader).Msg("invalid Content-Length")
			writeErr(w, domain.ErrInvalidRequest, requestID)
			return
		}
		if cl > limit {
			log.Warn().Int64("content_length", cl).Msg("Content-Length exceeds maximum")
			writeErr(w, domain.ErrSnippetTooLarge, requestID)
			return
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	var req CreateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	if req.Content == "" {
		log.Warn().Msg("empty content")
		writeErr(w, domain.ErrContentRequired, requestID)
		return
	}
	if int64(len(req.Content)) > h.cfg.MaxSnippetSize {
		log.Warn().Int("content_length", len(req.Content)).Msg("content exceeds maximum size")
		writeErr(w, domain.ErrSnippetTooLarge, requestID)
		return
	}

	params := domain.CreateParams{
		Content:       sanitizeContent(req.Content),
		Title:         strings.TrimSpace(req.Title),
		Language:      strings.TrimSpace(req.Language),
		ExpiryMinutes: req.ExpiryMinutes,
		OwnerID:       r.Header.Get(identityHeader),
	}
	sn, err := h.snippets.Create(r.Context(), params)
	if err != nil {
		log.Error().Err(err).Msg("failed to create snippet")
		if errors.Is(err, domain.ErrContentRequired) || errors.Is(err, domain.ErrSnippetTooLarge) ||
			errors.Is(err, domain.ErrIDGenerationFailed) {
			writeErr(w, err, requestID)
			return
		}
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	log.Info().
		Str("snippet_id", sn.ID).
		Time("expires_at", sn.ExpiresAt).
		Bool("anonymous", sn.OwnerID == "").
		Msg("snippet created")
	resp := CreateResp{
		ID:        sn.ID,
		Title:     sn.Title,
		Language:  sn.Language,
		CreatedAt: sn.CreatedAt,
		ExpiresAt: sn.ExpiresAt,
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *Hdl) GetSnippet(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	sn, err := h.snippets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSnippetNotFound) {
			writeErr(w, domain.ErrSnippetNotFound, requestID)
			return
		}
		log.Error().Err(err).Str("snippet_id", id).Msg("get failed")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	log.Info().
		Str("snippet_id", id).
		Str("client_ip", util.RedactIP(r.RemoteAddr)).
		Msg("snippet retrieved")
	json.NewEncoder(w).Encode(sn)
}

func (h *Hdl) ListSnippets(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	owner := r.Header.Get(identityHeader)
	if owner == "" {
		writeErr(w, domain.ErrIdentityRequired, requestID)
		return
	}
	snippets, err := h.snippets.ListByOwner(r.Context(), owner)
	if err != nil {
		log.Error().Err(err).Msg("list failed")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	items := make([]ListItem, 0, len(snippets))
	for _, sn := range snippets {
		items = append(items, ListItem{
			ID:        sn.ID,
			Title:     sn.Title,
			Language:  sn.Language,
			CreatedAt: sn.CreatedAt,
			ExpiresAt: sn.ExpiresAt,
		})
	}
	json.NewEncoder(w).Encode(items)
}

func (h *Hdl) DeleteSnippet(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	owner := r.Header.Get(identityHeader)
	deleted, err := h.snippets.Delete(r.Context(), id, owner)
	if err != nil {
		log.Error().Err(err).Str("snippet_id", id).Msg("failed to delete snippet")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	if !deleted {
		// Not found, anonymous record, and ownership mismatch all land
		// here. One response, no existence oracle.
		writeErr(w, domain.ErrSnippetNotFound, requestID)
		return
	}
	log.Info().Str("snippet_id", id).Msg("snippet deleted by owner")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	w.WriteHeader(statusCode)
	errorMsg := domain.ToResp(err).Error.Msg
	if statusCode >= 500 {
		errorMsg = "internal server error"
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	json.NewEncoder(w).Encode(map[string]string{
		"error":      errorMsg,
		"request_id": requestID,
	})
}

// sanitizeContent normalizes to NFC and drops invalid UTF-8. It never
// escapes or rewrites printable characters: what the store persists must
// round-trip back to the caller byte for byte.
func sanitizeContent(s string) string {
	s = norm.NFC.String(s)
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}
