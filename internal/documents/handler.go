package documents

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/httpx"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 8 << 20

// Handler exposes document endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	maxUpload int64
}

// NewHandler builds Handler instance. maxUpload bounds the request body of uploads.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, maxUpload int64) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, maxUpload: maxUpload}
}

// MountRoutes registers document routes. Reads work anonymously for public
// documents; visibility is enforced by the service.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/download", h.download)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDocumentsUpload, shared.PermDocumentsManage))
		r.Post("/", h.upload)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	committeeID, err := httpx.QueryInt64(r, "committee_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	projectID, err := httpx.QueryInt64(r, "project_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	uploadedBy, err := httpx.QueryInt64(r, "uploaded_by")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	items, meta, err := h.service.List(r.Context(), ListFilter{
		Viewer:      actor,
		Category:    Category(q.Get("category")),
		Visibility:  Visibility(q.Get("visibility")),
		CommitteeID: committeeID,
		ProjectID:   projectID,
		UploadedBy:  uploadedBy,
		Search:      q.Get("search"),
		Page:        httpx.PageFromRequest(r),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []Document{}
	}
	httpx.Paginated(w, items, meta)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	d, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, d, "")
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	d, rc, err := h.service.Download(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", d.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.FileName}))
	w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream document", slog.Int64("document_id", id), slog.Any("error", err))
	}
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, h.logger, shared.Invalid("file", "The file is larger than the upload limit."))
			return
		}
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: malformed multipart form: %v", shared.ErrBadRequest, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	input, err := uploadInput(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var (
		name string
		body io.Reader
	)
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		name, body = header.Filename, file
	} else if !errors.Is(err, http.ErrMissingFile) {
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: read file: %v", shared.ErrBadRequest, err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	d, err := h.service.Upload(r.Context(), actor, input, name, body)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, d, "Document uploaded successfully.")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input UpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	d, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, d, "Document updated successfully.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, nil, "Document deleted successfully.")
}

// uploadInput reads the metadata fields of a multipart upload.
func uploadInput(r *http.Request) (UploadInput, error) {
	input := UploadInput{
		Title:      strings.TrimSpace(r.FormValue("title")),
		Category:   Category(strings.TrimSpace(r.FormValue("category"))),
		Visibility: Visibility(strings.TrimSpace(r.FormValue("visibility"))),
	}
	if v := strings.TrimSpace(r.FormValue("description")); v != "" {
		input.Description = &v
	}
	verr := shared.NewValidationError()
	for field, dest := range map[string]**int64{"committee_id": &input.CommitteeID, "project_id": &input.ProjectID} {
		raw := strings.TrimSpace(r.FormValue(field))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			verr.Add(field, fmt.Sprintf("The %s must be an integer.", field))
			continue
		}
		*dest = &v
	}
	return input, verr.OrNil()
}
