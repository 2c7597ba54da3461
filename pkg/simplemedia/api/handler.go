package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const (
	defaultMaxUploadBytes = 512 << 20
	multipartMemory       = 32 << 20
	defaultPageSize       = 50
	maxPageSize           = 500
)

// Handler exposes the media service over HTTP
type Handler struct {
	service        simplemedia.Service
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLogger sets the request logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxUploadBytes bounds the request body of item uploads
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func NewHandler(service simplemedia.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:        service,
		logger:         slog.Default(),
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for the media endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware(h.logger))
	r.Use(LoggingMiddleware(h.logger))

	r.Post("/spaces", h.CreateSpace)
	r.Get("/spaces/{spaceID}", h.GetSpace)
	r.With(RequestSizeLimitMiddleware(h.maxUploadBytes)).Post("/spaces/{spaceID}/items", h.UploadItem)
	r.Get("/spaces/{spaceID}/items", h.ListItems)

	r.Get("/items/{itemID}", h.GetItem)
	r.Delete("/items/{itemID}", h.RetireItem)
	r.Post("/items/{itemID}/variants", h.GenerateVariants)
	r.Post("/items/{itemID}/transcode", h.TranscodeItem)
	return r
}

// CreateSpaceRequest is the body of POST /spaces
type CreateSpaceRequest struct {
	ID      string `json:"id,omitempty"`
	OwnerID string `json:"owner_id"`
}

// GenerateVariantsRequest is the body of POST /items/{itemID}/variants
type GenerateVariantsRequest struct {
	Prompt   string `json:"prompt,omitempty"`
	Count    int    `json:"count"`
	Provider string `json:"provider,omitempty"`
}

// ItemResponse wraps a single item. Warning is set when the item was stored
// but a follow-up step such as the quota charge failed.
type ItemResponse struct {
	*simplemedia.ContentItem
	Warning string `json:"warning,omitempty"`
}

// VariantsResponse lists the variants produced by one request
type VariantsResponse struct {
	Items    []*simplemedia.ContentItem `json:"items"`
	Failures []VariantFailure           `json:"failures,omitempty"`
}

// VariantFailure reports one generated image that was not stored
type VariantFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// IngestEventResponse is one NDJSON line of a streamed upload
type IngestEventResponse struct {
	simplemedia.IngestEvent
	Error string `json:"error,omitempty"`
}

// CreateSpace creates a space with an empty quota
func (h *Handler) CreateSpace(w http.ResponseWriter, r *http.Request) {
	var req CreateSpaceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.badRequest(w, r, "invalid request body")
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		h.badRequest(w, r, "invalid owner_id")
		return
	}
	spaceID := uuid.Nil
	if req.ID != "" {
		if spaceID, err = uuid.Parse(req.ID); err != nil {
			h.badRequest(w, r, "invalid id")
			return
		}
	}

	space, err := h.service.CreateSpace(r.Context(), simplemedia.CreateSpaceRequest{ID: spaceID, OwnerID: ownerID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, space)
}

func (h *Handler) GetSpace(w http.ResponseWriter, r *http.Request) {
	spaceID, ok := h.uuidParam(w, r, "spaceID")
	if !ok {
		return
	}
	space, err := h.service.GetSpace(r.Context(), spaceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, space)
}

// UploadItem ingests the multipart "file" field into the space. With
// ?stream=true the response is a stream of NDJSON ingest events.
func (h *Handler) UploadItem(w http.ResponseWriter, r *http.Request) {
	spaceID, ok := h.uuidParam(w, r, "spaceID")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeStatus(w, r, http.StatusRequestEntityTooLarge, "upload exceeds limit")
			return
		}
		h.badRequest(w, r, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.badRequest(w, r, "file field is required")
		return
	}
	defer file.Close()

	mimeType := r.FormValue("mime_type")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	req := simplemedia.IngestRequest{
		SpaceID:  spaceID,
		FileName: header.Filename,
		MimeType: mimeType,
		Body:     file,
		Size:     header.Size,
	}
	if v := r.FormValue("source_item_id"); v != "" {
		sourceID, err := uuid.Parse(v)
		if err != nil {
			h.badRequest(w, r, "invalid source_item_id")
			return
		}
		req.SourceItemID = &sourceID
	}

	if queryBool(r, "stream") {
		h.streamUpload(w, r, req)
		return
	}

	item, err := h.service.Ingest(r.Context(), req)
	if err != nil && !(item != nil && errors.Is(err, simplemedia.ErrQuotaAdjustmentFailed)) {
		h.writeError(w, r, err)
		return
	}
	resp := ItemResponse{ContentItem: item}
	if err != nil {
		resp.Warning = err.Error()
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

func (h *Handler) streamUpload(w http.ResponseWriter, r *http.Request, req simplemedia.IngestRequest) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	broken := false
	for ev := range h.service.IngestStream(r.Context(), req) {
		if broken {
			continue
		}
		line := IngestEventResponse{IngestEvent: ev}
		if ev.Err != nil {
			line.Error = ev.Err.Error()
		}
		if err := enc.Encode(line); err != nil {
			h.logger.WarnContext(r.Context(), "ingest stream write failed", "err", err)
			broken = true
			continue
		}
		_ = rc.Flush()
	}
}

// ListItems lists a space's items with a delivery link on each complete one
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	spaceID, ok := h.uuidParam(w, r, "spaceID")
	if !ok {
		return
	}
	filter, err := parseItemFilter(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	filter.SpaceID = &spaceID

	page, err := h.service.ListItems(r.Context(), filter)
	if err != nil && page == nil {
		h.writeError(w, r, err)
		return
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "some delivery links could not be refreshed", "space_id", spaceID, "err", err)
	}
	render.JSON(w, r, page)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.uuidParam(w, r, "itemID")
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil && item == nil {
		h.writeError(w, r, err)
		return
	}
	resp := ItemResponse{ContentItem: item}
	if err != nil {
		resp.Warning = err.Error()
	}
	render.JSON(w, r, resp)
}

// RetireItem deactivates an item and releases its bytes from the space quota
func (h *Handler) RetireItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.uuidParam(w, r, "itemID")
	if !ok {
		return
	}
	item, err := h.service.RetireItem(r.Context(), itemID)
	if err != nil && !(item != nil && errors.Is(err, simplemedia.ErrQuotaAdjustmentFailed)) {
		h.writeError(w, r, err)
		return
	}
	resp := ItemResponse{ContentItem: item}
	if err != nil {
		resp.Warning = err.Error()
	}
	render.JSON(w, r, resp)
}

// GenerateVariants asks a provider for derivative images of an item
func (h *Handler) GenerateVariants(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.uuidParam(w, r, "itemID")
	if !ok {
		return
	}
	var req GenerateVariantsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.badRequest(w, r, "invalid request body")
		return
	}

	items, err := h.service.GenerateVariants(r.Context(), simplemedia.GenerateVariantsRequest{
		SourceItemID: itemID,
		Prompt:       req.Prompt,
		Count:        req.Count,
		Provider:     req.Provider,
	})

	var batch *simplemedia.VariantBatchError
	if err != nil && !errors.As(err, &batch) {
		h.writeError(w, r, err)
		return
	}

	resp := VariantsResponse{Items: items}
	if resp.Items == nil {
		resp.Items = []*simplemedia.ContentItem{}
	}
	if batch != nil {
		for _, f := range batch.Failures {
			resp.Failures = append(resp.Failures, VariantFailure{URL: f.URL, Error: f.Err.Error()})
		}
	}
	status := http.StatusCreated
	if len(items) == 0 && batch != nil {
		status = http.StatusBadGateway
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// TranscodeItem converts a video item to an HLS stream item
func (h *Handler) TranscodeItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.uuidParam(w, r, "itemID")
	if !ok {
		return
	}
	stream, err := h.service.TranscodeItem(r.Context(), itemID)
	if err != nil && !(stream != nil && errors.Is(err, simplemedia.ErrQuotaAdjustmentFailed)) {
		h.writeError(w, r, err)
		return
	}
	resp := ItemResponse{ContentItem: stream}
	if err != nil {
		resp.Warning = err.Error()
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.badRequest(w, r, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseItemFilter(r *http.Request) (simplemedia.ItemFilter, error) {
	q := r.URL.Query()
	filter := simplemedia.ItemFilter{
		MimeTypePrefix:     q.Get("mime_type"),
		OnlyComplete:       queryBool(r, "complete"),
		IncludeDeactivated: queryBool(r, "include_retired"),
		SortBy:             q.Get("sort"),
		SortDesc:           queryBool(r, "desc"),
		Limit:              defaultPageSize,
	}

	switch filter.SortBy {
	case "", "created_at", "updated_at", "size_bytes":
	default:
		return filter, errors.New("invalid sort")
	}
	if v := q.Get("source_item_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errors.New("invalid source_item_id")
		}
		filter.SourceItemID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}

func queryBool(r *http.Request, name string) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
