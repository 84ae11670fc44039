package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"parkwise/internal/auth"
	"parkwise/internal/booking"
	"parkwise/internal/entities"
	apperrors "parkwise/internal/errors"
	"parkwise/internal/service"
)

type PageHandler struct {
	pages      *service.PageService
	validator  *RequestValidator
	live       *LiveStreamer
	writeError func(http.ResponseWriter, error)
}

func NewPageHandler(pages *service.PageService, validator *RequestValidator, live *LiveStreamer, writeError func(http.ResponseWriter, error)) *PageHandler {
	return &PageHandler{pages: pages, validator: validator, live: live, writeError: writeError}
}

func (h *PageHandler) SearchLots(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	q, err := parseLotSearch(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	lots, err := h.pages.SearchLots(r.Context(), s, q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteSuccess(w, lots)
}

func (h *PageHandler) Open(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	var req OpenPageRequest
	if err := h.validator.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	page, err := h.pages.Open(r.Context(), s, req.LotID, req.VehicleTypeHint)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteCreated(w, page.Snapshot())
}

func (h *PageHandler) Get(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, page.Snapshot())
}

func (h *PageHandler) Select(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	var req SelectSlotRequest
	if err := h.validator.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := page.Select(req.SlotID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteSuccess(w, view)
}

func (h *PageHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	var edit booking.Edit
	if err := h.validator.decode(r, &edit); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := page.Update(edit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteSuccess(w, view)
}

// Submit returns 200 with a failed outcome when the backend rejects the
// booking; errors are reserved for drafts that could not be sent at all.
func (h *PageHandler) Submit(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	out, err := page.Submit(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if !out.Succeeded {
		status = http.StatusOK
	}
	WriteJSON(w, status, SubmitResponse{Outcome: out, Page: page.Snapshot()})
}

func (h *PageHandler) Close(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.FromContext(r.Context())
	if err := h.pages.Close(s, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	WriteNoContent(w)
}

func (h *PageHandler) Live(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	h.live.Serve(w, r, page)
}

func (h *PageHandler) page(w http.ResponseWriter, r *http.Request) (*service.Page, bool) {
	s, _ := auth.FromContext(r.Context())
	page, err := h.pages.Get(s, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return page, true
}

func parseLotSearch(r *http.Request) (entities.LotSearch, error) {
	query := r.URL.Query()
	q := entities.LotSearch{Keyword: strings.TrimSpace(query.Get("keyword"))}

	if s := query.Get("maxPrice"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			return q, apperrors.ErrBadRequest("invalid maxPrice parameter: " + s)
		}
		q.MaxPrice = v
	}
	if s := query.Get("minRating"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 || v > 5 {
			return q, apperrors.ErrBadRequest("invalid minRating parameter: " + s)
		}
		q.MinRating = v
	}
	if s := query.Get("radius"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return q, apperrors.ErrBadRequest("invalid radius parameter: " + s)
		}
		q.Radius = v
	}

	lat, lng := query.Get("lat"), query.Get("lng")
	if (lat == "") != (lng == "") {
		return q, apperrors.ErrBadRequest("lat and lng must be given together")
	}
	if lat != "" {
		la, err := strconv.ParseFloat(lat, 64)
		if err != nil || la < -90 || la > 90 {
			return q, apperrors.ErrBadRequest("invalid lat parameter: " + lat)
		}
		ln, err := strconv.ParseFloat(lng, 64)
		if err != nil || ln < -180 || ln > 180 {
			return q, apperrors.ErrBadRequest("invalid lng parameter: " + lng)
		}
		q.Lat, q.Lng = &la, &ln
	}

	for _, a := range strings.Split(query.Get("amenities"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			q.Amenities = append(q.Amenities, a)
		}
	}
	return q, nil
}
