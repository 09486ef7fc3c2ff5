package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"raffleledger/internal/core"
	"raffleledger/pkg/domain"
)

// mutationResponse pairs the stored entity with the ledger entry that recorded it.
type mutationResponse struct {
	Data       any             `json:"data,omitempty"`
	HistoryLog core.HistoryLog `json:"historyLog"`
}

func (h *Handler) listRaffles(w http.ResponseWriter, r *http.Request) {
	raffles, err := h.svc.ListRaffles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, raffles)
}

func (h *Handler) createRaffle(w http.ResponseWriter, r *http.Request) {
	var in core.RaffleInput
	if err := decodeBody(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	raffle, log, err := h.svc.CreateRaffle(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mutationResponse{Data: raffle, HistoryLog: log})
}

func (h *Handler) getRaffle(w http.ResponseWriter, r *http.Request) {
	raffle, err := h.svc.GetRaffle(r.Context(), chi.URLParam(r, "raffleID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, raffle)
}

func (h *Handler) updateRaffle(w http.ResponseWriter, r *http.Request) {
	var in core.RaffleInput
	if err := decodeBody(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	raffle, log, err := h.svc.UpdateRaffle(r.Context(), chi.URLParam(r, "raffleID"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Data: raffle, HistoryLog: log})
}

func (h *Handler) setFinalized(finalized bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raffle, log, err := h.svc.SetFinalized(r.Context(), chi.URLParam(r, "raffleID"), finalized)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mutationResponse{Data: raffle, HistoryLog: log})
	}
}

func (h *Handler) deleteRaffle(w http.ResponseWriter, r *http.Request) {
	log, err := h.svc.DeleteRaffle(r.Context(), chi.URLParam(r, "raffleID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{HistoryLog: log})
}

type entryRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (req entryRequest) input(typ core.EntryType) (core.EntryInput, error) {
	var in core.EntryInput
	if len(req.Data) == 0 {
		return in, domain.NewValidationError("data", "entry data is required")
	}
	var target any = &in.Sale
	if typ == core.EntryCost {
		target = &in.Cost
	}
	if err := json.Unmarshal(req.Data, target); err != nil {
		return in, domain.NewValidationError("data", fmt.Sprintf("invalid %s data: %v", typ, err))
	}
	return in, nil
}

func (h *Handler) addEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	typ, err := core.ParseEntryType(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.input(typ)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, log, err := h.svc.AddEntry(r.Context(), chi.URLParam(r, "raffleID"), typ, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mutationResponse{Data: entry, HistoryLog: log})
}

// entryType reads ?type=, falling back to the body's type for updates.
func entryType(r *http.Request, fallback string) (core.EntryType, error) {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		raw = fallback
	}
	return core.ParseEntryType(raw)
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	typ, err := entryType(r, req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.input(typ)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, log, err := h.svc.UpdateEntry(r.Context(), chi.URLParam(r, "raffleID"), typ, chi.URLParam(r, "entryID"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Data: entry, HistoryLog: log})
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	typ, err := entryType(r, "")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	log, err := h.svc.DeleteEntry(r.Context(), chi.URLParam(r, "raffleID"), typ, chi.URLParam(r, "entryID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{HistoryLog: log})
}

type reimbursementRequest struct {
	ReimbursedDate core.Date `json:"reimbursedDate"`
	Notes          string    `json:"notes"`
}

func (h *Handler) recordReimbursement(w http.ResponseWriter, r *http.Request) {
	var req reimbursementRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	cost, log, err := h.svc.RecordReimbursement(r.Context(), chi.URLParam(r, "raffleID"), chi.URLParam(r, "costID"), req.ReimbursedDate, req.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Data: cost, HistoryLog: log})
}

func (h *Handler) clearReimbursement(w http.ResponseWriter, r *http.Request) {
	cost, log, err := h.svc.ClearReimbursement(r.Context(), chi.URLParam(r, "raffleID"), chi.URLParam(r, "costID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Data: cost, HistoryLog: log})
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.HistoryFilter{RaffleID: q.Get("raffleId"), IncludeUndone: true}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.fail(w, r, domain.NewValidationError("limit", "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("includeUndone"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, r, domain.NewValidationError("includeUndone", "includeUndone must be a boolean"))
			return
		}
		filter.IncludeUndone = include
	}
	logs, err := h.svc.ListHistory(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	log, err := h.svc.GetHistory(r.Context(), chi.URLParam(r, "logID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (h *Handler) undo(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Undo(r.Context(), chi.URLParam(r, "logID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pendingReimbursements(w http.ResponseWriter, r *http.Request) {
	pending, err := h.svc.PendingReimbursements(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *Handler) exportArchive(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.ExportArchive(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) listArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := h.svc.ListArchives(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, archives)
}

func (h *Handler) downloadArchive(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if strings.Contains(key, "/") || strings.Contains(key, "..") {
		h.fail(w, r, domain.NewValidationError("key", "invalid archive key"))
		return
	}
	info, body, err := h.svc.OpenArchive(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("archive download interrupted", "key", info.Key, "error", err)
	}
}
