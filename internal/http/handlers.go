package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"monthly-spend/internal/aggregate"
	"monthly-spend/internal/core"
)

type handlers struct {
	events     EventHandler
	aggregates aggregate.AggregateReader
	cards      aggregate.CardStore
}

// postEvent applies a change envelope synchronously.
// POST /api/events
func (h *handlers) postEvent(w http.ResponseWriter, r *http.Request) {
	var ev core.ChangeEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err := dec.Decode(&ev); err != nil {
		respondError(w, r, fmt.Errorf("%w: decode body: %v", core.ErrInvalidEvent, err))
		return
	}

	out, err := h.events.HandleChange(r.Context(), ev)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if out.Touched == nil {
		out.Touched = []core.MonthKey{}
	}
	respondJSON(w, r, http.StatusOK, out)
}

// GET /api/users/{userID}/monthly/{year}/{month}
func (h *handlers) getMonthly(w http.ResponseWriter, r *http.Request) {
	key, err := monthKeyParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	agg, err := h.aggregates.GetMonthly(r.Context(), key)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, agg)
}

// GET /api/users/{userID}/monthly/{year}
func (h *handlers) listMonthly(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	year, err := intParam(r, "year")
	if err != nil {
		respondError(w, r, err)
		return
	}
	list, err := h.aggregates.ListMonthly(r.Context(), userID, year)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if list == nil {
		list = []core.MonthlyAggregate{}
	}
	respondJSON(w, r, http.StatusOK, list)
}

// GET /api/users/{userID}/fixed-cost
func (h *handlers) getFixedCost(w http.ResponseWriter, r *http.Request) {
	fc, err := h.aggregates.GetFixedCost(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, fc)
}

// getSummary adds the month's purchases and the fixed cost. Missing
// aggregates count as zero.
// GET /api/users/{userID}/summary/{year}/{month}
func (h *handlers) getSummary(w http.ResponseWriter, r *http.Request) {
	key, err := monthKeyParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	purchases := decimal.Zero
	agg, err := h.aggregates.GetMonthly(r.Context(), key)
	switch {
	case err == nil:
		purchases = agg.Value
	case !errors.Is(err, core.ErrNotFound):
		respondError(w, r, err)
		return
	}

	fixed := decimal.Zero
	fc, err := h.aggregates.GetFixedCost(r.Context(), key.UserID)
	switch {
	case err == nil:
		fixed = fc.Value
	case !errors.Is(err, core.ErrNotFound):
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, core.NewMonthSummary(key, purchases, fixed))
}

type putCardRequest struct {
	UserID           string `json:"userId"`
	BillingCutoffDay int    `json:"billingCutoffDay"`
}

// PUT /api/cards/{cardID}
func (h *handlers) putCard(w http.ResponseWriter, r *http.Request) {
	var req putCardRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: decode body: %v", core.ErrInvalidEvent, err))
		return
	}
	card := core.Card{ID: chi.URLParam(r, "cardID"), UserID: req.UserID, BillingCutoffDay: req.BillingCutoffDay}
	if err := h.cards.PutCard(r.Context(), card); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, card)
}

// GET /api/cards/{cardID}
func (h *handlers) getCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.cards.GetCard(r.Context(), chi.URLParam(r, "cardID"))
	if errors.Is(err, core.ErrInstrumentNotFound) {
		respondJSON(w, r, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, card)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", core.ErrInvalidEvent, name, raw)
	}
	return v, nil
}

// monthKeyParam reads userID, year and the zero based month from the path.
func monthKeyParam(r *http.Request) (core.MonthKey, error) {
	year, err := intParam(r, "year")
	if err != nil {
		return core.MonthKey{}, err
	}
	month, err := intParam(r, "month")
	if err != nil {
		return core.MonthKey{}, err
	}
	key := core.MonthKey{UserID: chi.URLParam(r, "userID"), Month: month, Year: year}
	if err := key.Validate(); err != nil {
		return core.MonthKey{}, err
	}
	return key, nil
}
