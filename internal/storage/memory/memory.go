package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"monthly-spend/internal/core"
)

// Store keeps aggregates and cards in process memory. A single mutex makes
// every read-modify-write atomic.
type Store struct {
	mu        sync.Mutex
	monthly   map[core.MonthKey]core.MonthlyAggregate
	fixedCost map[string]core.FixedCostAggregate
	cards     map[string]core.Card
	now       func() time.Time
}

func New(cards ...core.Card) *Store {
	s := &Store{
		monthly:   make(map[core.MonthKey]core.MonthlyAggregate),
		fixedCost: make(map[string]core.FixedCostAggregate),
		cards:     make(map[string]core.Card),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, c := range cards {
		s.cards[c.ID] = c
	}
	return s
}

// NewFromFiles seeds cards from base/seed_cards.txt. Each line holds
// "<card id> <user id> <cutoff day>"; blank lines and # comments are skipped.
func NewFromFiles(base string) *Store {
	return New(readCards(filepath.Join(base, "seed_cards.txt"))...)
}

func (s *Store) AddMonthly(_ context.Context, key core.MonthKey, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := key.Validate(); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.monthly[key]
	if !ok {
		agg = core.MonthlyAggregate{MonthKey: key, Value: decimal.Zero}
	}
	agg.Value = agg.Value.Add(delta)
	agg.UpdatedAt = s.now()
	s.monthly[key] = agg
	return agg.Value, nil
}

func (s *Store) AddFixedCost(_ context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(userID) == "" {
		return decimal.Zero, core.ErrEmptyUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.fixedCost[userID]
	if !ok {
		agg = core.FixedCostAggregate{UserID: userID, Value: decimal.Zero}
	}
	agg.Value = agg.Value.Add(delta)
	agg.UpdatedAt = s.now()
	s.fixedCost[userID] = agg
	return agg.Value, nil
}

func (s *Store) GetMonthly(_ context.Context, key core.MonthKey) (core.MonthlyAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.monthly[key]
	if !ok {
		return core.MonthlyAggregate{}, fmt.Errorf("monthly aggregate %s: %w", key, core.ErrNotFound)
	}
	return agg, nil
}

// ListMonthly returns the user's aggregates for year ordered by month.
func (s *Store) ListMonthly(_ context.Context, userID string, year int) ([]core.MonthlyAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.MonthlyAggregate
	for k, agg := range s.monthly {
		if k.UserID == userID && k.Year == year {
			out = append(out, agg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (s *Store) GetFixedCost(_ context.Context, userID string) (core.FixedCostAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.fixedCost[userID]
	if !ok {
		return core.FixedCostAggregate{}, fmt.Errorf("fixed cost for %s: %w", userID, core.ErrNotFound)
	}
	return agg, nil
}

func (s *Store) GetCard(_ context.Context, id string) (core.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return core.Card{}, fmt.Errorf("card %s: %w", id, core.ErrInstrumentNotFound)
	}
	return c, nil
}

func (s *Store) PutCard(_ context.Context, card core.Card) error {
	if err := card.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.ID] = card
	return nil
}

// DeleteCard removes a card. Later credit purchases that reference it fail
// with core.ErrInstrumentNotFound.
func (s *Store) DeleteCard(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cards, id)
}

func (s *Store) Close() error { return nil }

func readCards(path string) []core.Card {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	seen := map[string]struct{}{}
	var out []core.Card
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		day, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		c := core.Card{ID: fields[0], UserID: fields[1], BillingCutoffDay: day}
		if c.Validate() != nil {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
