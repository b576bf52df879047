package memrepo

import (
	"context"
	"fmt"

	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ledgerRepo struct{ s *Store }

var _ repository.LedgerRepository = ledgerRepo{}

func (r ledgerRepo) Reserve(_ context.Context, _ *gorm.DB, m model.LedgerMutation) (model.Ledger, error) {
	return r.apply(m, 1)
}

func (r ledgerRepo) Release(_ context.Context, _ *gorm.DB, m model.LedgerMutation) (model.Ledger, error) {
	return r.apply(m, -1)
}

func (r ledgerRepo) apply(m model.LedgerMutation, sign int) (model.Ledger, error) {
	if m.Quantity <= 0 {
		return model.Ledger{}, repository.ErrInvalidQuantity
	}
	if !m.Counter.Valid() {
		return model.Ledger{}, fmt.Errorf("unknown ledger counter %q", m.Counter)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kind := m.Counter.LineItemType()
	for _, e := range r.s.entries {
		if e.IdempotencyKey == m.IdempotencyKey {
			if !e.Matches(m, sign) {
				return model.Ledger{}, repository.ErrDuplicateKey
			}
			return r.get(m.LineItemID, kind)
		}
	}

	delta := sign * m.Quantity
	if kind == model.LineItemOrder {
		li, ok := r.s.orderLines[m.LineItemID]
		if !ok {
			return model.Ledger{}, notFound()
		}
		if (sign > 0 && li.Remaining() < m.Quantity) || (sign < 0 && li.DeliveredQuantity < m.Quantity) {
			return model.Ledger{}, repository.ErrInsufficientRemaining
		}
		li.DeliveredQuantity += delta
		r.s.orderLines[li.ID] = li
	} else {
		li, ok := r.s.poLines[m.LineItemID]
		if !ok {
			return model.Ledger{}, notFound()
		}
		counter := &li.OrderedQuantity
		if m.Counter == model.CounterWaived {
			counter = &li.WaivedQuantity
		}
		if (sign > 0 && li.Remaining() < m.Quantity) || (sign < 0 && *counter < m.Quantity) {
			return model.Ledger{}, repository.ErrInsufficientRemaining
		}
		*counter += delta
		r.s.poLines[li.ID] = li
	}

	entry := model.LedgerEntry{
		ID:             uuid.New(),
		LineItemID:     m.LineItemID,
		LineItemType:   kind,
		Counter:        m.Counter,
		Delta:          delta,
		IdempotencyKey: m.IdempotencyKey,
		Reason:         m.Reason,
		Actor:          m.Actor,
	}
	entry.CreatedAt = r.s.track(entry.ID)
	r.s.entries = append(r.s.entries, entry)
	return r.get(m.LineItemID, kind)
}

func (r ledgerRepo) Get(_ context.Context, _ *gorm.DB, lineItemID uuid.UUID, kind model.LineItemType) (model.Ledger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(lineItemID, kind)
}

func (r ledgerRepo) get(id uuid.UUID, kind model.LineItemType) (model.Ledger, error) {
	if kind == model.LineItemOrder {
		li, ok := r.s.orderLines[id]
		if !ok {
			return model.Ledger{}, notFound()
		}
		return li.Ledger(), nil
	}
	li, ok := r.s.poLines[id]
	if !ok {
		return model.Ledger{}, notFound()
	}
	return li.Ledger(), nil
}

func (r ledgerRepo) Entries(_ context.Context, lineItemIDs []uuid.UUID) ([]model.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(lineItemIDs))
	for _, id := range lineItemIDs {
		want[id] = true
	}
	var out []model.LedgerEntry
	for _, e := range r.s.entries {
		if want[e.LineItemID] {
			out = append(out, e)
		}
	}
	return out, nil
}
