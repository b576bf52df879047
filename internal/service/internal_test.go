package service

import (
	"testing"
	"time"

	"fulfillment/internal/dto"
	"fulfillment/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPOProgress(t *testing.T) {
	cases := []struct {
		original, ordered, waived int
		want                      string
	}{
		{10, 0, 0, "Not Started"},
		{10, 3, 0, "30% Ordered"},
		{10, 3, 2, "30% Ordered"},
		{10, 0, 4, "Partially Waived"},
		{10, 8, 2, "Complete"},
		{10, 10, 0, "Complete"},
		{3, 1, 0, "33% Ordered"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, POProgress(c.original, c.ordered, c.waived), "%d/%d/%d", c.original, c.ordered, c.waived)
	}
}

func TestOrderProgress(t *testing.T) {
	assert.Equal(t, "Not Started", OrderProgress(4, 0))
	assert.Equal(t, "25% Delivered", OrderProgress(4, 1))
	assert.Equal(t, "Fully Delivered", OrderProgress(4, 4))
}

func TestSortCandidates(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	lowPO := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	highPO := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	line := func(name string, poID uuid.UUID, start *time.Time) model.POLineItem {
		return model.POLineItem{
			ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
			PurchaseOrderID: poID,
			PurchaseOrder:   &model.PurchaseOrder{ID: poID, StartDate: start},
		}
	}
	undated := line("undated", lowPO, nil)
	febHigh := line("feb-high", highPO, &feb)
	febLow := line("feb-low", lowPO, &feb)
	janLine := line("jan", highPO, &jan)

	lines := []model.POLineItem{undated, febHigh, febLow, janLine}
	sortCandidates(lines)

	assert.Equal(t, janLine.ID, lines[0].ID)
	assert.Equal(t, febLow.ID, lines[1].ID)
	assert.Equal(t, febHigh.ID, lines[2].ID)
	assert.Equal(t, undated.ID, lines[3].ID)
}

func TestRequestKeys_Sequence(t *testing.T) {
	line := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	k := NewRequestKeys("req-9")

	assert.True(t, k.Supplied())
	assert.Equal(t, "req-9:11111111-1111-1111-1111-111111111111:ordered:0", k.Next(line, "ordered"))
	assert.Equal(t, "req-9:11111111-1111-1111-1111-111111111111:ordered:1", k.Next(line, "ordered"))
	assert.Equal(t, "req-9:11111111-1111-1111-1111-111111111111:waived:0", k.Next(line, "waived"))

	// A replay with the same base yields the same keys.
	again := NewRequestKeys("req-9")
	assert.Equal(t, "req-9:11111111-1111-1111-1111-111111111111:ordered:0", again.Next(line, "ordered"))
	require.NotNil(t, again.documentKey())
	assert.Equal(t, "req-9", *again.documentKey())
}

func TestRequestKeys_Scoped(t *testing.T) {
	line := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	orderA := uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	orderB := uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	k := NewRequestKeys("req-9")

	a := k.Scoped("delete-order", orderA)
	b := k.Scoped("delete-order", orderB)
	assert.True(t, a.Supplied())
	assert.Equal(t, "req-9:delete-order:aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa:11111111-1111-1111-1111-111111111111:release-ordered:0", a.Next(line, "release-ordered"))
	assert.NotEqual(t, a.Next(line, "release-ordered"), b.Next(line, "release-ordered"))

	// Scoping again from the same request gives the same keys.
	again := NewRequestKeys("req-9").Scoped("delete-order", orderA)
	assert.Equal(t, "req-9:delete-order:aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa:11111111-1111-1111-1111-111111111111:release-ordered:0", again.Next(line, "release-ordered"))
	require.NotNil(t, again.documentKey())
	assert.Equal(t, "req-9:delete-order:aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", *again.documentKey())

	assert.Nil(t, NewRequestKeys("").Scoped("delete-order", orderA).documentKey())
}

func TestRequestKeys_GeneratedBase(t *testing.T) {
	k := NewRequestKeys("")
	assert.False(t, k.Supplied())
	assert.NotEmpty(t, k.Base())
	assert.Nil(t, k.documentKey())
	assert.NotEqual(t, k.Base(), NewRequestKeys("").Base())
}

func TestEvaluateClosure(t *testing.T) {
	id := uuid.New()
	open := closeTarget{
		docType: model.DocumentOrder,
		docID:   id,
		status:  model.StatusOpen,
		lines:   []model.QuantityLedger{model.OrderLineItem{ID: uuid.New(), Quantity: 3, DeliveredQuantity: 1}},
	}
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	reason := " damaged "

	_, err := evaluateClosure(open, Actor{Name: "ops"}, dto.CloseRequest{}, now)
	var unfulfilled *UnfulfilledLineItemsError
	require.ErrorAs(t, err, &unfulfilled)
	assert.Equal(t, 2, unfulfilled.LineItems[0].RemainingQuantity)

	closure, err := evaluateClosure(open, Actor{Name: "boss", IsAdmin: true}, dto.CloseRequest{AdminOverride: true, OverrideReason: &reason}, now)
	require.NoError(t, err)
	assert.True(t, closure.AdminOverride)
	assert.Equal(t, "damaged", *closure.OverrideReason)
	assert.Equal(t, "boss", closure.ClosedBy)
	assert.Equal(t, now, closure.ClosedAt)
	assert.Contains(t, closure.Unfulfilled, `"remaining_quantity":2`)

	closed := open
	closed.status = model.StatusClosed
	_, err = evaluateClosure(closed, Actor{IsAdmin: true}, dto.CloseRequest{AdminOverride: true, OverrideReason: &reason}, now)
	assert.ErrorIs(t, err, ErrDocumentClosed)

	// Nothing outstanding: no override needed and none recorded.
	done := closeTarget{docType: model.DocumentDelivery, docID: id, status: model.StatusOpen}
	closure, err = evaluateClosure(done, Actor{}, dto.CloseRequest{AdminOverride: true}, now)
	require.NoError(t, err)
	assert.False(t, closure.AdminOverride)
	assert.Equal(t, "system", closure.ClosedBy)
	assert.Equal(t, "[]", closure.Unfulfilled)
}
