package service

import (
	"time"

	"fulfillment/internal/dto"
	"fulfillment/internal/model"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func itemToResponse(it model.Item) dto.ItemResponse {
	return dto.ItemResponse{
		ID:       it.ID.String(),
		Name:     it.Name,
		Version:  it.Version,
		MSRP:     it.MSRP,
		MinPrice: it.MinPrice,
	}
}

func purchaseOrderToResponse(po *model.PurchaseOrder) *dto.PurchaseOrderResponse {
	resp := &dto.PurchaseOrderResponse{
		ID:         po.ID.String(),
		CustomerID: po.CustomerID.String(),
		Status:     string(po.Status),
		StartDate:  formatDatePtr(po.StartDate),
		CreatedAt:  formatTime(po.CreatedAt),
		ClosedAt:   formatTimePtr(po.ClosedAt),
		ClosedBy:   po.ClosedBy,
		LineItems:  make([]dto.POLineItemResponse, 0, len(po.LineItems)),
	}
	for _, li := range po.LineItems {
		item := dto.POLineItemResponse{
			ID:                li.ID.String(),
			ItemID:            li.ItemID.String(),
			OriginalQuantity:  li.OriginalQuantity,
			PricePerUnit:      li.PricePerUnit,
			OrderedQuantity:   li.OrderedQuantity,
			WaivedQuantity:    li.WaivedQuantity,
			RemainingQuantity: li.Remaining(),
		}
		if li.Item != nil {
			item.ItemName = li.Item.Name
		}
		resp.LineItems = append(resp.LineItems, item)
	}
	return resp
}

func orderToResponse(o *model.Order) *dto.OrderResponse {
	resp := &dto.OrderResponse{
		ID:         o.ID.String(),
		CustomerID: o.CustomerID.String(),
		Status:     string(o.Status),
		CreatedAt:  formatTime(o.CreatedAt),
		ClosedAt:   formatTimePtr(o.ClosedAt),
		ClosedBy:   o.ClosedBy,
		LineItems:  make([]dto.OrderLineItemResponse, 0, len(o.LineItems)),
	}
	for _, li := range o.LineItems {
		item := dto.OrderLineItemResponse{
			ID:                li.ID.String(),
			ItemID:            li.ItemID.String(),
			Quantity:          li.Quantity,
			PricePerUnit:      li.PricePerUnit,
			POLineItem:        uuidPtrString(li.POLineItemID),
			DeliveredQuantity: li.DeliveredQuantity,
			RemainingQuantity: li.Remaining(),
		}
		if li.Item != nil {
			item.ItemName = li.Item.Name
		}
		resp.LineItems = append(resp.LineItems, item)
	}
	return resp
}

func deliveryToResponse(d *model.Delivery) *dto.DeliveryResponse {
	resp := &dto.DeliveryResponse{
		ID:         d.ID.String(),
		CustomerID: d.CustomerID.String(),
		Status:     string(d.Status),
		ShipDate:   d.ShipDate.Format(dateLayout),
		CreatedAt:  formatTime(d.CreatedAt),
		ClosedAt:   formatTimePtr(d.ClosedAt),
		ClosedBy:   d.ClosedBy,
		LineItems:  make([]dto.DeliveryLineItemResponse, 0, len(d.LineItems)),
	}
	for _, li := range d.LineItems {
		item := dto.DeliveryLineItemResponse{
			ID:            li.ID.String(),
			ItemID:        li.ItemID.String(),
			SerialNumber:  li.SerialNumber,
			PricePerUnit:  li.PricePerUnit,
			OrderLineItem: uuidPtrString(li.OrderLineItemID),
		}
		if li.Item != nil {
			item.ItemName = li.Item.Name
		}
		resp.LineItems = append(resp.LineItems, item)
	}
	return resp
}

func ledgerEntryToResponse(e model.LedgerEntry) dto.LedgerEntryResponse {
	return dto.LedgerEntryResponse{
		ID:             e.ID.String(),
		LineItemID:     e.LineItemID.String(),
		LineItemType:   string(e.LineItemType),
		Counter:        string(e.Counter),
		Delta:          e.Delta,
		IdempotencyKey: e.IdempotencyKey,
		Reason:         e.Reason,
		Actor:          e.Actor,
		CreatedAt:      formatTime(e.CreatedAt),
	}
}
