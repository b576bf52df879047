package service

import (
	"context"

	"fulfillment/internal/dto"
	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
)

// FulfillmentService projects ledger counters into read views joining
// PO -> Order -> Delivery. Reads are plain snapshot reads.
type FulfillmentService interface {
	POStatus(ctx context.Context, poID uuid.UUID) (*dto.POFulfillmentStatus, error)
	OrderStatus(ctx context.Context, orderID uuid.UUID) (*dto.OrderFulfillmentStatus, error)
	BuildPOStatus(ctx context.Context, po *model.PurchaseOrder) (*dto.POFulfillmentStatus, error)
	BuildOrderStatus(ctx context.Context, o *model.Order) (*dto.OrderFulfillmentStatus, error)
}

type fulfillmentService struct {
	poRepo       repository.PurchaseOrderRepository
	orderRepo    repository.OrderRepository
	deliveryRepo repository.DeliveryRepository
}

func NewFulfillmentService(
	poRepo repository.PurchaseOrderRepository,
	orderRepo repository.OrderRepository,
	deliveryRepo repository.DeliveryRepository,
) FulfillmentService {
	return &fulfillmentService{poRepo: poRepo, orderRepo: orderRepo, deliveryRepo: deliveryRepo}
}

func (s *fulfillmentService) POStatus(ctx context.Context, poID uuid.UUID) (*dto.POFulfillmentStatus, error) {
	po, err := s.poRepo.FindByID(ctx, poID)
	if err != nil {
		return nil, notFound(err, "purchase order")
	}
	return s.BuildPOStatus(ctx, po)
}

func (s *fulfillmentService) BuildPOStatus(ctx context.Context, po *model.PurchaseOrder) (*dto.POFulfillmentStatus, error) {
	lineIDs := make([]uuid.UUID, 0, len(po.LineItems))
	for _, li := range po.LineItems {
		lineIDs = append(lineIDs, li.ID)
	}
	downstream, err := s.orderRepo.FindLineItemsByPOLineItemIDs(ctx, lineIDs)
	if err != nil {
		return nil, err
	}
	refs := make(map[uuid.UUID][]dto.OrderReference, len(lineIDs))
	for _, ol := range downstream {
		ref := dto.OrderReference{
			OrderID:         ol.OrderID.String(),
			OrderLineItemID: ol.ID.String(),
			Quantity:        ol.Quantity,
		}
		if ol.Order != nil {
			ref.OrderStatus = string(ol.Order.Status)
		}
		refs[*ol.POLineItemID] = append(refs[*ol.POLineItemID], ref)
	}

	status := &dto.POFulfillmentStatus{
		PurchaseOrderID: po.ID.String(),
		Status:          string(po.Status),
		LineItems:       make([]dto.POLineFulfillment, 0, len(po.LineItems)),
	}
	for _, li := range po.LineItems {
		orders := refs[li.ID]
		if orders == nil {
			orders = []dto.OrderReference{}
		}
		status.LineItems = append(status.LineItems, dto.POLineFulfillment{
			LineItemID:        li.ID.String(),
			ItemID:            li.ItemID.String(),
			OriginalQuantity:  li.OriginalQuantity,
			OrderedQuantity:   li.OrderedQuantity,
			WaivedQuantity:    li.WaivedQuantity,
			RemainingQuantity: li.Remaining(),
			Progress:          POProgress(li.OriginalQuantity, li.OrderedQuantity, li.WaivedQuantity),
			Orders:            orders,
		})
		status.TotalOriginalQuantity += li.OriginalQuantity
		status.TotalOrderedQuantity += li.OrderedQuantity
		status.TotalWaivedQuantity += li.WaivedQuantity
		status.TotalRemainingQuantity += li.Remaining()
	}
	status.Progress = POProgress(status.TotalOriginalQuantity, status.TotalOrderedQuantity, status.TotalWaivedQuantity)
	return status, nil
}

func (s *fulfillmentService) OrderStatus(ctx context.Context, orderID uuid.UUID) (*dto.OrderFulfillmentStatus, error) {
	o, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	return s.BuildOrderStatus(ctx, o)
}

func (s *fulfillmentService) BuildOrderStatus(ctx context.Context, o *model.Order) (*dto.OrderFulfillmentStatus, error) {
	lineIDs := make([]uuid.UUID, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		lineIDs = append(lineIDs, li.ID)
	}
	units, err := s.deliveryRepo.FindLineItemsByOrderLineItemIDs(ctx, lineIDs)
	if err != nil {
		return nil, err
	}
	refs := make(map[uuid.UUID][]dto.DeliveryReference, len(lineIDs))
	for _, u := range units {
		ref := dto.DeliveryReference{
			DeliveryID:         u.DeliveryID.String(),
			DeliveryLineItemID: u.ID.String(),
			SerialNumber:       u.SerialNumber,
		}
		if u.Delivery != nil {
			ref.ShipDate = u.Delivery.ShipDate.Format(dateLayout)
			ref.DeliveryStatus = string(u.Delivery.Status)
		}
		refs[*u.OrderLineItemID] = append(refs[*u.OrderLineItemID], ref)
	}

	status := &dto.OrderFulfillmentStatus{
		OrderID:   o.ID.String(),
		Status:    string(o.Status),
		LineItems: make([]dto.OrderLineFulfillment, 0, len(o.LineItems)),
	}
	for _, li := range o.LineItems {
		deliveries := refs[li.ID]
		if deliveries == nil {
			deliveries = []dto.DeliveryReference{}
		}
		line := dto.OrderLineFulfillment{
			LineItemID:        li.ID.String(),
			ItemID:            li.ItemID.String(),
			OriginalQuantity:  li.Quantity,
			DeliveredQuantity: li.DeliveredQuantity,
			RemainingQuantity: li.Remaining(),
			Progress:          OrderProgress(li.Quantity, li.DeliveredQuantity),
			Deliveries:        deliveries,
		}
		if li.POLineItemID != nil {
			src := &dto.SourcePOReference{POLineItemID: li.POLineItemID.String()}
			if li.POLineItem != nil {
				src.PurchaseOrderID = li.POLineItem.PurchaseOrderID.String()
			} else if pl, err := s.poRepo.FindLineItem(ctx, nil, *li.POLineItemID); err == nil {
				src.PurchaseOrderID = pl.PurchaseOrderID.String()
			}
			line.SourcePO = src
		}
		status.LineItems = append(status.LineItems, line)
		status.TotalOriginalQuantity += li.Quantity
		status.TotalDeliveredQuantity += li.DeliveredQuantity
		status.TotalRemainingQuantity += li.Remaining()
	}
	status.Progress = OrderProgress(status.TotalOriginalQuantity, status.TotalDeliveredQuantity)
	return status, nil
}
