package service

import (
	"context"
	"fmt"

	"fulfillment/internal/dto"

	"github.com/google/uuid"
)

// ReportRenderer writes a purchase order fulfillment report into dir and
// returns the file path.
type ReportRenderer func(po *dto.PurchaseOrderResponse, dir string) (string, error)

type ReportService interface {
	// PurchaseOrderReport renders the PO with its fulfillment status in the
	// given format ("pdf" or "xlsx").
	PurchaseOrderReport(ctx context.Context, poID uuid.UUID, format string) (string, error)
}

type reportService struct {
	pos        PurchaseOrderService
	renderers  map[string]ReportRenderer
	storageDir string
}

func NewReportService(pos PurchaseOrderService, renderers map[string]ReportRenderer, storageDir string) ReportService {
	return &reportService{pos: pos, renderers: renderers, storageDir: storageDir}
}

func (s *reportService) PurchaseOrderReport(ctx context.Context, poID uuid.UUID, format string) (string, error) {
	render, ok := s.renderers[format]
	if !ok {
		return "", fmt.Errorf("report format %q: %w", format, ErrNotFound)
	}
	po, err := s.pos.Get(ctx, poID)
	if err != nil {
		return "", err
	}
	return render(po, s.storageDir)
}
