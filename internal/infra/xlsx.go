package infra

import (
	"fmt"
	"os"
	"path/filepath"

	"fulfillment/internal/dto"

	"github.com/xuri/excelize/v2"
)

const (
	sheetLines  = "Line Items"
	sheetOrders = "Orders"
)

// RenderPurchaseOrderXLSX matches service.ReportRenderer. The workbook has one
// row per PO line item and a second sheet listing the order lines drawing
// from each of them.
func RenderPurchaseOrderXLSX(po *dto.PurchaseOrderResponse, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("xlsx: create storage dir: %w", err)
	}
	filePath := filepath.Join(dir, fmt.Sprintf("po_%s.xlsx", po.ID))

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetLines); err != nil {
		return "", err
	}
	if _, err := f.NewSheet(sheetOrders); err != nil {
		return "", err
	}

	headings := []interface{}{"LineItemID", "ItemID", "Item", "PricePerUnit", "Original", "Ordered", "Waived", "Remaining", "Progress"}
	if err := f.SetSheetRow(sheetLines, "A1", &headings); err != nil {
		return "", err
	}

	lines := make(map[string]dto.POLineItemResponse, len(po.LineItems))
	for _, li := range po.LineItems {
		lines[li.ID] = li
	}

	fs := po.FulfillmentStatus
	if fs == nil {
		fs = &dto.POFulfillmentStatus{}
	}
	row := 2
	for _, lf := range fs.LineItems {
		li := lines[lf.LineItemID]
		values := []interface{}{
			lf.LineItemID, lf.ItemID, li.ItemName, li.PricePerUnit.StringFixed(2),
			lf.OriginalQuantity, lf.OrderedQuantity, lf.WaivedQuantity, lf.RemainingQuantity, lf.Progress,
		}
		if err := f.SetSheetRow(sheetLines, "A"+fmt.Sprint(row), &values); err != nil {
			return "", err
		}
		row++
	}
	totals := []interface{}{"Total", "", "", "", fs.TotalOriginalQuantity, fs.TotalOrderedQuantity, fs.TotalWaivedQuantity, fs.TotalRemainingQuantity, fs.Progress}
	if err := f.SetSheetRow(sheetLines, "A"+fmt.Sprint(row), &totals); err != nil {
		return "", err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", err
	}
	_ = f.SetCellStyle(sheetLines, "A1", "I1", bold)
	_ = f.SetCellStyle(sheetLines, "A"+fmt.Sprint(row), "I"+fmt.Sprint(row), bold)

	orderHeadings := []interface{}{"POLineItemID", "OrderID", "OrderLineItemID", "OrderStatus", "Quantity"}
	if err := f.SetSheetRow(sheetOrders, "A1", &orderHeadings); err != nil {
		return "", err
	}
	_ = f.SetCellStyle(sheetOrders, "A1", "E1", bold)
	row = 2
	for _, lf := range fs.LineItems {
		for _, ref := range lf.Orders {
			values := []interface{}{lf.LineItemID, ref.OrderID, ref.OrderLineItemID, ref.OrderStatus, ref.Quantity}
			if err := f.SetSheetRow(sheetOrders, "A"+fmt.Sprint(row), &values); err != nil {
				return "", err
			}
			row++
		}
	}

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("xlsx: write file: %w", err)
	}
	return filePath, nil
}
