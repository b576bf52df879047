package infra

// pdf.go renders the purchase order fulfillment report with go-pdf/fpdf:
// header with status and dates, one row per line item with its counters and
// progress label, and a totals row. The file is written to dir/po_{id}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"

	"fulfillment/internal/dto"

	"github.com/go-pdf/fpdf"
)

// RenderPurchaseOrderPDF matches service.ReportRenderer.
func RenderPurchaseOrderPDF(po *dto.PurchaseOrderResponse, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	filePath := filepath.Join(dir, fmt.Sprintf("po_%s.pdf", po.ID))

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 20

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, "Purchase Order Fulfillment", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, "PO "+po.ID, "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 5, "Customer "+po.CustomerID, "", 1, "L", false, 0, "")
	start := "-"
	if po.StartDate != nil {
		start = *po.StartDate
	}
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Status %s   Start %s   Created %s", po.Status, start, po.CreatedAt), "", 1, "L", false, 0, "")
	if po.ClosedAt != nil {
		by := ""
		if po.ClosedBy != nil {
			by = " by " + *po.ClosedBy
		}
		pdf.CellFormat(contentW, 5, "Closed "+*po.ClosedAt+by, "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	// ── Line items ───────────────────────────────────────────────────────────
	widths := []float64{contentW * 0.30, contentW * 0.12, contentW * 0.12, contentW * 0.12, contentW * 0.12, contentW * 0.22}
	headers := []string{"Item", "Original", "Ordered", "Waived", "Remaining", "Progress"}
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range headers {
		align := "R"
		if i == 0 || i == len(headers)-1 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 6, h, "B", 0, align, false, 0, "")
	}
	pdf.Ln(-1)

	names := make(map[string]string, len(po.LineItems))
	for _, li := range po.LineItems {
		names[li.ID] = li.ItemName
	}

	pdf.SetFont("Helvetica", "", 9)
	if fs := po.FulfillmentStatus; fs != nil {
		for _, li := range fs.LineItems {
			name := names[li.LineItemID]
			if name == "" {
				name = li.ItemID
			}
			if len(name) > 40 {
				name = name[:39] + "..."
			}
			pdf.CellFormat(widths[0], 6, name, "", 0, "L", false, 0, "")
			pdf.CellFormat(widths[1], 6, fmt.Sprint(li.OriginalQuantity), "", 0, "R", false, 0, "")
			pdf.CellFormat(widths[2], 6, fmt.Sprint(li.OrderedQuantity), "", 0, "R", false, 0, "")
			pdf.CellFormat(widths[3], 6, fmt.Sprint(li.WaivedQuantity), "", 0, "R", false, 0, "")
			pdf.CellFormat(widths[4], 6, fmt.Sprint(li.RemainingQuantity), "", 0, "R", false, 0, "")
			pdf.CellFormat(widths[5], 6, li.Progress, "", 1, "L", false, 0, "")
		}

		// ── Totals ───────────────────────────────────────────────────────────
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(widths[0], 7, "Total", "T", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, fmt.Sprint(fs.TotalOriginalQuantity), "T", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, fmt.Sprint(fs.TotalOrderedQuantity), "T", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, fmt.Sprint(fs.TotalWaivedQuantity), "T", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 7, fmt.Sprint(fs.TotalRemainingQuantity), "T", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], 7, fs.Progress, "T", 1, "L", false, 0, "")
	}

	if c := po.Closure; c != nil && c.AdminOverride {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 8)
		reason := ""
		if c.OverrideReason != nil {
			reason = *c.OverrideReason
		}
		pdf.MultiCell(contentW, 4, "Closed with admin override: "+reason, "", "L", false)
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}
