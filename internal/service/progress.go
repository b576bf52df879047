package service

import "fmt"

// POProgress classifies a PO line item (or PO totals) from its counters.
func POProgress(original, ordered, waived int) string {
	remaining := original - ordered - waived
	switch {
	case remaining <= 0:
		return "Complete"
	case ordered > 0:
		return fmt.Sprintf("%d%% Ordered", ordered*100/original)
	case waived > 0:
		return "Partially Waived"
	}
	return "Not Started"
}

// OrderProgress classifies an order line item (or order totals).
func OrderProgress(original, delivered int) string {
	switch {
	case original-delivered <= 0:
		return "Fully Delivered"
	case delivered > 0:
		return fmt.Sprintf("%d%% Delivered", delivered*100/original)
	}
	return "Not Started"
}
