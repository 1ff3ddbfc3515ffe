// Package split divides a produced quantity between the inspection path and
// the direct-to-packaging path.
package split

import (
	"fmt"

	"prodflow/internal/core/apperror"
)

// MinInspectionBatch is the smallest partial lot that may be routed to
// inspection. Below it the caller must send nothing or everything.
const MinInspectionBatch = 20

// Split is the result of dividing a production total.
type Split struct {
	Inspection int64
	Packaging  int64
}

// Total returns Inspection + Packaging.
func (s Split) Total() int64 {
	return s.Inspection + s.Packaging
}

// Divide splits total pieces, sending inspection of them to inspection.
func Divide(total, inspection int64) (Split, error) {
	if total <= 0 {
		return Split{}, apperror.NewInvalidQuantity("produced quantity must be greater than zero").
			WithDetail("total", total)
	}
	if inspection < 0 {
		return Split{}, apperror.NewInvalidQuantity("inspection quantity cannot be negative").
			WithDetail("inspection", inspection)
	}
	if inspection > total {
		return Split{}, apperror.NewInvalidQuantity("inspection quantity cannot exceed produced quantity").
			WithDetail("total", total).
			WithDetail("inspection", inspection)
	}

	packaging := total - inspection
	if packaging > 0 && inspection > 0 && inspection < MinInspectionBatch {
		return Split{}, apperror.NewInvalidQuantity(
			fmt.Sprintf("partial inspection lots must have at least %d pieces; send 0 or all %d", MinInspectionBatch, total)).
			WithDetail("total", total).
			WithDetail("inspection", inspection).
			WithDetail("min_inspection_batch", MinInspectionBatch)
	}

	return Split{Inspection: inspection, Packaging: packaging}, nil
}
