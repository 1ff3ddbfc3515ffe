package balance

import (
	"prodflow/internal/core/apperror"
)

// Reason names one failed finalize condition.
type Reason string

const (
	ReasonIncompleteProduction Reason = "incomplete_production"
	ReasonPendingInspection    Reason = "pending_inspection"
	ReasonPackagingMismatch    Reason = "packaging_mismatch"
)

// CheckFinalize returns every failed condition, in a fixed order.
// An empty result means the order may be finalized.
func CheckFinalize(p Projection) []Reason {
	var reasons []Reason
	if p.ProducedPc != p.OrderedPc {
		reasons = append(reasons, ReasonIncompleteProduction)
	}
	if p.PendingInspection > 0 {
		reasons = append(reasons, ReasonPendingInspection)
	}
	if p.PackagedPc != p.ProducedPc {
		reasons = append(reasons, ReasonPackagingMismatch)
	}
	return reasons
}

// GuardFinalize wraps CheckFinalize into a FINALIZE_BLOCKED error.
func GuardFinalize(p Projection) error {
	reasons := CheckFinalize(p)
	if len(reasons) == 0 {
		return nil
	}
	names := make([]string, len(reasons))
	for i, r := range reasons {
		names[i] = string(r)
	}
	return apperror.NewFinalizeBlocked(names).
		WithDetail("ordered_pc", p.OrderedPc).
		WithDetail("produced_pc", p.ProducedPc).
		WithDetail("packaged_pc", p.PackagedPc).
		WithDetail("pending_inspection_lots", p.PendingInspection)
}
