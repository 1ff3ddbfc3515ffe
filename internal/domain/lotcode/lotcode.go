// Package lotcode builds traceable lot identifiers.
//
// A lot code is kept as a structured value and compared field by field;
// String renders it for operators, e.g.
//
//	19102026-1432-PED4512-INS-01-457
//	└─ base ──┘ └order┘ └tag┘ └seq┘ └ms┘
//
// The base token groups all lots of one production run. The trailing
// millisecond disambiguator separates two codes generated from the same
// stale sequence read.
package lotcode

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Purpose is the closed set of lot purposes.
type Purpose string

const (
	PurposeInspection Purpose = "inspection"
	PurposePackaging  Purpose = "packaging"
	PurposeExpedition Purpose = "expedition"
)

var purposeTags = map[Purpose]string{
	PurposeInspection: "INS",
	PurposePackaging:  "EMB",
	PurposeExpedition: "EXP",
}

// Tag returns the short marker used in rendered codes.
func (p Purpose) Tag() string {
	return purposeTags[p]
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	_, ok := purposeTags[p]
	return ok
}

func purposeFromTag(tag string) (Purpose, bool) {
	for p, t := range purposeTags {
		if t == tag {
			return p, true
		}
	}
	return "", false
}

const baseLayout = "02012006-1504"

// Code is a structured lot identifier.
type Code struct {
	Base          string
	OrderNumber   string
	Purpose       Purpose
	Sequence      int
	Disambiguator int
}

// BaseToken derives the run token from a timestamp (DDMMYYYY-HHMM).
func BaseToken(t time.Time) string {
	return t.Format(baseLayout)
}

// New builds a code for a fresh production run.
func New(orderNumber string, purpose Purpose, base string, seq int, at time.Time) Code {
	return Code{
		Base:          base,
		OrderNumber:   strings.TrimSpace(orderNumber),
		Purpose:       purpose,
		Sequence:      seq,
		Disambiguator: at.Nanosecond() / int(time.Millisecond),
	}
}

// Relabel keeps the run identity and assigns a new purpose and sequence.
func (c Code) Relabel(purpose Purpose, seq int, at time.Time) Code {
	return New(c.OrderNumber, purpose, c.Base, seq, at)
}

// IsZero reports whether c is the zero value.
func (c Code) IsZero() bool {
	return c == Code{}
}

// String renders the code for display.
func (c Code) String() string {
	if c.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s-%s-%s-%02d-%03d", c.Base, c.OrderNumber, c.Purpose.Tag(), c.Sequence, c.Disambiguator)
}

// Parse reads a rendered code back into its structure.
// Order numbers may themselves contain dashes.
func Parse(s string) (Code, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) < 6 {
		return Code{}, fmt.Errorf("lot code %q: expected base-order-tag-seq-ms", s)
	}

	n := len(parts)
	base := parts[0] + "-" + parts[1]
	if _, err := time.Parse(baseLayout, base); err != nil {
		return Code{}, fmt.Errorf("lot code %q: bad base token: %w", s, err)
	}

	purpose, ok := purposeFromTag(parts[n-3])
	if !ok {
		return Code{}, fmt.Errorf("lot code %q: unknown purpose tag %q", s, parts[n-3])
	}

	seq, err := strconv.Atoi(parts[n-2])
	if err != nil || seq < 0 {
		return Code{}, fmt.Errorf("lot code %q: bad sequence", s)
	}

	ms, err := strconv.Atoi(parts[n-1])
	if err != nil || ms < 0 || ms > 999 {
		return Code{}, fmt.Errorf("lot code %q: bad disambiguator", s)
	}

	order := strings.Join(parts[2:n-3], "-")
	if order == "" {
		return Code{}, fmt.Errorf("lot code %q: missing order number", s)
	}

	return Code{
		Base:          base,
		OrderNumber:   order,
		Purpose:       purpose,
		Sequence:      seq,
		Disambiguator: ms,
	}, nil
}

// NextSequence is the count-by-scan rule: one above the highest sequence
// already used for purpose among existing codes.
func NextSequence(existing []Code, purpose Purpose) int {
	maxSeq := 0
	for _, c := range existing {
		if c.Purpose == purpose && c.Sequence > maxSeq {
			maxSeq = c.Sequence
		}
	}
	return maxSeq + 1
}

// SequenceKey names the atomic counter for an order and purpose.
func SequenceKey(orderID string, purpose Purpose) string {
	return "lot:" + orderID + ":" + purpose.Tag()
}
