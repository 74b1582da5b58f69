package orders

import "strings"

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

type Action string

const (
	ActionPay      Action = "pay"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

// satu-satunya transisi yang sah; selain ini -> INVALID_ORDER_STATUS
var transitions = map[Action]struct{ from, to Status }{
	ActionPay:      {StatusCreated, StatusPaid},
	ActionCancel:   {StatusCreated, StatusCancelled},
	ActionComplete: {StatusPaid, StatusCompleted},
}

// Next returns the status action leads to from the current one.
func Next(current Status, action Action) (Status, bool) {
	t, ok := transitions[action]
	if !ok || t.from != current {
		return "", false
	}
	return t.to, true
}

func CanTransition(from, to Status) bool {
	for _, t := range transitions {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusPaid, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// ParseStatusFilter turns a query value into a filter; unknown values mean no filter.
func ParseStatusFilter(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", false
	}
	return s, true
}
