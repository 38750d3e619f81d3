package models

// Side: направление позиции/сигнала.
type Side string

const (
	SideNone  Side = ""
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite возвращает противоположную сторону (для закрытия).
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideNone
	}
}

// Sign: +1 для long, -1 для short, 0 если позиции нет.
func (s Side) Sign() int {
	switch s {
	case SideLong:
		return 1
	case SideShort:
		return -1
	default:
		return 0
	}
}

// OrderSide переводит сторону позиции в сторону ордера OKX ("buy"/"sell").
func (s Side) OrderSide() string {
	if s == SideShort {
		return "sell"
	}
	return "buy"
}

func (s Side) String() string {
	if s == SideNone {
		return "none"
	}
	return string(s)
}

// Action: итог одного тика контура управления.
type Action string

const (
	ActionNone     Action = "none"
	ActionSkip     Action = "skip"
	ActionOpen     Action = "open"
	ActionClose    Action = "close"
	ActionHold     Action = "hold"
	ActionHalted   Action = "halted"
	ActionRejected Action = "rejected"
)

// Decision: что решил контур на тике и почему.
type Decision struct {
	Action Action
	Side   Side
	Reason string
}
