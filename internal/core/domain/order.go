package domain

type Order struct {
	ID       string
	TenantID string
	Number   string
	Lines    []OrderLine
}

type OrderLine struct {
	ItemID   string
	Quantity int
}

type LineStatus string

const (
	LineStatusReserved   LineStatus = "reserved"
	LineStatusPartial    LineStatus = "partial"
	LineStatusUnreserved LineStatus = "unreserved"
)

// LineStatusFor classifies how much of an ordered quantity is held.
func LineStatusFor(ordered, reserved int) LineStatus {
	switch {
	case reserved <= 0:
		return LineStatusUnreserved
	case reserved >= ordered:
		return LineStatusReserved
	default:
		return LineStatusPartial
	}
}
