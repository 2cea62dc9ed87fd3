package shared

// Reason represents an entry or exit reason.
type Reason int

const (
	TargetHit Reason = iota
	StopLossHit
	TrendReversal
	BullishRegime
	BearishRegime
	StrongTrendAlignment
	MACDConfirmation
	MomentumAlignment
)

// String stringifies the provided reason.
func (r Reason) String() string {
	switch r {
	case TargetHit:
		return "target hit"
	case StopLossHit:
		return "stop loss hit"
	case TrendReversal:
		return "trend reversal"
	case BullishRegime:
		return "bullish regime"
	case BearishRegime:
		return "bearish regime"
	case StrongTrendAlignment:
		return "strong trend alignment"
	case MACDConfirmation:
		return "macd confirmation"
	case MomentumAlignment:
		return "momentum alignment"
	default:
		return "unknown"
	}
}

// Direction represents market direction.
type Direction int

const (
	Long Direction = iota
	Short
)

// String stringifies the provided direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}
