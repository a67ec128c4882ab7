package syncer

import "fmt"

// Kind discriminates the three shapes of a sync outcome
type Kind int

const (
	KindNoConnection Kind = iota
	KindComplete
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNoConnection:
		return "no_connection"
	case KindComplete:
		return "complete"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Outcome is the result of a push or a full sync cycle. Counts are only
// meaningful for KindComplete and Message only for KindError.
type Outcome struct {
	Kind         Kind   `json:"kind"`
	SuccessCount int    `json:"successCount,omitempty"`
	FailureCount int    `json:"failureCount,omitempty"`
	Message      string `json:"message,omitempty"`
}

func NoConnection() Outcome { return Outcome{Kind: KindNoConnection} }

func Complete(success, failure int) Outcome {
	return Outcome{Kind: KindComplete, SuccessCount: success, FailureCount: failure}
}

func Failed(message string) Outcome { return Outcome{Kind: KindError, Message: message} }

func (o Outcome) String() string {
	switch o.Kind {
	case KindNoConnection:
		return "no connection"
	case KindComplete:
		return fmt.Sprintf("complete (%d synced, %d failed)", o.SuccessCount, o.FailureCount)
	default:
		return "error: " + o.Message
	}
}
