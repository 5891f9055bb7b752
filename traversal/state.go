package traversal

// State is the per-traversal state machine: a traversal starts Walking the
// graph backward and either terminates at a subsidy sat (Done),
// resolves through a block's collected fees (InFees) before resuming
// Walking, or bottoms out at a synthetic input-free transaction
// (Degenerate).
type State int

const (
	// Walking is the default state: tracing an edge of the transaction graph
	// backward, one hop at a time.
	Walking State = iota
	// AtCoinbase is entered the instant the traversal cursor matches a
	// block's coinbase transaction id.
	AtCoinbase
	// Done is terminal: the sat was found within the block's subsidy.
	Done
	// InFees is entered when the sat's offset falls within the block's
	// collected fees rather than its subsidy; resolves back to Walking once
	// the paying transaction and its fee-local offset are found.
	InFees
	// Degenerate is terminal: the walk reached a transaction with no
	// spending inputs, a soft sentinel rather than a hard failure.
	Degenerate
)

func (s State) String() string {
	switch s {
	case Walking:
		return "walking"
	case AtCoinbase:
		return "at_coinbase"
	case Done:
		return "done"
	case InFees:
		return "in_fees"
	case Degenerate:
		return "degenerate"
	default:
		return "unknown"
	}
}
