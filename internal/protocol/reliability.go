package protocol

// Reliability is the type of message ordering, sequencing that a message in raknet can be delivered with.
// MCPE always uses the Reliable Ordered message type.
type Reliability uint8

const (
	Unreliable Reliability = iota
	UnreliableSequenced
	Reliable
	ReliableOrdered
	ReliableSequenced
	UnreliableWithAckReceipt
	ReliableWithAckReceipt
	ReliableOrderedWithAckReceipt
)

// Returns whether the value is one of the eight reliabilities that fit the three header bits.
func (r Reliability) Valid() bool {
	return r <= ReliableOrderedWithAckReceipt
}

// Returns whether the reliability is of type Reliable.
func (r Reliability) Reliable() bool {
	switch r {
	case Reliable, ReliableOrdered, ReliableSequenced, ReliableWithAckReceipt, ReliableOrderedWithAckReceipt:
		return true
	default:
		return false
	}
}

// Returns whether the reliability is of type sequenced or ordered, that is whether frames carry
// an order index and an order channel.
func (r Reliability) SequencedOrdered() bool {
	switch r {
	case ReliableSequenced, UnreliableSequenced, ReliableOrdered, ReliableOrderedWithAckReceipt:
		return true
	default:
		return false
	}
}

// Returns whether the reliability is of type sequenced
func (r Reliability) Sequenced() bool {
	switch r {
	case ReliableSequenced, UnreliableSequenced:
		return true
	default:
		return false
	}
}

// Returns whether the reliability is of type ordered
func (r Reliability) Ordered() bool {
	switch r {
	case ReliableOrdered, ReliableOrderedWithAckReceipt:
		return true
	default:
		return false
	}
}

func (r Reliability) String() string {
	switch r {
	case Unreliable:
		return "Unreliable"
	case UnreliableSequenced:
		return "UnreliableSequenced"
	case Reliable:
		return "Reliable"
	case ReliableOrdered:
		return "ReliableOrdered"
	case ReliableSequenced:
		return "ReliableSequenced"
	case UnreliableWithAckReceipt:
		return "UnreliableWithAckReceipt"
	case ReliableWithAckReceipt:
		return "ReliableWithAckReceipt"
	case ReliableOrderedWithAckReceipt:
		return "ReliableOrderedWithAckReceipt"
	default:
		return "Invalid"
	}
}
