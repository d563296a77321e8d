package domain

// Opcode names a side-effecting capability the host supplies to the executor.
type Opcode string

const (
	// OpSign signs the latest commitment. Args: commitment, optional key index.
	OpSign Opcode = "OP_SIGN"

	// OpSignAsIntermediary signs the intermediary digest of the latest commitment.
	OpSignAsIntermediary Opcode = "OP_SIGN_AS_INTERMEDIARY"

	// OpSend delivers the latest outbox message without waiting.
	OpSend Opcode = "IO_SEND"

	// OpSendAndWait delivers the latest outbox message and suspends the run
	// until exactly one reply is available.
	OpSendAndWait Opcode = "IO_SEND_AND_WAIT"

	// OpPersist acknowledges the agreed state. Args: channel map, signed commitment.
	OpPersist Opcode = "WRITE_COMMITMENT"
)
