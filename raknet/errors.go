package raknet

import "errors"

// This error is returned when a second handshake is completed for an address that already owns a
// connection. The listener answers such handshakes idempotently and never surfaces the error.
var ErrDuplicateSession = errors.New("a session already exists for the peer address")

// This error is recorded when a reliable datagram was retransmitted the maximum number of times
// without being acknowledged. The connection is closed with ReasonTimeout.
var ErrPathUnresponsive = errors.New("the peer did not acknowledge a datagram within the retry budget")

// This error is returned when a message is sent over a connection that has been closed.
var ErrConnectionClosed = errors.New("the connection is closed")

// This error is returned by the listener once it has been shut down.
var ErrServerClosed = errors.New("the listener is closed")

// This error is recorded when a handshake is refused because the listener is full.
var ErrTooManyConnections = errors.New("the listener does not accept more connections")

// This error is returned when a message needs more fragments than the listener accepts.
var ErrMessageTooLarge = errors.New("the message exceeds the maximum number of fragments")

// This error is returned when a message is sent with an ID that the protocol reserves.
var ErrReservedMessageID = errors.New("the message ID is reserved by the protocol")

// This error is returned when a message is sent with an invalid reliability or order channel.
var ErrInvalidReliability = errors.New("invalid reliability or order channel")
