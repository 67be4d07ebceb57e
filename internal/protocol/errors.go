package protocol

import "errors"

// This error is returned when the content of a connected datagram contradicts the protocol, such as
// a frame that misses an index its reliability requires. The sender of such a datagram is disconnected.
var ErrProtocolViolation = errors.New("protocol violation")

// This error is sent when a buffer does not start with the flag datagram as all
// raknet datagrams must have the datagram flag.
var ErrNotDatagram = errors.New("the buffer does not appear to have flag datagram")

// This error is sent when a datagram carrying frames was expected but an ACK or NACK receipt was found.
var ErrUnexpectedReceipt = errors.New("the datagram is an acknowledgement receipt")

// This error is sent when the raknet receipt record has an invalid record type value encoded.
var ErrRecordType = errors.New("an exception has occured while trying to parse the receipt record type")

// This error is sent when a receipt range covers more sequence numbers than fit a window.
var ErrRecordRange = errors.New("the receipt record range exceeds the window size")

// This error is sent when the datagram exceeds the maximum number of frames it is allowed to contain
var ErrFrameCount = errors.New("the datagram exceeds the maximum number of frames it is allowed to contain")
