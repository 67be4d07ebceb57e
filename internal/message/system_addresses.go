package message

import (
	"net"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
)

// The number of internal system addresses written after the peer address. Vanilla RakNet peers
// send 10 while MCPE peers send 20, so reads accept any count.
const SystemAddressCount = 20

// The two trailing timestamps that follow the system address list.
const timestampsSize = 8 + 8

var unspecifiedAddr = &net.UDPAddr{IP: net.IPv4zero, Port: 0}

// Skips every system address up to the trailing timestamps.
func readSystemAddresses(buf *buffer.Buffer) error {
	var addr net.UDPAddr

	for buf.Remaining() > timestampsSize {
		if err := buf.ReadAddr(&addr); err != nil {
			return err
		}
	}

	return nil
}

func writeSystemAddresses(buf *buffer.Buffer) error {
	for i := 0; i < SystemAddressCount; i++ {
		if err := buf.WriteAddr(unspecifiedAddr); err != nil {
			return err
		}
	}

	return nil
}
