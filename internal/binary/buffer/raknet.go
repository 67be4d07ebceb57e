package buffer

import (
	"bytes"
	"fmt"
	"math"
	"net"

	"github.com/DaylightNebula/RakNet/internal/binary/byteorder"
)

// Magic is the offline message identifier that every unconnected RakNet message carries. It is
// validated on read but never interpreted.
var Magic = [16]byte{0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe, 0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78}

// Size of an encoded IPv4 and IPv6 address including the version byte.
const (
	AddrSizeV4 = 1 + 4 + 2
	AddrSizeV6 = 1 + 2 + 2 + 4 + 16 + 4
)

// The address family written for IPv6 addresses. RakNet writes the Windows value of AF_INET6.
const afInet6 uint16 = 23

// Reads the offline message magic and returns ErrMalformedMessage if it does not match.
func (b *Buffer) ReadMagic() error {
	p, err := b.Next(len(Magic))
	if err != nil {
		return err
	}

	if !bytes.Equal(p, Magic[:]) {
		return fmt.Errorf("%w: offline message magic mismatch", ErrMalformedMessage)
	}
	return nil
}

// Writes the offline message magic.
func (b *Buffer) WriteMagic() error {
	return b.Write(Magic[:])
}

// Reads a string prefixed with its unsigned 16-bit big endian length.
func (b *Buffer) ReadString() (string, error) {
	n, err := b.ReadUint16(byteorder.BigEndian)
	if err != nil {
		return "", err
	}

	p, err := b.Next(int(n))
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// Writes a string prefixed with its unsigned 16-bit big endian length.
func (b *Buffer) WriteString(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string of %d bytes exceeds the length prefix", len(s))
	}

	if err := b.WriteUint16(uint16(len(s)), byteorder.BigEndian); err != nil {
		return err
	}
	return b.Write([]byte(s))
}

// Reads a RakNet system address into addr. IPv4 octets are stored inverted, IPv6 addresses
// follow the sockaddr_in6 layout.
func (b *Buffer) ReadAddr(addr *net.UDPAddr) error {
	version, err := b.ReadUint8()
	if err != nil {
		return err
	}

	switch version {
	case 4:
		p, err := b.Next(4)
		if err != nil {
			return err
		}

		ip := make(net.IP, 4)
		for i := range ip {
			ip[i] = ^p[i]
		}

		port, err := b.ReadUint16(byteorder.BigEndian)
		if err != nil {
			return err
		}

		addr.IP = ip
		addr.Port = int(port)
		addr.Zone = ""
	case 6:
		// Address family
		if err := b.Shift(2); err != nil {
			return err
		}

		port, err := b.ReadUint16(byteorder.BigEndian)
		if err != nil {
			return err
		}

		// Flow info
		if err := b.Shift(4); err != nil {
			return err
		}

		ip := make(net.IP, net.IPv6len)
		if err := b.Read(ip); err != nil {
			return err
		}

		// Scope ID
		if err := b.Shift(4); err != nil {
			return err
		}

		addr.IP = ip
		addr.Port = int(port)
		addr.Zone = ""
	default:
		return fmt.Errorf("%w: unknown address version %d", ErrMalformedMessage, version)
	}

	return nil
}

// Writes addr as a RakNet system address. A nil address or IP is written as 0.0.0.0:0.
func (b *Buffer) WriteAddr(addr *net.UDPAddr) error {
	var ip net.IP
	var port int

	if addr != nil {
		ip = addr.IP
		port = addr.Port
	}

	if ip == nil {
		ip = net.IPv4zero
	}

	if ip4 := ip.To4(); ip4 != nil {
		if err := b.WriteUint8(4); err != nil {
			return err
		}

		for _, octet := range ip4 {
			if err := b.WriteUint8(^octet); err != nil {
				return err
			}
		}

		return b.WriteUint16(uint16(port), byteorder.BigEndian)
	}

	if err := b.WriteUint8(6); err != nil {
		return err
	}

	if err := b.WriteUint16(afInet6, byteorder.LittleEndian); err != nil {
		return err
	}

	if err := b.WriteUint16(uint16(port), byteorder.BigEndian); err != nil {
		return err
	}

	if err := b.WriteUint32(0, byteorder.BigEndian); err != nil {
		return err
	}

	if err := b.Write(ip.To16()); err != nil {
		return err
	}

	return b.WriteUint32(0, byteorder.BigEndian)
}
