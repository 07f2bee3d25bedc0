// Package j1939 holds the SAE J1939 identifiers derived from CAN frame ids.
package j1939

const (
	PGNOffset = 8
	PGNMask   = 0x3FFFF
	// InvalidPGN is one bit past the 18-bit PGN field, so it never collides
	// with a real parameter group.
	InvalidPGN = 0x40000
	// InvalidSPN marks a signal without a suspect parameter number.
	InvalidSPN = 0

	// SingleFrameCapacity is the largest payload carried by one classic CAN frame.
	SingleFrameCapacity = 8

	priorityOffset = 26
	priorityMask   = 0x1C000000
	pdu2Threshold  = 240
	broadcastAddr  = 0xFF
)

// PGN returns the parameter group field of id for extended frames and
// InvalidPGN for standard ones. For PDU1 groups the low byte still carries
// the destination address; Parse strips it.
func PGN(id uint32, extended bool) uint32 {
	if !extended {
		return InvalidPGN
	}
	return (id >> PGNOffset) & PGNMask
}

// Priority returns the 3-bit message priority of an extended id.
func Priority(id uint32) uint8 {
	return uint8((id & priorityMask) >> priorityOffset)
}

// Header is the decoded view of a 29-bit J1939 identifier.
type Header struct {
	PGN         uint32
	Priority    uint8
	Source      uint8
	Destination uint8
}

// PDU2 reports whether the group is broadcast only (PDU format >= 240).
func (h Header) PDU2() bool { return (h.PGN>>8)&0xFF >= pdu2Threshold }

// Parse splits an extended id into its J1939 fields. PDU1 groups carry a
// destination address in the PDU specific byte, which is not part of the PGN.
func Parse(id uint32) Header {
	h := Header{
		Priority: Priority(id),
		Source:   uint8(id),
	}
	pduFormat := uint8(id >> 16)
	pduSpecific := uint8(id >> 8)
	dataPage := (id >> 24) & 0x3 // reserved + data page
	pgn := dataPage<<16 | uint32(pduFormat)<<8
	if pduFormat < pdu2Threshold {
		h.Destination = pduSpecific
		h.PGN = pgn
	} else {
		h.Destination = broadcastAddr
		h.PGN = pgn | uint32(pduSpecific)
	}
	return h
}
