package rtcp

// A CompoundPacket is a sequence of RTCP packets transmitted as one
// datagram, constrained by RFC 3550 Section 6.1: it must begin with an
// SR or RR, and an SDES containing a CNAME must precede any other
// packet types.
type CompoundPacket []Packet

// Validate checks the compound packet constraints.
func (c CompoundPacket) Validate() error {
	if len(c) == 0 {
		return errEmptyCompound
	}

	switch c[0].(type) {
	case *SenderReport, *ReceiverReport:
	default:
		return errBadFirstPacket
	}

	for _, p := range c[1:] {
		switch pkt := p.(type) {
		case *ReceiverReport:
			// additional RRs may follow the first report
		case *SourceDescription:
			for _, chunk := range pkt.Chunks {
				for _, item := range chunk.Items {
					if item.Type == SDESCNAME {
						return nil
					}
				}
			}
			return errMissingCNAME
		default:
			return errPacketBeforeCNAME
		}
	}
	return errMissingCNAME
}

// CNAME returns the canonical name carried by the compound packet.
func (c CompoundPacket) CNAME() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	for _, p := range c {
		if sdes, ok := p.(*SourceDescription); ok {
			for _, chunk := range sdes.Chunks {
				for _, item := range chunk.Items {
					if item.Type == SDESCNAME {
						return item.Text, nil
					}
				}
			}
		}
	}
	return "", errMissingCNAME
}

// Header returns the header of the first packet.
func (c CompoundPacket) Header() Header {
	if len(c) == 0 {
		return Header{}
	}
	return c[0].Header()
}

// DestinationSSRC returns the SSRC of the first packet.
func (c CompoundPacket) DestinationSSRC() []uint32 {
	if len(c) == 0 {
		return nil
	}
	return c[0].DestinationSSRC()
}

// Marshal encodes the sequence after validating it.
func (c CompoundPacket) Marshal() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return Marshal([]Packet(c))
}

// Unmarshal decodes and validates a compound datagram.
func (c *CompoundPacket) Unmarshal(raw []byte) error {
	packets, err := Unmarshal(raw)
	if err != nil {
		return err
	}
	*c = packets
	return c.Validate()
}
