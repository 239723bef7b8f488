package rtcp

import "github.com/pkg/errors"

var (
	errBadVersion        = errors.New("rtcp: invalid packet version")
	errInvalidHeader     = errors.New("rtcp: invalid header")
	errPacketTooShort    = errors.New("rtcp: packet too short")
	errWrongType         = errors.New("rtcp: wrong packet type")
	errTooManyReports    = errors.New("rtcp: too many reports")
	errTooManyChunks     = errors.New("rtcp: too many chunks")
	errInvalidTotalLost  = errors.New("rtcp: invalid total lost count")
	errSDESTextTooLong   = errors.New("rtcp: sdes item text too long")
	errUniqueIdentifier  = errors.New("rtcp: remb unique identifier mismatch")
	errDeltaExceedsLimit = errors.New("rtcp: delta exceeds the encodable range")
	errEmptyCompound     = errors.New("rtcp: empty compound packet")
	errBadFirstPacket    = errors.New("rtcp: compound packet must begin with SR or RR")
	errMissingCNAME      = errors.New("rtcp: compound packet lacks a CNAME")
	errPacketBeforeCNAME = errors.New("rtcp: feedback packet precedes CNAME")
)
