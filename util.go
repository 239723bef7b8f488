package webrtc

import (
	"strconv"

	"github.com/pion/randutil"
)

func itoa(i int) string {
	return strconv.Itoa(i)
}

func atoi(s string) (int, error) {
	return strconv.Atoi(s)
}

var globalRand = randutil.NewMathRandomGenerator()

// randomSSRC draws a non-zero SSRC for a new stream.
func randomSSRC() uint32 {
	for {
		if ssrc := globalRand.Uint32(); ssrc != 0 {
			return ssrc
		}
	}
}
