// Package util provides auxiliary functions internally used in webrtc package
package util

import (
	"strings"

	"github.com/pion/randutil"
)

const alphaNumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandSeq generates a random sequence of ASCII letters (a-z, A-Z) of the
// requested length, drawn from crypto/rand through randutil. The ICE
// agent generates its ufrag/pwd itself and does not call it.
func RandSeq(n int) string {
	seq, err := randutil.GenerateCryptoRandomString(n, alphaNumeric)
	if err != nil {
		// randutil only fails to read from crypto/rand, which is not a
		// condition callers can recover from.
		panic(err)
	}
	return seq
}

// FlattenErrs flattens multiple errors into one
func FlattenErrs(errs []error) error {
	errs2 := []error{}
	for _, e := range errs {
		if e != nil {
			errs2 = append(errs2, e)
		}
	}
	if len(errs2) == 0 {
		return nil
	}
	return multiError(errs2)
}

type multiError []error

func (me multiError) Error() string {
	var errstrings []string

	for _, err := range me {
		if err != nil {
			errstrings = append(errstrings, err.Error())
		}
	}

	if len(errstrings) == 0 {
		return "multiError must contain multiple error but is empty"
	}

	return strings.Join(errstrings, "\n")
}

func (me multiError) Is(err error) bool {
	for _, e := range me {
		if e == err {
			return true
		}
		if me2, ok := e.(multiError); ok {
			if me2.Is(err) {
				return true
			}
		}
	}
	return false
}
