package util

import (
	"errors"
	"regexp"
	"testing"
)

func TestRandSeq(t *testing.T) {
	if len(RandSeq(16)) != 16 {
		t.Errorf("RandSeq returned the wrong length")
	}

	isAlpha := regexp.MustCompile(`^[a-zA-Z]+$`).MatchString
	if !isAlpha(RandSeq(10)) {
		t.Errorf("RandSeq should be alphabetic only")
	}
	if RandSeq(16) == RandSeq(16) {
		t.Errorf("subsequent RandSeq calls should differ")
	}
}

func TestFlattenErrs(t *testing.T) {
	rawErrs := []error{
		errors.New("err1"), //nolint:goerr113
		errors.New("err2"), //nolint:goerr113
		errors.New("err3"), //nolint:goerr113
		errors.New("err4"), //nolint:goerr113
	}
	errs := FlattenErrs([]error{
		rawErrs[0],
		nil,
		rawErrs[1],
		FlattenErrs([]error{rawErrs[2]}),
	})

	if errs.Error() != "err1\nerr2\nerr3" {
		t.Errorf("unexpected string representation: %s", errs.Error())
	}

	me, ok := errs.(multiError) //nolint:errorlint
	if !ok {
		t.Fatal("FlattenErrs returned a non-multiError")
	}
	for i := 0; i < 3; i++ {
		if !me.Is(rawErrs[i]) {
			t.Errorf("%v should contain %v", errs, rawErrs[i])
		}
	}
	if me.Is(rawErrs[3]) {
		t.Errorf("%v should not contain %v", errs, rawErrs[3])
	}

	if FlattenErrs([]error{nil, nil}) != nil {
		t.Error("flattening only nils should return nil")
	}
}
