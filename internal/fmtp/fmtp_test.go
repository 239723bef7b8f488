package fmtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenericMatch(t *testing.T) {
	a := Parse("audio/opus", "minptime=10;useinbandfec=1")
	b := Parse("audio/opus", "useinbandfec=1;minptime=10")
	c := Parse("audio/opus", "minptime=10;useinbandfec=0")

	assert.True(t, a.Match(b))
	assert.True(t, b.Match(a))
	assert.False(t, a.Match(c))

	// parameters only one side declares don't block a match
	d := Parse("audio/opus", "minptime=10")
	assert.True(t, a.Match(d))

	other := Parse("audio/pcmu", "")
	assert.False(t, a.Match(other))
}

func TestParameterLookup(t *testing.T) {
	f := Parse("audio/opus", "minptime=10;useinbandfec=1")
	v, ok := f.Parameter("minptime")
	assert.True(t, ok)
	assert.Equal(t, "10", v)
	_, ok = f.Parameter("missing")
	assert.False(t, ok)
}

func TestH264Match(t *testing.T) {
	a := Parse("video/h264", "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f")
	b := Parse("video/h264", "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e034")
	c := Parse("video/h264", "level-asymmetry-allowed=1;packetization-mode=0;profile-level-id=42e01f")
	d := Parse("video/h264", "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=640c1f")

	// same profile, different level: match
	assert.True(t, a.Match(b))
	// packetization mode differs: no match
	assert.False(t, a.Match(c))
	// different profile: no match
	assert.False(t, a.Match(d))
}

func TestVP9Match(t *testing.T) {
	defaulted := Parse("video/vp9", "")
	profile0 := Parse("video/vp9", "profile-id=0")
	profile2 := Parse("video/vp9", "profile-id=2")

	assert.True(t, defaulted.Match(profile0))
	assert.False(t, profile0.Match(profile2))
}
