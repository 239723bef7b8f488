// Package fmtp parses and compares the format-specific parameters of
// a=fmtp lines, the deciding input of codec matching during
// negotiation.
package fmtp

import (
	"strings"
)

// FMTP is a parsed parameter set for one payload type.
type FMTP interface {
	// MimeType returns the codec this parameter set belongs to.
	MimeType() string
	// Match reports whether two parameter sets describe the same codec
	// configuration.
	Match(other FMTP) bool
	// Parameter looks up a single key.
	Parameter(key string) (string, bool)
}

// Parse builds an FMTP from an a=fmtp value. The codec decides the
// comparison rules: H.264 compares profiles, VP9 profile ids, all
// others compare the parameters both sides declare.
func Parse(mimeType, line string) FMTP {
	parameters := map[string]string{}
	for _, p := range strings.Split(line, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key, value, _ := strings.Cut(p, "=")
		parameters[strings.ToLower(key)] = value
	}

	switch {
	case strings.EqualFold(mimeType, "video/h264"):
		return &h264FMTP{parameters: parameters}
	case strings.EqualFold(mimeType, "video/vp9"):
		return &vp9FMTP{parameters: parameters}
	default:
		return &genericFMTP{mimeType: mimeType, parameters: parameters}
	}
}

type genericFMTP struct {
	mimeType   string
	parameters map[string]string
}

func (f *genericFMTP) MimeType() string { return f.mimeType }

// Match for the generic case requires both sides to agree on every
// parameter both declare; a parameter only one side declares does not
// prevent a match.
func (f *genericFMTP) Match(b FMTP) bool {
	other, ok := b.(*genericFMTP)
	if !ok || !strings.EqualFold(f.mimeType, other.MimeType()) {
		return false
	}
	for k, v := range f.parameters {
		if ov, present := other.parameters[k]; present && !strings.EqualFold(ov, v) {
			return false
		}
	}
	for k, v := range other.parameters {
		if fv, present := f.parameters[k]; present && !strings.EqualFold(fv, v) {
			return false
		}
	}
	return true
}

func (f *genericFMTP) Parameter(key string) (string, bool) {
	v, ok := f.parameters[key]
	return v, ok
}

type h264FMTP struct {
	parameters map[string]string
}

func (f *h264FMTP) MimeType() string { return "video/h264" }

// profile extracts the first two octets of profile-level-id, the
// profile idc and constraint flags that decide decodability.
func (f *h264FMTP) profile() (string, bool) {
	p, ok := f.parameters["profile-level-id"]
	if !ok || len(p) < 4 {
		return "", false
	}
	return strings.ToLower(p[:4]), true
}

// Match for H.264 compares packetization mode and profile, ignoring
// the level, which endpoints may negotiate asymmetrically.
func (f *h264FMTP) Match(b FMTP) bool {
	other, ok := b.(*h264FMTP)
	if !ok {
		return false
	}
	if f.parameters["packetization-mode"] != other.parameters["packetization-mode"] {
		return false
	}
	fp, fok := f.profile()
	op, ook := other.profile()
	if fok != ook {
		return false
	}
	return fp == op
}

func (f *h264FMTP) Parameter(key string) (string, bool) {
	v, ok := f.parameters[key]
	return v, ok
}

type vp9FMTP struct {
	parameters map[string]string
}

func (f *vp9FMTP) MimeType() string { return "video/vp9" }

// Match for VP9 compares the profile id, defaulting absent values to
// profile 0.
func (f *vp9FMTP) Match(b FMTP) bool {
	other, ok := b.(*vp9FMTP)
	if !ok {
		return false
	}
	return f.profileID() == other.profileID()
}

func (f *vp9FMTP) profileID() string {
	if id, ok := f.parameters["profile-id"]; ok {
		return id
	}
	return "0"
}

func (f *vp9FMTP) Parameter(key string) (string, bool) {
	v, ok := f.parameters[key]
	return v, ok
}
