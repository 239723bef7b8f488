package webrtc

import (
	"strings"
	"sync"

	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"

	"github.com/ridgewood-io/webrtc/pkg/rtp"
)

// MediaEngine is the codec and header extension table negotiation
// draws from. It is not process-global: every API carries its own, so
// codec policy stays per-connection.
type MediaEngine struct {
	mu sync.RWMutex

	audioCodecs []RTPCodecParameters
	videoCodecs []RTPCodecParameters

	headerExtensions []mediaEngineHeaderExtension
}

type mediaEngineHeaderExtension struct {
	uri               string
	id                int
	allowedDirections []RTPTransceiverDirection
	kinds             []RTPCodecType
}

// RegisterCodec adds a codec for one kind. Payload types must be
// unique per engine.
func (m *MediaEngine) RegisterCodec(codec RTPCodecParameters, kind RTPCodecType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case RTPCodecTypeAudio:
		m.audioCodecs = append(m.audioCodecs, codec)
	case RTPCodecTypeVideo:
		m.videoCodecs = append(m.videoCodecs, codec)
	default:
		return ErrUnknownType
	}
	return nil
}

// RegisterHeaderExtension adds an a=extmap entry offered for the given
// kinds.
func (m *MediaEngine) RegisterHeaderExtension(uri string, kinds ...RTPCodecType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headerExtensions = append(m.headerExtensions, mediaEngineHeaderExtension{
		uri:   uri,
		id:    len(m.headerExtensions) + 1,
		kinds: kinds,
	})
	return nil
}

// RegisterDefaultCodecs installs the codec set a browser would offer:
// Opus and G.722 for audio; VP8, VP9 and H.264 with RTX for video; and
// the mid, abs-send-time, transport-cc and rid extensions.
func (m *MediaEngine) RegisterDefaultCodecs() error { //nolint:funlen
	for _, codec := range []RTPCodecParameters{
		{
			RTPCodecCapability: RTPCodecCapability{MimeTypeOpus, 48000, 2, "minptime=10;useinbandfec=1", nil},
			PayloadType:        111,
		},
		{
			RTPCodecCapability: RTPCodecCapability{MimeTypeG722, 8000, 0, "", nil},
			PayloadType:        9,
		},
	} {
		if err := m.RegisterCodec(codec, RTPCodecTypeAudio); err != nil {
			return err
		}
	}

	videoFeedback := []RTCPFeedback{
		{Type: TypeRTCPFBGoogREMB},
		{Type: TypeRTCPFBTransportCC},
		{Type: TypeRTCPFBCCM, Parameter: "fir"},
		{Type: TypeRTCPFBNACK},
		{Type: TypeRTCPFBNACK, Parameter: "pli"},
	}
	for _, pair := range []struct {
		codec RTPCodecParameters
		rtxPT PayloadType
	}{
		{
			RTPCodecParameters{
				RTPCodecCapability: RTPCodecCapability{MimeTypeVP8, 90000, 0, "", videoFeedback},
				PayloadType:        96,
			},
			97,
		},
		{
			RTPCodecParameters{
				RTPCodecCapability: RTPCodecCapability{MimeTypeVP9, 90000, 0, "profile-id=0", videoFeedback},
				PayloadType:        98,
			},
			99,
		},
		{
			RTPCodecParameters{
				RTPCodecCapability: RTPCodecCapability{MimeTypeH264, 90000, 0,
					"level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f", videoFeedback},
				PayloadType: 102,
			},
			121,
		},
	} {
		if err := m.RegisterCodec(pair.codec, RTPCodecTypeVideo); err != nil {
			return err
		}
		rtx := RTPCodecParameters{
			RTPCodecCapability: RTPCodecCapability{
				MimeType:    MimeTypeRTX,
				ClockRate:   90000,
				SDPFmtpLine: "apt=" + itoa(int(pair.codec.PayloadType)),
			},
			PayloadType: pair.rtxPT,
		}
		if err := m.RegisterCodec(rtx, RTPCodecTypeVideo); err != nil {
			return err
		}
	}

	for _, ext := range []struct {
		uri   string
		kinds []RTPCodecType
	}{
		{rtp.ExtensionURIMID, []RTPCodecType{RTPCodecTypeAudio, RTPCodecTypeVideo}},
		{rtp.ExtensionURIAbsSendTime, []RTPCodecType{RTPCodecTypeVideo}},
		{rtp.ExtensionURITransportCC, []RTPCodecType{RTPCodecTypeAudio, RTPCodecTypeVideo}},
		{rtp.ExtensionURIRID, []RTPCodecType{RTPCodecTypeVideo}},
		{rtp.ExtensionURIRepairedRID, []RTPCodecType{RTPCodecTypeVideo}},
	} {
		if err := m.RegisterHeaderExtension(ext.uri, ext.kinds...); err != nil {
			return err
		}
	}
	return nil
}

// getCodecsByKind snapshots the registered codecs.
func (m *MediaEngine) getCodecsByKind(kind RTPCodecType) []RTPCodecParameters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch kind {
	case RTPCodecTypeAudio:
		return append([]RTPCodecParameters{}, m.audioCodecs...)
	case RTPCodecTypeVideo:
		return append([]RTPCodecParameters{}, m.videoCodecs...)
	}
	return nil
}

// getHeaderExtensions returns the extensions offered for a kind.
func (m *MediaEngine) getHeaderExtensions(kind RTPCodecType) []RTPHeaderExtensionParameter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RTPHeaderExtensionParameter
	for _, ext := range m.headerExtensions {
		for _, k := range ext.kinds {
			if k == kind {
				out = append(out, RTPHeaderExtensionParameter{URI: ext.uri, ID: ext.id})
				break
			}
		}
	}
	return out
}

// codecByMimeType finds a registered codec.
func (m *MediaEngine) codecByMimeType(mimeType string) (RTPCodecParameters, RTPCodecType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.audioCodecs {
		if strings.EqualFold(c.MimeType, mimeType) {
			return c, RTPCodecTypeAudio, nil
		}
	}
	for _, c := range m.videoCodecs {
		if strings.EqualFold(c.MimeType, mimeType) {
			return c, RTPCodecTypeVideo, nil
		}
	}
	return RTPCodecParameters{}, RTPCodecTypeUnknown, ErrCodecNotFound
}

// negotiateCodecs intersects the remote media section's codecs with
// the local table. The local ordering wins unless preferences reorder
// it; the remote payload type numbering is adopted so both sides talk
// about the same numbers.
func (m *MediaEngine) negotiateCodecs(kind RTPCodecType, remote []RTPCodecParameters, preferences []string) ([]RTPCodecParameters, error) {
	local := m.getCodecsByKind(kind)
	if len(preferences) > 0 {
		local = reorderByPreference(local, preferences)
	}

	var negotiated []RTPCodecParameters
	for _, l := range local {
		if strings.EqualFold(l.MimeType, MimeTypeRTX) {
			continue // matched through apt below
		}
		for _, r := range remote {
			if !codecMatches(l.RTPCodecCapability, r.RTPCodecCapability) {
				continue
			}
			// adopt the remote numbering
			match := l
			match.PayloadType = r.PayloadType
			negotiated = append(negotiated, match)

			if rtx, ok := findRTX(remote, r.PayloadType); ok {
				negotiated = append(negotiated, rtx)
			}
			break
		}
	}
	if len(negotiated) == 0 {
		return nil, errors.Wrap(ErrNoCommonCodec, kind.String())
	}
	return negotiated, nil
}

// findRTX locates the remote RTX codec repairing payload type apt.
func findRTX(remote []RTPCodecParameters, apt PayloadType) (RTPCodecParameters, bool) {
	want := "apt=" + itoa(int(apt))
	for _, r := range remote {
		if strings.EqualFold(r.MimeType, MimeTypeRTX) && strings.EqualFold(r.SDPFmtpLine, want) {
			return r, true
		}
	}
	return RTPCodecParameters{}, false
}

func reorderByPreference(codecs []RTPCodecParameters, preferences []string) []RTPCodecParameters {
	var out []RTPCodecParameters
	for _, p := range preferences {
		for _, c := range codecs {
			if strings.EqualFold(c.MimeType, p) {
				out = append(out, c)
			}
		}
	}
	// unpreferred codecs keep their relative order behind the rest
	for _, c := range codecs {
		seen := false
		for _, o := range out {
			if o.PayloadType == c.PayloadType {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, c)
		}
	}
	return out
}

// negotiateHeaderExtensions keeps the remote's id numbering for URIs
// both sides know.
func (m *MediaEngine) negotiateHeaderExtensions(kind RTPCodecType, remote []RTPHeaderExtensionParameter) []RTPHeaderExtensionParameter {
	local := m.getHeaderExtensions(kind)
	var out []RTPHeaderExtensionParameter
	for _, r := range remote {
		for _, l := range local {
			if l.URI == r.URI {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// codecsFromMediaDescription parses the rtpmap/fmtp/rtcp-fb entries of
// a remote media section.
func codecsFromMediaDescription(media *sdp.MediaDescription) ([]RTPCodecParameters, error) {
	var out []RTPCodecParameters
	for _, format := range media.MediaName.Formats {
		pt, err := atoi(format)
		if err != nil {
			continue // non-numeric formats (e.g. webrtc-datachannel)
		}

		codec, err := codecFromRtpmap(media, format)
		if err != nil {
			continue
		}
		codec.PayloadType = PayloadType(pt) //nolint:gosec
		out = append(out, codec)
	}
	return out, nil
}

func codecFromRtpmap(media *sdp.MediaDescription, format string) (RTPCodecParameters, error) {
	var codec RTPCodecParameters
	found := false
	for _, a := range media.Attributes {
		switch a.Key {
		case "rtpmap":
			name, value, ok := strings.Cut(a.Value, " ")
			if !ok || name != format {
				continue
			}
			parts := strings.Split(value, "/")
			if len(parts) < 2 {
				continue
			}
			clockRate, err := atoi(parts[1])
			if err != nil {
				continue
			}
			codec.MimeType = media.MediaName.Media + "/" + parts[0]
			codec.ClockRate = uint32(clockRate) //nolint:gosec
			if len(parts) > 2 {
				if ch, err := atoi(parts[2]); err == nil {
					codec.Channels = uint16(ch) //nolint:gosec
				}
			}
			found = true
		case "fmtp":
			name, value, ok := strings.Cut(a.Value, " ")
			if ok && name == format {
				codec.SDPFmtpLine = value
			}
		case "rtcp-fb":
			name, value, _ := strings.Cut(a.Value, " ")
			if name != format {
				continue
			}
			fbType, fbParam, _ := strings.Cut(value, " ")
			codec.RTCPFeedback = append(codec.RTCPFeedback, RTCPFeedback{Type: fbType, Parameter: fbParam})
		}
	}
	if !found {
		return codec, ErrCodecNotFound
	}
	return codec, nil
}

// extensionsFromMediaDescription parses a=extmap entries.
func extensionsFromMediaDescription(media *sdp.MediaDescription) []RTPHeaderExtensionParameter {
	var out []RTPHeaderExtensionParameter
	for _, a := range media.Attributes {
		if a.Key != "extmap" {
			continue
		}
		idPart, uri, ok := strings.Cut(a.Value, " ")
		if !ok {
			continue
		}
		// strip a direction suffix ("2/recvonly")
		idRaw, _, _ := strings.Cut(idPart, "/")
		id, err := atoi(idRaw)
		if err != nil {
			continue
		}
		out = append(out, RTPHeaderExtensionParameter{URI: uri, ID: id})
	}
	return out
}
