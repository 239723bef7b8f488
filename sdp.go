package webrtc

import (
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/ridgewood-io/webrtc/internal/ice"
)

// This file renders local descriptions from negotiated state and
// digests remote ones. All SDP text handling is delegated to the
// external SDP codec; only the WebRTC-specific attribute vocabulary
// lives here.

const (
	sctpPort           = 5000
	sctpMaxMessageSize = 65536
	mediaSectionApp    = "application"
)

type mediaSection struct {
	id          string
	transceiver *RTPTransceiver
	data        bool
}

// remoteMedia is the digest of one remote media section.
type remoteMedia struct {
	mid        string
	kind       RTPCodecType
	direction  RTPTransceiverDirection
	codecs     []RTPCodecParameters
	extensions []RTPHeaderExtensionParameter

	ssrcs      []uint32
	fidGroups  map[uint32]uint32 // primary -> rtx
	rids       []string
	streamID   string
	trackID    string
	isData     bool
}

// remoteDescription is the digest of a whole remote description.
type remoteDescription struct {
	iceParams    ICEParameters
	fingerprints []DTLSFingerprint
	setupRole    DTLSRole
	candidates   []*ice.Candidate
	media        []remoteMedia
	hasData      bool
}

// parseRemoteDescription extracts everything negotiation needs.
func parseRemoteDescription(parsed *sdp.SessionDescription) (*remoteDescription, error) { //nolint:gocognit,gocyclo
	out := &remoteDescription{}

	sessionAttrs := map[string]string{}
	for _, a := range parsed.Attributes {
		sessionAttrs[a.Key] = a.Value
	}

	for _, media := range parsed.MediaDescriptions {
		rm := remoteMedia{
			kind:      NewRTPCodecType(media.MediaName.Media),
			fidGroups: map[uint32]uint32{},
			direction: RTPTransceiverDirectionSendrecv,
			isData:    media.MediaName.Media == mediaSectionApp,
		}

		getAttr := func(key string) (string, bool) {
			for _, a := range media.Attributes {
				if a.Key == key {
					return a.Value, true
				}
			}
			if v, ok := sessionAttrs[key]; ok {
				return v, true
			}
			return "", false
		}

		if ufrag, ok := getAttr("ice-ufrag"); ok && out.iceParams.UsernameFragment == "" {
			out.iceParams.UsernameFragment = ufrag
		}
		if pwd, ok := getAttr("ice-pwd"); ok && out.iceParams.Password == "" {
			out.iceParams.Password = pwd
		}
		if fp, ok := getAttr("fingerprint"); ok && len(out.fingerprints) == 0 {
			algorithm, value, found := strings.Cut(fp, " ")
			if found {
				out.fingerprints = append(out.fingerprints, DTLSFingerprint{
					Algorithm: algorithm,
					Value:     value,
				})
			}
		}
		if setup, ok := getAttr("setup"); ok && out.setupRole == DTLSRole(0) {
			switch setup {
			case "active":
				out.setupRole = DTLSRoleClient
			case "passive":
				out.setupRole = DTLSRoleServer
			default:
				out.setupRole = DTLSRoleAuto
			}
		}
		if mid, ok := getAttr("mid"); ok {
			rm.mid = mid
		}

		for _, a := range media.Attributes {
			switch a.Key {
			case "sendrecv", "sendonly", "recvonly", "inactive":
				rm.direction = NewRTPTransceiverDirection(a.Key)
			case "candidate":
				if c, err := ice.UnmarshalCandidate(a.Value); err == nil {
					out.candidates = append(out.candidates, c)
				}
			case "ssrc":
				ssrcRaw, rest, _ := strings.Cut(a.Value, " ")
				if ssrc, err := atoi(ssrcRaw); err == nil {
					known := false
					for _, s := range rm.ssrcs {
						if s == uint32(ssrc) { //nolint:gosec
							known = true
						}
					}
					if !known {
						rm.ssrcs = append(rm.ssrcs, uint32(ssrc)) //nolint:gosec
					}
					if msid, ok := strings.CutPrefix(rest, "msid:"); ok {
						if streamID, trackID, found := strings.Cut(msid, " "); found {
							rm.streamID, rm.trackID = streamID, trackID
						}
					}
				}
			case "ssrc-group":
				fields := strings.Fields(a.Value)
				if len(fields) == 3 && fields[0] == "FID" {
					primary, err1 := atoi(fields[1])
					repair, err2 := atoi(fields[2])
					if err1 == nil && err2 == nil {
						rm.fidGroups[uint32(primary)] = uint32(repair) //nolint:gosec
					}
				}
			case "rid":
				rid, _, _ := strings.Cut(a.Value, " ")
				rm.rids = append(rm.rids, rid)
			case "msid":
				if streamID, trackID, found := strings.Cut(a.Value, " "); found {
					rm.streamID, rm.trackID = streamID, trackID
				}
			}
		}

		if rm.isData {
			out.hasData = true
		} else {
			codecs, err := codecsFromMediaDescription(media)
			if err != nil {
				return nil, err
			}
			rm.codecs = codecs
			rm.extensions = extensionsFromMediaDescription(media)
		}
		out.media = append(out.media, rm)
	}

	if out.iceParams.UsernameFragment == "" || out.iceParams.Password == "" {
		return nil, ErrSessionDescriptionNoIceCredentials
	}
	if len(out.fingerprints) == 0 {
		return nil, ErrSessionDescriptionNoFingerprint
	}
	return out, nil
}

// populateSDP renders the local description.
func populateSDP( //nolint:gocognit,gocyclo,funlen
	sessionID uint64,
	sessionVersion uint64,
	iceParams ICEParameters,
	fingerprint string,
	candidates []ICECandidate,
	gatheringComplete bool,
	setup string,
	sections []mediaSection,
) *sdp.SessionDescription {
	d := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionVersion,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName:      "-",
		TimeDescriptions: []sdp.TimeDescription{{}},
	}

	bundleValue := "BUNDLE"
	for _, s := range sections {
		bundleValue += " " + s.id
	}
	d.Attributes = append(d.Attributes,
		sdp.Attribute{Key: "group", Value: bundleValue},
		sdp.Attribute{Key: "msid-semantic", Value: " WMS"},
	)

	appendTransport := func(m *sdp.MediaDescription) {
		m.Attributes = append(m.Attributes,
			sdp.Attribute{Key: "ice-ufrag", Value: iceParams.UsernameFragment},
			sdp.Attribute{Key: "ice-pwd", Value: iceParams.Password},
			sdp.Attribute{Key: "fingerprint", Value: "sha-256 " + fingerprint},
			sdp.Attribute{Key: "setup", Value: setup},
		)
		for _, c := range candidates {
			m.Attributes = append(m.Attributes, sdp.Attribute{Key: "candidate", Value: c.String()})
		}
		if gatheringComplete {
			m.Attributes = append(m.Attributes, sdp.Attribute{Key: "end-of-candidates"})
		}
	}

	for _, section := range sections {
		if section.data {
			m := &sdp.MediaDescription{
				MediaName: sdp.MediaName{
					Media:   mediaSectionApp,
					Port:    sdp.RangedPort{Value: 9},
					Protos:  []string{"UDP", "DTLS", "SCTP"},
					Formats: []string{"webrtc-datachannel"},
				},
				ConnectionInformation: &sdp.ConnectionInformation{
					NetworkType: "IN",
					AddressType: "IP4",
					Address:     &sdp.Address{Address: "0.0.0.0"},
				},
			}
			m.Attributes = append(m.Attributes,
				sdp.Attribute{Key: "mid", Value: section.id},
				sdp.Attribute{Key: "sctp-port", Value: itoa(sctpPort)},
				sdp.Attribute{Key: "max-message-size", Value: itoa(sctpMaxMessageSize)},
			)
			appendTransport(m)
			d.MediaDescriptions = append(d.MediaDescriptions, m)
			continue
		}

		t := section.transceiver
		codecs := t.getNegotiatedCodecs()
		m := &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:  t.Kind().String(),
				Port:   sdp.RangedPort{Value: 9},
				Protos: []string{"UDP", "TLS", "RTP", "SAVPF"},
			},
			ConnectionInformation: &sdp.ConnectionInformation{
				NetworkType: "IN",
				AddressType: "IP4",
				Address:     &sdp.Address{Address: "0.0.0.0"},
			},
		}
		m.Attributes = append(m.Attributes,
			sdp.Attribute{Key: "mid", Value: section.id},
			sdp.Attribute{Key: t.Direction().String()},
			sdp.Attribute{Key: "rtcp-mux"},
			sdp.Attribute{Key: "rtcp-rsize"},
		)

		for _, codec := range codecs {
			pt := itoa(int(codec.PayloadType))
			m.MediaName.Formats = append(m.MediaName.Formats, pt)

			_, codecName, _ := strings.Cut(codec.MimeType, "/")
			rtpmap := codecName + "/" + itoa(int(codec.ClockRate))
			if codec.Channels > 0 {
				rtpmap += "/" + itoa(int(codec.Channels))
			}
			m.Attributes = append(m.Attributes, sdp.Attribute{Key: "rtpmap", Value: pt + " " + rtpmap})
			if codec.SDPFmtpLine != "" {
				m.Attributes = append(m.Attributes, sdp.Attribute{Key: "fmtp", Value: pt + " " + codec.SDPFmtpLine})
			}
			for _, fb := range codec.RTCPFeedback {
				value := pt + " " + fb.Type
				if fb.Parameter != "" {
					value += " " + fb.Parameter
				}
				m.Attributes = append(m.Attributes, sdp.Attribute{Key: "rtcp-fb", Value: value})
			}
		}

		for _, ext := range t.extensionsForSDP() {
			m.Attributes = append(m.Attributes, sdp.Attribute{
				Key:   "extmap",
				Value: itoa(ext.ID) + " " + ext.URI,
			})
		}

		// announce outgoing streams
		direction := t.Direction()
		if sender := t.Sender(); sender != nil &&
			(direction == RTPTransceiverDirectionSendrecv || direction == RTPTransceiverDirectionSendonly) {
			track := sender.Track()
			trackID, streamID := "-", "-"
			if track != nil {
				trackID, streamID = track.ID(), track.StreamID()
			}
			ssrc := itoa(int(sender.SSRC()))
			rtxSSRC := itoa(int(sender.rtxSSRCValue()))

			m.Attributes = append(m.Attributes,
				sdp.Attribute{Key: "msid", Value: streamID + " " + trackID},
				sdp.Attribute{Key: "ssrc-group", Value: "FID " + ssrc + " " + rtxSSRC},
				sdp.Attribute{Key: "ssrc", Value: ssrc + " cname:" + trackID},
				sdp.Attribute{Key: "ssrc", Value: ssrc + " msid:" + streamID + " " + trackID},
				sdp.Attribute{Key: "ssrc", Value: rtxSSRC + " cname:" + trackID},
				sdp.Attribute{Key: "ssrc", Value: rtxSSRC + " msid:" + streamID + " " + trackID},
			)
		}

		appendTransport(m)
		d.MediaDescriptions = append(d.MediaDescriptions, m)
	}
	return d
}

// extensionsForSDP exposes the negotiated (or locally offered)
// extensions of a transceiver.
func (t *RTPTransceiver) extensionsForSDP() []RTPHeaderExtensionParameter {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]RTPHeaderExtensionParameter{}, t.negotiatedExtensions...)
}

func (t *RTPTransceiver) setNegotiatedExtensions(ext []RTPHeaderExtensionParameter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.negotiatedExtensions = ext
}
