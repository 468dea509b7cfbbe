package rtc

import (
	"strings"

	"github.com/dkeye/Campus/internal/core"
	"github.com/pion/webrtc/v4"
)

// Codecs every router offers. Clients negotiate against this list only.
var routerCodecs = []webrtc.RTPCodecParameters{
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	},
}

func codecType(mime string) webrtc.RTPCodecType {
	if strings.HasPrefix(strings.ToLower(mime), "audio/") {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

func rtpCodecType(kind core.MediaKind) webrtc.RTPCodecType {
	if kind == core.KindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

func registerCodecs(me *webrtc.MediaEngine) error {
	for _, c := range routerCodecs {
		if err := me.RegisterCodec(c, codecType(c.MimeType)); err != nil {
			return err
		}
	}
	return nil
}

func capabilities() core.RtpCapabilities {
	caps := core.RtpCapabilities{Codecs: make([]core.RtpCodecCapability, 0, len(routerCodecs))}
	for _, c := range routerCodecs {
		caps.Codecs = append(caps.Codecs, core.RtpCodecCapability{
			Kind:                 codecType(c.MimeType).String(),
			MimeType:             c.MimeType,
			ClockRate:            c.ClockRate,
			Channels:             c.Channels,
			PreferredPayloadType: uint8(c.PayloadType),
			SDPFmtpLine:          c.SDPFmtpLine,
		})
	}
	return caps
}

// routerCodec finds the router codec a producer's parameters refer to.
func routerCodec(params core.RtpParameters) (webrtc.RTPCodecParameters, core.RtpCodecParameters, bool) {
	for _, pc := range params.Codecs {
		for _, rc := range routerCodecs {
			if strings.EqualFold(pc.MimeType, rc.MimeType) && pc.ClockRate == rc.ClockRate {
				return rc, pc, true
			}
		}
	}
	return webrtc.RTPCodecParameters{}, core.RtpCodecParameters{}, false
}

// supports reports whether the client caps can decode codec.
func supports(caps core.RtpCapabilities, codec webrtc.RTPCodecCapability) bool {
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, codec.MimeType) && c.ClockRate == codec.ClockRate {
			return true
		}
	}
	return false
}

func fromICEParameters(p webrtc.ICEParameters) core.IceParameters {
	return core.IceParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		IceLite:          p.ICELite,
	}
}

func fromICECandidates(cands []webrtc.ICECandidate) []core.IceCandidate {
	out := make([]core.IceCandidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, core.IceCandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
		})
	}
	return out
}

func fromDTLSParameters(p webrtc.DTLSParameters) core.DtlsParameters {
	out := core.DtlsParameters{Role: p.Role.String()}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, core.DtlsFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func toDTLSParameters(p core.DtlsParameters) webrtc.DTLSParameters {
	out := webrtc.DTLSParameters{Role: webrtc.DTLSRoleAuto}
	switch p.Role {
	case "client":
		out.Role = webrtc.DTLSRoleClient
	case "server":
		out.Role = webrtc.DTLSRoleServer
	}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}
