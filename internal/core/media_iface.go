package core

import "context"

// MediaKind is what a producer carries. Screen shares travel as video.
type MediaKind string

const (
	KindAudio  MediaKind = "audio"
	KindVideo  MediaKind = "video"
	KindScreen MediaKind = "screen"
)

func (k MediaKind) Valid() bool {
	return k == KindAudio || k == KindVideo || k == KindScreen
}

// CodecKind maps the media kind onto the RTP codec family ("audio" or "video").
func (k MediaKind) CodecKind() string {
	if k == KindAudio {
		return "audio"
	}
	return "video"
}

type RtpCodecCapability struct {
	Kind                 string `json:"kind"`
	MimeType             string `json:"mimeType"`
	ClockRate            uint32 `json:"clockRate"`
	Channels             uint16 `json:"channels,omitempty"`
	PreferredPayloadType uint8  `json:"preferredPayloadType,omitempty"`
	SDPFmtpLine          string `json:"sdpFmtpLine,omitempty"`
}

type RtpCapabilities struct {
	Codecs []RtpCodecCapability `json:"codecs"`
}

type RtpCodecParameters struct {
	MimeType    string `json:"mimeType"`
	PayloadType uint8  `json:"payloadType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
}

type RtpEncoding struct {
	SSRC uint32 `json:"ssrc"`
	RID  string `json:"rid,omitempty"`
}

type RtpParameters struct {
	Codecs    []RtpCodecParameters `json:"codecs"`
	Encodings []RtpEncoding        `json:"encodings"`
}

type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DtlsParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

// TransportDescriptor is handed to the client so it can build the matching local transport.
type TransportDescriptor struct {
	ID             string         `json:"id"`
	IceParameters  IceParameters  `json:"iceParameters"`
	IceCandidates  []IceCandidate `json:"iceCandidates"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

// ConnectParams completes a transport handshake with the client's side.
type ConnectParams struct {
	DtlsParameters DtlsParameters
	IceParameters  *IceParameters
}

type ConsumerDescriptor struct {
	ID            string        `json:"id"`
	ProducerID    string        `json:"producerId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
}

// MediaEngine is the external media-routing capability.
// Died fires once if the engine's worker can no longer be trusted.
type MediaEngine interface {
	CreateRouter(ctx context.Context) (Router, error)
	Died() <-chan error
	Close()
}

// Router owns the transports of one voice room.
type Router interface {
	ID() string
	RtpCapabilities() RtpCapabilities
	CreateTransport(ctx context.Context) (Transport, error)
	// CanConsume reports whether caps can decode the given live producer.
	CanConsume(producerID string, caps RtpCapabilities) bool
	Close()
	Closed() bool
}

type Transport interface {
	ID() string
	Descriptor() TransportDescriptor
	Connect(ctx context.Context, params ConnectParams) error
	Produce(ctx context.Context, kind MediaKind, params RtpParameters) (Producer, error)
	Consume(ctx context.Context, producerID string, caps RtpCapabilities) (Consumer, error)
	// OnClose fires once, after the transport and everything on it is closed.
	OnClose(func())
	Close()
	Closed() bool
}

type Producer interface {
	ID() string
	Kind() MediaKind
	// OnClose fires once, whoever closed the producer.
	OnClose(func())
	Close()
	Closed() bool
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() MediaKind
	Descriptor() ConsumerDescriptor
	Close()
	Closed() bool
}
