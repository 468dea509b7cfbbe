package rtc

import (
	"strings"
	"sync"

	"github.com/dkeye/Campus/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Consumer forwards one producer's stream to a client over its receive transport.
type Consumer struct {
	id         string
	producerID string
	kind       core.MediaKind
	transport  *Transport
	sender     *webrtc.RTPSender
	out        *outTrack
	desc       core.ConsumerDescriptor
	logger     zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func newConsumer(t *Transport, p *Producer) (*Consumer, error) {
	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticRTP(p.codec.RTPCodecCapability, id, p.id)
	if err != nil {
		return nil, err
	}
	sender, err := t.router.engine.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, err
	}
	params := sender.GetParameters()
	if err := sender.Send(params); err != nil {
		_ = sender.Stop()
		return nil, err
	}

	c := &Consumer{
		id:         id,
		producerID: p.id,
		kind:       p.kind,
		transport:  t,
		sender:     sender,
		desc: core.ConsumerDescriptor{
			ID:            id,
			ProducerID:    p.id,
			Kind:          p.kind,
			RtpParameters: sendParameters(params, p.codec),
		},
		logger: t.logger.With().Str("consumer", id).Str("producer", p.id).Logger(),
	}
	c.out = p.relay.add(id, track)
	go c.readRTCP()
	c.logger.Info().Msg("consumer created")
	return c, nil
}

// readRTCP drains receiver reports so the interceptors keep running.
func (c *Consumer) readRTCP() {
	buf := make([]byte, 1500)
	for {
		if _, _, err := c.sender.Read(buf); err != nil {
			return
		}
	}
}

func sendParameters(params webrtc.RTPSendParameters, codec webrtc.RTPCodecParameters) core.RtpParameters {
	pt := codec.PayloadType
	for _, c := range params.Codecs {
		if strings.EqualFold(c.MimeType, codec.MimeType) {
			pt = c.PayloadType
			break
		}
	}
	out := core.RtpParameters{
		Codecs: []core.RtpCodecParameters{{
			MimeType:    codec.MimeType,
			PayloadType: uint8(pt),
			ClockRate:   codec.ClockRate,
			Channels:    codec.Channels,
			SDPFmtpLine: codec.SDPFmtpLine,
		}},
	}
	for _, enc := range params.Encodings {
		out.Encodings = append(out.Encodings, core.RtpEncoding{SSRC: uint32(enc.SSRC), RID: enc.RID})
	}
	return out
}

func (c *Consumer) ID() string { return c.id }

func (c *Consumer) ProducerID() string { return c.producerID }

func (c *Consumer) Kind() core.MediaKind { return c.kind }

func (c *Consumer) Descriptor() core.ConsumerDescriptor { return c.desc }

func (c *Consumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.out.markDelete()
	if err := c.sender.Stop(); err != nil {
		c.logger.Debug().Err(err).Msg("sender stop")
	}
	c.transport.removeConsumer(c.id)
	c.logger.Info().Msg("consumer closed")
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
