package rtc

import (
	"sync"

	"github.com/dkeye/Campus/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Producer is an inbound stream from one client, fanned out to consumers by its relay.
type Producer struct {
	id        string
	kind      core.MediaKind
	codec     webrtc.RTPCodecParameters
	transport *Transport
	receiver  *webrtc.RTPReceiver
	relay     *relay
	logger    zerolog.Logger

	mu      sync.Mutex
	closed  bool
	onClose []func()
}

func newProducer(t *Transport, kind core.MediaKind, codec webrtc.RTPCodecParameters, clientCodec core.RtpCodecParameters, enc core.RtpEncoding) (*Producer, error) {
	receiver, err := t.router.engine.api.NewRTPReceiver(rtpCodecType(kind), t.dtls)
	if err != nil {
		return nil, err
	}
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				RID:         enc.RID,
				SSRC:        webrtc.SSRC(enc.SSRC),
				PayloadType: webrtc.PayloadType(clientCodec.PayloadType),
			},
		}},
	})
	if err != nil {
		_ = receiver.Stop()
		return nil, err
	}

	id := uuid.NewString()
	logger := t.logger.With().Str("producer", id).Str("kind", string(kind)).Logger()
	return &Producer{
		id:        id,
		kind:      kind,
		codec:     codec,
		transport: t,
		receiver:  receiver,
		relay:     newRelay(receiver.Track(), logger),
		logger:    logger,
	}, nil
}

func (p *Producer) start() {
	go func() {
		p.relay.loop(p.transport.router.engine.fail)
		p.Close()
	}()
	p.logger.Info().Str("codec", p.codec.MimeType).Msg("producer started")
}

func (p *Producer) ID() string { return p.id }

func (p *Producer) Kind() core.MediaKind { return p.kind }

func (p *Producer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		go fn()
		return
	}
	p.onClose = append(p.onClose, fn)
}

func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	callbacks := p.onClose
	p.onClose = nil
	p.mu.Unlock()

	p.relay.markAllDelete()
	if err := p.receiver.Stop(); err != nil {
		p.logger.Debug().Err(err).Msg("receiver stop")
	}
	p.logger.Info().Msg("producer closed")
	for _, fn := range callbacks {
		fn()
	}
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
