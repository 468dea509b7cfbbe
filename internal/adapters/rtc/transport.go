package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/Campus/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Transport is one ICE-lite + DTLS leg to a client, carrying producers or consumers.
type Transport struct {
	id     string
	router *Router
	logger zerolog.Logger

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	desc     core.TransportDescriptor

	// ready closes once DTLS is up; receivers cannot start before that.
	ready  chan struct{}
	failed chan struct{}

	mu        sync.Mutex
	started   bool
	closed    bool
	producers map[string]*Producer
	consumers map[string]*Consumer
	onClose   []func()
}

func newTransport(ctx context.Context, r *Router, id string) (*Transport, error) {
	api := r.engine.api
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, err
	}

	gathered := make(chan struct{})
	var once sync.Once
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(gathered) })
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}

	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}

	t := &Transport{
		id:       id,
		router:   r,
		logger:   log.With().Str("module", "rtc").Str("router", r.id).Str("transport", id).Logger(),
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
		desc: core.TransportDescriptor{
			ID:             id,
			IceParameters:  fromICEParameters(iceParams),
			IceCandidates:  fromICECandidates(candidates),
			DtlsParameters: fromDTLSParameters(dtlsParams),
		},
		ready:     make(chan struct{}),
		failed:    make(chan struct{}),
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}
	t.logger.Debug().Int("candidates", len(candidates)).Msg("transport created")
	return t, nil
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Descriptor() core.TransportDescriptor { return t.desc }

// Connect accepts the client's ICE and DTLS parameters and returns at once. The
// handshake finishes in the background; a failed handshake closes the transport.
func (t *Transport) Connect(_ context.Context, params core.ConnectParams) error {
	if params.IceParameters == nil {
		return ErrNoIceParameters
	}
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return ErrTransportClosed
	case t.started:
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	remoteICE := webrtc.ICEParameters{
		UsernameFragment: params.IceParameters.UsernameFragment,
		Password:         params.IceParameters.Password,
	}
	remoteDTLS := toDTLSParameters(params.DtlsParameters)
	go t.handshake(remoteICE, remoteDTLS)
	return nil
}

func (t *Transport) handshake(remoteICE webrtc.ICEParameters, remoteDTLS webrtc.DTLSParameters) {
	role := webrtc.ICERoleControlled
	if err := t.ice.Start(t.gatherer, remoteICE, &role); err != nil {
		t.logger.Warn().Err(err).Msg("ice start failed")
		close(t.failed)
		t.Close()
		return
	}
	if err := t.dtls.Start(remoteDTLS); err != nil {
		t.logger.Warn().Err(err).Msg("dtls start failed")
		close(t.failed)
		t.Close()
		return
	}
	t.logger.Info().Msg("transport connected")
	close(t.ready)
}

func (t *Transport) waitReady(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	case <-t.failed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Produce(ctx context.Context, kind core.MediaKind, params core.RtpParameters) (core.Producer, error) {
	codec, clientCodec, ok := routerCodec(params)
	if !ok || codecType(codec.MimeType) != rtpCodecType(kind) {
		return nil, ErrUnknownCodec
	}
	if len(params.Encodings) == 0 {
		return nil, ErrNoEncodings
	}
	if t.Closed() {
		return nil, ErrTransportClosed
	}
	if err := t.waitReady(ctx); err != nil {
		return nil, err
	}

	p, err := newProducer(t, kind, codec, clientCodec, params.Encodings[0])
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		p.Close()
		return nil, ErrTransportClosed
	}
	t.producers[p.id] = p
	t.mu.Unlock()

	if !t.router.addProducer(p) {
		p.Close()
		return nil, ErrRouterClosed
	}
	p.OnClose(func() {
		t.router.removeProducer(p.id)
		t.mu.Lock()
		delete(t.producers, p.id)
		t.mu.Unlock()
	})
	p.start()
	return p, nil
}

// Consume does not wait for the handshake: the client connects a receive transport only
// after it has seen its first consumer.
func (t *Transport) Consume(_ context.Context, producerID string, caps core.RtpCapabilities) (core.Consumer, error) {
	p := t.router.producer(producerID)
	if p == nil || p.Closed() {
		return nil, core.ErrProducerNotFound
	}
	if !supports(caps, p.codec.RTPCodecCapability) {
		return nil, core.ErrCannotConsume
	}
	if t.Closed() {
		return nil, ErrTransportClosed
	}

	c, err := newConsumer(t, p)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		c.Close()
		return nil, ErrTransportClosed
	}
	t.consumers[c.id] = c
	t.mu.Unlock()
	return c, nil
}

func (t *Transport) removeConsumer(id string) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}

func (t *Transport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		go fn()
		return
	}
	t.onClose = append(t.onClose, fn)
}

// Close stops everything carried by the transport before tearing down DTLS and ICE.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	callbacks := t.onClose
	t.onClose = nil
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}
	if err := t.dtls.Stop(); err != nil {
		t.logger.Debug().Err(err).Msg("dtls stop")
	}
	if err := t.ice.Stop(); err != nil {
		t.logger.Debug().Err(err).Msg("ice stop")
	}
	if err := t.gatherer.Close(); err != nil {
		t.logger.Debug().Err(err).Msg("gatherer close")
	}
	t.router.removeTransport(t.id)
	t.logger.Info().Msg("transport closed")

	for _, fn := range callbacks {
		fn()
	}
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
