// Package rtc is the in-process media engine: ORTC routers on top of pion.
package rtc

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/dkeye/Campus/internal/core"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/interceptor/pkg/gcc"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrEngineClosed    = errors.New("media engine closed")
	ErrRouterClosed    = errors.New("router closed")
	ErrTransportClosed = errors.New("transport closed")
	ErrNoIceParameters = errors.New("remote ice parameters required")
	ErrAlreadyStarted  = errors.New("transport already connected")
	ErrUnknownCodec    = errors.New("no router codec matches rtp parameters")
	ErrNoEncodings     = errors.New("rtp parameters carry no encodings")
)

var (
	_ core.MediaEngine = (*Engine)(nil)
	_ core.Router      = (*Router)(nil)
	_ core.Transport   = (*Transport)(nil)
	_ core.Producer    = (*Producer)(nil)
	_ core.Consumer    = (*Consumer)(nil)
)

type Config struct {
	MinPort        uint16
	MaxPort        uint16
	ListenIP       string
	AnnouncedIP    string
	InitialBitrate int
	MinimumBitrate int
}

// Engine hands out routers that share one pion API (codecs, interceptors, ICE settings).
type Engine struct {
	api *webrtc.API

	mu      sync.Mutex
	routers map[string]*Router
	closed  bool

	died     chan error
	failOnce sync.Once
}

func NewEngine(cfg Config) (*Engine, error) {
	me := &webrtc.MediaEngine{}
	if err := registerCodecs(me); err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	congestion, err := cc.NewInterceptor(func() (cc.BandwidthEstimator, error) {
		return gcc.NewSendSideBWE(
			gcc.SendSideBWEInitialBitrate(cfg.InitialBitrate),
			gcc.SendSideBWEMinBitrate(cfg.MinimumBitrate),
		)
	})
	if err != nil {
		return nil, err
	}
	congestion.OnNewPeerConnection(func(id string, _ cc.BandwidthEstimator) {
		log.Debug().Str("module", "rtc").Str("id", id).Msg("bandwidth estimator ready")
	})
	ir.Add(congestion)
	if err := webrtc.ConfigureTWCCHeaderExtensionSender(me, ir); err != nil {
		return nil, err
	}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetLite(true)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	if cfg.MinPort != 0 || cfg.MaxPort != 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.MinPort, cfg.MaxPort); err != nil {
			return nil, err
		}
	}
	if ip := net.ParseIP(cfg.ListenIP); ip != nil && !ip.IsUnspecified() {
		se.SetIPFilter(func(candidate net.IP) bool { return candidate.Equal(ip) })
	}
	if cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	return &Engine{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(me),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		),
		routers: make(map[string]*Router),
		died:    make(chan error, 1),
	}, nil
}

func (e *Engine) CreateRouter(_ context.Context) (core.Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	r := newRouter(e, uuid.NewString())
	e.routers[r.id] = r
	log.Info().Str("module", "rtc").Str("router", r.id).Msg("router created")
	return r, nil
}

func (e *Engine) Died() <-chan error { return e.died }

// fail reports the engine as untrustworthy. Only the first failure is delivered.
func (e *Engine) fail(err error) {
	e.failOnce.Do(func() {
		log.Error().Str("module", "rtc").Err(err).Msg("media engine failure")
		e.died <- err
	})
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	delete(e.routers, id)
	e.mu.Unlock()
}

func (e *Engine) Routers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.routers)
}

func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	routers := make([]*Router, 0, len(e.routers))
	for _, r := range e.routers {
		routers = append(routers, r)
	}
	e.mu.Unlock()

	for _, r := range routers {
		r.Close()
	}
}
