package rtc

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateDelete
)

// rtpWriter is the consumer side of a relay; *webrtc.TrackLocalStaticRTP satisfies it.
type rtpWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// outTrack is a single outgoing copy of a producer's stream.
type outTrack struct {
	track rtpWriter
	state atomic.Int32
}

func (ot *outTrack) State() TrackState { return TrackState(ot.state.Load()) }

func (ot *outTrack) markDelete() { ot.state.Store(int32(TrackStateDelete)) }

// rtpSource is what a relay reads from; *webrtc.TrackRemote satisfies it.
type rtpSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// relay copies every packet of one producer into all of its consumers' tracks.
type relay struct {
	src    rtpSource
	logger zerolog.Logger

	mu        sync.RWMutex
	outTracks map[string]*outTrack
}

func newRelay(src rtpSource, logger zerolog.Logger) *relay {
	return &relay{
		src:       src,
		logger:    logger,
		outTracks: make(map[string]*outTrack),
	}
}

// loop runs until the source fails. A panic inside pion is reported through onPanic
// instead of taking the process down from a media goroutine.
func (r *relay) loop(onPanic func(error)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.markAllDelete()
			onPanic(fmt.Errorf("relay panic: %v", rec))
		}
	}()
	for {
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.logger.Debug().Msg("relay source ended")
			} else {
				r.logger.Info().Err(err).Msg("relay read stopped")
			}
			r.markAllDelete()
			return
		}
		r.forward(pkt)
	}
}

func (r *relay) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	var dirty []string
	for id, ot := range snapshot {
		if ot.State() == TrackStateDelete {
			dirty = append(dirty, id)
			continue
		}
		if err := ot.track.WriteRTP(pkt); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				r.logger.Debug().Str("consumer", id).Msg("consumer track closed")
			} else {
				r.logger.Warn().Err(err).Str("consumer", id).Msg("relay write failed")
			}
			ot.markDelete()
			dirty = append(dirty, id)
		}
	}

	if len(dirty) > 0 {
		r.cleanup(dirty)
	}
}

func (r *relay) cleanup(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		delete(r.outTracks, id)
	}
}

func (r *relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.markDelete()
	}
}

func (r *relay) add(id string, w rtpWriter) *outTrack {
	ot := &outTrack{track: w}
	r.mu.Lock()
	r.outTracks[id] = ot
	r.mu.Unlock()
	return ot
}

func (r *relay) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}
