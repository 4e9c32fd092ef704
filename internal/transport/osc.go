package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	osccodec "github.com/dshills/cuecontrol/internal/codec/osc"
	"github.com/dshills/cuecontrol/internal/logging"
)

// OSCServer receives OSC packets over UDP.
type OSCServer struct {
	addr    string
	handler EventHandler
	logger  *logging.Logger

	serving atomic.Bool

	mu    sync.Mutex
	ctx   context.Context
	local net.Addr
	ready chan struct{}
}

// maxDatagram is the largest UDP payload read in one call.
const maxDatagram = 65535

// NewOSCServer creates a server listening on addr, e.g. "0.0.0.0:53000".
func NewOSCServer(addr string, h EventHandler, opts ...Option) *OSCServer {
	o := buildOptions("osc", opts)
	return &OSCServer{
		addr:    addr,
		handler: h,
		logger:  o.logger,
		ctx:     context.Background(),
		ready:   make(chan struct{}),
	}
}

// Serve listens until ctx is cancelled. Malformed packets are logged and
// skipped. Packets are dispatched in arrival order. A server serves once;
// later calls return ErrAlreadyServing.
func (s *OSCServer) Serve(ctx context.Context) error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ctx = ctx
	s.local = conn.LocalAddr()
	s.mu.Unlock()
	close(s.ready)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	defer conn.Close()

	s.logger.Info("osc listening", zap.Stringer("addr", conn.LocalAddr()))
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}

		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			s.logger.Warn("malformed osc packet",
				zap.Stringer("from", from),
				zap.Int("bytes", n),
				zap.Error(err))
			continue
		}
		if packet == nil {
			s.logger.Debug("ignoring non-osc datagram",
				zap.Stringer("from", from),
				zap.Int("bytes", n))
			continue
		}
		s.Dispatch(packet)
	}
}

// Addr waits until the server listens and returns its local address.
func (s *OSCServer) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ready:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local, nil
}

// Dispatch delivers one parsed packet. Bundles are unpacked in order.
func (s *OSCServer) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	case *osc.Message:
		s.handleMessage(p)
	case *osc.Bundle:
		for _, m := range p.Messages {
			s.handleMessage(m)
		}
		for _, b := range p.Bundles {
			s.Dispatch(b)
		}
	}
}

func (s *OSCServer) handleMessage(msg *osc.Message) {
	id, values, err := osccodec.Decode(msg)
	if err != nil {
		s.logger.Warn("undecodable osc message",
			zap.String("address", msg.Address),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	deliver(ctx, s.handler, s.logger, osccodec.Protocol, id, values)
}
