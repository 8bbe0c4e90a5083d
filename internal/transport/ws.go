package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/protocol"
)

// WSLink is a WebSocket connection to the relay. Writes are serialized by a
// mutex; reads happen on a single background goroutine.
type WSLink struct {
	cfg Config

	mu     sync.Mutex // guards conn and writes
	conn   net.Conn
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewWSLink creates an unopened WebSocket link.
func NewWSLink(cfg Config) *WSLink {
	return &WSLink{cfg: cfg, done: make(chan struct{})}
}

// Open dials the relay in the background.
func (l *WSLink) Open(ctx context.Context, sink func(protocol.Event)) error {
	if l.cfg.WSURL == "" {
		return errors.New("transport: empty websocket url")
	}
	go l.run(ctx, sink)
	return nil
}

func (l *WSLink) run(ctx context.Context, sink func(protocol.Event)) {
	dialer := ws.Dialer{Timeout: l.cfg.DialTimeout}
	conn, br, _, err := dialer.Dial(ctx, l.cfg.WSURL)
	if err != nil {
		if !l.isClosed() {
			sink(protocol.Disconnected{Err: errors.Wrapf(err, "transport: dial %s", l.cfg.WSURL)})
		}
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		conn.Close()
		return
	}
	l.conn = conn
	l.mu.Unlock()

	// Frames the server sent right after the handshake may already sit in
	// the dialer's buffer.
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
		defer ws.PutReader(br)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{r, &lockedWriter{l: l}}

	log.Info().Str("component", "transport").Str("url", l.cfg.WSURL).Msg("websocket connected")
	sink(protocol.Opened{})

	if l.cfg.PingInterval > 0 {
		go l.pingLoop()
	}
	l.readLoop(rw, sink)
}

// readLoop reads relay frames until the connection fails or is closed.
func (l *WSLink) readLoop(rw io.ReadWriter, sink func(protocol.Event)) {
	for {
		data, err := wsutil.ReadServerText(rw)
		if err != nil {
			if l.isClosed() {
				// Connection was intentionally closed.
				return
			}
			l.shutdown()
			sink(protocol.Disconnected{Err: errors.Wrap(err, "transport: read")})
			return
		}

		ev, err := protocol.ParseEvent(data)
		if err != nil {
			log.Warn().Err(err).Str("component", "transport").Msg("skipping relay frame")
			continue
		}
		if _, ok := ev.(protocol.Disconnected); ok {
			l.shutdown()
			sink(ev)
			return
		}
		sink(ev)
	}
}

func (l *WSLink) pingLoop() {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.write(ws.OpPing, nil); err != nil {
				log.Debug().Err(err).Str("component", "transport").Msg("ping failed")
				return
			}
		}
	}
}

// Send writes cmd as a text frame. It is goroutine-safe.
func (l *WSLink) Send(cmd protocol.Command) error {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	return l.write(ws.OpText, data)
}

func (l *WSLink) write(op ws.OpCode, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil || l.closed {
		return errors.Wrap(errs.ErrNotConnected, "transport: websocket not open")
	}
	if l.cfg.WriteTimeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
	}
	return wsutil.WriteClientMessage(l.conn, op, data)
}

// Close sends a close frame and closes the connection. It is safe to call
// multiple times.
func (l *WSLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.closed = true
		close(l.done)
		if l.conn != nil {
			_ = wsutil.WriteClientMessage(l.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
			err = l.conn.Close()
		}
	})
	return err
}

// shutdown releases the connection after a failure without marking the
// link as closed by the owner.
func (l *WSLink) shutdown() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		close(l.done)
		if l.conn != nil {
			l.conn.Close()
		}
		l.conn = nil
	})
}

func (l *WSLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// lockedWriter lets the control-frame replies issued by wsutil during reads
// share the write mutex with Send.
type lockedWriter struct {
	l *WSLink
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	if w.l.conn == nil {
		return 0, io.ErrClosedPipe
	}
	return w.l.conn.Write(p)
}

var _ Link = (*WSLink)(nil)
