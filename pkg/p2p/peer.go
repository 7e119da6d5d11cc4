package p2p

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/votem/internal/metrics"
)

const (
	readBufferSize = 4096
	maxFrameSize   = 32 << 20
	writeTimeout   = 10 * time.Second
	sendQueueSize  = 256
)

var (
	ErrPeerClosed    = errors.New("peer disconnected")
	ErrSendQueueFull = errors.New("peer send queue full")
)

type msgHandler func(*Peer, *Message)

// Peer is one live connection. Frames are read on a dedicated goroutine
// and handed to the handler in arrival order. Outbound frames are queued
// and written by a second goroutine so a slow reader on the far side never
// holds up handling.
type Peer struct {
	conn net.Conn

	// set for peers we dialed
	addr *PeerAddr

	handler msgHandler
	onClose func(*Peer)
	logger  *logrus.Entry

	out    chan []byte
	closed chan struct{}
	wDone  chan struct{}

	bufMu sync.Mutex
	buf   []byte

	stateMu sync.Mutex
	running bool

	closeOnce sync.Once
	done      chan struct{}
}

func newPeer(conn net.Conn, addr *PeerAddr, h msgHandler, onClose func(*Peer), logger *logrus.Entry) *Peer {
	p := &Peer{
		conn:    conn,
		addr:    addr,
		handler: h,
		onClose: onClose,
		running: true,
		out:     make(chan []byte, sendQueueSize),
		closed:  make(chan struct{}),
		wDone:   make(chan struct{}),
		done:    make(chan struct{}),
	}

	p.logger = logger.WithField("peer", p.String())

	return p
}

func (p *Peer) String() string {
	if p.addr != nil {
		return p.addr.String()
	}
	if p.conn != nil {
		return p.conn.RemoteAddr().String()
	}
	return "unknown"
}

// Addr is the dialed address, or nil for inbound peers.
func (p *Peer) Addr() *PeerAddr {
	return p.addr
}

func (p *Peer) Running() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	return p.running
}

// Done is closed once both the read and write loops have exited.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

func (p *Peer) start() {
	go p.writeLoop()
	go p.readLoop()
}

func (p *Peer) readLoop() {
	defer func() {
		p.Close()
		<-p.wDone
		if p.onClose != nil {
			p.onClose(p)
		}
		close(p.done)
	}()

	b := make([]byte, readBufferSize)

	for {
		n, err := p.conn.Read(b)
		if n > 0 {
			if ferr := p.feed(b[:n]); ferr != nil {
				p.logger.WithError(ferr).Warn("dropping peer")
				return
			}
		}

		if err != nil {
			if err != io.EOF && p.Running() {
				p.logger.WithError(err).Debug("reading from peer")
			}
			return
		}
	}
}

// feed appends data to the frame buffer and dispatches every complete
// frame. The trailing partial frame stays buffered.
func (p *Peer) feed(data []byte) error {
	p.bufMu.Lock()

	p.buf = append(p.buf, data...)

	var frames [][]byte
	for {
		i := bytes.IndexByte(p.buf, frameDelimiter)
		if i < 0 {
			break
		}

		frames = append(frames, p.buf[:i])
		p.buf = p.buf[i+1:]
	}

	rest := len(p.buf)
	if len(frames) > 0 {
		p.buf = append([]byte(nil), p.buf...)
	}

	p.bufMu.Unlock()

	for _, f := range frames {
		if len(bytes.TrimSpace(f)) == 0 {
			continue
		}

		msg, err := ParseMessage(f)
		if err != nil {
			metrics.MessagesReceived.WithLabelValues("malformed").Inc()
			p.logger.WithError(err).Warn("discarding frame")
			continue
		}

		p.handler(p, msg)
	}

	if rest > maxFrameSize {
		return errors.Errorf("frame exceeds %d bytes", maxFrameSize)
	}

	return nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (p *Peer) Buffered() int {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()

	return len(p.buf)
}

func (p *Peer) writeLoop() {
	defer close(p.wDone)

	for {
		select {
		case <-p.closed:
			return
		case d := <-p.out:
			if err := p.write(d); err != nil {
				if p.Running() {
					p.logger.WithError(err).Debug("send failed, disconnecting")
				}
				p.Close()
				return
			}
		}
	}
}

func (p *Peer) write(d []byte) error {
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return errors.Wrap(err, "setting write deadline")
	}

	if _, err := p.conn.Write(d); err != nil {
		return errors.Wrap(err, "writing frame")
	}

	return nil
}

// Send encodes m and queues it for writing. It never blocks; a full queue
// returns ErrSendQueueFull.
func (p *Peer) Send(m *Message) error {
	d, err := m.Encode()
	if err != nil {
		return err
	}

	if !p.Running() {
		return ErrPeerClosed
	}

	select {
	case <-p.closed:
		return ErrPeerClosed
	case p.out <- d:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Queued returns the number of frames waiting to be written.
func (p *Peer) Queued() int {
	return len(p.out)
}

// Close disconnects the peer. It is safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.stateMu.Lock()
		p.running = false
		p.stateMu.Unlock()

		close(p.closed)

		if p.conn != nil {
			p.conn.Close()
		}
	})
}
