package p2p

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	acceptDeadline = time.Second
)

// Server accepts inbound connections and hands them to onConn.
type Server struct {
	ln     *net.TCPListener
	onConn func(net.Conn)
	logger *logrus.Entry

	quit chan struct{}
	wg   sync.WaitGroup
}

func Listen(addr string, onConn func(net.Conn), logger *logrus.Entry) (*Server, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "resolving listen address")
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "listening")
	}

	s := &Server{
		ln:     ln,
		onConn: onConn,
		logger: logger,
		quit:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

func (s *Server) Addr() *net.TCPAddr {
	return s.ln.Addr().(*net.TCPAddr)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		if err := s.ln.SetDeadline(time.Now().Add(acceptDeadline)); err != nil {
			s.logger.WithError(err).Error("setting accept deadline")
			return
		}

		conn, err := s.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.WithError(err).Warn("accepting connection")
			continue
		}

		s.logger.WithField("remote", conn.RemoteAddr().String()).Debug("accepted connection")
		s.onConn(conn)
	}
}

// Close stops accepting and waits for the accept loop to exit.
func (s *Server) Close() error {
	close(s.quit)
	err := s.ln.Close()
	s.wg.Wait()

	return err
}
