package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"devicegateway/internal/broadcast"
	"devicegateway/internal/metrics"
	"devicegateway/internal/protocol/sinocastel"
)

type State int32

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// AckWriteError reports a failed acknowledgement write. The packet it answers
// has already been published.
type AckWriteError struct {
	Header string
	Err    error
}

func (e *AckWriteError) Error() string {
	return fmt.Sprintf("write ack for header %s: %v", e.Header, e.Err)
}

func (e *AckWriteError) Unwrap() error { return e.Err }

// Session owns one device connection from accept to close.
type Session struct {
	id         string
	conn       net.Conn
	remoteAddr string
	remotePort int
	publisher  broadcast.Publisher
	cfg        Config
	state      atomic.Int32
	log        *logrus.Entry
}

func NewSession(conn net.Conn, publisher broadcast.Publisher, cfg Config, logger *logrus.Entry) *Session {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultConfig().ReadBufferSize
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	host, port := splitAddr(conn.RemoteAddr())
	id := uuid.New().String()
	return &Session{
		id:         id,
		conn:       conn,
		remoteAddr: host,
		remotePort: port,
		publisher:  publisher,
		cfg:        cfg,
		log: logger.WithFields(logrus.Fields{
			"session": id,
			"remote":  conn.RemoteAddr().String(),
		}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Run publishes the connection lifecycle and handles frames until the
// connection ends. It closes the connection before returning.
func (s *Session) Run() {
	metrics.SessionOpened()
	defer metrics.SessionClosed()

	s.log.Info("New device connection")
	s.publish(broadcast.KindConnected, broadcast.SeverityInfo,
		fmt.Sprintf("New TCP client connected: %s:%d", s.remoteAddr, s.remotePort), s.peer())

	var err error
	if s.cfg.Framing == FramingLength {
		err = s.scanFrames()
	} else {
		err = s.readFrames()
	}
	if err != nil {
		s.log.WithError(err).Error("Socket error")
		s.publish(broadcast.KindSocketError, broadcast.SeverityError, "Socket error: "+err.Error(), s.peer())
	}

	s.conn.Close()
	s.state.Store(int32(StateClosed))
	s.log.Info("Device disconnected")
	s.publish(broadcast.KindDisconnected, broadcast.SeverityInfo, "TCP client disconnected", s.peer())
}

// readFrames hands every read to the decoder as one packet.
func (s *Session) readFrames() error {
	buffer := make([]byte, s.cfg.ReadBufferSize)
	for {
		if err := s.armReadDeadline(); err != nil {
			return err
		}
		n, err := s.conn.Read(buffer)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buffer[:n])
			if herr := s.HandleFrame(frame); herr != nil {
				return herr
			}
		}
		if err != nil {
			if endOfStream(err) {
				return nil
			}
			return err
		}
	}
}

// scanFrames splits the stream on the protocol length header.
func (s *Session) scanFrames() error {
	scanner := bufio.NewScanner(deadlineReader{s})
	scanner.Buffer(make([]byte, s.cfg.ReadBufferSize), 64*1024)
	scanner.Split(sinocastel.SplitFrames)
	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())
		if err := s.HandleFrame(frame); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !endOfStream(err) {
		return err
	}
	return nil
}

// HandleFrame decodes one frame, publishes the outcome and writes any
// acknowledgement. Only connection errors are returned; a bad frame is
// reported to subscribers and the session carries on.
func (s *Session) HandleFrame(frame []byte) error {
	packet, err := sinocastel.Decode(frame)
	if err != nil {
		metrics.RecordFrame("decode_error")
		s.log.WithError(err).WithField("bytes", len(frame)).Warn("Failed to decode frame")
		s.publish(broadcast.KindDecodeError, broadcast.SeverityError, "Decode error: "+err.Error(), nil)
		return nil
	}

	metrics.RecordFrame("decoded")
	s.log.WithFields(logrus.Fields{
		"imei":   packet.IMEI,
		"header": packet.Header,
	}).Debug("Frame decoded")
	s.publish(broadcast.KindPacket, broadcast.SeveritySuccess, "Packet decoded", broadcast.PacketData{
		IMEI:         packet.IMEI,
		PacketHeader: packet.Header,
		Raw:          packet.Hex(),
		Remote:       s.conn.RemoteAddr().String(),
	})

	ack := sinocastel.BuildAck(packet)
	if ack == nil {
		return nil
	}
	if err := s.writeAck(ack); err != nil {
		metrics.RecordAck(packet.Header, false)
		return &AckWriteError{Header: packet.Header, Err: err}
	}
	metrics.RecordAck(packet.Header, true)
	s.publish(broadcast.KindAckSent, broadcast.SeveritySuccess,
		fmt.Sprintf("Ack sent for header %s", packet.Header), nil)
	return nil
}

func (s *Session) writeAck(ack []byte) error {
	if s.cfg.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := s.conn.Write(ack)
	return err
}

func (s *Session) armReadDeadline() error {
	if s.cfg.ReadTimeout <= 0 {
		return nil
	}
	return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
}

func (s *Session) publish(kind broadcast.Kind, severity broadcast.Severity, message string, data any) {
	e := broadcast.NewEvent(kind, severity, message, data)
	e.SessionID = s.id
	s.publisher.Publish(e)
}

func (s *Session) peer() broadcast.PeerData {
	return broadcast.PeerData{Address: s.remoteAddr, Port: s.remotePort}
}

type deadlineReader struct{ s *Session }

func (r deadlineReader) Read(p []byte) (int, error) {
	if err := r.s.armReadDeadline(); err != nil {
		return 0, err
	}
	return r.s.conn.Read(p)
}

func endOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

func splitAddr(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}
