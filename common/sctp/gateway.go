// Package sctp provides the stream gateway carrying NGAP, F1AP and E1AP
// PDUs over one-to-one SCTP associations. Each association has a control
// notifier (connection established / connection loss) and a data notifier
// (one PDU per call); kernel notifications are translated into control
// events and never mixed into the data path.
package sctp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ishidawataru/sctp"
	"go.uber.org/zap"

	"github.com/your-org/gnb/common/bytebuf"
)

// Payload protocol identifiers (IANA, network byte order on the wire).
const (
	PPIDNGAP uint32 = 60
	PPIDF1AP uint32 = 62
	PPIDE1AP uint32 = 64
)

// ErrTransport marks a send failure or a dropped association.
var ErrTransport = errors.New("sctp: transport failure")

// State is the association state.
type State int32

const (
	StateClosed State = iota
	StateBound
	StateListening
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateBound:
		return "bound"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// ControlNotifier receives association lifecycle events. Events are
// delivered on the gateway's receive goroutine.
type ControlNotifier interface {
	OnConnectionEstablished()
	OnConnectionLoss()
}

// DataNotifier receives one inbound PDU per call, in receive order.
type DataNotifier interface {
	OnNewPDU(*bytebuf.Buffer)
}

// Config describes one association.
type Config struct {
	// Name tags log lines, e.g. "ngap" or "f1ap".
	Name string
	// BindAddr is the local "host:port"; empty for ephemeral.
	BindAddr string
	// ConnectAddr is the peer "host:port" for client associations.
	ConnectAddr string
	// PPID is the payload protocol identifier in host order.
	PPID uint32
	// RxBufferSize bounds a single inbound message. Defaults to 9000.
	RxBufferSize int
}

// Association is one SCTP association.
type Association struct {
	cfg    Config
	id     string
	conn   *sctp.SCTPConn
	info   *sctp.SndRcvInfo
	state  atomic.Int32
	ctrl   ControlNotifier
	data   DataNotifier
	logger *zap.Logger

	closeOnce *sync.Once
}

func resolveAddr(hostport string) (*sctp.SCTPAddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("sctp: bad address %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("sctp: bad port %q: %w", portStr, err)
	}
	ip, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, fmt.Errorf("sctp: resolve %q: %w", host, err)
	}
	return &sctp.SCTPAddr{IPAddrs: []net.IPAddr{*ip}, Port: port}, nil
}

// Dial creates a client association and connects it. On success the control
// notifier receives connection-established (the library completes the
// association handshake, i.e. COMM_UP, before returning) and the receive
// loop starts.
func Dial(cfg Config, ctrl ControlNotifier, data DataNotifier, logger *zap.Logger) (*Association, error) {
	a := &Association{
		cfg:       cfg,
		id:        uuid.NewString(),
		ctrl:      ctrl,
		data:      data,
		logger:    logger,
		closeOnce: &sync.Once{},
	}
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Association) connect() error {
	raddr, err := resolveAddr(a.cfg.ConnectAddr)
	if err != nil {
		return err
	}
	var laddr *sctp.SCTPAddr
	if a.cfg.BindAddr != "" {
		laddr, err = resolveAddr(a.cfg.BindAddr)
		if err != nil {
			return err
		}
	}

	a.state.Store(int32(StateConnecting))
	conn, err := sctp.DialSCTP("sctp", laddr, raddr)
	if err != nil {
		a.state.Store(int32(StateClosed))
		return fmt.Errorf("%w: dial %s: %v", ErrTransport, a.cfg.ConnectAddr, err)
	}
	a.attach(conn)
	a.logger.Info("SCTP association established",
		zap.String("assoc", a.cfg.Name),
		zap.String("assoc_id", a.id),
		zap.String("peer", a.cfg.ConnectAddr),
	)
	return nil
}

func (a *Association) attach(conn *sctp.SCTPConn) {
	a.conn = conn
	a.info = &sctp.SndRcvInfo{Stream: 0, PPID: hostToNetPPID(a.cfg.PPID)}
	_ = conn.SubscribeEvents(sctp.SCTP_EVENT_DATA_IO | sctp.SCTP_EVENT_ASSOCIATION)
	a.state.Store(int32(StateConnected))
	a.closeOnce = &sync.Once{}
	if a.ctrl != nil {
		a.ctrl.OnConnectionEstablished()
	}
	go a.receiveLoop()
}

// Reconnect closes the current association, if any, and dials again.
func (a *Association) Reconnect() error {
	a.Close()
	return a.connect()
}

// State returns the current association state.
func (a *Association) State() State {
	return State(a.state.Load())
}

// Send transmits the buffer as one SCTP message on stream 0 with the
// configured PPID: a single segment is written as is, several segments are
// first copied into one contiguous payload. A failed send is logged and
// reported but not retried at this layer.
func (a *Association) Send(buf *bytebuf.Buffer) error {
	if a.State() != StateConnected {
		return fmt.Errorf("%w: association %s is %s", ErrTransport, a.cfg.Name, a.State())
	}
	// SCTP is message-oriented: the PDU must go out as one message, so
	// boundary-preserving segment writes need a contiguous view only when
	// there is more than one segment.
	segs := buf.Segments()
	payload := buf.Bytes()
	if len(segs) == 1 {
		payload = segs[0]
	}
	if _, err := a.conn.SCTPWrite(payload, a.info); err != nil {
		a.logger.Error("SCTP send failed",
			zap.String("assoc", a.cfg.Name),
			zap.Int("bytes", buf.Len()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (a *Association) receiveLoop() {
	size := a.cfg.RxBufferSize
	if size <= 0 {
		size = 9000
	}
	for {
		buf := make([]byte, size)
		n, info, err := a.conn.SCTPRead(buf)
		if err != nil {
			a.handleLoss(err)
			return
		}
		if n <= 0 {
			continue
		}
		payload := buf[:n]
		if info == nil {
			// Kernel notifications carry no send/receive info.
			if done := a.handleNotification(payload); done {
				return
			}
			continue
		}
		if a.data != nil {
			a.data.OnNewPDU(bytebuf.FromBytes(payload))
		}
	}
}

// handleNotification translates association-change notifications into
// control events. It reports whether the association is gone.
func (a *Association) handleNotification(payload []byte) bool {
	notif, err := parseNotification(payload)
	if err != nil {
		a.logger.Debug("dropping unparsable SCTP notification",
			zap.String("assoc", a.cfg.Name),
			zap.Error(err),
		)
		return false
	}
	switch n := notif.(type) {
	case *AssocChange:
		a.logger.Debug("SCTP_ASSOC_CHANGE",
			zap.String("assoc", a.cfg.Name),
			zap.String("state", n.State.String()),
		)
		switch n.State {
		case AssocCommUp:
			a.state.Store(int32(StateConnected))
			if a.ctrl != nil {
				a.ctrl.OnConnectionEstablished()
			}
		case AssocCommLost, AssocShutdownComp, AssocCantStrAssoc:
			a.dropped()
			return true
		}
	case *ShutdownEvent:
		a.dropped()
		return true
	default:
		a.logger.Debug("ignoring SCTP notification",
			zap.String("assoc", a.cfg.Name),
		)
	}
	return false
}

func (a *Association) handleLoss(err error) {
	if a.State() == StateClosed {
		return
	}
	a.logger.Warn("SCTP read failed, association lost",
		zap.String("assoc", a.cfg.Name),
		zap.Error(err),
	)
	a.dropped()
}

func (a *Association) dropped() {
	a.closeOnce.Do(func() {
		a.state.Store(int32(StateClosed))
		_ = a.conn.Close()
		if a.ctrl != nil {
			a.ctrl.OnConnectionLoss()
		}
	})
}

// Close tears the association down without emitting connection-loss.
func (a *Association) Close() {
	a.closeOnce.Do(func() {
		a.state.Store(int32(StateClosed))
		if a.conn != nil {
			_ = a.conn.Close()
		}
	})
}

// AcceptHandler supplies the notifiers for a newly accepted association.
type AcceptHandler func(a *Association) (ControlNotifier, DataNotifier)

// Server accepts one-to-one associations on a listening socket.
type Server struct {
	cfg      Config
	listener *sctp.SCTPListener
	onAccept AcceptHandler
	logger   *zap.Logger
	quit     chan struct{}
	once     sync.Once
}

// Listen binds and listens, then serves accepted associations until Close.
func Listen(cfg Config, onAccept AcceptHandler, logger *zap.Logger) (*Server, error) {
	laddr, err := resolveAddr(cfg.BindAddr)
	if err != nil {
		return nil, err
	}
	ln, err := sctp.ListenSCTP("sctp", laddr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", ErrTransport, cfg.BindAddr, err)
	}
	s := &Server{
		cfg:      cfg,
		listener: ln,
		onAccept: onAccept,
		logger:   logger,
		quit:     make(chan struct{}),
	}
	logger.Info("SCTP listening",
		zap.String("assoc", cfg.Name),
		zap.String("bind", cfg.BindAddr),
	)
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.AcceptSCTP()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			s.logger.Error("SCTP accept failed",
				zap.String("assoc", s.cfg.Name),
				zap.Error(err),
			)
			return
		}
		a := &Association{
			cfg:       s.cfg,
			id:        uuid.NewString(),
			logger:    s.logger,
			closeOnce: &sync.Once{},
		}
		a.ctrl, a.data = s.onAccept(a)
		a.attach(conn)
	}
}

// Close stops accepting. Established associations stay up.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.quit)
		_ = s.listener.Close()
	})
}

// hostToNetPPID converts a host-order PPID to the network-order value the
// kernel expects in sctp_sndrcvinfo.
func hostToNetPPID(ppid uint32) uint32 {
	return ppid<<24 | (ppid&0xff00)<<8 | (ppid>>8)&0xff00 | ppid>>24
}
