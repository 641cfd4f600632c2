package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/gnb/common/bytebuf"
	commonE1 "github.com/your-org/gnb/common/e1ap"
	"github.com/your-org/gnb/common/exec"
	commonF1 "github.com/your-org/gnb/common/f1ap"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/metrics"
	commonNG "github.com/your-org/gnb/common/ngap"
	"github.com/your-org/gnb/common/ran"
	"github.com/your-org/gnb/common/sctp"
	"github.com/your-org/gnb/nf/cucp/internal/config"
	"github.com/your-org/gnb/nf/cucp/internal/drb"
	cue1ap "github.com/your-org/gnb/nf/cucp/internal/e1ap"
	cuf1ap "github.com/your-org/gnb/nf/cucp/internal/f1ap"
	cungap "github.com/your-org/gnb/nf/cucp/internal/ngap"
	"github.com/your-org/gnb/nf/cucp/internal/processor"
	"github.com/your-org/gnb/nf/cucp/internal/rrc"
	"github.com/your-org/gnb/nf/cucp/internal/server"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// ngNotifiers bridges the NG association to the NGAP engine.
type ngNotifiers struct {
	engine *cungap.Engine
	logger *zap.Logger
}

func (n *ngNotifiers) OnConnectionEstablished() {
	n.logger.Info("NG association established")
	n.engine.OnConnectionEstablished()
}

func (n *ngNotifiers) OnConnectionLoss() {
	n.logger.Warn("NG association lost")
	n.engine.OnConnectionLoss()
}

func (n *ngNotifiers) OnNewPDU(buf *bytebuf.Buffer) {
	pdu, err := commonNG.Unpack(buf)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("ng").Inc()
		n.logger.Warn("dropping undecodable NGAP PDU", zap.Error(err))
		return
	}
	n.engine.HandleMessage(pdu)
}

// f1Notifiers bridges one DU association to the CU-side F1AP engine.
type f1Notifiers struct {
	engine *cuf1ap.Engine
	logger *zap.Logger
}

func (n *f1Notifiers) OnConnectionEstablished() {
	metrics.SetAssociationUp("f1", true)
	n.logger.Info("F1-C association established")
}

func (n *f1Notifiers) OnConnectionLoss() {
	n.logger.Warn("F1-C association lost")
	n.engine.OnConnectionLoss()
}

func (n *f1Notifiers) OnNewPDU(buf *bytebuf.Buffer) {
	pdu, err := commonF1.Unpack(buf)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("f1").Inc()
		n.logger.Warn("dropping undecodable F1AP PDU", zap.Error(err))
		return
	}
	n.engine.HandleMessage(pdu)
}

// e1Notifiers bridges one CU-UP association to the E1AP engine.
type e1Notifiers struct {
	engine *cue1ap.Engine
	logger *zap.Logger
}

func (n *e1Notifiers) OnConnectionEstablished() {
	n.logger.Info("E1 association established")
}

func (n *e1Notifiers) OnConnectionLoss() {
	n.logger.Warn("E1 association lost")
	n.engine.OnConnectionLoss()
}

func (n *e1Notifiers) OnNewPDU(buf *bytebuf.Buffer) {
	pdu, err := commonE1.Unpack(buf)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("e1").Inc()
		n.logger.Warn("dropping undecodable E1AP PDU", zap.Error(err))
		return
	}
	n.engine.HandleMessage(pdu)
}

func main() {
	configPath := flag.String("config", "nf/cucp/config/cucp.yaml", "path to configuration file")
	flag.Parse()

	logger := createLogger("info")
	defer logger.Sync()

	logger.Info("Starting CU-CP (Centralized Unit, Control Plane)",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Uint32("gnb_id", cfg.GNB.GNBID),
		zap.String("amf", cfg.NG.ConnectAddress),
		zap.String("f1_bind", cfg.F1.BindAddress),
	)

	timers := exec.NewTimers()
	tickSource := exec.NewTickSource(timers)
	defer tickSource.Stop()

	fiveQIConfig := make(map[ran.FiveQI]drb.PDCPConfig, len(cfg.FiveQI))
	for _, q := range cfg.FiveQI {
		fiveQIConfig[ran.FiveQI(q.FiveQI)] = drb.PDCPConfig{
			SNSizeDL:       q.SNSizeDL,
			SNSizeUL:       q.SNSizeUL,
			DiscardTimerMs: q.DiscardTimerMs,
			TReorderingMs:  q.TReorderingMs,
		}
	}

	// E1 engine and its listening association.
	e1Txs := exec.NewTransactions(timers)
	e1Assoc := &assocHolder{}
	e1Engine := cue1ap.NewEngine(cue1ap.Config{GNBCUCPName: cfg.GNB.RANNodeName}, e1Assoc, e1Txs, logger)
	e1Server, err := sctp.Listen(sctp.Config{
		Name:     "e1ap",
		BindAddr: cfg.E1.BindAddress,
		PPID:     sctp.PPIDE1AP,
	}, func(a *sctp.Association) (sctp.ControlNotifier, sctp.DataNotifier) {
		e1Assoc.set(a)
		n := &e1Notifiers{engine: e1Engine, logger: logger}
		return n, n
	}, logger)
	if err != nil {
		logger.Fatal("Failed to listen on E1", zap.Error(err))
	}
	defer e1Server.Close()

	// F1 engine and processor. One DU slot; further DUs attach through
	// further accepted associations and processors.
	f1Txs := exec.NewTransactions(timers)
	f1Assoc := &assocHolder{}
	var proc *processor.Processor
	f1Engine := cuf1ap.NewEngine(cuf1ap.Config{GNBCUName: cfg.GNB.RANNodeName}, f1Assoc, f1Txs, procRef{ref: &proc}, logger)

	// NG engine and its client association.
	ngTxs := exec.NewTransactions(timers)
	ngAssoc := &assocHolder{}
	ngEngine := cungap.NewEngine(cungap.Config{
		GNBID:           cfg.GNB.GNBID,
		RANNodeName:     cfg.GNB.RANNodeName,
		PLMN:            ran.PLMN{MCC: cfg.GNB.MCC, MNC: cfg.GNB.MNC},
		TAC:             ran.TAC(cfg.GNB.TAC),
		Slices:          []ran.SNSSAI{{SST: 1}},
		MaxSetupRetries: cfg.NG.MaxSetupRetries,
	}, ngAssoc, ngTxs, ueControlRef{ref: &proc}, logger)

	proc = processor.New(processor.Config{
		DUIndex:     0,
		MaxUEsPerDU: cfg.GNB.MaxUEsPerDU,
		RRCTimeouts: rrc.Timeouts{
			Setup:    time.Duration(cfg.RRC.SetupTimeoutMs) * time.Millisecond,
			SMC:      time.Duration(cfg.RRC.SMCTimeoutMs) * time.Millisecond,
			Reconfig: time.Duration(cfg.RRC.ReconfigTimeoutMs) * time.Millisecond,
		},
		DRB: drb.Config{FiveQIConfig: fiveQIConfig},
	}, timers, f1Engine, ngEngine, e1Engine, logger)

	f1Server, err := sctp.Listen(sctp.Config{
		Name:     "f1ap",
		BindAddr: cfg.F1.BindAddress,
		PPID:     sctp.PPIDF1AP,
	}, func(a *sctp.Association) (sctp.ControlNotifier, sctp.DataNotifier) {
		f1Assoc.set(a)
		n := &f1Notifiers{engine: f1Engine, logger: logger}
		return n, n
	}, logger)
	if err != nil {
		logger.Fatal("Failed to listen on F1", zap.Error(err))
	}
	defer f1Server.Close()

	ngNotif := &ngNotifiers{engine: ngEngine, logger: logger}
	ngConn, err := sctp.Dial(sctp.Config{
		Name:        "ngap",
		BindAddr:    cfg.NG.BindAddress,
		ConnectAddr: cfg.NG.ConnectAddress,
		PPID:        sctp.PPIDNGAP,
	}, ngNotif, ngNotif, logger)
	if err != nil {
		logger.Fatal("Failed to connect NG", zap.Error(err))
	}
	ngAssoc.set(ngConn)
	defer ngConn.Close()

	// Metrics and status servers.
	if cfg.Observability.MetricsPort > 0 {
		metricsServer := metrics.NewMetricsServer(cfg.Observability.MetricsPort, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
		defer metricsServer.Stop()
	}
	if cfg.Observability.StatusPort > 0 {
		statusServer := server.New(cfg.Observability.StatusPort, proc, ngEngine, logger)
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.Error("Status server stopped", zap.Error(err))
			}
		}()
		defer statusServer.Stop(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ngEngine.RunNGSetup(ctx); err != nil {
		logger.Fatal("NG Setup failed", zap.Error(err))
	}
	metrics.SetServiceUp(true)

	<-ctx.Done()
	metrics.SetServiceUp(false)
	logger.Info("Shutting down CU-CP")
}

// assocHolder defers the association lookup to send time: listening-side
// associations exist only after accept.
type assocHolder struct {
	mu sync.Mutex
	a  *sctp.Association
}

func (h *assocHolder) set(a *sctp.Association) {
	h.mu.Lock()
	h.a = a
	h.mu.Unlock()
}

func (h *assocHolder) Send(buf *bytebuf.Buffer) error {
	h.mu.Lock()
	a := h.a
	h.mu.Unlock()
	if a == nil {
		return fmt.Errorf("association not established")
	}
	return a.Send(buf)
}

// procRef defers the processor wiring: the F1 engine and the processor
// reference each other.
type procRef struct {
	ref **processor.Processor
}

func (r procRef) HandleF1Setup(req commonF1.F1SetupRequest) error { return (*r.ref).HandleF1Setup(req) }
func (r procRef) HandleInitialULRRC(msg commonF1.InitialULRRCMessageTransfer) error {
	return (*r.ref).HandleInitialULRRC(msg)
}
func (r procRef) HandleULRRC(msg commonF1.ULRRCMessageTransfer) { (*r.ref).HandleULRRC(msg) }
func (r procRef) HandleF1Removal()                              { (*r.ref).HandleF1Removal() }

// ueControlRef defers the UE-control wiring for the NGAP engine.
type ueControlRef struct {
	ref **processor.Processor
}

func (r ueControlRef) DeliverDLNAS(id ids.CUCPUEID, nas []byte) {
	(*r.ref).DeliverDLNAS(id, nas)
}

func (r ueControlRef) RunSecurityMode(ctx context.Context, id ids.CUCPUEID, caps commonNG.UESecurityCapabilities, key [32]byte) error {
	return (*r.ref).RunSecurityMode(ctx, id, caps, key)
}

func (r ueControlRef) SetupPDUSessions(ctx context.Context, id ids.CUCPUEID, sessions []commonNG.PDUSessionResourceSetupItem) ([]commonNG.PDUSessionResourceSetupResponseItem, []commonNG.PDUSessionResourceFailedItem) {
	return (*r.ref).SetupPDUSessions(ctx, id, sessions)
}

func (r ueControlRef) ReleaseUE(id ids.CUCPUEID, cause error) {
	(*r.ref).ReleaseUE(id, cause)
}

func createLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
