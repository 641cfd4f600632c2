package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/exec"
	"github.com/your-org/gnb/common/f1ap"
	"github.com/your-org/gnb/common/metrics"
	"github.com/your-org/gnb/common/ran"
	"github.com/your-org/gnb/common/sctp"
	"github.com/your-org/gnb/nf/du/internal/config"
	duf1ap "github.com/your-org/gnb/nf/du/internal/f1ap"
	"github.com/your-org/gnb/nf/du/internal/manager"
	"github.com/your-org/gnb/nf/du/internal/ta"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// f1Notifiers bridges the SCTP gateway to the F1AP engine.
type f1Notifiers struct {
	engine *duf1ap.Engine
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
	pdu, err := f1ap.Unpack(buf)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("f1").Inc()
		n.logger.Warn("dropping undecodable F1AP PDU", zap.Error(err))
		return
	}
	n.engine.HandleMessage(pdu)
}

func main() {
	configPath := flag.String("config", "nf/du/config/du.yaml", "path to configuration file")
	flag.Parse()

	logger := createLogger("info")
	defer logger.Sync()

	logger.Info("Starting DU (Distributed Unit, high layers)",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Uint64("gnb_du_id", cfg.DU.GNBDUID),
		zap.String("f1_connect", cfg.F1.ConnectAddress),
		zap.Int("cells", len(cfg.Cells)),
	)

	// Timers and transaction table, ticked by the single tick source.
	timers := exec.NewTimers()
	tickSource := exec.NewTickSource(timers)
	defer tickSource.Stop()
	txs := exec.NewTransactions(timers)

	// DU manager with the configured cells.
	du := manager.New(manager.Config{
		MaxUEs: cfg.DU.MaxUEs,
		TA: ta.Config{
			MeasurementSlotPeriod: cfg.TA.MeasurementSlotPeriod,
			ULSINRThreshold:       cfg.TA.ULSINRThreshold,
			CmdOffsetThreshold:    cfg.TA.CmdOffsetThreshold,
		},
	}, logger)
	for _, c := range cfg.Cells {
		mib, err := hex.DecodeString(c.MIB)
		if err != nil {
			logger.Fatal("Bad MIB hex in cell config", zap.Error(err))
		}
		sib1, err := hex.DecodeString(c.SIB1)
		if err != nil {
			logger.Fatal("Bad SIB1 hex in cell config", zap.Error(err))
		}
		_, err = du.AddCell(manager.Cell{
			NRCGI: ran.NRCGI{
				PLMN:   ran.PLMN{MCC: c.MCC, MNC: c.MNC},
				CellID: ran.NRCellID(c.NRCellID),
			},
			PCI:   c.PCI,
			TAC:   ran.TAC(c.TAC),
			ULSCS: scsFromKHz(c.ULSCSKHz),
			MIB:   mib,
			SIB1:  sib1,
		})
		if err != nil {
			logger.Fatal("Failed to register cell", zap.Error(err))
		}
	}

	// Metrics server.
	if cfg.Observability.MetricsPort > 0 {
		metricsServer := metrics.NewMetricsServer(cfg.Observability.MetricsPort, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
		defer metricsServer.Stop()
	}

	// F1-C association towards the CU.
	notif := &f1Notifiers{logger: logger}
	assoc, err := sctp.Dial(sctp.Config{
		Name:        "f1ap",
		BindAddr:    cfg.F1.BindAddress,
		ConnectAddr: cfg.F1.ConnectAddress,
		PPID:        sctp.PPIDF1AP,
	}, notif, notif, logger)
	if err != nil {
		logger.Fatal("Failed to connect F1-C", zap.Error(err))
	}
	defer assoc.Close()

	engine := duf1ap.NewEngine(duf1ap.Config{
		GNBDUID:         cfg.DU.GNBDUID,
		GNBDUName:       cfg.DU.Name,
		MaxSetupRetries: cfg.DU.MaxSetupRetries,
	}, du, assoc, txs, logger)
	notif.engine = engine

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.RunF1Setup(ctx); err != nil {
		logger.Fatal("F1 Setup failed", zap.Error(err))
	}
	metrics.SetServiceUp(true)

	<-ctx.Done()
	metrics.SetServiceUp(false)
	logger.Info("Shutting down DU")
}

func scsFromKHz(khz uint32) ran.SubcarrierSpacing {
	switch khz {
	case 30:
		return ran.SCS30kHz
	case 60:
		return ran.SCS60kHz
	case 120:
		return ran.SCS120kHz
	default:
		return ran.SCS15kHz
	}
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
