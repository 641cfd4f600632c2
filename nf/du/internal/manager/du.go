// Package manager owns the DU's cell registry and UE table: bounded UE
// index allocation keyed by C-RNTI, per-UE task queues, and the per-UE MAC
// and timing advance state.
package manager

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/gnb/common/exec"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/metrics"
	"github.com/your-org/gnb/common/ran"
	"github.com/your-org/gnb/nf/du/internal/mac"
	"github.com/your-org/gnb/nf/du/internal/ta"
)

// ueQueueDepth bounds each UE's task queue.
const ueQueueDepth = 128

// Cell is one served cell of the DU.
type Cell struct {
	Index ids.DUCellIndex
	NRCGI ran.NRCGI
	PCI   uint16
	TAC   ran.TAC
	ULSCS ran.SubcarrierSpacing
	// MIB and SIB1 are the packed system information sent on F1 Setup.
	MIB  []byte
	SIB1 []byte

	// Queue serializes the cell's slot-driven work.
	Queue *exec.Queue
}

// UE is one UE present at the DU.
type UE struct {
	Index     ids.UEIndex
	CRNTI     ran.RNTI
	CellIndex ids.DUCellIndex

	// F1APID is the DU-assigned gNB-DU-UE-F1AP-ID.
	F1APID ids.GNBDUUEF1APID
	// CUF1APID is learned from the first CU message; zero until then.
	CUF1APID ids.GNBCUUEF1APID

	// Queue serializes all work on this UE.
	Queue *exec.Queue

	DL *mac.DLLogicalChannelManager
	UL *mac.ULLogicalChannelManager
	TA *ta.Manager

	// SRBs and DRBs hold the configured bearers.
	SRBs map[ran.SRBID]struct{}
	DRBs map[ran.DRBID]ran.FiveQI
}

// Config carries the DU manager parameters.
type Config struct {
	// MaxUEs bounds the UE table; defaults to ids.MaxNofUEs.
	MaxUEs int
	// TA is the timing advance adaptation configuration applied to every
	// new UE.
	TA ta.Config
}

// DU is the DU processor's cell and UE bookkeeping.
type DU struct {
	cfg    Config
	logger *zap.Logger

	// ControlQueue serializes DU-level control work.
	ControlQueue *exec.Queue

	cellsMu    sync.RWMutex
	cells      [ids.MaxNofDUCells]*Cell
	cellsByCGI map[uint64]*Cell

	// ueMu guards the UE lookup tables; F1AP-ID lookups originate on a
	// different executor than UE creation.
	ueMu       sync.RWMutex
	ues        map[ids.UEIndex]*UE
	byRNTI     map[ran.RNTI]*UE
	byF1APID   map[ids.GNBDUUEF1APID]*UE
	nextF1APID ids.GNBDUUEF1APID
	nextIndex  ids.UEIndex
}

// New returns an empty DU manager.
func New(cfg Config, logger *zap.Logger) *DU {
	if cfg.MaxUEs <= 0 || cfg.MaxUEs > ids.MaxNofUEs {
		cfg.MaxUEs = ids.MaxNofUEs
	}
	return &DU{
		cfg:          cfg,
		logger:       logger,
		ControlQueue: exec.NewQueue("du-ctrl", ueQueueDepth, logger),
		cellsByCGI:   make(map[uint64]*Cell),
		ues:          make(map[ids.UEIndex]*UE),
		byRNTI:       make(map[ran.RNTI]*UE),
		byF1APID:     make(map[ids.GNBDUUEF1APID]*UE),
	}
}

// AddCell registers a served cell under the next free DU cell index and
// by packed NR-CGI.
func (d *DU) AddCell(cell Cell) (*Cell, error) {
	d.cellsMu.Lock()
	defer d.cellsMu.Unlock()

	key, err := cell.NRCGI.Packed()
	if err != nil {
		return nil, err
	}
	if _, ok := d.cellsByCGI[key]; ok {
		return nil, fmt.Errorf("%w: cell %v", ids.ErrDuplicate, cell.NRCGI)
	}
	for i := range d.cells {
		if d.cells[i] != nil {
			continue
		}
		c := cell
		c.Index = ids.DUCellIndex(i)
		c.Queue = exec.NewQueue(fmt.Sprintf("cell-%d", i), ueQueueDepth, d.logger)
		d.cells[i] = &c
		d.cellsByCGI[key] = &c
		d.logger.Info("cell registered",
			zap.Uint16("cell_index", uint16(c.Index)),
			zap.Uint16("pci", c.PCI),
		)
		return &c, nil
	}
	return nil, fmt.Errorf("cell table full (%d cells)", ids.MaxNofDUCells)
}

// Cells returns the registered cells in index order.
func (d *DU) Cells() []*Cell {
	d.cellsMu.RLock()
	defer d.cellsMu.RUnlock()
	var out []*Cell
	for _, c := range d.cells {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// CellByIndex returns the cell at the DU cell index.
func (d *DU) CellByIndex(idx ids.DUCellIndex) (*Cell, error) {
	d.cellsMu.RLock()
	defer d.cellsMu.RUnlock()
	if idx >= ids.MaxNofDUCells || d.cells[idx] == nil {
		return nil, fmt.Errorf("%w: cell index %d", ids.ErrNotFound, idx)
	}
	return d.cells[idx], nil
}

// CellByCGI returns the cell with the packed NR-CGI.
func (d *DU) CellByCGI(cgi ran.NRCGI) (*Cell, error) {
	key, err := cgi.Packed()
	if err != nil {
		return nil, err
	}
	d.cellsMu.RLock()
	defer d.cellsMu.RUnlock()
	cell, ok := d.cellsByCGI[key]
	if !ok {
		return nil, fmt.Errorf("%w: cell %v", ids.ErrNotFound, cgi)
	}
	return cell, nil
}

// CreateUE allocates a UE index and DU F1AP id for the C-RNTI and builds
// the UE's MAC state and task queue.
func (d *DU) CreateUE(cellIdx ids.DUCellIndex, crnti ran.RNTI) (*UE, error) {
	if !crnti.IsCRNTI() {
		return nil, fmt.Errorf("invalid C-RNTI %#x", uint16(crnti))
	}
	cell, err := d.CellByIndex(cellIdx)
	if err != nil {
		return nil, err
	}

	d.ueMu.Lock()
	defer d.ueMu.Unlock()

	if _, ok := d.byRNTI[crnti]; ok {
		metrics.UECreationFailures.WithLabelValues("duplicate_rnti").Inc()
		return nil, fmt.Errorf("%w: %#x", ids.ErrDuplicateRNTI, uint16(crnti))
	}
	index, ok := d.allocateIndexLocked()
	if !ok {
		metrics.UECreationFailures.WithLabelValues("no_free_index").Inc()
		return nil, ids.ErrNoFreeUEIndex
	}

	d.nextF1APID++
	ue := &UE{
		Index:     index,
		CRNTI:     crnti,
		CellIndex: cellIdx,
		F1APID:    d.nextF1APID,
		Queue:     exec.NewQueue(fmt.Sprintf("ue-%d", index), ueQueueDepth, d.logger),
		DL:        mac.NewDLLogicalChannelManager(),
		UL:        mac.NewULLogicalChannelManager(),
		SRBs:      map[ran.SRBID]struct{}{ran.SRB0: {}},
		DRBs:      make(map[ran.DRBID]ran.FiveQI),
	}
	ue.TA = ta.NewManager(d.cfg.TA, cell.ULSCS, ue.DL, d.logger)

	d.ues[index] = ue
	d.byRNTI[crnti] = ue
	d.byF1APID[ue.F1APID] = ue

	metrics.ActiveUEs.Set(float64(len(d.ues)))
	d.logger.Info("UE created",
		zap.Uint16("ue_index", uint16(index)),
		zap.Uint16("c_rnti", uint16(crnti)),
		zap.Uint32("gnb_du_ue_f1ap_id", uint32(ue.F1APID)),
	)
	return ue, nil
}

func (d *DU) allocateIndexLocked() (ids.UEIndex, bool) {
	if len(d.ues) >= d.cfg.MaxUEs {
		return 0, false
	}
	for i := 0; i < d.cfg.MaxUEs; i++ {
		idx := ids.UEIndex((int(d.nextIndex) + i) % d.cfg.MaxUEs)
		if _, ok := d.ues[idx]; !ok {
			d.nextIndex = ids.UEIndex((int(idx) + 1) % d.cfg.MaxUEs)
			return idx, true
		}
	}
	return 0, false
}

// FindUE returns the UE at the index.
func (d *DU) FindUE(index ids.UEIndex) (*UE, error) {
	d.ueMu.RLock()
	defer d.ueMu.RUnlock()
	ue, ok := d.ues[index]
	if !ok {
		return nil, fmt.Errorf("%w: ue index %d", ids.ErrNotFound, index)
	}
	return ue, nil
}

// FindUEByRNTI returns the UE with the C-RNTI.
func (d *DU) FindUEByRNTI(crnti ran.RNTI) (*UE, error) {
	d.ueMu.RLock()
	defer d.ueMu.RUnlock()
	ue, ok := d.byRNTI[crnti]
	if !ok {
		return nil, fmt.Errorf("%w: c-rnti %#x", ids.ErrNotFound, uint16(crnti))
	}
	return ue, nil
}

// FindUEByF1APID returns the UE with the DU F1AP id.
func (d *DU) FindUEByF1APID(id ids.GNBDUUEF1APID) (*UE, error) {
	d.ueMu.RLock()
	defer d.ueMu.RUnlock()
	ue, ok := d.byF1APID[id]
	if !ok {
		return nil, fmt.Errorf("%w: gnb-du-ue-f1ap-id %d", ids.ErrNotFound, id)
	}
	return ue, nil
}

// RemoveUE releases the UE's bearers, cancels its queued tasks and frees
// the index.
func (d *DU) RemoveUE(index ids.UEIndex) error {
	d.ueMu.Lock()
	ue, ok := d.ues[index]
	if !ok {
		d.ueMu.Unlock()
		return fmt.Errorf("%w: ue index %d", ids.ErrNotFound, index)
	}
	delete(d.ues, index)
	delete(d.byRNTI, ue.CRNTI)
	delete(d.byF1APID, ue.F1APID)
	count := len(d.ues)
	d.ueMu.Unlock()

	ue.UL.Deactivate()
	for srb := range ue.SRBs {
		delete(ue.SRBs, srb)
	}
	for drb := range ue.DRBs {
		delete(ue.DRBs, drb)
	}
	ue.Queue.Stop()

	metrics.ActiveUEs.Set(float64(count))
	d.logger.Info("UE removed", zap.Uint16("ue_index", uint16(index)))
	return nil
}

// ScheduleUETask appends a task to the UE's queue.
func (d *DU) ScheduleUETask(index ids.UEIndex, task func()) error {
	ue, err := d.FindUE(index)
	if err != nil {
		return err
	}
	return ue.Queue.Post(task)
}

// NofUEs returns the number of UEs present.
func (d *DU) NofUEs() int {
	d.ueMu.RLock()
	defer d.ueMu.RUnlock()
	return len(d.ues)
}
