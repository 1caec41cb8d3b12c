// Package radio drives BLE discovery and feeds discovery events into
// the device registry. It is the radio-stack collaborator behind the
// dispatcher's Radio interface: bring-up happens lazily on the first
// Start, discovery renews itself whenever a scan window ends, and Stop
// cancels discovery without tearing the stack down.
package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/swbot/internal/registry"
	"github.com/srg/swbot/pkg/adv"
)

// Report is one raw discovery event as delivered by the scanner.
type Report struct {
	Addr [6]byte
	RSSI int8
	Data []byte
}

// Scanner abstracts the platform scan primitive. Scan blocks until the
// context is cancelled or the discovery window ends, invoking h for
// every advertisement received.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, h func(Report)) error
}

// ScannerFactory creates the platform scanner on first bring-up.
// It is a variable so tests can substitute a fake.
var ScannerFactory = func() (Scanner, error) {
	return newBLEScanner()
}

// rescanDelay throttles discovery renewal when a scan window ends on
// its own, so a flapping adapter cannot spin the loop hot.
const rescanDelay = 500 * time.Millisecond

// Radio owns the scan loop. All methods are safe for concurrent use;
// none is called with the registry lock held.
type Radio struct {
	reg         *registry.Registry
	serviceUUID uint16
	allowDup    bool
	logger      *logrus.Logger

	mu      sync.Mutex
	scanner Scanner
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a radio that parses advertisements against serviceUUID
// and ingests them into reg.
func New(reg *registry.Registry, serviceUUID uint16, allowDup bool, logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{
		reg:         reg,
		serviceUUID: serviceUUID,
		allowDup:    allowDup,
		logger:      logger,
	}
}

// Start performs one-time bring-up and begins discovery. Bring-up
// failure leaves the radio unstarted; a later Start may retry.
func (r *Radio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scanner == nil {
		s, err := ScannerFactory()
		if err != nil {
			return fmt.Errorf("radio bring-up: %w", err)
		}
		r.scanner = s
		r.logger.Info("radio stack initialized")
	}

	r.stopLocked()
	r.startLocked()
	return nil
}

// Restart cancels the active discovery request and issues a new one.
func (r *Radio) Restart() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scanner == nil {
		return errors.New("radio not started")
	}
	r.stopLocked()
	r.startLocked()
	return nil
}

// Stop cancels the active discovery request. The radio stack stays up
// and a later Start or Restart resumes discovery.
func (r *Radio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
	return nil
}

func (r *Radio) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go r.scanLoop(ctx, done)
	r.logger.Debug("discovery started")
}

func (r *Radio) stopLocked() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
	r.logger.Debug("discovery cancelled")
}

// scanLoop keeps discovery alive: whenever a scan window completes on
// its own the request is reissued, mirroring a self-renewing scan.
func (r *Radio) scanLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		err := r.scanner.Scan(ctx, r.allowDup, r.handleReport)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.WithError(err).Warn("scan ended with error, renewing discovery")
		} else {
			r.logger.Debug("scan window complete, renewing discovery")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(rescanDelay):
		}
	}
}

// handleReport parses one advertisement and merges it into the
// registry. Events carrying neither field of interest are skipped
// before the registry lock is ever taken.
func (r *Radio) handleReport(rep Report) {
	ex := adv.Parse(rep.Data, r.serviceUUID)
	if !ex.HasManufacturer && !ex.HasService {
		return
	}

	tr := r.reg.Ingest(rep.Addr, rep.RSSI, ex)
	if tr == registry.TransitionMerged {
		r.logger.WithFields(logrus.Fields{
			"addr": fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
				rep.Addr[0], rep.Addr[1], rep.Addr[2], rep.Addr[3], rep.Addr[4], rep.Addr[5]),
			"rssi": rep.RSSI,
		}).Info("merged reading completed")
	}
}
