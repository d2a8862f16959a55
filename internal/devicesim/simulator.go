// Package devicesim emulates a locker-bank controller. It speaks the poll-only
// device protocol: it polls for open and status-query commands, actuates its
// simulated locks and reports cabinet state back.
package devicesim

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/mw"
	"smart-locker-backend/internal/syncproto"
)

const apiKeyHeader = mw.APIKeyHeader

// Cabinet is the simulated sensor state of one cabinet.
type Cabinet struct {
	DoorClosed bool
	LockAngle  int
	LockLocked bool
	HasItem    bool
}

// Service runs the controller loop.
type Service struct {
	cfg    config.SimulatorConfig
	client *http.Client

	mu          sync.Mutex
	cabinets    map[string]*Cabinet
	closeNext   map[string]bool
	lastOpen    map[string]time.Time
	lastQueryAt time.Time
}

// NewService creates a simulator for the cabinets named in cfg.
func NewService(cfg config.SimulatorConfig, client *http.Client) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	s := &Service{
		cfg:       cfg,
		client:    client,
		cabinets:  make(map[string]*Cabinet, len(cfg.CabinetIDs)),
		closeNext: map[string]bool{},
		lastOpen:  map[string]time.Time{},
	}
	for _, code := range cfg.CabinetIDs {
		s.cabinets[code] = &Cabinet{DoorClosed: true, LockLocked: true}
	}
	return s
}

// Run sends a heartbeat and then cycles until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Printf("Starting controller simulator for device %s (%d cabinets)...", s.cfg.DeviceID, len(s.cabinets))
	if err := s.Heartbeat(ctx); err != nil {
		log.Printf("Initial heartbeat failed: %v", err)
	}

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Controller simulator shutting down.")
			return
		case <-timer.C:
			if err := s.CycleOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Controller cycle failed: %v", err)
			}
			timer.Reset(s.cfg.Interval)
		}
	}
}

// Heartbeat reports liveness and the battery level.
func (s *Service) Heartbeat(ctx context.Context) error {
	var res syncproto.HeartbeatResult
	battery := s.cfg.BatteryLevel
	return s.call(ctx, http.MethodPost, "/api/device/heartbeat", map[string]any{"battery_level": battery}, &res)
}

// CycleOnce runs one controller round: doors opened last round close, pending
// commands are polled and the cabinet state is reported. Polling comes first
// because a report refreshes liveness and hides older commands.
func (s *Service) CycleOnce(ctx context.Context) error {
	s.closeOpenedDoors()

	devicePath := url.PathEscape(s.cfg.DeviceID)

	var open syncproto.OpenCommand
	if err := s.call(ctx, http.MethodGet, "/api/device/open/"+devicePath, nil, &open); err != nil {
		return err
	}
	if open.Command == "open_cabinet" {
		s.handleOpen(open)
	}

	var query syncproto.QueryCommand
	if err := s.call(ctx, http.MethodGet, "/api/device/status/query/"+devicePath, nil, &query); err != nil {
		return err
	}
	if query.Command == "query_status" {
		s.handleQuery(query)
	}

	return s.Report(ctx)
}

// Report sends the state of every simulated cabinet.
func (s *Service) Report(ctx context.Context) error {
	battery := s.cfg.BatteryLevel
	report := syncproto.StatusReport{
		CabinetStatus: s.snapshot(),
		BatteryLevel:  &battery,
	}
	var res syncproto.ReportResult
	if err := s.call(ctx, http.MethodPost, "/api/device/status", report, &res); err != nil {
		return err
	}
	for _, f := range res.Failed {
		log.Printf("Backend rejected state of cabinet %s: %s", f.CabinetID, f.Error)
	}
	return nil
}

// Cabinet returns the simulated state of one cabinet.
func (s *Service) Cabinet(code string) (Cabinet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cabinets[code]
	if !ok {
		return Cabinet{}, false
	}
	return *c, true
}

// handleOpen unlocks and opens the door. Commands are delivered at least once,
// so a command already handled is ignored.
func (s *Service) handleOpen(cmd syncproto.OpenCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cabinets[cmd.CabinetID]
	if !ok {
		log.Printf("Open command for unknown cabinet %s ignored", cmd.CabinetID)
		return
	}
	if cmd.Timestamp != nil {
		if last, seen := s.lastOpen[cmd.CabinetID]; seen && !cmd.Timestamp.After(last) {
			return
		}
		s.lastOpen[cmd.CabinetID] = *cmd.Timestamp
	}
	log.Printf("Opening cabinet %s", cmd.CabinetID)
	c.DoorClosed = false
	c.LockLocked = false
	c.LockAngle = 90
	s.closeNext[cmd.CabinetID] = true
}

func (s *Service) handleQuery(cmd syncproto.QueryCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd.Timestamp != nil {
		if !cmd.Timestamp.After(s.lastQueryAt) {
			return
		}
		s.lastQueryAt = *cmd.Timestamp
	}
	log.Printf("Status query for %d cabinets answered with the next report", len(cmd.CabinetIDs))
}

// closeOpenedDoors closes and relocks doors opened in the previous round. A
// user opening a door either drops an item off or takes it out.
func (s *Service) closeOpenedDoors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code := range s.closeNext {
		c := s.cabinets[code]
		c.DoorClosed = true
		c.LockLocked = true
		c.LockAngle = 0
		c.HasItem = !c.HasItem
		delete(s.closeNext, code)
	}
}

func (s *Service) snapshot() map[string]syncproto.CabinetState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]syncproto.CabinetState, len(s.cabinets))
	for code, cab := range s.cabinets {
		c := *cab
		out[code] = syncproto.CabinetState{
			Door:       &c.DoorClosed,
			LockAngle:  &c.LockAngle,
			LockLocked: &c.LockLocked,
			HasItem:    &c.HasItem,
		}
	}
	return out
}
