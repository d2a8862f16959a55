package syncproto

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/metrics"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
)

// HeartbeatResult is returned to the device after a heartbeat.
type HeartbeatResult struct {
	DeviceID string             `json:"device_id"`
	Status   model.DeviceStatus `json:"status"`
}

// Heartbeat marks the device online and appends a heartbeat log entry.
func (s *Service) Heartbeat(ctx context.Context, apiKey string, battery *int) (*HeartbeatResult, error) {
	d, err := s.authenticateKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if !validBattery(battery) {
		return nil, apperr.InvalidFields("invalid heartbeat", map[string]string{"battery_level": "must be between 0 and 100"})
	}

	now := s.now()
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.RecordHeartbeat(ctx, d.ID, now, battery); err != nil {
			return err
		}
		_, err := s.outbox.In(tx).Enqueue(ctx, d.ID, model.LogHeartbeat, "heartbeat", map[string]any{"battery_level": battery}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.IncHeartbeat()
	return &HeartbeatResult{DeviceID: d.Code, Status: model.DeviceOnline}, nil
}

// CabinetState is the sensor state of one cabinet as sent by the device.
// Door is true when the door is closed.
type CabinetState struct {
	Door       *bool `json:"door"`
	LockAngle  *int  `json:"lock_angle"`
	LockLocked *bool `json:"lock_locked"`
	HasItem    *bool `json:"has_item"`
}

// StatusReport is a batch of cabinet states plus an optional battery level.
type StatusReport struct {
	CabinetStatus map[string]CabinetState `json:"cabinet_status"`
	BatteryLevel  *int                    `json:"battery_level"`
}

// Validate checks the whole report before anything is applied.
func (r *StatusReport) Validate() error {
	fields := map[string]string{}
	if r.CabinetStatus == nil {
		fields["cabinet_status"] = "is required"
	}
	for code, st := range r.CabinetStatus {
		if st.Door == nil {
			fields[code+".door"] = "is required"
		}
		if st.LockAngle == nil {
			fields[code+".lock_angle"] = "is required"
		} else if *st.LockAngle < 0 || *st.LockAngle > 360 {
			fields[code+".lock_angle"] = "must be between 0 and 360"
		}
		if st.LockLocked == nil {
			fields[code+".lock_locked"] = "is required"
		}
		if st.HasItem == nil {
			fields[code+".has_item"] = "is required"
		}
	}
	if !validBattery(r.BatteryLevel) {
		fields["battery_level"] = "must be between 0 and 100"
	}
	if len(fields) > 0 {
		return apperr.InvalidFields("invalid status report", fields)
	}
	return nil
}

// CabinetFailure names a cabinet of a report that could not be applied.
type CabinetFailure struct {
	CabinetID string `json:"cabinet_id"`
	Error     string `json:"error"`
}

// ReportResult lists which cabinets of a report were applied.
type ReportResult struct {
	DeviceID string           `json:"device_id"`
	Updated  []string         `json:"updated"`
	Failed   []CabinetFailure `json:"failed"`
}

// ReportStatus applies a status report cabinet by cabinet. A cabinet that fails
// is recorded as an error log entry and the rest of the batch still applies.
// The report also counts as a heartbeat.
func (s *Service) ReportStatus(ctx context.Context, apiKey string, r StatusReport) (*ReportResult, error) {
	d, err := s.authenticateKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	result := &ReportResult{DeviceID: d.Code, Updated: []string{}, Failed: []CabinetFailure{}}

	codes := make([]string, 0, len(r.CabinetStatus))
	for code := range r.CabinetStatus {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		st := r.CabinetStatus[code]
		_, err := s.store.ApplySensorReport(ctx, d.ID, store.SensorReport{
			CabinetCode: code,
			LockAngle:   *st.LockAngle,
			LockLocked:  *st.LockLocked,
			DoorClosed:  *st.Door,
			HasItem:     *st.HasItem,
		}, now)
		if err != nil {
			s.recordReportFailure(ctx, d, code, st, err, now)
			result.Failed = append(result.Failed, CabinetFailure{CabinetID: code, Error: apperr.Message(err)})
			continue
		}
		result.Updated = append(result.Updated, code)
	}

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.RecordHeartbeat(ctx, d.ID, now, r.BatteryLevel); err != nil {
			return err
		}
		_, err := s.outbox.In(tx).Enqueue(ctx, d.ID, model.LogStatus, "status report", map[string]any{
			"cabinet_status": r.CabinetStatus,
			"battery_level":  r.BatteryLevel,
			"failed":         len(result.Failed),
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.IncHeartbeat()
	return result, nil
}

func (s *Service) recordReportFailure(ctx context.Context, d *model.Device, code string, st CabinetState, cause error, now time.Time) {
	metrics.IncReportFailure()
	log.Printf("Status report from device %s: cabinet %s not applied: %v", d.Code, code, cause)
	_, err := s.outbox.Enqueue(ctx, d.ID, model.LogError, fmt.Sprintf("failed to update cabinet %s: %s", code, apperr.Message(cause)), map[string]any{
		"cabinet_id":  code,
		"status_data": st,
	}, now)
	if err != nil {
		log.Printf("Error recording report failure for device %s: %v", d.Code, err)
	}
}

// OpenCommand is the answer to an open poll.
type OpenCommand struct {
	Command   string     `json:"command"`
	CabinetID string     `json:"cabinet_id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// PollOpen returns the most recent open command inside the device's window.
func (s *Service) PollOpen(ctx context.Context, deviceCode, apiKey string) (*OpenCommand, error) {
	d, err := s.authenticateDevice(ctx, deviceCode, apiKey)
	if err != nil {
		return nil, err
	}
	entry, err := s.outbox.Pending(ctx, d, model.LogOpen, s.now())
	if err != nil {
		return nil, err
	}
	metrics.IncPoll(string(model.LogOpen), entry != nil)
	if entry == nil {
		return &OpenCommand{Command: "none"}, nil
	}
	cabinetID, _ := entry.Payload["cabinet_id"].(string)
	return &OpenCommand{Command: "open_cabinet", CabinetID: cabinetID, Timestamp: &entry.CreatedAt}, nil
}

// QueryCommand is the answer to a status-query poll.
type QueryCommand struct {
	Command    string     `json:"command"`
	CabinetIDs []string   `json:"cabinet_ids,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// PollStatusQuery returns the most recent status query inside the device's window.
func (s *Service) PollStatusQuery(ctx context.Context, deviceCode, apiKey string) (*QueryCommand, error) {
	d, err := s.authenticateDevice(ctx, deviceCode, apiKey)
	if err != nil {
		return nil, err
	}
	entry, err := s.outbox.Pending(ctx, d, model.LogStatusQuery, s.now())
	if err != nil {
		return nil, err
	}
	metrics.IncPoll(string(model.LogStatusQuery), entry != nil)
	if entry == nil {
		return &QueryCommand{Command: "none"}, nil
	}
	return &QueryCommand{
		Command:    "query_status",
		CabinetIDs: stringList(entry.Payload["cabinet_ids"]),
		Timestamp:  &entry.CreatedAt,
	}, nil
}

// stringList reads a JSON array of strings back out of a log payload.
func stringList(v any) []string {
	out := []string{}
	switch items := v.(type) {
	case []string:
		out = append(out, items...)
	case []any:
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
