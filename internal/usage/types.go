package usage

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/YuMe-02/Hydroconnect/internal/auth"
)

const (
	// ClockLayout is the wire and storage format of start and end times.
	ClockLayout = "15:04:05"

	// RecordDateLayout is the date format returned to the mobile app.
	RecordDateLayout = "01/02/2006"
)

// ErrInvalidReport is returned for a device report that cannot be stored.
var ErrInvalidReport = errors.New("invalid usage report")

// ErrDuplicateSession is returned by Repository.Create for a session that is
// already stored.
var ErrDuplicateSession = errors.New("usage session already stored")

// Session is one water-usage event at a sink, as reported by a device hub.
//
// StartTime and EndTime carry the report date; an end time earlier than the
// start time is taken to be on the following day.
type Session struct {
	ID          int64
	SessionID   int64
	DeviceID    string
	SinkID      int64
	SensorID    int64
	WaterAmount float64
	Duration    float64
	StartTime   time.Time
	EndTime     time.Time
	Date        time.Time
	IsError     bool
	ReceivedAt  time.Time
}

// Flag is a boolean that also decodes from 0/1, which some hub firmware sends.
type Flag bool

// UnmarshalJSON accepts true, false, 0, 1 and null.
func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("%w: is_error must be a boolean, got %s", ErrInvalidReport, b)
	}
	return nil
}

// Report is the body a device hub posts to the ingest endpoint.
type Report struct {
	APIKey      string  `json:"api_key"`
	SessionID   int64   `json:"session_id"`
	SinkID      int64   `json:"sink_id"`
	SensorID    int64   `json:"sensor_id"`
	WaterAmount float64 `json:"water_amount"`
	Duration    float64 `json:"duration"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Date        string  `json:"date"`
	IsError     Flag    `json:"is_error"`
}

// Session converts the report into a Session for deviceID. Dates are
// YYYY-MM-DD and times HH:MM:SS; fractional seconds are accepted and
// dropped.
func (r Report) Session(deviceID string) (*Session, error) {
	date, err := auth.ParseReportDate(r.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}

	start, err := parseClock(date, r.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time: %w", ErrInvalidReport, err)
	}
	end, err := parseClock(date, r.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time: %w", ErrInvalidReport, err)
	}
	if end.Before(start) {
		end = end.AddDate(0, 0, 1)
	}

	if r.WaterAmount < 0 || r.Duration < 0 {
		return nil, fmt.Errorf("%w: water_amount and duration must not be negative", ErrInvalidReport)
	}

	return &Session{
		SessionID:   r.SessionID,
		DeviceID:    deviceID,
		SinkID:      r.SinkID,
		SensorID:    r.SensorID,
		WaterAmount: r.WaterAmount,
		Duration:    r.Duration,
		StartTime:   start,
		EndTime:     end,
		Date:        date,
		IsError:     bool(r.IsError),
	}, nil
}

// parseClock combines date with an HH:MM:SS time of day.
func parseClock(date time.Time, s string) (time.Time, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
}

// Record is a session as the mobile app reads it. Every value is a string.
type Record struct {
	SessionID   string `json:"session ID"`
	SinkID      string `json:"sink ID"`
	SensorID    string `json:"sensor ID"`
	WaterAmount string `json:"water amount"`
	Duration    string `json:"duration"`
	StartTime   string `json:"start time"`
	EndTime     string `json:"end time"`
	Date        string `json:"date"`
	IsError     string `json:"is error"`
}

// Record renders s in the app's wire format.
func (s *Session) Record() Record {
	return Record{
		SessionID:   strconv.FormatInt(s.SessionID, 10),
		SinkID:      strconv.FormatInt(s.SinkID, 10),
		SensorID:    strconv.FormatInt(s.SensorID, 10),
		WaterAmount: strconv.FormatFloat(s.WaterAmount, 'f', -1, 64),
		Duration:    strconv.FormatFloat(s.Duration, 'f', -1, 64),
		StartTime:   s.StartTime.Format(ClockLayout),
		EndTime:     s.EndTime.Format(ClockLayout),
		Date:        s.Date.Format(RecordDateLayout),
		IsError:     strconv.FormatBool(s.IsError),
	}
}
