package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/YuMe-02/Hydroconnect/internal/auth"
	"github.com/YuMe-02/Hydroconnect/internal/usage"
)

// Device ingest responses. Hub firmware matches on these exact strings.
const (
	ingestSuccessful = "Successful"
	ingestForbidden  = "Forbidden Gateway, You Do Not Have Access"
)

type ingestResponse struct {
	Response string `json:"Response"`
	APIKey   string `json:"api_key,omitempty"`
}

// handleSensorData stores a usage session posted by a device hub and, when
// the hub's key is due, returns its replacement in api_key. The old key
// stops working as soon as the replacement is issued.
func (s *Server) handleSensorData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var report usage.Report
	if err := decodeJSON(r, &report); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	device, err := s.devices.Authorize(ctx, report.APIKey)
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			writeJSON(w, http.StatusForbidden, ingestResponse{Response: ingestForbidden})
			return
		}
		s.logger.Error("authorizing device failed", "error", err, "request_id", requestID(ctx))
		writeInternalError(w)
		return
	}

	session, err := report.Session(device.DeviceID)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.usage.Ingest(ctx, session); err != nil {
		s.logger.Error("storing usage session failed", "device_id", device.DeviceID, "error", err, "request_id", requestID(ctx))
		writeInternalError(w)
		return
	}

	newKey, err := s.devices.MaybeRotate(ctx, device, report.APIKey, session.Date)
	if err != nil && !errors.Is(err, auth.ErrRotationConflict) {
		s.logger.Error("rotating device key failed", "device_id", device.DeviceID, "error", err, "request_id", requestID(ctx))
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{Response: ingestSuccessful, APIKey: newKey})
}

// handleUserData returns usage records for ?date=YYYY-MM-DD, or every
// record when date is omitted.
func (s *Server) handleUserData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var day time.Time
	if q := r.URL.Query().Get("date"); q != "" {
		var err error
		if day, err = auth.ParseReportDate(q); err != nil {
			writeBadRequest(w, "date must be YYYY-MM-DD")
			return
		}
	}

	records, err := s.usage.Records(ctx, day)
	if err != nil {
		var userID string
		if user, ok := userFromContext(ctx); ok {
			userID = user.ID
		}
		s.logger.Error("listing usage failed", "user_id", userID, "error", err, "request_id", requestID(ctx))
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, records)
}
