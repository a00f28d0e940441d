package usage

import (
	"context"
	"errors"
	"time"

	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/logging"
)

// Sink receives every session after it has been stored. Sinks must not
// block for long; failures are theirs to log.
type Sink interface {
	SessionStored(ctx context.Context, s *Session)
}

// Service stores usage sessions and fans them out to sinks.
type Service struct {
	repo   Repository
	sinks  []Sink
	logger *logging.Logger
}

// NewService creates a Service. Nil sinks are skipped.
func NewService(repo Repository, logger *logging.Logger, sinks ...Sink) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, logger: logger}
	for _, sink := range sinks {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
	return s
}

// Ingest stores the session, then hands it to each sink.
// The sinks only run once the session is durable.
//
// A session that is already stored is accepted without storing or fanning
// it out again, so a hub can safely resend a report after a failed request.
func (s *Service) Ingest(ctx context.Context, session *Session) error {
	if err := s.repo.Create(ctx, session); err != nil {
		if errors.Is(err, ErrDuplicateSession) {
			s.logger.Debug("duplicate usage session ignored",
				"device_id", session.DeviceID,
				"sink_id", session.SinkID,
				"session_id", session.SessionID,
			)
			return nil
		}
		return err
	}

	s.logger.Debug("usage session stored",
		"device_id", session.DeviceID,
		"sink_id", session.SinkID,
		"session_id", session.SessionID,
	)

	for _, sink := range s.sinks {
		sink.SessionStored(ctx, session)
	}
	return nil
}

// Records returns the sessions for date (all when zero) in wire format.
func (s *Service) Records(ctx context.Context, date time.Time) ([]Record, error) {
	sessions, err := s.repo.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(sessions))
	for i := range sessions {
		records = append(records, sessions[i].Record())
	}
	return records, nil
}
