package handler

import (
	"context"

	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/session"
	ws "github.com/examina/examina-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// connSink adapts a WebSocket connection to the controller's event sink. The
// controller fires events while holding its lock, so every method only
// enqueues onto a buffered channel; a single writer goroutine owns the
// connection writes.
type connSink struct {
	conn        *ws.Conn
	out         chan interface{}
	log         zerolog.Logger
	onViolation func(exitCount int)
	onSubmitted func()
}

func newConnSink(conn *ws.Conn, log zerolog.Logger, onViolation func(int), onSubmitted func()) *connSink {
	return &connSink{
		conn:        conn,
		out:         make(chan interface{}, 64),
		log:         log,
		onViolation: onViolation,
		onSubmitted: onSubmitted,
	}
}

// writeLoop drains the outbound queue. Runs on its own goroutine for the
// lifetime of the connection.
func (s *connSink) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-s.out:
			if err := s.conn.WriteTyped(v); err != nil {
				s.log.Debug().Err(err).Msg("Write failed, client likely gone")
				return
			}
		}
	}
}

// enqueue never blocks; a full buffer means the client has stalled and the
// event is dropped. State events are resent every tick, so nothing critical
// is lost.
func (s *connSink) enqueue(v interface{}) {
	select {
	case s.out <- v:
	default:
		s.log.Warn().Msg("Outbound buffer full, dropping event")
	}
}

func (s *connSink) OnState(st session.State) {
	s.enqueue(ws.NewStateView(st, false))
}

func (s *connSink) OnTick(timeLeft, countdownRemaining int) {
	s.enqueue(ws.TickResponse{
		Event:              ws.EventTick,
		TimeLeft:           timeLeft,
		CountdownRemaining: countdownRemaining,
	})
}

func (s *connSink) OnWarning(exitCount, remaining, countdownSeconds int) {
	s.enqueue(ws.WarningResponse{
		Event:            ws.EventWarning,
		ExitCount:        exitCount,
		Remaining:        remaining,
		CountdownSeconds: countdownSeconds,
	})
	if s.onViolation != nil {
		go s.onViolation(exitCount)
	}
}

func (s *connSink) OnSecure() {
	s.enqueue(ws.SecureResponse{Event: ws.EventSecure})
}

func (s *connSink) OnRunResult(questionID uuid.UUID, seq uint64, result model.RunResult) {
	s.enqueue(ws.RunResultResponse{
		Event:  ws.EventRunResult,
		QID:    questionID.String(),
		Seq:    seq,
		Result: result,
	})
}

func (s *connSink) OnSubmitted(record *model.SubmissionRecord) {
	s.enqueue(ws.SubmittedResponse{
		Event:  ws.EventSubmitted,
		ID:     record.ID.String(),
		Score:  record.Score,
		Status: record.Status,
	})
	if s.onSubmitted != nil {
		go s.onSubmitted()
	}
}

func (s *connSink) OnSubmitFailed(retryable bool, message string) {
	s.enqueue(ws.SubmitFailedResponse{
		Event:     ws.EventSubmitFailed,
		Retryable: retryable,
		Message:   message,
	})
}
