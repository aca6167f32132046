package batch

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/warp/payments-engine/payments"
)

// Report summarises one pass over an input.
type Report struct {
	Applied    int
	Rejections []payments.Rejection
}

// Processor feeds CSV input into an Engine, one record at a time and in
// input order. Rejected records are logged and skipped.
type Processor struct {
	Engine *payments.Engine
	Logger *log.Logger // defaults to log.Default()
}

func NewProcessor(engine *payments.Engine) *Processor {
	return &Processor{Engine: engine, Logger: log.Default()}
}

// Process applies every record of r. It returns an error only when the
// input cannot be read or ctx is done; the report covers everything applied
// up to that point. Overflow panics from the engine are not recovered.
func (p *Processor) Process(ctx context.Context, r io.Reader) (Report, error) {
	var report Report
	reader := NewReader(r)

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		tx, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return report, nil
		}
		var recErr *RecordError
		if errors.As(err, &recErr) {
			p.reject(&report, payments.RejectionFor(recErr.Line, nil, recErr))
			continue
		}
		if err != nil {
			return report, err
		}

		if err := p.Engine.Apply(tx); err != nil {
			p.reject(&report, payments.RejectionFor(reader.Line(), tx, err))
			continue
		}
		report.Applied++
	}
}

func (p *Processor) reject(report *Report, r payments.Rejection) {
	report.Rejections = append(report.Rejections, r)
	if p.Logger != nil {
		p.Logger.Printf("[Batch] line %d rejected (%s): %s", r.Line, r.Code, r.Reason)
	}
}

// Run packages the engine's current snapshot and the report for a
// SnapshotStore under a fresh id.
func (r Report) Run(engine *payments.Engine) payments.Run {
	return payments.Run{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		LockPolicy: engine.LockPolicy(),
		Applied:    r.Applied,
		Clients:    engine.Clients(),
		Rejections: r.Rejections,
	}
}
