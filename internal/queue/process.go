package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/curation"
	"github.com/bobmatnyc/the-island-sub004/internal/pipeline"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
)

// Processor handles the worker's messages.
type Processor struct {
	ch        Channel
	rebuilder *pipeline.Rebuilder
	inputs    pipeline.Inputs
	options   pipeline.Options
	now       func() time.Time
}

func NewProcessor(ch Channel, rebuilder *pipeline.Rebuilder, inputs pipeline.Inputs, options pipeline.Options) *Processor {
	return &Processor{ch: ch, rebuilder: rebuilder, inputs: inputs, options: options, now: time.Now}
}

// Process dispatches one message by the queue it came from.
func (p *Processor) Process(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case RebuildQueue:
		return p.ProcessRebuildMessage(ctx, body)
	case CurationQueue:
		return p.ProcessCurationMessage(ctx, body)
	default:
		return fmt.Errorf("no handler for queue %q", queueName)
	}
}

func (p *Processor) ProcessRebuildMessage(ctx context.Context, body []byte) error {
	var msg RebuildMsg
	if err := decode(body, &msg); err != nil {
		return err
	}
	logger.Info("[Queue] Rebuild requested", "request_id", msg.RequestID, "reason", msg.Reason)

	report, err := p.rebuilder.Run(ctx, p.inputs, p.options)
	if err != nil {
		return fmt.Errorf("rebuild %s failed: %w", msg.RequestID, err)
	}
	logger.Info("[Queue] Rebuild committed", "request_id", msg.RequestID, "version", report.Version)
	return nil
}

// ProcessCurationMessage appends the curated entries to the curation file.
// They take effect at the next rebuild, which is queued when requested.
func (p *Processor) ProcessCurationMessage(ctx context.Context, body []byte) error {
	var msg CurationMsg
	if err := decode(body, &msg); err != nil {
		return err
	}

	submission, err := curation.Append(p.inputs.CurationPath, msg.Curation, p.now())
	if err != nil {
		return fmt.Errorf("curation %s failed: %w", msg.RequestID, err)
	}
	logger.Info("[Queue] Curation appended", "request_id", msg.RequestID, "submission_id", submission,
		"aliases", len(msg.Curation.Aliases), "exclusions", len(msg.Curation.Exclusions))

	if !msg.Rebuild {
		return nil
	}
	if _, err := EnqueueRebuild(p.ch, "curation "+submission); err != nil {
		return err
	}
	return nil
}
