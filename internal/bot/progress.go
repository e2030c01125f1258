package bot

import (
	"context"
	"log/slog"
	"sync"

	"slide-master/internal/domain"
)

// Progress posts the "AI is working" notice when a job is admitted and
// removes it once the job is over.
type Progress struct {
	msgr Messenger
	log  *slog.Logger

	mu      sync.Mutex
	pending map[string]int64
}

func NewProgress(msgr Messenger, log *slog.Logger) *Progress {
	if log == nil {
		log = slog.Default()
	}
	return &Progress{msgr: msgr, log: log, pending: make(map[string]int64)}
}

func (p *Progress) Working(ctx context.Context, req domain.GenerationRequest) {
	msg, err := p.msgr.SendMessage(ctx, req.ChatID, text(req.Language, textWait), nil)
	if err != nil {
		p.log.Warn("failed to send progress notice", "requester_id", req.RequesterID, "err", err)
		return
	}
	p.mu.Lock()
	p.pending[req.RequesterID] = msg.MessageID
	p.mu.Unlock()
}

// Done deletes the notice posted for req, if any.
func (p *Progress) Done(ctx context.Context, req domain.GenerationRequest) {
	p.mu.Lock()
	id, ok := p.pending[req.RequesterID]
	delete(p.pending, req.RequesterID)
	p.mu.Unlock()
	if !ok {
		return
	}
	if err := p.msgr.DeleteMessage(ctx, req.ChatID, id); err != nil {
		p.log.Debug("failed to delete progress notice", "requester_id", req.RequesterID, "err", err)
	}
}
