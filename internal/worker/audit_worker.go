package worker

// audit_worker.go
// Processes QueueOverrideAudit jobs: mails a notice to the audit recipient
// for every document closed with an admin override. Sends go through the
// circuit breaker; a failure returns an error so the pool retries the job.

import (
	"context"
	"encoding/json"
	"fmt"

	"fulfillment/internal/infra"

	"github.com/rs/zerolog/log"
)

// AuditSender is the slice of infra.Mailer the worker needs.
type AuditSender interface {
	Configured() bool
	SendAuditNotice(to string, n infra.AuditNotice) error
}

type AuditWorker struct {
	mailer AuditSender
	cb     *infra.CircuitBreaker
	to     string
}

func NewAuditWorker(mailer AuditSender, cb *infra.CircuitBreaker, to string) *AuditWorker {
	return &AuditWorker{mailer: mailer, cb: cb, to: to}
}

func (w *AuditWorker) Process(_ context.Context, raw json.RawMessage) error {
	var p OverrideAuditPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// Unreadable payloads are never going to succeed; drop them.
		log.Error().Err(err).Msg("audit_worker: invalid payload")
		return nil
	}
	if w.to == "" || !w.mailer.Configured() {
		log.Warn().Str("document_id", p.DocumentID).Msg("audit_worker: no audit recipient configured, skipping")
		return nil
	}

	notice := infra.AuditNotice{
		DocumentType:   p.DocumentType,
		DocumentID:     p.DocumentID,
		ClosedBy:       p.ClosedBy,
		OverrideReason: p.OverrideReason,
		ClosedAt:       p.ClosedAt,
		Unfulfilled:    unfulfilledRows(p.Unfulfilled),
	}
	err := w.cb.Execute(func() error {
		return w.mailer.SendAuditNotice(w.to, notice)
	})
	if err != nil {
		return fmt.Errorf("audit_worker: send notice: %w", err)
	}
	log.Info().Str("document_id", p.DocumentID).Str("to", w.to).Msg("audit_worker: override notice sent")
	return nil
}

func unfulfilledRows(snapshot string) []string {
	var lines []struct {
		LineItemID        string `json:"line_item_id"`
		OriginalQuantity  int    `json:"original_quantity"`
		RemainingQuantity int    `json:"remaining_quantity"`
	}
	if err := json.Unmarshal([]byte(snapshot), &lines); err != nil {
		return nil
	}
	rows := make([]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, fmt.Sprintf("line %s: %d of %d remaining", l.LineItemID, l.RemainingQuantity, l.OriginalQuantity))
	}
	return rows
}
