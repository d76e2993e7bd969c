package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gestia-erp/gestia/internal/sync"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFiscalSubmit is the task type for DGI/MCF e-invoice submission.
	TaskFiscalSubmit = "fiscal:submit"
)

// FiscalSubmitPayload identifies the invoice to submit. The id travels
// as a decimal string; invoice ids can exceed 2^53.
type FiscalSubmitPayload struct {
	CompanyID int64  `json:"companyId"`
	InvoiceID string `json:"invoiceId"`
}

// NewFiscalSubmitTask constructs an Asynq task.
func NewFiscalSubmitTask(payload FiscalSubmitPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFiscalSubmit, data, asynq.MaxRetry(10), asynq.Queue(QueueDefault)), nil
}

// Enqueuer submits fiscal tasks through the Asynq client. It satisfies
// the sync engine's FiscalEnqueuer contract.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer constructs an Enqueuer.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueInvoiceSubmission queues one committed invoice for submission.
func (e *Enqueuer) EnqueueInvoiceSubmission(ctx context.Context, companyID int64, invoiceID sync.ID) error {
	task, err := NewFiscalSubmitTask(FiscalSubmitPayload{
		CompanyID: companyID,
		InvoiceID: invoiceID.String(),
	})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task)
	return err
}

// FiscalSubmitter posts committed invoice ids to the DGI/MCF endpoint.
type FiscalSubmitter struct {
	endpoint string
	client   *http.Client
}

// NewFiscalSubmitter constructs a FiscalSubmitter.
func NewFiscalSubmitter(endpoint string, timeout time.Duration) *FiscalSubmitter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FiscalSubmitter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// HandleFiscalSubmitTask processes TaskFiscalSubmit tasks.
func (s *FiscalSubmitter) HandleFiscalSubmitTask(ctx context.Context, t *asynq.Task) error {
	var payload FiscalSubmitPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	body, err := json.Marshal(map[string]string{"invoiceId": payload.InvoiceID})
	if err != nil {
		return asynq.SkipRetry
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("jobs: fiscal submit invoice %s: %w", payload.InvoiceID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("jobs: fiscal endpoint returned %d for invoice %s", resp.StatusCode, payload.InvoiceID)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		// Rejected payloads will not improve on retry.
		return fmt.Errorf("jobs: fiscal endpoint rejected invoice %s with %d: %w", payload.InvoiceID, resp.StatusCode, asynq.SkipRetry)
	}
	return nil
}
