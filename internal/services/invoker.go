package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"intake-pipeline/backend/internal/status"
	"intake-pipeline/backend/pkg/models"
)

// InvocationResult is what synchronous callers get back from the invoker.
type InvocationResult struct {
	JobID         string          `json:"jobId"`
	Status        models.Status   `json:"status"`
	Message       string          `json:"message"`
	ExecutionTime int64           `json:"executionTime"`
	Error         string          `json:"error,omitempty"`
	ErrorClass    string          `json:"errorClass,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// InvokerConfig holds the invoker's tunables.
type InvokerConfig struct {
	Timeout       time.Duration
	SwallowErrors bool
	// Disabled records every invocation as skipped without calling the service.
	Disabled bool
}

// PipelineInvoker calls the normalization service and records every outcome
// in the status store. It is the only writer of job statuses.
type PipelineInvoker struct {
	client  NormalizationClient
	store   status.Store
	logger  Logger
	cfg     InvokerConfig
	metrics *invokerMetrics
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewPipelineInvoker creates a new PipelineInvoker.
func NewPipelineInvoker(client NormalizationClient, store status.Store, logger Logger, cfg InvokerConfig) *PipelineInvoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &PipelineInvoker{
		client:   client,
		store:    store,
		logger:   logger,
		cfg:      cfg,
		metrics:  newInvokerMetrics(),
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// Run is a reserved invocation slot for one job. Exactly one of Execute or
// Abort must be called.
type Run struct {
	inv   *PipelineInvoker
	jobID string
	start time.Time
	once  sync.Once
}

// Begin reserves jobID and records it as pending, replacing any previous
// record for the job. It fails with ErrJobInProgress if an invocation for the
// same job has not finished.
func (inv *PipelineInvoker) Begin(jobID string) (*Run, error) {
	inv.mu.Lock()
	if _, busy := inv.inflight[jobID]; busy {
		inv.mu.Unlock()
		return nil, ErrJobInProgress
	}
	inv.inflight[jobID] = struct{}{}
	inv.mu.Unlock()

	start := inv.now()
	inv.store.Put(jobID, models.PipelineStatus{
		Status:       models.StatusPending,
		Phase:        models.PhaseQueued,
		CurrentPhase: "Waiting to start normalization",
		StartTime:    start,
	})
	return &Run{inv: inv, jobID: jobID, start: start}, nil
}

// Invoke runs the pipeline for jobID and waits for the outcome. With
// SwallowErrors the returned error is always nil and failures are reported
// only through the result and the stored status.
func (inv *PipelineInvoker) Invoke(ctx context.Context, jobID string, input models.PipelineInput) (*InvocationResult, error) {
	run, err := inv.Begin(jobID)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx, input)
}

// Start runs the pipeline for jobID in the background. The invocation is not
// tied to ctx cancellation, so a caller going away does not abort the job.
func (inv *PipelineInvoker) Start(ctx context.Context, jobID string, input models.PipelineInput) error {
	run, err := inv.Begin(jobID)
	if err != nil {
		return err
	}
	run.Go(ctx, input)
	return nil
}

// Wait blocks until every background invocation has finished.
func (inv *PipelineInvoker) Wait() {
	inv.wg.Wait()
}

// Go executes the run on its own goroutine, detached from ctx cancellation.
func (r *Run) Go(ctx context.Context, input models.PipelineInput) {
	r.inv.wg.Add(1)
	go func() {
		defer r.inv.wg.Done()
		_, _ = r.Execute(context.WithoutCancel(ctx), input)
	}()
}

// Execute performs the call, bounded by the configured timeout.
func (r *Run) Execute(ctx context.Context, input models.PipelineInput) (*InvocationResult, error) {
	var (
		res *InvocationResult
		err error
	)
	executed := false
	r.once.Do(func() {
		executed = true
		defer r.inv.release(r.jobID)
		res, err = r.inv.execute(ctx, r.jobID, r.start, input)
	})
	if !executed {
		return nil, fmt.Errorf("invocation for %s already finished", r.jobID)
	}
	return res, err
}

// Abort records the job as failed without calling the service. It is used
// when a prerequisite such as case persistence fails after Begin.
func (r *Run) Abort(cause error) {
	r.once.Do(func() {
		defer r.inv.release(r.jobID)
		r.inv.finishFailed(r.jobID, r.start, &InvocationError{Class: ClassUnavailable, Message: "invocation aborted", Cause: cause})
	})
}

func (inv *PipelineInvoker) release(jobID string) {
	inv.mu.Lock()
	delete(inv.inflight, jobID)
	inv.mu.Unlock()
}

func (inv *PipelineInvoker) execute(ctx context.Context, jobID string, start time.Time, input models.PipelineInput) (*InvocationResult, error) {
	logger := inv.logger
	if inv.cfg.Disabled {
		inv.write(jobID, start, func(st *models.PipelineStatus) {
			st.Status = models.StatusSkipped
			st.Phase = models.PhaseComplete
			st.CurrentPhase = "Normalization pipeline disabled"
		})
		logger.Info("pipeline disabled, invocation skipped", "job_id", jobID)
		return &InvocationResult{JobID: jobID, Status: models.StatusSkipped, Message: "Normalization pipeline is disabled"}, nil
	}

	inv.write(jobID, start, func(st *models.PipelineStatus) {
		st.Status = models.StatusProcessing
		st.Phase = models.PhaseNormalizing
		st.CurrentPhase = "Normalizing submitted data"
		st.Progress = 0
	})
	logger.Info("pipeline invocation started", "job_id", jobID, "document_types", input.DocumentTypes)

	callCtx, cancel := context.WithTimeout(ctx, inv.cfg.Timeout)
	resp, err := inv.client.Normalize(callCtx, input)
	cancel()
	elapsed := inv.now().Sub(start)

	if err != nil {
		var invErr *InvocationError
		if !errors.As(err, &invErr) {
			invErr = &InvocationError{Class: ClassUnavailable, Message: "normalization call failed", Cause: err}
		}
		st := inv.finishFailed(jobID, start, invErr)
		inv.metrics.record(ctx, invErr.Class, elapsed)
		logger.Error("pipeline invocation failed", "job_id", jobID, "class", invErr.Class, "error", err, "elapsed_ms", elapsed.Milliseconds())

		res := &InvocationResult{
			JobID:         jobID,
			Status:        models.StatusFailed,
			Message:       "Pipeline invocation failed",
			ExecutionTime: st.ExecutionTime,
			Error:         st.Error,
			ErrorClass:    invErr.Class,
		}
		if inv.cfg.SwallowErrors {
			return res, nil
		}
		return res, invErr
	}

	inv.write(jobID, start, func(st *models.PipelineStatus) {
		st.Phase = models.PhaseFinalizing
		st.CurrentPhase = fmt.Sprintf("Collected %d phase summaries", resp.Phases)
		st.Progress = 90
	})
	st := inv.write(jobID, start, func(st *models.PipelineStatus) {
		end := inv.now()
		st.Status = models.StatusSuccess
		st.Phase = models.PhaseComplete
		st.CurrentPhase = "Normalization complete"
		st.Progress = 100
		st.Result = resp.Body
		st.EndTime = &end
		st.ExecutionTime = end.Sub(start).Milliseconds()
	})
	inv.metrics.record(ctx, "success", elapsed)
	logger.Info("pipeline invocation succeeded", "job_id", jobID, "phases", resp.Phases, "elapsed_ms", elapsed.Milliseconds())

	return &InvocationResult{
		JobID:         jobID,
		Status:        models.StatusSuccess,
		Message:       "Pipeline completed successfully",
		ExecutionTime: st.ExecutionTime,
		Result:        resp.Body,
	}, nil
}

func (inv *PipelineInvoker) finishFailed(jobID string, start time.Time, invErr *InvocationError) models.PipelineStatus {
	return inv.write(jobID, start, func(st *models.PipelineStatus) {
		end := inv.now()
		st.Status = models.StatusFailed
		st.Phase = models.PhaseFailed
		st.CurrentPhase = "Normalization failed"
		st.Error = invErr.Error()
		st.ErrorClass = invErr.Class
		st.EndTime = &end
		st.ExecutionTime = end.Sub(start).Milliseconds()
	})
}

// write applies fn to the live entry. If the entry expired while the call was
// in flight it is recreated so the outcome is never lost.
func (inv *PipelineInvoker) write(jobID string, start time.Time, fn func(*models.PipelineStatus)) models.PipelineStatus {
	err := inv.store.Update(jobID, fn)
	switch {
	case err == nil:
	case errors.Is(err, status.ErrNotFound):
		st := models.PipelineStatus{Status: models.StatusProcessing, StartTime: start}
		fn(&st)
		inv.store.Put(jobID, st)
	default:
		inv.logger.Warn("status write rejected", "job_id", jobID, "error", err)
	}
	st, _ := inv.store.Get(jobID)
	return st
}
