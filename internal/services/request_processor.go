package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"oracle-backend/internal/cryptoutil"
	"oracle-backend/internal/metrics"
	"oracle-backend/internal/models"
	"oracle-backend/internal/otp"
	"oracle-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// Code engine selection, must match the deployed verifier contract.
const (
	AlgorithmTrap     = "trap"
	AlgorithmRotation = "rotation"
)

// OutcomeNotifier receives terminal outcomes for push delivery. Optional.
type OutcomeNotifier interface {
	NotifyProcessed(record *models.ProcessedRequest)
}

// ProcessorOptions tunes the retry budgets of the request processor.
type ProcessorOptions struct {
	// Inline submission polling: fixed attempt count with a fixed delay,
	// run within one processor invocation.
	SubmissionAttempts int
	SubmissionDelay    time.Duration
	// Outer requeue budget once inline polling is exhausted. Each requeue
	// resubmits the request to the work queue after a linear backoff of
	// base plus step per consumed attempt.
	RequeueAttempts    int
	RequeueBackoffBase time.Duration
	RequeueBackoffStep time.Duration
	// Algorithm selects the code engine variant.
	Algorithm string
}

// RequestProcessor drives one verification request through lookup,
// validation, code computation and on-chain fulfillment. It is the sole
// writer of processed records and the sole deleter of submissions.
type RequestProcessor struct {
	users       repository.UserRepository
	submissions repository.SubmissionRepository
	processed   repository.ProcessedRequestRepository
	reader      ChainReader
	writer      ChainWriter
	seedBox     *cryptoutil.SeedBox
	queue       *WorkQueue
	notifier    OutcomeNotifier
	opts        ProcessorOptions
	logger      *logrus.Logger

	now func() time.Time
}

// NewRequestProcessor creates a request processor.
func NewRequestProcessor(
	users repository.UserRepository,
	submissions repository.SubmissionRepository,
	processed repository.ProcessedRequestRepository,
	reader ChainReader,
	writer ChainWriter,
	seedBox *cryptoutil.SeedBox,
	queue *WorkQueue,
	notifier OutcomeNotifier,
	opts ProcessorOptions,
	logger *logrus.Logger,
) *RequestProcessor {
	if opts.SubmissionAttempts <= 0 {
		opts.SubmissionAttempts = 10
	}
	if opts.RequeueAttempts < 0 {
		opts.RequeueAttempts = 0
	}
	if opts.RequeueBackoffBase == 0 {
		opts.RequeueBackoffBase = 5 * time.Second
	}
	if opts.RequeueBackoffStep == 0 {
		opts.RequeueBackoffStep = 2 * time.Second
	}
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmTrap
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RequestProcessor{
		users:       users,
		submissions: submissions,
		processed:   processed,
		reader:      reader,
		writer:      writer,
		seedBox:     seedBox,
		queue:       queue,
		notifier:    notifier,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// Enqueue schedules a request with the full requeue budget.
func (p *RequestProcessor) Enqueue(req *VerificationRequest) {
	p.enqueue(req, p.opts.RequeueAttempts)
}

func (p *RequestProcessor) enqueue(req *VerificationRequest, retriesLeft int) {
	p.queue.Add(fmt.Sprintf("request %s", req.RequestID), func(ctx context.Context) {
		timer := time.Now()
		p.Process(ctx, req, retriesLeft)
		metrics.ProcessingDuration.Observe(time.Since(timer).Seconds())
	})
}

// Process runs the request state machine once. retriesLeft is the remaining
// requeue budget for the missing-submission path. Every failure is isolated
// here; nothing propagates to the work queue.
func (p *RequestProcessor) Process(ctx context.Context, req *VerificationRequest, retriesLeft int) {
	reqLog := p.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"user_id":    req.UserID,
	})
	reqLog.Info("Processing verification request")

	// Idempotency gate: re-checked on every entry, including requeues, so a
	// redelivered event or a second requeue can never fulfill twice.
	record, err := p.processed.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		reqLog.WithError(err).Error("Ledger lookup failed, dropping request")
		return
	}
	if record != nil {
		reqLog.WithField("status", record.Status).Info("Request already processed, skipping")
		return
	}

	// Expiry: no chain write is attempted for an already-expired request.
	if p.now().Unix() > req.ExpiryAt {
		reqLog.WithField("expiry_at", req.ExpiryAt).Warn("Request expired before processing")
		p.writeOutcome(ctx, reqLog, req.RequestID, false, nil)
		return
	}

	// Submission correlation: the out-of-band code may not have arrived yet,
	// so poll with a fixed budget before yielding back to the scheduler.
	submission := p.pollSubmission(ctx, req.RequestID, reqLog)
	if submission == nil {
		p.requeueOrFail(ctx, req, retriesLeft, reqLog)
		return
	}

	// Secret resolution. An unknown user cannot ever resolve, so drop the
	// submission along with recording the failure.
	user, err := p.users.GetByUserID(ctx, submission.UserID)
	if err != nil {
		reqLog.WithError(err).Error("User lookup failed, dropping request")
		return
	}
	if user == nil {
		reqLog.WithField("submission_user", submission.UserID).Warn("No registered seed for user")
		p.writeOutcome(ctx, reqLog, req.RequestID, false, nil)
		p.deleteSubmission(ctx, req.RequestID, reqLog)
		return
	}

	seed, err := p.seedBox.Open(user.SecretEnc)
	if err != nil {
		reqLog.WithError(err).Error("Failed to decrypt user seed")
		p.writeOutcome(ctx, reqLog, req.RequestID, false, nil)
		p.deleteSubmission(ctx, req.RequestID, reqLog)
		return
	}

	// Chain-state gathering is best-effort: the code can still be computed
	// against fallback values when a read fails.
	block := p.latestBlockOrFallback(ctx, reqLog)
	trapTriggered := p.trapStateOrFallback(ctx, user, reqLog)

	success := p.verifyCode(submission.Code, seed, block, trapTriggered)
	reqLog.WithFields(logrus.Fields{
		"verified":       success,
		"trap_triggered": trapTriggered,
		"block_number":   block.Number,
	}).Info("Code verification complete")

	// On-chain fulfillment. A write failure does not indicate the
	// verification outcome was wrong, so nothing is recorded: the request
	// stays in the submission store for operator reconciliation.
	txHash, err := p.writer.FulfillVerification(ctx, req.RequestID, success)
	if err != nil {
		metrics.RequestsUnresolved.Inc()
		reqLog.WithError(err).Error("Fulfillment write retries exhausted, leaving request unresolved")
		return
	}

	p.writeOutcome(ctx, reqLog, req.RequestID, success, &txHash)
	p.deleteSubmission(ctx, req.RequestID, reqLog)
}

// pollSubmission polls the submission store with the inline retry budget.
func (p *RequestProcessor) pollSubmission(ctx context.Context, requestID string, reqLog *logrus.Entry) *models.Submission {
	for attempt := 1; attempt <= p.opts.SubmissionAttempts; attempt++ {
		submission, err := p.submissions.GetByRequestID(ctx, requestID)
		if err != nil {
			reqLog.WithError(err).Error("Submission lookup failed")
		} else if submission != nil {
			return submission
		}

		if attempt == p.opts.SubmissionAttempts {
			break
		}
		reqLog.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     p.opts.SubmissionAttempts,
		}).Warn("Submission not found yet, retrying")

		select {
		case <-time.After(p.opts.SubmissionDelay):
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// requeueOrFail resubmits the request to the work queue after a linear
// backoff, or records a terminal failure once the budget is exhausted. The
// backoff grows with consumed attempts (7s, 9s, 11s with the default budget).
func (p *RequestProcessor) requeueOrFail(ctx context.Context, req *VerificationRequest, retriesLeft int, reqLog *logrus.Entry) {
	if retriesLeft <= 0 {
		reqLog.Warn("No submission arrived and requeue budget exhausted, recording failure")
		p.writeOutcome(ctx, reqLog, req.RequestID, false, nil)
		return
	}

	delay := time.Duration(p.opts.RequeueAttempts+1-retriesLeft)*p.opts.RequeueBackoffStep + p.opts.RequeueBackoffBase
	reqLog.WithFields(logrus.Fields{
		"delay":        delay,
		"retries_left": retriesLeft,
	}).Info("No submission yet, requeueing request")
	metrics.RequestRequeues.Inc()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}
	p.enqueue(req, retriesLeft-1)
}

func (p *RequestProcessor) latestBlockOrFallback(ctx context.Context, reqLog *logrus.Entry) *BlockInfo {
	block, err := p.reader.LatestBlock(ctx)
	if err != nil {
		metrics.ChainReadFallbacks.WithLabelValues("latest_block").Inc()
		reqLog.WithError(err).Warn("Failed to fetch latest block, using zero hash")
		return &BlockInfo{Number: 0, Hash: ZeroBlockHash}
	}
	return block
}

func (p *RequestProcessor) trapStateOrFallback(ctx context.Context, user *models.User, reqLog *logrus.Entry) bool {
	if user.TrapID == "" {
		reqLog.Warn("User has no trap contract configured, assuming safe state")
		return false
	}
	triggered, err := p.reader.TrapTriggered(ctx, user.TrapID, user.UserID, user.ChainID)
	if err != nil {
		metrics.ChainReadFallbacks.WithLabelValues("trap_state").Inc()
		reqLog.WithError(err).WithField("trap_id", user.TrapID).Warn("Trap state query failed, assuming safe state")
		return false
	}
	return triggered
}

// verifyCode compares the submitted code against the expected one for the
// configured engine, in constant time.
func (p *RequestProcessor) verifyCode(submitted, seed string, block *BlockInfo, trapTriggered bool) bool {
	switch p.opts.Algorithm {
	case AlgorithmRotation:
		expected := fmt.Sprintf("%06d", otp.ComputeRotationCode(rotationSeed(seed), block.Number))
		if len(submitted) != len(expected) {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) == 1
	default:
		return otp.ValidateTrapCode(submitted, seed, block.Hash, trapTriggered, otp.TimeStep(p.now()))
	}
}

// rotationSeed maps a stored seed to the numeric form the rotation engine
// digests: decimal when it parses, raw bytes otherwise.
func rotationSeed(seed string) *big.Int {
	if n, ok := new(big.Int).SetString(seed, 10); ok {
		return n
	}
	return new(big.Int).SetBytes([]byte(seed))
}

func (p *RequestProcessor) writeOutcome(ctx context.Context, reqLog *logrus.Entry, requestID string, success bool, txHash *string) {
	status := models.ProcessedStatusFailed
	if success {
		status = models.ProcessedStatusSuccess
	}

	record := &models.ProcessedRequest{
		RequestID:    requestID,
		Status:       status,
		OracleTxHash: txHash,
		FulfilledAt:  p.now().Unix(),
	}
	if err := p.processed.Create(ctx, record); err != nil {
		reqLog.WithError(err).Error("Failed to write processed record")
		return
	}

	metrics.RequestsProcessed.WithLabelValues(status).Inc()
	fields := logrus.Fields{"status": status}
	if txHash != nil {
		fields["tx_hash"] = *txHash
	}
	reqLog.WithFields(fields).Info("Request processed")

	if p.notifier != nil {
		p.notifier.NotifyProcessed(record)
	}
}

func (p *RequestProcessor) deleteSubmission(ctx context.Context, requestID string, reqLog *logrus.Entry) {
	if err := p.submissions.Delete(ctx, requestID); err != nil {
		reqLog.WithError(err).Error("Failed to delete consumed submission")
	}
}
