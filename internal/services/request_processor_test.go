package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"oracle-backend/internal/cryptoutil"
	"oracle-backend/internal/models"
	"oracle-backend/internal/otp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory fakes ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) Upsert(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.UserID] = user
	return nil
}

func (f *fakeUserRepo) GetByUserID(ctx context.Context, userID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID], nil
}

type fakeSubmissionRepo struct {
	mu   sync.Mutex
	subs map[string]*models.Submission
	// missFirst makes the first N lookups report no submission, simulating
	// a code that arrives after the request started processing.
	missFirst int
	gets      int
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{subs: make(map[string]*models.Submission)}
}

func (f *fakeSubmissionRepo) Put(ctx context.Context, s *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[s.RequestID] = s
	return nil
}

func (f *fakeSubmissionRepo) GetByRequestID(ctx context.Context, requestID string) (*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.gets <= f.missFirst {
		return nil, nil
	}
	return f.subs[requestID], nil
}

func (f *fakeSubmissionRepo) Delete(ctx context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, requestID)
	return nil
}

func (f *fakeSubmissionRepo) ListPending(ctx context.Context, limit int) ([]*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Submission
	for _, s := range f.subs {
		out = append(out, s)
	}
	return out, nil
}

type fakeProcessedRepo struct {
	mu      sync.Mutex
	records map[string]*models.ProcessedRequest
	creates int
}

func newFakeProcessedRepo() *fakeProcessedRepo {
	return &fakeProcessedRepo{records: make(map[string]*models.ProcessedRequest)}
}

func (f *fakeProcessedRepo) Create(ctx context.Context, r *models.ProcessedRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[r.RequestID] = r
	f.creates++
	return nil
}

func (f *fakeProcessedRepo) GetByRequestID(ctx context.Context, requestID string) (*models.ProcessedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[requestID], nil
}

func (f *fakeProcessedRepo) List(ctx context.Context, page, pageSize int) ([]*models.ProcessedRequest, int64, error) {
	return nil, 0, nil
}

type fulfillCall struct {
	requestID string
	success   bool
}

type fakeChain struct {
	mu           sync.Mutex
	block        *BlockInfo
	blockErr     error
	triggered    bool
	trapErr      error
	fulfillErr   error
	fulfillCalls []fulfillCall
}

func (f *fakeChain) LatestBlock(ctx context.Context) (*BlockInfo, error) {
	if f.blockErr != nil {
		return nil, f.blockErr
	}
	return f.block, nil
}

func (f *fakeChain) TrapTriggered(ctx context.Context, trapAddress, userID string, chainID int64) (bool, error) {
	if f.trapErr != nil {
		return false, f.trapErr
	}
	return f.triggered, nil
}

func (f *fakeChain) FulfillVerification(ctx context.Context, requestID string, success bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fulfillCalls = append(f.fulfillCalls, fulfillCall{requestID: requestID, success: success})
	if f.fulfillErr != nil {
		return "", f.fulfillErr
	}
	return "0xfulfilled", nil
}

// --- fixture ---

const (
	fixtureSeed      = "JBSWY3DPEHPK3PXP"
	fixtureMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	fixtureBlockHash = "0x7f9c9e31ac8256ca2f258583df262dbc7d6f68f2a03043d5c99a4ae5a7396ce9"
)

type fixture struct {
	users       *fakeUserRepo
	submissions *fakeSubmissionRepo
	processed   *fakeProcessedRepo
	chain       *fakeChain
	processor   *RequestProcessor
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	seedBox, err := cryptoutil.NewSeedBox(fixtureMasterKey)
	require.NoError(t, err)

	f := &fixture{
		users:       newFakeUserRepo(),
		submissions: newFakeSubmissionRepo(),
		processed:   newFakeProcessedRepo(),
		chain:       &fakeChain{block: &BlockInfo{Number: 1000, Hash: fixtureBlockHash}},
		now:         time.Unix(1756300000, 0),
	}
	f.processor = NewRequestProcessor(
		f.users, f.submissions, f.processed,
		f.chain, f.chain,
		seedBox, NewWorkQueue(1), nil,
		ProcessorOptions{
			SubmissionAttempts: 2,
			SubmissionDelay:    time.Millisecond,
			RequeueAttempts:    0,
			Algorithm:          AlgorithmTrap,
		},
		nil,
	)
	f.processor.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) registerUser(t *testing.T, userID string) {
	t.Helper()
	sealed, err := f.processor.seedBox.Seal(fixtureSeed)
	require.NoError(t, err)
	require.NoError(t, f.users.Upsert(context.Background(), &models.User{
		UserID:    userID,
		SecretEnc: sealed,
		TrapID:    "0x00000000000000000000000000000000000000aa",
		ChainID:   1,
	}))
}

func (f *fixture) submit(t *testing.T, requestID, userID, code string) {
	t.Helper()
	require.NoError(t, f.submissions.Put(context.Background(), &models.Submission{
		RequestID: requestID,
		UserID:    userID,
		Code:      code,
		CreatedAt: f.now.Unix(),
	}))
}

func (f *fixture) request(requestID, userID string) *VerificationRequest {
	return &VerificationRequest{
		RequestID: requestID,
		UserID:    userID,
		CreatedAt: f.now.Unix() - 10,
		ExpiryAt:  f.now.Unix() + 300,
	}
}

// --- scenarios ---

func TestProcess_SuccessEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "u1")

	code := otp.GenerateTrapCode(fixtureSeed, fixtureBlockHash, false, otp.TimeStep(f.now))
	f.submit(t, "0x01", "u1", code)

	f.processor.Process(context.Background(), f.request("0x01", "u1"), 0)

	require.Len(t, f.chain.fulfillCalls, 1)
	assert.True(t, f.chain.fulfillCalls[0].success)

	record := f.processed.records["0x01"]
	require.NotNil(t, record)
	assert.Equal(t, models.ProcessedStatusSuccess, record.Status)
	require.NotNil(t, record.OracleTxHash)
	assert.Equal(t, "0xfulfilled", *record.OracleTxHash)

	assert.Empty(t, f.submissions.subs, "consumed submission must be deleted")
}

func TestProcess_WrongCodeIsCompletedNegativeVerification(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "u1")
	f.submit(t, "0x02", "u1", "000000")

	f.processor.Process(context.Background(), f.request("0x02", "u1"), 0)

	// A wrong code still gets exactly one chain write, fulfilling false.
	require.Len(t, f.chain.fulfillCalls, 1)
	assert.False(t, f.chain.fulfillCalls[0].success)

	record := f.processed.records["0x02"]
	require.NotNil(t, record)
	assert.Equal(t, models.ProcessedStatusFailed, record.Status)
	assert.NotNil(t, record.OracleTxHash, "negative verification is fulfilled on-chain")
	assert.Empty(t, f.submissions.subs)
}

func TestProcess_TrapTriggeredChangesExpectedCode(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "u1")
	f.chain.triggered = true

	// Code computed under SAFE must not verify while the trap is TRIGGERED.
	f.submit(t, "0x03", "u1", otp.GenerateTrapCode(fixtureSeed, fixtureBlockHash, false, otp.TimeStep(f.now)))
	f.processor.Process(context.Background(), f.request("0x03", "u1"), 0)
	require.Len(t, f.chain.fulfillCalls, 1)
	assert.False(t, f.chain.fulfillCalls[0].success)

	// And the TRIGGERED code verifies.
	f.submit(t, "0x04", "u1", otp.GenerateTrapCode(fixtureSeed, fixtureBlockHash, true, otp.TimeStep(f.now)))
	f.processor.Process(context.Background(), f.request("0x04", "u1"), 0)
	require.Len(t, f.chain.fulfillCalls, 2)
	assert.True(t, f.chain.fulfillCalls[1].success)
}

func TestProcess_IdempotencyGate(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "u1")
	f.submit(t, "0x05", "u1", "123456")

	hash := "0xearlier"
	require.NoError(t, f.processed.Create(context.Background(), &models.ProcessedRequest{
		RequestID:    "0x05",
		Status:       models.ProcessedStatusSuccess,
		OracleTxHash: &hash,
		FulfilledAt:  f.now.Unix(),
	}))

	f.processor.Process(context.Background(), f.request("0x05", "u1"), 0)

	assert.Empty(t, f.chain.fulfillCalls, "already-processed request must cause zero chain writes")
	assert.Equal(t, 1, f.processed.creates, "no additional ledger writes")
	assert.Len(t, f.submissions.subs, 1, "no store mutations")
}

func TestProcess_ExpiredRequest(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "u1")
	f.submit(t, "0x06", "u1", "123456")

	req := f.request("0x06", "u1")
	req.ExpiryAt = f.now.Unix() - 1

	f.processor.Process(context.Background(), req, 0)

	assert.Empty(t, f.chain.fulfillCalls, "no chain write for an expired request")
	record := f.processed.records["0x06"]
	require.NotNil(t, record)
	assert.Equal(t, models.ProcessedStatusFailed, record.Status)
	assert.Nil(t, record.OracleTxHash)
}

func TestProcess_MissingSubmissionExhaustsBudget(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "u1")
	// no submission ever posted

	f.processor.Process(context.Background(), f.request("0x07", "u1"), 0)

	assert.Empty(t, f.chain.fulfillCalls)
	record := f.processed.records["0x07"]
	require.NotNil(t, record)
	assert.Equal(t, models.ProcessedStatusFailed, record.Status)
	assert.Nil(t, record.OracleTxHash)
}

func TestProcess_RequeuedPassConsumesLateSubmission(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "u1")
	f.processor.opts.SubmissionAttempts = 1
	f.processor.opts.RequeueAttempts = 2
	f.processor.opts.RequeueBackoffBase = time.Millisecond
	f.processor.opts.RequeueBackoffStep = time.Millisecond

	code := otp.GenerateTrapCode(fixtureSeed, fixtureBlockHash, false, otp.TimeStep(f.now))
	f.submit(t, "0x0d", "u1", code)
	// The first pass polls once and misses; the submission is visible only
	// to the requeued pass.
	f.submissions.missFirst = 1

	f.processor.queue.Start(context.Background())
	defer f.processor.queue.Stop()
	f.processor.Enqueue(f.request("0x0d", "u1"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.processor.queue.Drain(ctx))

	require.Len(t, f.chain.fulfillCalls, 1)
	assert.True(t, f.chain.fulfillCalls[0].success)
	assert.GreaterOrEqual(t, f.submissions.gets, 2, "a requeued pass must poll again")

	record := f.processed.records["0x0d"]
	require.NotNil(t, record)
	assert.Equal(t, models.ProcessedStatusSuccess, record.Status)
	require.NotNil(t, record.OracleTxHash)
	assert.Empty(t, f.submissions.subs, "consumed submission must be deleted")
}

func TestProcess_RequeueBudgetDecrementsToTerminalFailure(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "u1")
	f.processor.opts.SubmissionAttempts = 1
	f.processor.opts.RequeueAttempts = 2
	f.processor.opts.RequeueBackoffBase = time.Millisecond
	f.processor.opts.RequeueBackoffStep = time.Millisecond
	// no submission ever posted

	f.processor.queue.Start(context.Background())
	defer f.processor.queue.Stop()
	f.processor.Enqueue(f.request("0x0e", "u1"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.processor.queue.Drain(ctx))

	// Initial pass plus two requeues, one poll each, then terminal failure.
	assert.Equal(t, 3, f.submissions.gets)
	assert.Empty(t, f.chain.fulfillCalls)
	assert.Equal(t, 1, f.processed.creates, "exactly one terminal record")

	record := f.processed.records["0x0e"]
	require.NotNil(t, record)
	assert.Equal(t, models.ProcessedStatusFailed, record.Status)
	assert.Nil(t, record.OracleTxHash)
}

func TestProcess_UnknownUserIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "0x08", "ghost", "123456")

	f.processor.Process(context.Background(), f.request("0x08", "ghost"), 0)

	assert.Empty(t, f.chain.fulfillCalls)
	record := f.processed.records["0x08"]
	require.NotNil(t, record)
	assert.Equal(t, models.ProcessedStatusFailed, record.Status)
	assert.Nil(t, record.OracleTxHash)
	assert.Empty(t, f.submissions.subs, "unresolvable submission must be dropped")
}

func TestProcess_CorruptedSeedIsTerminal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.users.Upsert(context.Background(), &models.User{
		UserID:    "u1",
		SecretEnc: `{"iv":"00","content":"00","tag":"00"}`,
		TrapID:    "0x00000000000000000000000000000000000000aa",
		ChainID:   1,
	}))
	f.submit(t, "0x09", "u1", "123456")

	f.processor.Process(context.Background(), f.request("0x09", "u1"), 0)

	assert.Empty(t, f.chain.fulfillCalls)
	record := f.processed.records["0x09"]
	require.NotNil(t, record)
	assert.Equal(t, models.ProcessedStatusFailed, record.Status)
	assert.Nil(t, record.OracleTxHash)
	assert.Empty(t, f.submissions.subs)
}

func TestProcess_ChainWriteFailureLeavesRequestUnresolved(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "u1")
	f.submit(t, "0x0a", "u1", otp.GenerateTrapCode(fixtureSeed, fixtureBlockHash, false, otp.TimeStep(f.now)))
	f.chain.fulfillErr = &ChainWriteError{RequestID: "0x0a", Attempts: 4, Err: errors.New("rpc down")}

	f.processor.Process(context.Background(), f.request("0x0a", "u1"), 0)

	// A write failure says nothing about the verification outcome: no
	// record, submission left in place for operator reconciliation.
	assert.Nil(t, f.processed.records["0x0a"])
	assert.Len(t, f.submissions.subs, 1)
}

func TestProcess_ChainReadFailuresFallBack(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "u1")
	f.chain.blockErr = errors.New("rpc timeout")
	f.chain.trapErr = errors.New("rpc timeout")

	// Fallbacks are the zero block hash and the safe trap state.
	code := otp.GenerateTrapCode(fixtureSeed, ZeroBlockHash, false, otp.TimeStep(f.now))
	f.submit(t, "0x0b", "u1", code)

	f.processor.Process(context.Background(), f.request("0x0b", "u1"), 0)

	require.Len(t, f.chain.fulfillCalls, 1, "chain-read failure must not abort the request")
	assert.True(t, f.chain.fulfillCalls[0].success)
}

func TestProcess_RotationAlgorithm(t *testing.T) {
	f := newFixture(t)
	f.processor.opts.Algorithm = AlgorithmRotation
	f.registerUser(t, "u1")

	expected := fmt.Sprintf("%06d", otp.ComputeRotationCode(rotationSeed(fixtureSeed), f.chain.block.Number))
	f.submit(t, "0x0c", "u1", expected)

	f.processor.Process(context.Background(), f.request("0x0c", "u1"), 0)

	require.Len(t, f.chain.fulfillCalls, 1)
	assert.True(t, f.chain.fulfillCalls[0].success)
}
