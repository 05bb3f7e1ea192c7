package services

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"oracle-backend/internal/config"
	"oracle-backend/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// verifierABI covers the verifier contract surface the oracle needs: the
// fulfillment call and the request event.
const verifierABI = `[
	{"type":"function","name":"fulfillVerification","inputs":[{"name":"requestId","type":"bytes32"},{"name":"success","type":"bool"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"event","name":"VerificationRequested","inputs":[{"name":"requestId","type":"bytes32","indexed":true},{"name":"requester","type":"address","indexed":true},{"name":"userId","type":"bytes32","indexed":true},{"name":"createdAt","type":"uint64","indexed":false},{"name":"expiryAt","type":"uint64","indexed":false}],"anonymous":false}
]`

// trapStateABI is the generic trap contract read the oracle performs.
const trapStateABI = `[
	{"type":"function","name":"shouldRespond","inputs":[{"name":"userId","type":"bytes32"},{"name":"chainId","type":"uint256"},{"name":"verifierAddress","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"}
]`

const verificationRequestedEvent = "VerificationRequested"

// ZeroBlockHash is the fallback block hash substituted when the latest-block
// read fails.
const ZeroBlockHash = "0x0000000000000000000000000000000000000000000000000000000000000000"

// VerificationRequest is a decoded VerificationRequested event.
type VerificationRequest struct {
	RequestID string `json:"requestId"`
	Requester string `json:"requester"`
	UserID    string `json:"userId"`
	CreatedAt int64  `json:"createdAt"`
	ExpiryAt  int64  `json:"expiryAt"`
}

// BlockInfo is the latest chain head snapshot used for code computation.
type BlockInfo struct {
	Number uint64
	Hash   string
}

// ChainReader provides the read-only chain access the processor needs.
type ChainReader interface {
	LatestBlock(ctx context.Context) (*BlockInfo, error)
	TrapTriggered(ctx context.Context, trapAddress, userID string, chainID int64) (bool, error)
}

// ChainWriter submits the fulfillment transaction and waits for confirmation.
type ChainWriter interface {
	FulfillVerification(ctx context.Context, requestID string, success bool) (string, error)
}

// ChainWriteError is the terminal error returned once the fulfillment retry
// budget is exhausted. It carries the last underlying error for diagnostics;
// no finer classification is attempted since every failure class gets the
// same backoff-and-retry treatment.
type ChainWriteError struct {
	RequestID string
	Attempts  int
	Err       error
}

func (e *ChainWriteError) Error() string {
	return fmt.Sprintf("chain write for request %s failed after %d attempts: %v", e.RequestID, e.Attempts, e.Err)
}

func (e *ChainWriteError) Unwrap() error {
	return e.Err
}

// EthChainClient implements ChainReader and ChainWriter against the verifier
// contract's chain via go-ethereum.
type EthChainClient struct {
	client       *ethclient.Client
	wsClient     *ethclient.Client // nil when no websocket endpoint is configured
	verifierAddr common.Address
	verifierABI  abi.ABI
	trapABI      abi.ABI
	privateKey   *ecdsa.PrivateKey
	chainID      *big.Int
	gasLimit     uint64
	maxAttempts  int
	backoffBase  time.Duration
}

// NewEthChainClient dials the configured endpoints and prepares the signing
// key. The websocket endpoint is optional; without it only the NATS listener
// can feed events.
func NewEthChainClient(cfg *config.BlockchainConfig) (*EthChainClient, error) {
	client, err := ethclient.Dial(cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint %s: %w", cfg.RPCEndpoint, err)
	}

	var wsClient *ethclient.Client
	if cfg.WSEndpoint != "" {
		wsClient, err = ethclient.Dial(cfg.WSEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to dial ws endpoint %s: %w", cfg.WSEndpoint, err)
		}
	}

	parsedVerifierABI, err := abi.JSON(strings.NewReader(verifierABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse verifier ABI: %w", err)
	}
	parsedTrapABI, err := abi.JSON(strings.NewReader(trapStateABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse trap ABI: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse oracle private key: %w", err)
	}

	oracleAddr := crypto.PubkeyToAddress(privateKey.PublicKey)
	log.Printf("🔑 [Chain] Oracle signer address: %s", oracleAddr.Hex())

	return &EthChainClient{
		client:       client,
		wsClient:     wsClient,
		verifierAddr: common.HexToAddress(cfg.VerifierContract),
		verifierABI:  parsedVerifierABI,
		trapABI:      parsedTrapABI,
		privateKey:   privateKey,
		chainID:      big.NewInt(cfg.ChainID),
		gasLimit:     cfg.GasLimit,
		maxAttempts:  cfg.MaxWriteAttempts,
		backoffBase:  time.Second,
	}, nil
}

// LatestBlock returns the current chain head number and hash.
func (c *EthChainClient) LatestBlock(ctx context.Context) (*BlockInfo, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest header: %w", err)
	}
	return &BlockInfo{
		Number: header.Number.Uint64(),
		Hash:   header.Hash().Hex(),
	}, nil
}

// TrapTriggered queries the user's trap contract for its trigger state. The
// user id is hashed to bytes32 the same way every client of the trap contract
// does, so all parties query the same key.
func (c *EthChainClient) TrapTriggered(ctx context.Context, trapAddress, userID string, chainID int64) (bool, error) {
	trap := bind.NewBoundContract(common.HexToAddress(trapAddress), c.trapABI, c.client, c.client, c.client)

	userIDHash := crypto.Keccak256Hash([]byte(userID))

	var out []interface{}
	err := trap.Call(&bind.CallOpts{Context: ctx}, &out, "shouldRespond",
		userIDHash, big.NewInt(chainID), c.verifierAddr)
	if err != nil {
		return false, fmt.Errorf("shouldRespond call failed for trap %s: %w", trapAddress, err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected shouldRespond output arity %d", len(out))
	}
	triggered, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected shouldRespond output type %T", out[0])
	}
	return triggered, nil
}

// FulfillVerification submits fulfillVerification(requestId, success) with a
// fixed gas limit, waits for one confirmation, and retries with exponential
// backoff on any failure. Exhausting the budget returns *ChainWriteError.
func (c *EthChainClient) FulfillVerification(ctx context.Context, requestID string, success bool) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		metrics.ChainWriteAttempts.Inc()

		txHash, err := c.fulfillOnce(ctx, requestID, success)
		if err == nil {
			return txHash, nil
		}
		lastErr = err
		metrics.ChainWriteFailures.Inc()

		backoff := c.backoffBase * time.Duration(1<<attempt) // 2s, 4s, 8s, ...
		log.Printf("⚠️ [Chain] fulfill attempt %d/%d for %s failed, retrying in %v: %v",
			attempt, c.maxAttempts, requestID, backoff, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", &ChainWriteError{RequestID: requestID, Attempts: attempt, Err: ctx.Err()}
		}
	}

	return "", &ChainWriteError{RequestID: requestID, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *EthChainClient) fulfillOnce(ctx context.Context, requestID string, success bool) (string, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, c.chainID)
	if err != nil {
		return "", fmt.Errorf("failed to build transactor: %w", err)
	}
	auth.Context = ctx
	auth.GasLimit = c.gasLimit

	verifier := bind.NewBoundContract(c.verifierAddr, c.verifierABI, c.client, c.client, c.client)

	tx, err := verifier.Transact(auth, "fulfillVerification", common.HexToHash(requestID), success)
	if err != nil {
		return "", fmt.Errorf("failed to submit fulfillment: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return "", fmt.Errorf("failed to wait for confirmation of %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("fulfillment transaction %s reverted", tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

// SubscribeRequests opens a log subscription for VerificationRequested
// events on the verifier contract. Requires the websocket endpoint.
func (c *EthChainClient) SubscribeRequests(ctx context.Context, sink chan<- types.Log) (ethereum.Subscription, error) {
	if c.wsClient == nil {
		return nil, fmt.Errorf("no websocket endpoint configured for log subscription")
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.verifierAddr},
		Topics:    [][]common.Hash{{c.verifierABI.Events[verificationRequestedEvent].ID}},
	}
	return c.wsClient.SubscribeFilterLogs(ctx, query, sink)
}

// DecodeVerificationRequest decodes a raw VerificationRequested log into a
// normalized request record.
func (c *EthChainClient) DecodeVerificationRequest(lg types.Log) (*VerificationRequest, error) {
	if len(lg.Topics) != 4 {
		return nil, fmt.Errorf("unexpected topic count %d", len(lg.Topics))
	}

	var payload struct {
		CreatedAt uint64
		ExpiryAt  uint64
	}
	if err := c.verifierABI.UnpackIntoInterface(&payload, verificationRequestedEvent, lg.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack event data: %w", err)
	}

	return &VerificationRequest{
		RequestID: lg.Topics[1].Hex(),
		Requester: common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		UserID:    decodeBytes32String(lg.Topics[3]),
		CreatedAt: int64(payload.CreatedAt),
		ExpiryAt:  int64(payload.ExpiryAt),
	}, nil
}

// decodeBytes32String interprets a bytes32 topic as a zero-terminated UTF-8
// string, the on-chain encoding of the user identifier.
func decodeBytes32String(h common.Hash) string {
	b := h.Bytes()
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
