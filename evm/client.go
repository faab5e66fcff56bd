// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/crypto"
	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/ethclient"
	"github.com/luxfi/ids"
	"github.com/luxfi/lockchat"
	"github.com/luxfi/lockchat/cache"
	"github.com/luxfi/lockchat/utils"
	log "github.com/luxfi/log"

	"github.com/cenkalti/backoff/v4"
)

const (
	// If the max base fee is not explicitly set, use 3x the current base fee estimate
	defaultBaseFeeFactor = 3

	defaultGasLimit           = 1_000_000
	defaultTxInclusionTimeout = 30 * time.Second
	defaultRPCTimeout         = 10 * time.Second

	// Max buffer size for subscription log channels
	maxSubscriptionBuffer = 4096

	receiptCacheSize = 512
)

// Config parameterizes a Client.
type Config struct {
	// BlockchainID labels the target chain in logs.
	BlockchainID ids.ID

	RPCEndpoint string
	WSEndpoint  string

	ContractAddress common.Address
	PrivateKey      *ecdsa.PrivateKey

	GasLimit             uint64
	MaxBaseFee           *big.Int
	MaxPriorityFeePerGas *big.Int
	TxInclusionTimeout   time.Duration
}

// Client implements lockchat.Ledger against a live chain: ABI-packed
// submissions signed with the configured key, receipt polling bounded by
// the caller's context, and log subscriptions decoded into typed events.
type Client struct {
	logger      log.Logger
	rpcClient   *ethclient.Client
	wsClient    *ethclient.Client
	contractABI abi.ABI
	contract    common.Address
	key         *ecdsa.PrivateKey
	sender      common.Address
	evmChainID  *big.Int

	nonceLock    sync.Mutex
	currentNonce uint64

	gasLimit             uint64
	maxBaseFee           *big.Int
	maxPriorityFeePerGas *big.Int
	txInclusionTimeout   time.Duration

	// Receipts are immutable once confirmed.
	receipts *cache.LRUCache[common.Hash, *lockchat.Receipt]
}

var _ lockchat.Ledger = (*Client)(nil)

// NewClient dials the RPC and WS endpoints and initializes the sender
// nonce from the pending state to account for restarts with transactions
// still in the mempool.
func NewClient(logger log.Logger, config *Config) (*Client, error) {
	logger = logger.With(log.Stringer("blockchainID", config.BlockchainID))

	rpcClient, err := ethclient.Dial(config.RPCEndpoint)
	if err != nil {
		logger.Error("failed to dial rpc endpoint", log.Err(err))
		return nil, err
	}

	wsClient := rpcClient
	if config.WSEndpoint != "" {
		wsClient, err = ethclient.Dial(config.WSEndpoint)
		if err != nil {
			logger.Error("failed to dial ws endpoint", log.Err(err))
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRPCTimeout)
	defer cancel()

	evmChainID, err := rpcClient.ChainID(ctx)
	if err != nil {
		logger.Error("failed to get chain ID from endpoint", log.Err(err))
		return nil, err
	}

	sender := common.BytesToAddress(crypto.PubkeyToAddress(config.PrivateKey.PublicKey).Bytes())
	pendingNonce, err := rpcClient.PendingNonceAt(ctx, sender)
	if err != nil {
		logger.Error("failed to get pending nonce", log.Err(err))
		return nil, err
	}

	contractABI, err := loadChatABI()
	if err != nil {
		return nil, err
	}

	gasLimit := config.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	txInclusionTimeout := config.TxInclusionTimeout
	if txInclusionTimeout <= 0 {
		txInclusionTimeout = defaultTxInclusionTimeout
	}

	logger.Info(
		"initialized ledger client",
		log.String("evmChainID", evmChainID.String()),
		log.Stringer("contract", config.ContractAddress),
		log.Stringer("sender", sender),
		log.Uint64("pendingNonce", pendingNonce),
	)

	return &Client{
		logger:               logger,
		rpcClient:            rpcClient,
		wsClient:             wsClient,
		contractABI:          contractABI,
		contract:             config.ContractAddress,
		key:                  config.PrivateKey,
		sender:               sender,
		evmChainID:           evmChainID,
		currentNonce:         pendingNonce,
		gasLimit:             gasLimit,
		maxBaseFee:           config.MaxBaseFee,
		maxPriorityFeePerGas: config.MaxPriorityFeePerGas,
		txInclusionTimeout:   txInclusionTimeout,
		receipts:             cache.NewLRUCache[common.Hash, *lockchat.Receipt](receiptCacheSize),
	}, nil
}

func (c *Client) ContractAddress() common.Address { return c.contract }
func (c *Client) SenderAddress() common.Address   { return c.sender }

// Submit packs, signs, and broadcasts a transaction invoking fn on the chat
// contract. Nonce access is serialized so transactions are sent in nonce
// order.
func (c *Client) Submit(ctx context.Context, fn string, args ...interface{}) (common.Hash, error) {
	callData, err := c.contractABI.Pack(fn, normalizeArgs(args)...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack %s call: %w", fn, err)
	}

	gasFeeCap, gasTipCap, err := c.feeCaps(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	c.nonceLock.Lock()
	defer c.nonceLock.Unlock()

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.evmChainID,
		Nonce:     c.currentNonce,
		To:        &c.contract,
		Gas:       c.gasLimit,
		GasFeeCap: gasFeeCap,
		GasTipCap: gasTipCap,
		Value:     common.Big0,
		Data:      callData,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.evmChainID), c.key)
	if err != nil {
		c.logger.Error("failed to sign transaction", log.Err(err))
		return common.Hash{}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()
	if err := c.rpcClient.SendTransaction(sendCtx, signedTx); err != nil {
		c.logger.Error(
			"failed to send transaction",
			log.String("function", fn),
			log.Err(err),
		)
		return common.Hash{}, err
	}
	c.currentNonce++

	c.logger.Info(
		"sent transaction",
		log.Stringer("txID", signedTx.Hash()),
		log.String("function", fn),
		log.Uint64("nonce", signedTx.Nonce()),
	)
	return signedTx.Hash(), nil
}

// feeCaps returns the max fee per gas and the priority fee for the next
// transaction. If no max base fee is configured, the current estimate
// multiplied by the default factor is used to allow for an increase before
// inclusion.
func (c *Client) feeCaps(ctx context.Context) (*big.Int, *big.Int, error) {
	feeCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()

	maxBaseFee := c.maxBaseFee
	if maxBaseFee == nil || maxBaseFee.Sign() <= 0 {
		head, err := c.rpcClient.HeaderByNumber(feeCtx, nil)
		if err != nil {
			c.logger.Error("failed to get head for base fee", log.Err(err))
			return nil, nil, err
		}
		if head.BaseFee == nil {
			return nil, nil, errors.New("chain head carries no base fee")
		}
		maxBaseFee = new(big.Int).Mul(head.BaseFee, big.NewInt(defaultBaseFeeFactor))
	}

	gasTipCap, err := c.rpcClient.SuggestGasTipCap(feeCtx)
	if err != nil {
		c.logger.Error("failed to get gas tip cap", log.Err(err))
		return nil, nil, err
	}
	if c.maxPriorityFeePerGas != nil && gasTipCap.Cmp(c.maxPriorityFeePerGas) > 0 {
		gasTipCap = c.maxPriorityFeePerGas
	}

	return new(big.Int).Add(maxBaseFee, gasTipCap), gasTipCap, nil
}

// AwaitConfirmation polls for the transaction receipt until it appears, the
// ledger reports a revert, or ctx expires. Confirmed receipts are served
// from the cache on repeated calls.
func (c *Client) AwaitConfirmation(ctx context.Context, txHash common.Hash) (*lockchat.Receipt, error) {
	return c.receipts.Get(txHash, func(hash common.Hash) (*lockchat.Receipt, error) {
		receipt, err := c.waitForReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt.Status == types.ReceiptStatusFailed {
			return nil, &lockchat.Error{
				Code:    lockchat.ErrCodeRevert,
				Message: fmt.Sprintf("transaction %s reverted", hash),
			}
		}

		events := make([]lockchat.Event, 0, len(receipt.Logs))
		for _, logEntry := range receipt.Logs {
			if logEntry.Address != c.contract {
				continue
			}
			ev, err := c.decodeEvent(*logEntry)
			if err != nil {
				c.logger.Warn("failed to decode contract log", log.Err(err))
				continue
			}
			if ev != nil {
				events = append(events, ev)
			}
		}
		return &lockchat.Receipt{TxHash: hash, Events: events}, nil
	}, false)
}

func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	timeout := c.txInclusionTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	var receipt *types.Receipt
	operation := func() (err error) {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		callCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		receipt, err = c.rpcClient.TransactionReceipt(callCtx, txHash)
		return err
	}
	if err := utils.WithRetriesTimeout(c.logger, operation, timeout, "waitForReceipt"); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error(
			"failed to get transaction receipt",
			log.Stringer("txID", txHash),
			log.Err(err),
		)
		return nil, err
	}
	return receipt, nil
}

// Query performs a read-only contract call.
func (c *Client) Query(ctx context.Context, fn string, args ...interface{}) ([]interface{}, error) {
	callData, err := c.contractABI.Pack(fn, normalizeArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", fn, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()
	output, err := c.rpcClient.CallContract(callCtx, ethereum.CallMsg{
		To:   &c.contract,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, err
	}

	values, err := c.contractABI.Unpack(fn, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", fn, err)
	}
	return normalizeValues(values), nil
}

// Subscribe registers a log subscription for the named contract event and
// forwards decoded events to the callback in delivery order.
func (c *Client) Subscribe(eventName string, callback func(lockchat.Event)) (lockchat.Subscription, error) {
	abiEvent, ok := c.contractABI.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("unknown event %q", eventName)
	}

	logs := make(chan types.Log, maxSubscriptionBuffer)
	sub, err := c.wsClient.SubscribeFilterLogs(context.Background(), ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{abiEvent.ID}},
	}, logs)
	if err != nil {
		c.logger.Error(
			"failed to subscribe to contract logs",
			log.String("event", eventName),
			log.Err(err),
		)
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case logEntry := <-logs:
				ev, err := c.decodeEvent(logEntry)
				if err != nil {
					c.logger.Warn("failed to decode subscribed log", log.Err(err))
					continue
				}
				if ev != nil {
					callback(ev)
				}
			case err := <-sub.Err():
				if err != nil {
					c.logger.Error(
						"log subscription failed",
						log.String("event", eventName),
						log.Err(err),
					)
				}
				return
			case <-done:
				return
			}
		}
	}()

	return &logSubscription{sub: sub, done: done}, nil
}

type logSubscription struct {
	once sync.Once
	sub  ethereum.Subscription
	done chan struct{}
}

func (s *logSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.sub.Unsubscribe()
		close(s.done)
	})
}
