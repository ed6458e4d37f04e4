// Copyright 2025 Justifai
//
// Package anchor submits the ultimate Merkle root to an on-chain
// "MerkleRootSubmitted" emitter and verifies its inclusion. Adapted
// from an Ethereum client that built legacy EIP-155 transactions; this
// version signs with the London (EIP-1559) signer and computes
// maxFeePerGas/maxPriorityFeePerGas per network floor, since a legacy
// gas price no longer clears modern L2 mempools reliably.
package anchor

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/justifai/certify/pkg/errkind"
)

// contractABI declares the two anchor entry points and the event this
// package consumes; see spec §4.6/§4.7.
const contractABI = `[
  {"type":"function","name":"putRootLegacy","inputs":[{"name":"timeWindow","type":"uint256"},{"name":"root","type":"bytes32"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"putRootEmitOnly","inputs":[{"name":"timeWindow","type":"uint256"},{"name":"root","type":"bytes32"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"event","name":"MerkleRootSubmitted","inputs":[{"name":"timeWindow","type":"uint256","indexed":true},{"name":"root","type":"bytes32","indexed":true},{"name":"issuer","type":"address","indexed":true},{"name":"blockNumber","type":"uint256","indexed":false}]}
]`

// ContractType selects which entry point anchor() calls.
type ContractType string

const (
	ContractLegacy   ContractType = "legacy"
	ContractEmitOnly ContractType = "emit_only"
)

var oneGwei = big.NewInt(1_000_000_000)

// Client anchors Merkle roots to a single configured chain.
type Client struct {
	eth          *ethclient.Client
	chainID      *big.Int
	privateKey   *ecdsa.PrivateKey
	contractAddr common.Address
	contractType ContractType
	network      string
	abi          abi.ABI

	minPriorityFeeGwei int64
	minMaxFeeGwei      int64
}

// Config carries everything Client needs at construction time.
type Config struct {
	RPCURL             string
	PrivateKeyHex      string
	ContractAddress    string
	ContractType       ContractType
	ChainID            int64
	Network            string
	MinPriorityFeeGwei int64 // per-network floor, e.g. 25 for Polygon Amoy
	MinMaxFeeGwei      int64
}

// NewClient dials the RPC endpoint and parses the contract ABI and key.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, errkind.Wrap(errkind.Configuration, err, "dial RPC endpoint")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, errkind.Wrap(errkind.Configuration, err, "parse anchor private key")
	}

	parsedABI, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, errkind.Wrap(errkind.Configuration, err, "parse anchor contract ABI")
	}

	contractType := cfg.ContractType
	if contractType == "" {
		contractType = ContractLegacy
	}

	return &Client{
		eth:                eth,
		chainID:            big.NewInt(cfg.ChainID),
		privateKey:         privateKey,
		contractAddr:       common.HexToAddress(cfg.ContractAddress),
		contractType:       contractType,
		network:            cfg.Network,
		abi:                parsedABI,
		minPriorityFeeGwei: cfg.MinPriorityFeeGwei,
		minMaxFeeGwei:      cfg.MinMaxFeeGwei,
	}, nil
}

// Result is the outcome of a successful anchor submission.
type Result struct {
	TxHash      string
	Network     string
	BlockNumber uint64
}

// Anchor submits mru (32 bytes) and timeWindow (seconds since epoch of
// the oldest finalized batch in this ultimate set) to the contract,
// waits for one confirmation, and returns the resulting transaction.
func (c *Client) Anchor(ctx context.Context, mru [32]byte, timeWindow uint64) (*Result, error) {
	method := "putRootLegacy"
	if c.contractType == ContractEmitOnly {
		method = "putRootEmitOnly"
	}

	callData, err := c.abi.Pack(method, new(big.Int).SetUint64(timeWindow), mru)
	if err != nil {
		return nil, errkind.Wrap(errkind.Chain, err, "pack anchor call")
	}

	fromAddress := crypto.PubkeyToAddress(c.privateKey.PublicKey)

	nonce, err := c.eth.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return nil, errkind.Wrap(errkind.Chain, err, "fetch nonce")
	}

	tipCap, feeCap, err := c.suggestFees(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: fromAddress, To: &c.contractAddr, Data: callData})
	if err != nil {
		gasLimit = 200_000 // conservative fallback when the node can't simulate
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &c.contractAddr,
		Value:     big.NewInt(0),
		Data:      callData,
	})

	signedTx, err := types.SignTx(tx, types.NewLondonSigner(c.chainID), c.privateKey)
	if err != nil {
		return nil, errkind.Wrap(errkind.Chain, err, "sign anchor transaction")
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return nil, errkind.Wrap(errkind.Chain, err, "send anchor transaction")
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signedTx)
	if err != nil {
		return nil, errkind.Wrap(errkind.Chain, err, "wait for anchor confirmation")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, errkind.New(errkind.Chain, "anchor transaction reverted")
	}

	return &Result{
		TxHash:      signedTx.Hash().Hex(),
		Network:     c.network,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// suggestFees reads the node's tip/base-fee suggestions and enforces
// the configured per-network floors per spec §4.7.
func (c *Client) suggestFees(ctx context.Context) (tipCap, feeCap *big.Int, err error) {
	suggestedTip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Chain, err, "suggest gas tip cap")
	}

	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Chain, err, "fetch latest header")
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}

	tipCap, feeCap = computeFees(suggestedTip, baseFee, c.minPriorityFeeGwei, c.minMaxFeeGwei)
	return tipCap, feeCap, nil
}

// computeFees applies the §4.7 fee policy in pure form:
//
//	maxPriorityFeePerGas = max(suggestedTip, minPriorityFeeGwei)
//	maxFeePerGas = max(2*baseFee + priority, 2*priority, minMaxFeeGwei)
func computeFees(suggestedTip, baseFee *big.Int, minPriorityFeeGwei, minMaxFeeGwei int64) (tipCap, feeCap *big.Int) {
	floorTip := new(big.Int).Mul(big.NewInt(minPriorityFeeGwei), oneGwei)
	tipCap = suggestedTip
	if tipCap.Cmp(floorTip) < 0 {
		tipCap = floorTip
	}

	candidate := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tipCap)
	doubleTip := new(big.Int).Mul(tipCap, big.NewInt(2))
	if doubleTip.Cmp(candidate) > 0 {
		candidate = doubleTip
	}
	floorMax := new(big.Int).Mul(big.NewInt(minMaxFeeGwei), oneGwei)
	if floorMax.Cmp(candidate) > 0 {
		candidate = floorMax
	}
	return tipCap, candidate
}
