// Copyright 2025 Justifai
package anchor

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/justifai/certify/pkg/errkind"
)

// VerifyResult is the outcome of checking a submitted anchor transaction.
type VerifyResult struct {
	Verified     bool
	BlockNumber  uint64
	MRUFromEvent string
	MRUMatches   bool
	ExplorerURL  string
}

// VerifyTransaction checks that txHash exists, succeeded, and emitted
// MerkleRootSubmitted; if expectedMRU is non-empty, a mismatch makes
// verified=false regardless of transaction success.
func (c *Client) VerifyTransaction(ctx context.Context, txHash string, expectedMRU string) (*VerifyResult, error) {
	hash := common.HexToHash(txHash)

	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, errkind.Wrap(errkind.Chain, err, "fetch transaction receipt")
	}

	result := &VerifyResult{BlockNumber: receipt.BlockNumber.Uint64()}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, nil
	}

	eventABI, ok := c.abi.Events["MerkleRootSubmitted"]
	if !ok {
		return nil, errkind.New(errkind.Configuration, "anchor ABI missing MerkleRootSubmitted event")
	}

	for _, logEntry := range receipt.Logs {
		if len(logEntry.Topics) == 0 || logEntry.Topics[0] != eventABI.ID {
			continue
		}
		if len(logEntry.Topics) < 3 {
			continue
		}
		root := logEntry.Topics[2] // indexed bytes32 root
		result.MRUFromEvent = root.Hex()
		result.Verified = true
		if expectedMRU != "" {
			result.MRUMatches = common.HexToHash(expectedMRU) == root
			result.Verified = result.MRUMatches
		}
		return result, nil
	}

	return result, nil
}

func (r *VerifyResult) String() string {
	return fmt.Sprintf("verified=%v block=%d mru=%s matches=%v", r.Verified, r.BlockNumber, r.MRUFromEvent, r.MRUMatches)
}

// MatchMRU adapts VerifyTransaction to the narrower shape the
// verification pipeline's ChainVerifier interface wants, so that
// package does not need to depend on this one's richer VerifyResult.
func (c *Client) MatchMRU(ctx context.Context, txHash, expectedMRU string) (bool, uint64, error) {
	result, err := c.VerifyTransaction(ctx, txHash, expectedMRU)
	if err != nil {
		return false, 0, err
	}
	return result.Verified, result.BlockNumber, nil
}
