package resolution

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// DefaultCTFAddress is the ConditionalTokens contract on Polygon.
const DefaultCTFAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

const conditionResolutionABI = `[{
	"anonymous": false,
	"name": "ConditionResolution",
	"type": "event",
	"inputs": [
		{"indexed": true,  "name": "conditionId",      "type": "bytes32"},
		{"indexed": true,  "name": "oracle",           "type": "address"},
		{"indexed": true,  "name": "questionId",       "type": "bytes32"},
		{"indexed": false, "name": "outcomeSlotCount", "type": "uint256"},
		{"indexed": false, "name": "payoutNumerators", "type": "uint256[]"}
	]
}]`

var (
	ctfEvents             = mustParseABI(conditionResolutionABI)
	conditionResolution   = ctfEvents.Events["ConditionResolution"]
	conditionResolutionID = conditionResolution.ID
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("resolution: parse abi: %v", err))
	}
	return parsed
}

// DecodeConditionResolution converts a ConditionResolution log into a
// resolved record. The winner is the first outcome with a positive payout.
func DecodeConditionResolution(lg types.Log) (domain.Resolution, error) {
	if len(lg.Topics) != 4 {
		return domain.Resolution{}, fmt.Errorf("resolution: decode log: expected 4 topics, got %d", len(lg.Topics))
	}
	if lg.Topics[0] != conditionResolutionID {
		return domain.Resolution{}, fmt.Errorf("resolution: decode log: unexpected topic %s", lg.Topics[0].Hex())
	}

	values, err := conditionResolution.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolution: decode log data: %w", err)
	}
	if len(values) != 2 {
		return domain.Resolution{}, fmt.Errorf("resolution: decode log data: expected 2 values, got %d", len(values))
	}
	slotCount, ok := values[0].(*big.Int)
	if !ok {
		return domain.Resolution{}, fmt.Errorf("resolution: decode log data: outcomeSlotCount is %T", values[0])
	}
	payouts, ok := values[1].([]*big.Int)
	if !ok {
		return domain.Resolution{}, fmt.Errorf("resolution: decode log data: payoutNumerators is %T", values[1])
	}

	numerators := make([]string, len(payouts))
	den := new(big.Int)
	for i, p := range payouts {
		numerators[i] = p.String()
		den.Add(den, p)
	}

	now := time.Now().UTC()
	return domain.Resolution{
		ConditionID:       NormalizeID(lg.Topics[1].Hex()),
		Resolved:          true,
		WinningIndex:      firstPositive(payouts),
		PayoutNumerators:  numerators,
		PayoutDenominator: den.String(),
		Oracle:            common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		QuestionID:        strings.ToLower(lg.Topics[3].Hex()),
		OutcomeSlotCount:  slotCountInt(slotCount),
		BlockNumber:       lg.BlockNumber,
		TxHash:            lg.TxHash.Hex(),
		ObservedAt:        now,
		ResolvedAt:        &now,
	}, nil
}

func slotCountInt(n *big.Int) int {
	if !n.IsInt64() || n.Int64() > math.MaxInt32 {
		return 0
	}
	return int(n.Int64())
}
