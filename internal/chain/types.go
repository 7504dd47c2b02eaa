package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrEmptyResult is returned when a call hits an address without code.
	ErrEmptyResult = errors.New("chain: empty call result")
	// ErrPoolNotFound is returned when the factory has no pool for a pair and fee tier.
	ErrPoolNotFound = errors.New("chain: pool not found")
)

// MaxUint128 is the "collect everything" sentinel for amount0Max/amount1Max.
var MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Position is a NonfungiblePositionManager position record.
type Position struct {
	TokenID     *big.Int
	Operator    common.Address
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickLower   int
	TickUpper   int
	Liquidity   *big.Int
	TokensOwed0 *big.Int
	TokensOwed1 *big.Int
}

// Slot0 is the subset of a pool's slot0 the valuation needs.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int
}

// Token is ERC-20 metadata.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Fees are raw token amounts returned by a simulated collect.
type Fees struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// raw abi outputs, field names follow the abi argument names

type positionOutput struct {
	Nonce                    *big.Int
	Operator                 common.Address
	Token0                   common.Address
	Token1                   common.Address
	Fee                      *big.Int
	TickLower                *big.Int
	TickUpper                *big.Int
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int
}

type slot0Output struct {
	SqrtPriceX96               *big.Int
	Tick                       *big.Int
	ObservationIndex           uint16
	ObservationCardinality     uint16
	ObservationCardinalityNext uint16
	FeeProtocol                uint8
	Unlocked                   bool
}

type collectOutput struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

type collectParams struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}
