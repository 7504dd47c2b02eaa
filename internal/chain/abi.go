package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const positionManagerABI = `[
  {"name":"positions","type":"function","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[
     {"name":"nonce","type":"uint96"},
     {"name":"operator","type":"address"},
     {"name":"token0","type":"address"},
     {"name":"token1","type":"address"},
     {"name":"fee","type":"uint24"},
     {"name":"tickLower","type":"int24"},
     {"name":"tickUpper","type":"int24"},
     {"name":"liquidity","type":"uint128"},
     {"name":"feeGrowthInside0LastX128","type":"uint256"},
     {"name":"feeGrowthInside1LastX128","type":"uint256"},
     {"name":"tokensOwed0","type":"uint128"},
     {"name":"tokensOwed1","type":"uint128"}]},
  {"name":"ownerOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"owner","type":"address"}]},
  {"name":"collect","type":"function","stateMutability":"payable",
   "inputs":[{"name":"params","type":"tuple","components":[
     {"name":"tokenId","type":"uint256"},
     {"name":"recipient","type":"address"},
     {"name":"amount0Max","type":"uint128"},
     {"name":"amount1Max","type":"uint128"}]}],
   "outputs":[
     {"name":"amount0","type":"uint256"},
     {"name":"amount1","type":"uint256"}]}
]`

const factoryABI = `[
  {"name":"getPool","type":"function","stateMutability":"view",
   "inputs":[
     {"name":"tokenA","type":"address"},
     {"name":"tokenB","type":"address"},
     {"name":"fee","type":"uint24"}],
   "outputs":[{"name":"pool","type":"address"}]}
]`

const poolABI = `[
  {"name":"slot0","type":"function","stateMutability":"view","inputs":[],
   "outputs":[
     {"name":"sqrtPriceX96","type":"uint160"},
     {"name":"tick","type":"int24"},
     {"name":"observationIndex","type":"uint16"},
     {"name":"observationCardinality","type":"uint16"},
     {"name":"observationCardinalityNext","type":"uint16"},
     {"name":"feeProtocol","type":"uint8"},
     {"name":"unlocked","type":"bool"}]}
]`

const erc20ABI = `[
  {"name":"decimals","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint8"}]},
  {"name":"symbol","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"string"}]}
]`

// erc20Bytes32ABI covers pre-standard tokens that return symbol as bytes32.
const erc20Bytes32ABI = `[
  {"name":"symbol","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"bytes32"}]}
]`

type contractABIs struct {
	manager      abi.ABI
	factory      abi.ABI
	pool         abi.ABI
	erc20        abi.ABI
	erc20Bytes32 abi.ABI
}

func parseABIs() (contractABIs, error) {
	var (
		out contractABIs
		err error
	)
	for _, item := range []struct {
		name string
		src  string
		dst  *abi.ABI
	}{
		{"position manager", positionManagerABI, &out.manager},
		{"factory", factoryABI, &out.factory},
		{"pool", poolABI, &out.pool},
		{"erc20", erc20ABI, &out.erc20},
		{"erc20 bytes32", erc20Bytes32ABI, &out.erc20Bytes32},
	} {
		*item.dst, err = abi.JSON(strings.NewReader(item.src))
		if err != nil {
			return contractABIs{}, fmt.Errorf("chain: parse %s abi: %w", item.name, err)
		}
	}
	return out, nil
}
