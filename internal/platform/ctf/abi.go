package ctf

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Polygon mainnet defaults.
const (
	DefaultCTFAddress          = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
	DefaultCollateralAddress   = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174" // USDC.e
	DefaultProxyFactoryAddress = "0xaB45c5A4B0c941a2F231C04C3f49182e1A254052"
)

// proxyCallTypeCall is the ProxyWalletFactory type code for a plain CALL.
const proxyCallTypeCall uint8 = 1

var (
	ctfABI   abi.ABI
	proxyABI abi.ABI
)

func init() {
	var err error

	ctfABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getOutcomeSlotCount",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "conditionId", "type": "bytes32"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "getCollectionId",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "parentCollectionId", "type": "bytes32"},
				{"name": "conditionId", "type": "bytes32"},
				{"name": "indexSet", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bytes32"}]
		},
		{
			"name": "getPositionId",
			"type": "function",
			"stateMutability": "pure",
			"inputs": [
				{"name": "collateralToken", "type": "address"},
				{"name": "collectionId", "type": "bytes32"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "id", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "redeemPositions",
			"type": "function",
			"inputs": [
				{"name": "collateralToken", "type": "address"},
				{"name": "parentCollectionId", "type": "bytes32"},
				{"name": "conditionId", "type": "bytes32"},
				{"name": "indexSets", "type": "uint256[]"}
			],
			"outputs": []
		}
	]`))
	if err != nil {
		panic("ctf abi parse: " + err.Error())
	}

	proxyABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "proxy",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [
				{
					"name": "calls",
					"type": "tuple[]",
					"components": [
						{"name": "typeCode", "type": "uint8"},
						{"name": "to", "type": "address"},
						{"name": "value", "type": "uint256"},
						{"name": "data", "type": "bytes"}
					]
				}
			],
			"outputs": [{"name": "returnValues", "type": "bytes[]"}]
		}
	]`))
	if err != nil {
		panic("proxy factory abi parse: " + err.Error())
	}
}

// proxyCall mirrors the ProxyWalletFactory call tuple.
type proxyCall struct {
	TypeCode uint8
	To       common.Address
	Value    *big.Int
	Data     []byte
}
