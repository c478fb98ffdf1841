package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ON-CHAIN CLIENT - Polygon collaborators for live mode
// ═══════════════════════════════════════════════════════════════════════════════
//
// USDC balance reads, conditional-token balance reads and position
// redemption against the ConditionalTokens contract.
//
// ═══════════════════════════════════════════════════════════════════════════════

const polygonChainID = 137

const erc20ABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

const ctfABI = `[
  {"constant":true,"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"indexSets","type":"uint256[]"}],"name":"redeemPositions","outputs":[],"type":"function"}
]`

type Client struct {
	eth        *ethclient.Client
	privateKey *ecdsa.PrivateKey
	wallet     common.Address
	usdc       common.Address
	ctf        common.Address
	erc20      abi.ABI
	ctfabi     abi.ABI
}

// NewClient dials the RPC endpoint and prepares the contract bindings.
func NewClient(rpcURL, privateKeyHex, walletAddress, usdcAddress, ctfAddress string) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	pk, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, err
	}
	ctfabi, err := abi.JSON(strings.NewReader(ctfABI))
	if err != nil {
		return nil, err
	}

	return &Client{
		eth:        eth,
		privateKey: pk,
		wallet:     common.HexToAddress(walletAddress),
		usdc:       common.HexToAddress(usdcAddress),
		ctf:        common.HexToAddress(ctfAddress),
		erc20:      erc20,
		ctfabi:     ctfabi,
	}, nil
}

// USDCBalance returns the wallet's collateral balance in whole USDC.
func (c *Client) USDCBalance(ctx context.Context) (decimal.Decimal, error) {
	data, err := c.erc20.Pack("balanceOf", c.wallet)
	if err != nil {
		return decimal.Zero, err
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.usdc, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("usdc balanceOf: %w", err)
	}
	bal := new(big.Int).SetBytes(raw)
	return decimal.NewFromBigInt(bal, -6), nil // USDC has 6 decimals
}

// PositionBalance returns how many shares of an outcome token the wallet
// holds. Token ids are decimal strings from the activity feed.
func (c *Client) PositionBalance(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid token id %q", tokenID)
	}

	data, err := c.ctfabi.Pack("balanceOf", c.wallet, id)
	if err != nil {
		return decimal.Zero, err
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.ctf, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ctf balanceOf: %w", err)
	}
	bal := new(big.Int).SetBytes(raw)
	return decimal.NewFromBigInt(bal, 0), nil
}

// RedeemPositions converts winning outcome shares back to collateral.
// Index sets [1, 2] cover both legs of a binary Yes/No market.
func (c *Client) RedeemPositions(ctx context.Context, conditionID string) (string, error) {
	indexSets := []*big.Int{big.NewInt(1), big.NewInt(2)}
	data, err := c.ctfabi.Pack("redeemPositions",
		c.usdc, [32]byte{}, common.HexToHash(conditionID), indexSets)
	if err != nil {
		return "", err
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.wallet)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("gas price: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.wallet,
		To:   &c.ctf,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, c.ctf, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(polygonChainID)), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}

	hash := signed.Hash().Hex()
	log.Info().Str("tx", hash).Str("condition", conditionID).Msg("⛓️ Redeem transaction sent")
	return hash, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
