package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Probe dials the chain RPC and reports the wallet's gas balance. Wagers
// settle off chain through the broker, so nothing blocks on L1 during
// play; this is a startup sanity check on the configured endpoint. Any
// contract addresses passed in are checked for deployed code, which
// catches a chain id pointed at the wrong network.
func Probe(ctx context.Context, rpcURL string, wallet common.Address, contracts ...common.Address) error {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("failed to connect to chain RPC: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}

	balance, err := client.BalanceAt(ctx, wallet, nil)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}

	for _, contract := range contracts {
		if contract == (common.Address{}) {
			continue
		}
		code, err := client.CodeAt(ctx, contract, nil)
		if err != nil {
			return fmt.Errorf("failed to get code at %s: %w", contract.Hex(), err)
		}
		if len(code) == 0 {
			return fmt.Errorf("no contract deployed at %s on chain %s", contract.Hex(), chainID.String())
		}
	}

	logrus.WithFields(logrus.Fields{
		"address":  wallet.Hex(),
		"chain_id": chainID.String(),
		"balance":  fmt.Sprintf("%.6f", WeiToEth(balance)),
	}).Info("Chain RPC reachable")

	return nil
}

// WeiToEth converts wei to a decimal ether amount
func WeiToEth(wei *big.Int) float64 {
	eth := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		big.NewFloat(1e18),
	)
	result, _ := eth.Float64()
	return result
}
