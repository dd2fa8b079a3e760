package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	ChannelOpen   = "open"
	ChannelClosed = "closed"
)

// Allowance pairs an asset with an amount, both on auth envelopes and on
// transfer allocations.
type Allowance struct {
	Asset  string  `json:"asset"`
	Amount float64 `json:"amount"`
}

// Channel is the broker's view of a payment channel.
type Channel struct {
	ChannelID string  `json:"channel_id"`
	Status    string  `json:"status"`
	Token     string  `json:"token"`
	ChainID   int64   `json:"chain_id"`
	Amount    float64 `json:"amount"`
}

type getChannelsParams struct {
	Participant string `json:"participant"`
	Status      string `json:"status"`
}

type channelsResult struct {
	Channels []Channel `json:"channels"`
}

type createChannelParams struct {
	ChainID    int64  `json:"chain_id"`
	Token      string `json:"token"`
	SessionKey string `json:"session_key"`
}

type resizeChannelParams struct {
	ChannelID        string  `json:"channel_id"`
	AllocateAmount   float64 `json:"allocate_amount"`
	FundsDestination string  `json:"funds_destination"`
}

type balancesParams struct {
	Participant string `json:"participant"`
}

type balancesResult struct {
	LedgerBalances []Allowance `json:"ledger_balances"`
}

type balanceUpdate struct {
	BalanceUpdates []Allowance `json:"balance_updates"`
}

type transferParams struct {
	Destination string      `json:"destination"`
	Allocations []Allowance `json:"allocations"`
}

// ensureChannel leaves exactly one open funded channel id on the client. An
// existing open channel for the configured token is adopted as is; otherwise
// one is created and the collateral allocated into it.
func (c *Client) ensureChannel(ctx context.Context) error {
	reply, err := c.call(ctx, methodGetChannels, getChannelsParams{
		Participant: c.wallet.Address.Hex(),
		Status:      ChannelOpen,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}

	var listed channelsResult
	if err := json.Unmarshal(reply.Payload, &listed); err != nil {
		return fmt.Errorf("failed to parse channel list: %w", err)
	}

	for _, ch := range listed.Channels {
		if ch.Status != ChannelOpen {
			continue
		}
		if c.cfg.Token != "" && !strings.EqualFold(ch.Token, c.cfg.Token) {
			continue
		}
		c.setChannel(ch.ChannelID)
		c.log.WithFields(logrus.Fields{
			"channel_id": ch.ChannelID,
			"amount":     ch.Amount,
		}).Info("Adopted open channel")
		return nil
	}

	reply, err = c.call(ctx, methodCreateChannel, createChannelParams{
		ChainID:    c.cfg.ChainID,
		Token:      c.cfg.Token,
		SessionKey: c.session.Address.Hex(),
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	var created Channel
	if err := json.Unmarshal(reply.Payload, &created); err != nil {
		return fmt.Errorf("failed to parse created channel: %w", err)
	}
	if created.ChannelID == "" {
		return fmt.Errorf("broker returned no channel id")
	}

	if _, err := c.call(ctx, methodResizeChannel, resizeChannelParams{
		ChannelID:        created.ChannelID,
		AllocateAmount:   c.cfg.Collateral,
		FundsDestination: c.wallet.Address.Hex(),
	}, nil); err != nil {
		return fmt.Errorf("failed to allocate channel collateral: %w", err)
	}

	c.setChannel(created.ChannelID)
	c.log.WithFields(logrus.Fields{
		"channel_id": created.ChannelID,
		"collateral": c.cfg.Collateral,
	}).Info("Opened and funded new channel")
	return nil
}

// refreshBalances pulls the unified ledger balances once per connection;
// afterwards bu pushes keep the snapshot current.
func (c *Client) refreshBalances(ctx context.Context) error {
	reply, err := c.call(ctx, methodGetLedgerBalances, balancesParams{
		Participant: c.wallet.Address.Hex(),
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch ledger balances: %w", err)
	}

	var balances balancesResult
	if err := json.Unmarshal(reply.Payload, &balances); err != nil {
		return fmt.Errorf("failed to parse ledger balances: %w", err)
	}

	c.mu.Lock()
	for _, b := range balances.LedgerBalances {
		c.balances[b.Asset] = b.Amount
	}
	available := c.balances[c.cfg.Asset]
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"asset":     c.cfg.Asset,
		"available": available,
	}).Info("Ledger balances loaded")
	return nil
}

func (c *Client) handleBalanceUpdate(payload json.RawMessage) {
	var update balanceUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		c.log.Warnf("Malformed balance update: %v", err)
		return
	}

	c.mu.Lock()
	for _, b := range update.BalanceUpdates {
		c.balances[b.Asset] = b.Amount
	}
	c.mu.Unlock()
	c.log.Debugf("Balance update for %d assets", len(update.BalanceUpdates))
}

// handleChannelUpdate reacts to the broker moving our channel out of the
// open state: transfers are suspended and the connection is recycled so the
// next handshake can establish a fresh channel.
func (c *Client) handleChannelUpdate(payload json.RawMessage) {
	var ch Channel
	if err := json.Unmarshal(payload, &ch); err != nil {
		c.log.Warnf("Malformed channel update: %v", err)
		return
	}

	c.mu.Lock()
	mine := ch.ChannelID != "" && ch.ChannelID == c.channelID
	conn := c.conn
	if mine && ch.Status != ChannelOpen {
		c.channelID = ""
	} else {
		conn = nil
	}
	c.mu.Unlock()

	if conn != nil {
		c.log.Warnf("Channel %s moved to status %s, recycling broker connection", ch.ChannelID, ch.Status)
		conn.Close()
		return
	}
	c.log.WithFields(logrus.Fields{
		"channel_id": ch.ChannelID,
		"status":     ch.Status,
	}).Debug("Channel update")
}
