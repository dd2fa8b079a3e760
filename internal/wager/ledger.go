package wager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	transferAttempts = 3
	transferBackoff  = 500 * time.Millisecond
)

// Transferer moves funds between broker channel balances. Implemented by
// the broker client; fakes stand in for it under test.
type Transferer interface {
	TransferTo(ctx context.Context, destination common.Address, asset string, amount float64) error
}

// FailureSink receives a durable record of transfers the broker refused.
// The audit journal satisfies this.
type FailureSink interface {
	Append(v interface{}) error
}

// FailedTransfer is the journal entry written when a settlement transfer
// gives up. Funds stay on the server's channel balance; the entry is what
// an operator replays by hand.
type FailedTransfer struct {
	Kind     string    `json:"kind"`
	RoomID   string    `json:"roomId"`
	PlayerID string    `json:"playerId,omitempty"`
	Address  string    `json:"address"`
	Asset    string    `json:"asset"`
	Amount   float64   `json:"amount"`
	Error    string    `json:"error"`
	At       time.Time `json:"at"`
}

type stake struct {
	playerID string
	address  common.Address
	amount   float64
}

type book struct {
	stakes map[string]stake
	order  []string
}

func (b *book) pot() float64 {
	var total float64
	for _, s := range b.stakes {
		total += s.amount
	}
	return total
}

// Ledger tracks per-room stakes between WagerConfirmed and settlement.
// Stakes only ever exist inside the broker session; the ledger is the
// in-memory accounting of who is owed what. A room's book is popped
// atomically at settlement, so payout and refund can never both run for
// the same stakes.
type Ledger struct {
	mu       sync.Mutex
	books    map[string]*book
	asset    string
	transfer Transferer
	failures FailureSink
	backoff  time.Duration
	log      *logrus.Entry
}

func NewLedger(transfer Transferer, asset string, failures FailureSink) *Ledger {
	return &Ledger{
		books:    make(map[string]*book),
		asset:    asset,
		transfer: transfer,
		failures: failures,
		backoff:  transferBackoff,
		log:      logrus.WithField("component", "wager"),
	}
}

// Record registers one stake. Duplicate confirms from the same player are
// reported, not double-counted.
func (l *Ledger) Record(roomID, playerID string, address common.Address, amount float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.books[roomID]
	if !ok {
		b = &book{stakes: make(map[string]stake)}
		l.books[roomID] = b
	}
	if _, dup := b.stakes[playerID]; dup {
		return false
	}

	b.stakes[playerID] = stake{playerID: playerID, address: address, amount: amount}
	b.order = append(b.order, playerID)
	return true
}

// AllStaked reports whether every listed player has a recorded stake. An
// empty list never counts as staked.
func (l *Ledger) AllStaked(roomID string, playerIDs []string) bool {
	if len(playerIDs) == 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.books[roomID]
	if !ok {
		return false
	}
	for _, id := range playerIDs {
		if _, staked := b.stakes[id]; !staked {
			return false
		}
	}
	return true
}

// Pot sums the room's recorded stakes.
func (l *Ledger) Pot(roomID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.books[roomID]; ok {
		return b.pot()
	}
	return 0
}

// pop removes and returns the room's book. Settlement works on the popped
// copy, so a second settlement call finds nothing.
func (l *Ledger) pop(roomID string) *book {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.books[roomID]
	delete(l.books, roomID)
	return b
}

// Payout sends the whole pot to the winner. The returned amount is the pot
// regardless of transfer outcome; a failed transfer is journaled and the
// error reported, but the book stays settled either way.
func (l *Ledger) Payout(ctx context.Context, roomID string, winner common.Address) (float64, error) {
	b := l.pop(roomID)
	if b == nil || len(b.stakes) == 0 {
		return 0, nil
	}

	pot := b.pot()
	l.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"winner":  winner.Hex(),
		"amount":  pot,
	}).Info("Paying out pot")

	if err := l.transferWithRetry(ctx, winner, pot); err != nil {
		l.recordFailure(FailedTransfer{
			Kind:    "payout",
			RoomID:  roomID,
			Address: winner.Hex(),
			Asset:   l.asset,
			Amount:  pot,
			Error:   err.Error(),
			At:      time.Now().UTC(),
		})
		return pot, fmt.Errorf("payout transfer for room %s: %w", roomID, err)
	}

	return pot, nil
}

// RefundAll returns every stake to its owner. A failing refund does not
// block the rest; each failure is journaled and the errors come back
// joined.
func (l *Ledger) RefundAll(ctx context.Context, roomID string) (float64, error) {
	b := l.pop(roomID)
	if b == nil || len(b.stakes) == 0 {
		return 0, nil
	}

	l.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"stakes":  len(b.stakes),
		"amount":  b.pot(),
	}).Info("Refunding stakes")

	var refunded float64
	var errs []error
	for _, id := range b.order {
		s, ok := b.stakes[id]
		if !ok {
			continue
		}

		if err := l.transferWithRetry(ctx, s.address, s.amount); err != nil {
			l.recordFailure(FailedTransfer{
				Kind:     "refund",
				RoomID:   roomID,
				PlayerID: s.playerID,
				Address:  s.address.Hex(),
				Asset:    l.asset,
				Amount:   s.amount,
				Error:    err.Error(),
				At:       time.Now().UTC(),
			})
			errs = append(errs, fmt.Errorf("refund %s: %w", s.playerID, err))
			continue
		}
		refunded += s.amount
	}

	return refunded, errors.Join(errs...)
}

func (l *Ledger) transferWithRetry(ctx context.Context, dest common.Address, amount float64) error {
	var err error
	for attempt := 1; attempt <= transferAttempts; attempt++ {
		if err = l.transfer.TransferTo(ctx, dest, l.asset, amount); err == nil {
			return nil
		}

		l.log.Warnf("Transfer attempt %d/%d to %s failed: %v", attempt, transferAttempts, dest.Hex(), err)
		if attempt == transferAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * l.backoff):
		}
	}
	return err
}

func (l *Ledger) recordFailure(entry FailedTransfer) {
	if l.failures == nil {
		return
	}
	if err := l.failures.Append(entry); err != nil {
		l.log.Errorf("Failed to journal %s failure for room %s: %v", entry.Kind, entry.RoomID, err)
	}
}
