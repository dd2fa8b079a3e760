package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/transport"
)

// ErrNotReady reports that the broker link is down or unauthenticated.
// Callers treat it as recoverable: the transfer is retried and, past the
// retry budget, journaled for operator reconciliation.
var ErrNotReady = errors.New("broker not ready")

const (
	callTimeout      = 15 * time.Second
	reconnectBackoff = 2 * time.Second
	maxReconnectWait = 30 * time.Second
)

// Config carries the broker endpoint and the channel parameters.
type Config struct {
	URL        string
	Wallet     *Wallet
	Asset      string
	Token      string
	ChainID    int64
	Collateral float64
}

// Client speaks the broker's RPC over one persistent websocket. All calls
// multiplex over that socket by request id; the broker also pushes balance
// and channel updates down the same pipe. After a drop the client reconnects
// with backoff and redoes the whole handshake; in between, Ready reports
// false and TransferTo fails with ErrNotReady.
type Client struct {
	cfg     Config
	wallet  *Wallet
	session *Wallet
	log     *logrus.Entry
	backoff time.Duration

	nextID uint64

	mu        sync.Mutex
	conn      *transport.Conn
	signer    *Wallet
	channelID string
	balances  map[string]float64
	pending   map[uint64]chan *rpcMessage

	lost      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("broker URL is required")
	}
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("broker wallet is required")
	}

	session, err := GenerateWallet()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	return &Client{
		cfg:     cfg,
		wallet:  cfg.Wallet,
		session: session,
		log: logrus.WithFields(logrus.Fields{
			"component": "broker",
			"wallet":    cfg.Wallet.Address.Hex(),
		}),
		backoff:  reconnectBackoff,
		balances: make(map[string]float64),
		pending:  make(map[uint64]chan *rpcMessage),
		lost:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}, nil
}

// Connect dials the broker and runs the full handshake. A failure here is
// fatal to the caller; once Connect has succeeded the client keeps itself
// connected in the background.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.reconnectLoop()
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, err := transport.Dial(ctx, c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to reach broker: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.signer = nil
	c.channelID = ""
	c.mu.Unlock()

	go conn.WriteLoop()
	go conn.ReadLoop(c.handleFrame, func() { c.connectionLost(conn) })

	if err := c.handshake(ctx); err != nil {
		conn.Close()
		return err
	}
	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	if err := c.authenticate(ctx); err != nil {
		return err
	}
	if err := c.ensureChannel(ctx); err != nil {
		return err
	}
	if err := c.refreshBalances(ctx); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"session": c.session.Address.Hex(),
		"channel": c.ChannelID(),
	}).Info("Broker session established")
	return nil
}

func (c *Client) reconnectLoop() {
	for {
		select {
		case <-c.closed:
			return
		case <-c.lost:
		}
		if c.isConnected() {
			// Stale loss notice from a connection already replaced.
			continue
		}

		attempt := 0
		for {
			select {
			case <-c.closed:
				return
			default:
			}

			attempt++
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			err := c.dial(ctx)
			cancel()
			if err == nil {
				c.log.Info("Broker connection restored")
				break
			}
			c.log.Warnf("Broker reconnect attempt %d failed: %v", attempt, err)

			wait := time.Duration(attempt) * c.backoff
			if wait > maxReconnectWait {
				wait = maxReconnectWait
			}
			select {
			case <-c.closed:
				return
			case <-time.After(wait):
			}
		}
	}
}

// connectionLost runs on the read pump's way out. Pending calls fail over
// to ErrNotReady and the reconnect loop is nudged.
func (c *Client) connectionLost(conn *transport.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.signer = nil
	c.channelID = ""
	pending := c.pending
	c.pending = make(map[uint64]chan *rpcMessage)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- nil
	}

	select {
	case <-c.closed:
		return
	default:
	}

	c.log.Warn("Broker connection lost")
	select {
	case c.lost <- struct{}{}:
	default:
	}
}

// handleFrame splits a websocket frame into envelopes and routes each one:
// responses resolve their pending call by id, everything else is a push.
func (c *Client) handleFrame(frame []byte) error {
	for _, data := range transport.SplitFrames(frame) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("failed to parse broker frame: %w", err)
		}
		if env.Res == nil {
			c.log.Debug("Ignoring non-response broker frame")
			continue
		}

		msg, err := decodeCall(env.Res)
		if err != nil {
			return fmt.Errorf("failed to decode broker response: %w", err)
		}

		c.mu.Lock()
		reply, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.mu.Unlock()

		if ok {
			reply <- msg
			continue
		}
		c.handlePush(msg)
	}
	return nil
}

func (c *Client) handlePush(msg *rpcMessage) {
	switch msg.Method {
	case methodBalanceUpdate:
		c.handleBalanceUpdate(msg.Payload)
	case methodChannelUpdate:
		c.handleChannelUpdate(msg.Payload)
	default:
		c.log.Debugf("Unhandled broker push: %s", msg.Method)
	}
}

// call sends one request and waits for its response. A nil sigs means sign
// with the current session key; the auth handshake passes explicit
// signatures instead.
func (c *Client) call(ctx context.Context, method string, params interface{}, sigs []string) (*rpcMessage, error) {
	id := atomic.AddUint64(&c.nextID, 1)
	body, err := encodeCall(id, method, params)
	if err != nil {
		return nil, err
	}

	if sigs == nil {
		sigs = []string{}
		c.mu.Lock()
		signer := c.signer
		c.mu.Unlock()
		if signer != nil {
			signature, err := signer.SignMessage(body)
			if err != nil {
				return nil, fmt.Errorf("failed to sign %s request: %w", method, err)
			}
			sigs = []string{hexutil.Encode(signature)}
		}
	}

	frame, err := json.Marshal(envelope{Req: body, Sig: sigs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", method, err)
	}

	reply := make(chan *rpcMessage, 1)
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", method, ErrNotReady)
	}
	c.pending[id] = reply
	c.mu.Unlock()

	if err := conn.Send(frame); err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("%s: %w", method, ErrNotReady)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		c.dropPending(id)
		return nil, fmt.Errorf("%s timed out: %w", method, ctx.Err())
	case <-c.closed:
		c.dropPending(id)
		return nil, fmt.Errorf("%s: %w", method, ErrNotReady)
	case msg := <-reply:
		if msg == nil {
			return nil, fmt.Errorf("%s: %w", method, ErrNotReady)
		}
		if err := resultError(msg); err != nil {
			return nil, err
		}
		return msg, nil
	}
}

func (c *Client) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// TransferTo moves amount of asset from the server's channel allocation to
// the destination's unified balance. Implements the wager ledger's
// Transferer contract.
func (c *Client) TransferTo(ctx context.Context, destination common.Address, asset string, amount float64) error {
	if !c.Ready() {
		return fmt.Errorf("transfer to %s: %w", destination.Hex(), ErrNotReady)
	}

	_, err := c.call(ctx, methodTransfer, transferParams{
		Destination: destination.Hex(),
		Allocations: []Allowance{{Asset: asset, Amount: amount}},
	}, nil)
	if err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"destination": destination.Hex(),
		"asset":       asset,
		"amount":      amount,
	}).Info("Transfer acknowledged")
	return nil
}

// Ready reports whether transfers can be attempted right now: the socket is
// up, the session key is authorized, and an open channel is on file.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.signer != nil && c.channelID != ""
}

func (c *Client) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) setSigner(w *Wallet) {
	c.mu.Lock()
	c.signer = w
	c.mu.Unlock()
}

func (c *Client) setChannel(id string) {
	c.mu.Lock()
	c.channelID = id
	c.mu.Unlock()
}

// ChannelID returns the open channel currently backing transfers.
func (c *Client) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// Address returns the main wallet address players stake to.
func (c *Client) Address() common.Address {
	return c.wallet.Address
}

// SessionAddress returns the session key authorized for this process.
func (c *Client) SessionAddress() common.Address {
	return c.session.Address
}

// Balances returns a copy of the latest unified balance snapshot.
func (c *Client) Balances() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.balances))
	for asset, amount := range c.balances {
		out[asset] = amount
	}
	return out
}

// Close drops the connection for good. In-flight transfers are not rolled
// back; custody remains the source of truth, so they are only logged for
// the operator to reconcile.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		inflight := len(c.pending)
		pending := c.pending
		c.pending = make(map[uint64]chan *rpcMessage)
		c.mu.Unlock()

		for _, ch := range pending {
			ch <- nil
		}
		if inflight > 0 {
			c.log.Warnf("Closing with %d broker calls outbound in flight", inflight)
		}
		if conn != nil {
			conn.Close()
		}
	})
}
