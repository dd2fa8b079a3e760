package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// authAppName doubles as the EIP-712 domain name the broker checks
	// session authorizations against.
	authAppName = "TreasureHunt"
	authScope   = "console"

	sessionTTL = 24 * time.Hour
)

type authRequestParams struct {
	Address     string      `json:"address"`
	SessionKey  string      `json:"session_key"`
	AppName     string      `json:"app_name"`
	Application string      `json:"application"`
	Scope       string      `json:"scope"`
	Expire      string      `json:"expire"`
	Allowances  []Allowance `json:"allowances"`
}

type authChallengeResult struct {
	ChallengeMessage string `json:"challenge_message"`
}

type authVerifyParams struct {
	Challenge string `json:"challenge"`
}

type authVerifyResult struct {
	Success    bool   `json:"success"`
	SessionKey string `json:"session_key"`
}

// authenticate runs the challenge round trip: auth_request announces the
// session key, the broker answers with a challenge, and auth_verify carries
// the main wallet's EIP-712 signature over the authorization policy. On
// success the session wallet signs every later request on this connection.
func (c *Client) authenticate(ctx context.Context) error {
	expire := strconv.FormatInt(time.Now().Add(sessionTTL).Unix(), 10)
	request := authRequestParams{
		Address:     c.wallet.Address.Hex(),
		SessionKey:  c.session.Address.Hex(),
		AppName:     authAppName,
		Application: c.wallet.Address.Hex(),
		Scope:       authScope,
		Expire:      expire,
		Allowances:  []Allowance{},
	}

	reply, err := c.call(ctx, methodAuthRequest, request, []string{})
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	if reply.Method != methodAuthChallenge {
		return fmt.Errorf("expected %s, got %s", methodAuthChallenge, reply.Method)
	}

	var challenge authChallengeResult
	if err := json.Unmarshal(reply.Payload, &challenge); err != nil {
		return fmt.Errorf("failed to parse auth challenge: %w", err)
	}
	if challenge.ChallengeMessage == "" {
		return fmt.Errorf("broker sent an empty challenge")
	}

	typed := authTypedData(challenge.ChallengeMessage, authScope, expire,
		c.wallet.Address, c.wallet.Address, c.session.Address, nil)
	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return fmt.Errorf("failed to hash session authorization: %w", err)
	}

	signature, err := c.wallet.SignDigest(digest)
	if err != nil {
		return fmt.Errorf("failed to sign session authorization: %w", err)
	}

	reply, err = c.call(ctx, methodAuthVerify,
		authVerifyParams{Challenge: challenge.ChallengeMessage},
		[]string{hexutil.Encode(signature)})
	if err != nil {
		return fmt.Errorf("auth verify failed: %w", err)
	}

	var verified authVerifyResult
	if err := json.Unmarshal(reply.Payload, &verified); err != nil {
		return fmt.Errorf("failed to parse auth verify result: %w", err)
	}
	if !verified.Success {
		return fmt.Errorf("broker rejected session authorization")
	}

	c.setSigner(c.session)
	return nil
}

// authTypedData builds the policy the main wallet signs to authorize a
// session key. The broker reconstructs the identical struct from the
// auth_request fields plus its challenge, so both sides hash the same bytes.
func authTypedData(challenge, scope, expire string, wallet, application, participant common.Address, allowances []Allowance) apitypes.TypedData {
	encoded := make([]interface{}, 0, len(allowances))
	for _, a := range allowances {
		amount := new(big.Int)
		big.NewFloat(a.Amount).Int(amount)
		encoded = append(encoded, map[string]interface{}{
			"asset":  a.Asset,
			"amount": amount.String(),
		})
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
			},
			"Policy": {
				{Name: "challenge", Type: "string"},
				{Name: "scope", Type: "string"},
				{Name: "wallet", Type: "address"},
				{Name: "application", Type: "address"},
				{Name: "participant", Type: "address"},
				{Name: "expire", Type: "uint256"},
				{Name: "allowances", Type: "Allowance[]"},
			},
			"Allowance": {
				{Name: "asset", Type: "string"},
				{Name: "amount", Type: "uint256"},
			},
		},
		PrimaryType: "Policy",
		Domain: apitypes.TypedDataDomain{
			Name: authAppName,
		},
		Message: apitypes.TypedDataMessage{
			"challenge":   challenge,
			"scope":       scope,
			"wallet":      wallet.Hex(),
			"application": application.Hex(),
			"participant": participant.Hex(),
			"expire":      expire,
			"allowances":  encoded,
		},
	}
}
