package broker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallBodyRoundTrip(t *testing.T) {
	body, err := encodeCall(7, methodTransfer, transferParams{
		Destination: payoutAddr.Hex(),
		Allocations: []Allowance{{Asset: "ytest.usd", Amount: 12.5}},
	})
	require.NoError(t, err)

	msg, err := decodeCall(body)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), msg.ID)
	assert.Equal(t, methodTransfer, msg.Method)
	assert.NotZero(t, msg.Ts)

	var params transferParams
	require.NoError(t, json.Unmarshal(msg.Payload, &params))
	assert.Equal(t, payoutAddr.Hex(), params.Destination)
	require.Len(t, params.Allocations, 1)
	assert.Equal(t, 12.5, params.Allocations[0].Amount)
}

func TestDecodeCallRejectsWrongArity(t *testing.T) {
	_, err := decodeCall([]byte(`[1,"transfer",{}]`))
	require.Error(t, err)

	_, err = decodeCall([]byte(`{"not":"an array"}`))
	require.Error(t, err)
}

func TestResultErrorExtractsMessage(t *testing.T) {
	body, err := encodeCall(3, methodError, map[string]string{"error": "insufficient unified balance"})
	require.NoError(t, err)
	msg, err := decodeCall(body)
	require.NoError(t, err)

	rerr := resultError(msg)
	require.Error(t, rerr)
	assert.Contains(t, rerr.Error(), "insufficient unified balance")
}

func TestResultErrorIgnoresSuccessResponses(t *testing.T) {
	body, err := encodeCall(4, methodTransfer, map[string]bool{"success": true})
	require.NoError(t, err)
	msg, err := decodeCall(body)
	require.NoError(t, err)
	assert.NoError(t, resultError(msg))
}
