package mq

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/router"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	data := `{"message_id":"m1","correlation_id":"c1","transaction_id":"ACCTBAL","parameters":{"account_id":"1"},"reply_to":"reply.c1","expiry_ms":5000}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(data), &env))
	assert.Equal(t, "m1", env.MessageID)
	assert.Equal(t, "c1", env.CorrelationID)
	assert.Equal(t, "ACCTBAL", env.TransactionID)
	assert.Equal(t, "1", env.Parameters["account_id"])
	assert.Equal(t, "reply.c1", env.ReplyTo)
	assert.Equal(t, 5000, env.ExpiryMS)
}

func TestBuildReplySuccess(t *testing.T) {
	resp := router.Response{Status: "success", Data: map[string]interface{}{"balance": 100.5}}
	reply := buildReply("c1", resp)

	assert.Equal(t, "c1", reply.CorrelationID)
	assert.Equal(t, "success", reply.Status)
	assert.Equal(t, 100.5, reply.Data["balance"])
	assert.Empty(t, reply.Error)
}

func TestBuildReplyError(t *testing.T) {
	resp := router.Response{Err: errors.TransactionUnknown("NOPE")}
	reply := buildReply("c2", resp)

	assert.Equal(t, "c2", reply.CorrelationID)
	assert.Equal(t, "error", reply.Status)
	assert.Equal(t, errors.CodeTransactionUnknown, reply.Error)
	assert.Nil(t, reply.Data)
}

func TestReplyEnvelopeMarshalsCorrelationID(t *testing.T) {
	reply := ReplyEnvelope{CorrelationID: "c3", Status: "success"}
	body, err := json.Marshal(reply)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"correlation_id":"c3"`)
}
