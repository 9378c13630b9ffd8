package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"charge.completed","data":{"id":"ch_1"}}`)
	sig := Sign(body, "whsec")

	assert.True(t, VerifySignature(body, sig, "whsec"))
	assert.False(t, VerifySignature(body, sig, "other"))
	assert.False(t, VerifySignature(append(body, ' '), sig, "whsec"))
	assert.False(t, VerifySignature(body, "not-hex", "whsec"))
	assert.False(t, VerifySignature(body, "", "whsec"))
	assert.False(t, VerifySignature(body, Sign(body, ""), ""))
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"event":"charge.completed","data":{"id":"ch_1","reference":"FND-1","amount":1000,"currency":"RWF","customer":{"email":"a@example.com"}}}`))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, ev.Data.Status)
	assert.False(t, ev.IsTransfer())
	assert.Equal(t, "a@example.com", ev.Data.Customer.Email)
	assert.Equal(t, "1000", ev.Data.Amount.String())

	ev, err = ParseWebhook([]byte(`{"event":"transfer.failed","data":{"id":"tr_1"}}`))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, ev.Data.Status)
	assert.True(t, ev.IsTransfer())

	ev, err = ParseWebhook([]byte(`{"event":"charge.completed","data":{"id":"ch_2","status":"failed"}}`))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, ev.Data.Status, "payload status wins over event name")

	_, err = ParseWebhook([]byte(`{`))
	assert.Error(t, err)
}
