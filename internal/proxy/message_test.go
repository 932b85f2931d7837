package proxy

import (
	"encoding/json"
	"testing"

	"checkout-proxy/internal/checkout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessages_Validate(t *testing.T) {
	assert.NoError(t, AmountLookupRequest{EntryID: 501}.Validate())
	assert.ErrorIs(t, AmountLookupRequest{}.Validate(), ErrInvalidMessage)

	assert.NoError(t, AmountLookupResponse{Amount: 2500, Currency: "USD"}.Validate())
	assert.ErrorIs(t, AmountLookupResponse{Amount: 0, Currency: "USD"}.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, AmountLookupResponse{Amount: 10, Currency: ""}.Validate(), ErrInvalidMessage)

	assert.NoError(t, VerifyRequest{EntryID: 501, SessionID: "sid_1"}.Validate())
	assert.ErrorIs(t, VerifyRequest{EntryID: 501}.Validate(), ErrInvalidMessage)

	assert.ErrorIs(t, CallbackPayload{Type: EventPaymentApproved}.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, CallbackPayload{Data: CallbackData{Reference: "501"}}.Validate(), ErrInvalidMessage)
}

func TestCallbackPayload_Decode(t *testing.T) {
	raw := `{
		"id": "evt_1",
		"type": "payment_declined",
		"created_on": "2024-05-01T10:00:00Z",
		"data": {
			"id": "pay_123",
			"reference": "501",
			"amount": 2500,
			"currency": "USD",
			"response_code": 20051,
			"response_summary": "Insufficient Funds",
			"source": {"type": "card"}
		}
	}`

	var p CallbackPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.NoError(t, p.Validate())
	assert.Equal(t, checkout.Code("20051"), p.Data.ResponseCode)

	id, err := p.EntryID()
	require.NoError(t, err)
	assert.Equal(t, int64(501), id)
}

func TestVerifyResponse_DecodePayment(t *testing.T) {
	t.Run("Payment present", func(t *testing.T) {
		var r VerifyResponse
		require.NoError(t, json.Unmarshal([]byte(`{"payment":{"id":"pay_1","status":"Authorized"}}`), &r))

		p, err := r.DecodePayment()
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, checkout.StatusAuthorized, p.PaymentStatus())
	})

	t.Run("Failure marker", func(t *testing.T) {
		body, err := json.Marshal(VerifyFailed())
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":false,"data":{"status":"Failed"}}`, string(body))

		var r VerifyResponse
		require.NoError(t, json.Unmarshal(body, &r))
		p, err := r.DecodePayment()
		assert.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("Empty object", func(t *testing.T) {
		r := VerifyResponse{Payment: json.RawMessage(`{}`)}
		p, err := r.DecodePayment()
		assert.NoError(t, err)
		assert.Nil(t, p)
	})
}
