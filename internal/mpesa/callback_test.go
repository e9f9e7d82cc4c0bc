package mpesa

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleSuccessCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 50.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

const sampleFailureCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user."
    }
  }
}`

func TestCallbackEnvelopeDecodesSuccess(t *testing.T) {
	var envelope CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(sampleSuccessCallback), &envelope))

	cb := envelope.Body.StkCallback
	require.Equal(t, "ws_CO_191220191020363925", cb.CheckoutRequestID)
	require.Equal(t, ResultSuccess, cb.ResultCode)

	receipt := cb.CallbackMetadata.Receipt()
	require.Equal(t, "NLJ7RT61SV", receipt.Number)
	require.Equal(t, int64(50), receipt.Amount)
	require.Equal(t, "254708374149", receipt.PhoneNumber)

	want, err := time.ParseInLocation(timestampLayout, "20191219102115", time.Local)
	require.NoError(t, err)
	require.Equal(t, want, receipt.TransactionTime)
}

func TestCallbackEnvelopeDecodesFailure(t *testing.T) {
	var envelope CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(sampleFailureCallback), &envelope))

	cb := envelope.Body.StkCallback
	require.Equal(t, 1032, cb.ResultCode)
	require.Equal(t, "Request cancelled by user.", cb.ResultDesc)
	require.Empty(t, cb.CallbackMetadata.Item)

	// No metadata: the receipt degrades to zero values instead of failing.
	receipt := cb.CallbackMetadata.Receipt()
	require.Empty(t, receipt.Number)
	require.Zero(t, receipt.Amount)
	require.True(t, receipt.TransactionTime.IsZero())
}

func TestMetadataLookupIgnoresUnknownItems(t *testing.T) {
	m := Metadata{Item: []MetadataItem{
		{Name: "Balance", Value: float64(0)},
		{Name: "MpesaReceiptNumber", Value: "NLJ7RT61SV"},
	}}

	require.Equal(t, "NLJ7RT61SV", m.String("MpesaReceiptNumber"))
	require.Empty(t, m.String("TransactionDate"))
	require.Zero(t, m.Int64("Amount"))

	_, err := m.Time("TransactionDate")
	require.Error(t, err)
}
