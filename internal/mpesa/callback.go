package mpesa

import (
	"fmt"
	"time"
)

// ResultSuccess is the result code for a completed payment.
const ResultSuccess = 0

// CallbackEnvelope is the fixed envelope the provider posts to the callback URL.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback carries the payment result for one checkout request.
type StkCallback struct {
	MerchantRequestID string   `json:"MerchantRequestID"`
	CheckoutRequestID string   `json:"CheckoutRequestID"`
	ResultCode        int      `json:"ResultCode"`
	ResultDesc        string   `json:"ResultDesc"`
	CallbackMetadata  Metadata `json:"CallbackMetadata"`
}

// Metadata is the unordered set of name/value items on a successful callback.
// Fields are matched by name, never by position: the provider does not
// guarantee item order.
type Metadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem is one name/value pair.
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

func (m Metadata) lookup(name string) (interface{}, bool) {
	for _, item := range m.Item {
		if item.Name == name {
			return item.Value, true
		}
	}
	return nil, false
}

// String returns the named item as a string.
func (m Metadata) String(name string) string {
	v, ok := m.lookup(name)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; receipts and phones can be numeric.
		return fmt.Sprintf("%.0f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Int64 returns the named item as an integer, truncating fractional amounts.
func (m Metadata) Int64(name string) int64 {
	v, ok := m.lookup(name)
	if !ok {
		return 0
	}
	switch val := v.(type) {
	case float64:
		return int64(val)
	case int64:
		return val
	case int:
		return int64(val)
	default:
		return 0
	}
}

// Time parses the named item as a provider timestamp (YYYYMMDDHHmmss).
func (m Metadata) Time(name string) (time.Time, error) {
	raw := m.String(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("metadata item %q missing", name)
	}
	t, err := time.ParseInLocation(timestampLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("metadata item %q: %w", name, err)
	}
	return t, nil
}

// Receipt holds the payment confirmation fields extracted from metadata.
type Receipt struct {
	Number          string
	Amount          int64
	TransactionTime time.Time // zero when absent or malformed
	PhoneNumber     string
}

// Receipt extracts the confirmation fields by name-keyed lookup.
func (m Metadata) Receipt() Receipt {
	r := Receipt{
		Number:      m.String("MpesaReceiptNumber"),
		Amount:      m.Int64("Amount"),
		PhoneNumber: m.String("PhoneNumber"),
	}
	if t, err := m.Time("TransactionDate"); err == nil {
		r.TransactionTime = t
	}
	return r
}
