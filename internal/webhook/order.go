package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrStaleTimestamp   = errors.New("timestamp outside allowed window")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// Window is how far X-Timestamp may drift from the receiver's clock.
const Window = 5 * time.Minute

// Header names carried by signed order notifications.
const (
	TimestampHeader = "X-Timestamp"
	SignatureHeader = "X-Signature"
)

// VerifyOrder checks a hex HMAC-SHA256 signature over "<ts>.<body>".
func VerifyOrder(secret, timestamp, signature string, body []byte, now time.Time) error {
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)

	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	ts := time.Unix(sec, 0)
	if ts.Before(now.Add(-Window)) || ts.After(now.Add(Window)) {
		return ErrStaleTimestamp
	}

	given, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(given, orderMAC(secret, timestamp, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignOrder returns the hex signature a sender attaches for body at timestamp.
func SignOrder(secret, timestamp string, body []byte) string {
	return hex.EncodeToString(orderMAC(secret, timestamp, body))
}

func orderMAC(secret, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}

// Order is a completed-order notification from the storefront.
type Order struct {
	OrderID      string `json:"order_id"`
	BillingEmail string `json:"billing_email"`
}

// ParseOrder decodes an order notification body.
func ParseOrder(body []byte) (Order, error) {
	var o Order
	if err := json.Unmarshal(body, &o); err != nil {
		return o, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	o.OrderID = strings.TrimSpace(o.OrderID)
	o.BillingEmail = strings.TrimSpace(o.BillingEmail)
	if o.BillingEmail == "" {
		return o, fmt.Errorf("%w: billing_email is required", ErrInvalidPayload)
	}
	return o, nil
}
