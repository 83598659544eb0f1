package mpesa

import (
	"encoding/base64"
	"time"
)

// M-Pesa timestamps are East Africa Time wall clock.
var eat = time.FixedZone("EAT", 3*60*60)

const timestampLayout = "20060102150405"

// Timestamp formats t the way the STK push API expects.
func Timestamp(t time.Time) string {
	return t.In(eat).Format(timestampLayout)
}

// Password builds the STK push password: base64(shortCode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// basicCredentials builds the OAuth Basic credential: base64(key:secret).
func basicCredentials(key, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(key + ":" + secret))
}
