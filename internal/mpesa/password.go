package mpesa

import (
	"encoding/base64"
	"time"
)

// timestampLayout is the Daraja wall-clock format YYYYMMDDHHmmss.
const timestampLayout = "20060102150405"

// Password derives the STK push request password for the given instant:
// base64(shortCode + passkey + timestamp). Pure function; the timestamp
// returned must be sent alongside the password.
func Password(shortCode, passkey string, t time.Time) (password, timestamp string) {
	timestamp = t.Format(timestampLayout)
	password = base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
	return password, timestamp
}
