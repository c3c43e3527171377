// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for outbound calls to the Twitter API.
// Verification must never hang a request: a timeout here is reported as a
// failed verification, so 15s is generous already.
var HTTPClient = &http.Client{
	Timeout: 15 * time.Second,
}
