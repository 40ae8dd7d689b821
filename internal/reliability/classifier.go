package reliability

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// StatusClass buckets a status code into a low-cardinality metrics label.
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "ok"
	case IsRetryableHTTPStatus(code):
		return "retryable"
	case code >= 400 && code < 500:
		return "rejected"
	case code == 0:
		return "transport"
	default:
		return "failed"
	}
}
