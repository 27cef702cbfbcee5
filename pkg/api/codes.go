package api

import "net/http"

// responseCodes describes the statuses the search endpoints document.
var responseCodes = map[int]string{
	200: "OK: The request was successful.",
	400: "Bad Request: Generally, this response occurs due to the presence of invalid JSON in the request, or where the request failed to send any JSON payload.",
	401: "Unauthorized: HTTP authentication failed due to invalid credentials.",
	403: "Forbidden: The credentials are valid but not authorized for this endpoint.",
	404: "Not Found: The resource was not found at the URL to which the request was sent, likely because an incorrect URL was used.",
	422: "Unprocessable Entity: This is returned due to invalid parameters in a query or when a query is too complex to process.",
	429: "Too Many Requests: Your app has exceeded the limit on connection requests.",
	500: "Internal Server Error: There was an error on the API side. Retry the request with backoff.",
	502: "Proxy Error: There was an error on the API side. Retry the request with backoff.",
	503: "Service Unavailable: There was an error on the API side. Retry the request with backoff.",
}

// DescribeStatus returns the documented meaning of a status code.
func DescribeStatus(code int) string {
	if desc, ok := responseCodes[code]; ok {
		return desc
	}
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown status code"
}
