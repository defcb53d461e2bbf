// Package httputil provides HTTP helpers shared by the REST transport.
//
// # Retry
//
// [Retry] re-runs an operation for transient failures:
//
//   - Network errors
//   - 5xx server errors
//   - 429 rate limit responses
//
// Only errors wrapped in [RetryableError] are retried, with exponential
// backoff between attempts:
//
//	err := httputil.DefaultPolicy.Do(ctx, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    defer resp.Body.Close()
//	    return httputil.CheckResponse(resp)
//	})
//
// Writes that are not idempotent should use [NoRetry]; retrying a create
// whose response was lost would store the object twice.
//
// # Status classification
//
// [CheckResponse] turns non-2xx responses into a [StatusError] and marks
// the transient ones as retryable.
package httputil
