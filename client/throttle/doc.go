// Package throttle caps the request rate a client sends to the hub with a
// token bucket from [golang.org/x/time/rate].
//
// The client package installs it through client.WithThrottle. Standalone use
// wraps any transport:
//
//	rt, err := throttle.NewRoundTripper(5, 10, nil, http.DefaultTransport)
//	hc := &http.Client{Transport: rt}
//
// A request that finds the bucket empty waits for the next token. A wait
// cut short by the request context fails with [ErrWaitingFailed]; a context
// that is already done fails with [ErrContextEnded].
package throttle
