// Package client provides the HTTP client the hub talks through, built on
// [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(30 * time.Second),
//		client.WithProxies(map[string]string{"https": "http://proxy:3128"}),
//	)
//
// # Metadata Requests
//
// [Client.Head] returns the response headers once the status code matches:
//
//	req, err := client.Request(ctx, u, http.MethodHead,
//		client.WithHeaders(map[string][]string{"Authorization": {"Bearer " + token}}),
//	)
//	_, header, err := c.Head(req, http.StatusOK)
//
// # Downloading Files
//
// Stream a response body directly to disk with optional checksum
// verification and progress reporting:
//
//	err = c.Download(req, http.StatusOK, "/tmp/file.bin",
//		client.WithChecksum(sha256.New(), expectedHex),
//		client.WithProgress(),
//	)
//
// Status codes other than the expected one surface as
// [*UnexpectedStatusError], which keeps the response headers for callers
// that map server error codes.
package client
