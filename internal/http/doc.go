// Package http provides the HTTP client used for file downloads.
//
// This package handles:
//   - HEAD requests to learn size and ETag
//   - GET requests resumed with "Range: bytes=N-"
//   - Optional proxying of every request
//   - Stall detection while reading bodies
//   - Typed status errors that know whether a retry can help
//
// Retrying is left to the caller.
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    Timeout: 60 * time.Second,
//	    Proxy:   proxy, // from http.ParseProxy, or nil
//	})
//
//	info, err := client.Head(ctx, url)
//	// info.Size, info.ETag
//
//	resp, err := client.Get(ctx, url, offset)
//	defer resp.Body.Close()
//	// resp.Partial reports whether the server honoured the range
package http
