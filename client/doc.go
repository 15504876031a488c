// Package client is the HTTP side of fetcher: a configurable
// [net/http] client that opens URLs for streaming and runs small JSON
// requests.
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("fetch/1.0"),
//	)
//
// # Streaming Downloads
//
// [Client.Open] issues a GET and hands back the body together with the
// advertised size, or -1 when the server does not send one. Redirects
// are followed unless [WithNoFollowRedirects] is set. Anything other
// than a 2xx status is an [UnexpectedStatusError].
//
//	body, total, err := c.Open(ctx, "https://example.com/file.bin")
//
// A *Client satisfies [github.com/adamwoolhether/fetcher/download.Transport].
//
// # JSON Requests
//
// Construct a [URL] and [Request], then execute with [Client.Do]:
//
//	u := client.URL("http", "localhost", "/v1/runs", client.WithPort(3000))
//	req, err := client.Request(ctx, u, http.MethodPost, client.WithPayload(body))
//	err = c.Do(req, http.StatusAccepted, client.WithDestination(&created))
package client
