// Package fetcher downloads batches of HTTP(S) URLs with a bounded
// number of transfers in flight. It wires the [client] transport to the
// [download] coordinator; use those packages directly for finer control.
package fetcher

import (
	"context"
	"fmt"

	"github.com/adamwoolhether/fetcher/client"
	"github.com/adamwoolhether/fetcher/download"
)

// NewClient instantiates a new *Client with the provided options.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}

// NewCoordinator returns a Coordinator that fetches through a client
// built from clientOpts.
func NewCoordinator(clientOpts []client.Option, opts ...download.Option) (*download.Coordinator, error) {
	c, err := client.Build(clientOpts...)
	if err != nil {
		return nil, &download.Error{Kind: download.KindConfig, Detail: "building client", Err: err}
	}

	return download.New(c, opts...)
}

// Fetch downloads urls into p.Dir with a default client and returns
// one outcome per URL, in input order.
func Fetch(ctx context.Context, urls []string, p download.Params, opts ...download.Option) ([]download.Outcome, error) {
	coord, err := NewCoordinator(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}

	return coord.Run(ctx, urls, p)
}
