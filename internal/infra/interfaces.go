package infra

import "context"

type Backend interface {
	Send(ctx context.Context, r Request) (*RawEnvelope, error)
}

var _ Backend = (*BackendClient)(nil)
