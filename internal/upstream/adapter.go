package upstream

import "context"

// Adapter is the single abstraction the Request Pipeline drives. A
// deploymentKey identifies the specific deployment being called (the
// catalog's upstream label plus model), letting an Adapter implementation
// track per-deployment health without the pipeline knowing anything about
// that bookkeeping.
//
// params is the opaque parameter bag assembled by the pipeline: a shallow
// clone of the deployment's upstream params with the request's messages
// and passthrough fields overlaid. The Adapter owns all interpretation of
// its contents; the pipeline never inspects it.
type Adapter interface {
	CallUnary(ctx context.Context, deploymentKey string, params map[string]any) (*ChatResponse, error)
	CallStream(ctx context.Context, deploymentKey string, params map[string]any) (<-chan StreamChunk, error)
}
