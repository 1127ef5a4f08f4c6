package goparallel

import (
	"context"

	"github.com/joeycumines/go-eventloop"
)

// withAbortSignal returns a context derived from ctx that is additionally
// cancelled when sig aborts, bridging the DOM-style AbortController
// vocabulary (shared with the host event loop's other asynchronous
// operations) onto the context.Context cancellation this package uses
// internally. If sig is nil, ctx is returned unchanged.
func withAbortSignal(ctx context.Context, sig *eventloop.AbortSignal) (context.Context, context.CancelFunc) {
	if sig == nil {
		return ctx, func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	if sig.Aborted() {
		cancel()
		return ctx, cancel
	}
	sig.OnAbort(func(any) { cancel() })
	return ctx, cancel
}
