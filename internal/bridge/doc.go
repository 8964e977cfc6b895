// Package bridge makes the asynchronous engine usable as a synchronous
// service. Dispatch sends a request tagged with a freshly generated
// correlation ID; the always-on subscription handler routes each engine
// response to the waiter registered under that ID; Await blocks until the
// response arrives or the wait bound elapses, in which case ErrTimeout is
// returned. Caller-supplied keys are only labels, so concurrent requests that
// share a key never receive each other's responses.
package bridge
