// Package engine describes the message protocol spoken with the opaque
// computation engine. The engine never answers synchronously: callers Send an
// Outbound message and later observe an Inbound message on the subscription.
// Both directions are closed tagged unions so handlers can switch on the
// concrete type instead of matching string tags.
package engine
