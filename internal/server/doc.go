// Package server hosts the Fiber HTTP service: the recover and request-id
// middlewares, access logging, and a JSON error handler shared by every route.
// Business routes live in package proxy and diagnostics in server/routes; both
// register themselves on the *fiber.App returned by NewApp, so keep exports
// narrow and accept explicit dependencies.
package server
