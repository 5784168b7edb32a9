// Package httpserver provides the reusable HTTP server shell for the
// verification service: a chi router with standard middleware,
// liveness/readiness endpoints, drain control for load balancers and
// graceful shutdown.
//
// Components plug in through the RouteRegistrar interface; the shell
// owns everything that is not protocol-specific.
package httpserver
