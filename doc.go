// Package tenantkit implements the client side of a multi-tenant OAuth2
// Authorization Code + PKCE login flow: building the authorize redirect,
// validating the callback and exchanging the code, resolving tenant domains,
// refreshing tokens on demand, and protecting authenticated requests with
// synchronizer-token CSRF checks.
//
// The AuthService is the protocol engine; Handler and RequireAuth wire it
// onto a standard net/http mux with a caller-chosen session.Store backend.
package tenantkit
