// Package handler contains the HTTP handlers of the portfolio front-end.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements the http.Handler interface:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Or more commonly, we use http.HandlerFunc: a function with the right signature
// that automatically satisfies the Handler interface. Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, form body, route params)
// 2. Call the browser's services (SessionStore, ProfileLoader)
// 3. Write the HTTP response (status code, headers, rendered page)
//
// Handlers should NOT contain business logic; they are the glue between HTTP
// and internal/service. Which backend status means what, and which responses
// are stale, is decided there.
//
// PER-BROWSER STATE:
// Every request carries a client id (see auth.ClientCookie). AttachClient turns
// it into the browser's *service.Client, and handlers read it with ClientFrom.
package handler
