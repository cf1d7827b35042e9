// Package errors provides structured, actionable error messages for docroot.
//
// Startup and configuration failures are reported as *DocrootError values that
// carry a stable code, a category, a short message and an optional hint. The
// CLI prints them with Format; everything else can treat them as plain errors.
//
// # Error Categories
//
//   - init: listener, bind and document root failures (fatal to startup)
//   - config: invalid or unreadable docroot.json
//   - delegate: interpreter setup problems
//   - mirror: document root seeding from object storage
//   - cli: command line usage problems
//
// Per-connection failures never surface here. They are sentinel errors owned by
// the request, static and cgi packages and end in a closed connection.
//
// # Usage
//
//	err := errors.New("E100").
//	    WithDetail("listen tcp :80: bind: permission denied").
//	    WithSuggestion("Use a port above 1024 or run with the required privileges")
//
//	fmt.Println(err.Format())
package errors
