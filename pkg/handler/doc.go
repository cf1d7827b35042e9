// Package handler serves one client connection from start to close.
//
// ServeConn runs the per-connection state machine:
//
//  1. Parse the request line. Nothing read, a non-GET line or an unreadable
//     request closes the connection without a response.
//  2. A non-empty path is resolved to a media type. The trigger extension
//     (php by default) is delegated to the interpreter when one is
//     configured, the path passes the guard and both the script and the
//     interpreter exist. Anything else that fails the guard gets the fixed
//     not-found body. Remaining paths are streamed from the document root.
//  3. The site root delegates to the index script when possible, otherwise
//     streams the first index file that exists, otherwise closes silently.
//  4. The connection is closed.
//
// A panic while serving is recovered and logged; it never reaches the
// dispatcher.
package handler
