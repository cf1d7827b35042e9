// Package static validates request paths against the document root and
// streams files as minimal HTTP/1.1 responses.
//
// IsSafe is deliberately shallow: it rejects empty paths and paths whose first
// byte is '.', then requires the joined path to exist. Segments such as
// "a/../b" are not rejected and symlinks are followed.
//
// Responses use bare "\n" line endings and always carry a 200 status line,
// including the not-found body written by NotFound.
package static
