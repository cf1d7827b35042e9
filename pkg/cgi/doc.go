// Package cgi hands a connection to an external script interpreter.
//
// The interpreter runs as a child process with its standard output bound to
// the client connection and a fixed CGI/1.1 environment built per request.
// Nothing from the server's own environment is inherited, so concurrent
// delegations cannot see each other's SCRIPT_FILENAME.
//
// Only GET without a body is supported. Request headers, query strings and
// payloads are not forwarded; QUERY_STRING is always empty and REMOTE_HOST is
// always 127.0.0.1.
package cgi
