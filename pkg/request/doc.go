// Package request reads and parses the first line of a client request.
//
// Only "GET /<path>" is understood. The reader accumulates bytes until the
// buffer ends in CRLF or the peer stops sending, so a request split across
// many small TCP segments parses the same as one delivered whole.
//
//	line, err := request.Parse(conn, request.Options{})
//	switch {
//	case err != nil:
//	    // ErrEmptyPath, ErrBadPath or ErrUnknown
//	case line == nil:
//	    // peer sent nothing
//	case line.IsRoot():
//	    // "GET / ..."
//	default:
//	    serve(line.Path)
//	}
package request
