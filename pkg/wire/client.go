package wire

import (
	"fmt"
	"net"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
)

// Client is a single-connection wire client. It is not safe for
// concurrent use by multiple goroutines — callers needing concurrency
// pool Clients the same way a database/sql driver pools connections,
// which this package leaves to the caller rather than building in.
type Client struct {
	conn net.Conn
}

// Dial opens a Client against a wire Server listening at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends method with rc and req, decoding the response body into
// resp (a pointer) on success. A non-nil *dingoerr.Error return is
// either the server's populated error envelope or a local failure:
// IllegalParameter when req cannot be encoded, EngineIO when the frame
// cannot be sent or read, Internal when the response body cannot be
// decoded.
func (c *Client) Call(rc RequestContext, method string, req any, resp any) *dingoerr.Error {
	body, err := encodeBody(req)
	if err != nil {
		return dingoerr.New(dingoerr.IllegalParameter, "encode %s request: %v", method, err)
	}

	if err := writeFrame(c.conn, requestFrame{Method: method, Context: rc, Body: body}); err != nil {
		return dingoerr.New(dingoerr.EngineIO, "send %s request: %v", method, err)
	}

	var out responseFrame
	if err := readFrame(c.conn, &out); err != nil {
		return dingoerr.New(dingoerr.EngineIO, "read %s response: %v", method, err)
	}

	if derr := out.Error.AsError(); derr != nil {
		return derr
	}
	if resp != nil && len(out.Body) > 0 {
		if err := decodeBody(out.Body, resp); err != nil {
			return dingoerr.New(dingoerr.Internal, "decode %s response: %v", method, err)
		}
	}
	return nil
}
