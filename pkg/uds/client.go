package uds

import (
	"context"
	"io"
	"net"

	"bookcore/pkg/exception"
)

const unixNetwork = "unix"

// Client is the sending side of a frame feed.
type Client struct {
	path string
}

// NewClient creates a client for the provided socket path.
func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return &Client{path: path}, nil
}

// Path returns the configured socket path.
func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Dial opens a connection, giving up when ctx is done.
func (c *Client) Dial(ctx context.Context) (*net.UnixConn, error) {
	if c == nil {
		return nil, exception.ErrNilClientUDS
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, unixNetwork, c.path)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UnixConn), nil
}

// Send dials, streams r to the server and half-closes the connection so the
// server sees a clean end of stream. It returns the number of bytes written.
func (c *Client) Send(ctx context.Context, r io.Reader) (int64, error) {
	conn, err := c.Dial(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	n, err := io.Copy(conn, r)
	if err != nil {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, err
	}
	return n, conn.CloseWrite()
}
