package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// dialTimeout keeps CLI commands from hanging when the daemon is wedged.
const dialTimeout = 2 * time.Second

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon to stop recording and exit.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Restart requests a new capture cycle.
func (c *Client) Restart(reason string) (*RestartResponse, error) {
	return call[RestartResponse](c, "Restart", RestartRequest{Reason: reason})
}

// Prune runs a retention cycle now.
func (c *Client) Prune() (*PruneResponse, error) {
	return call[PruneResponse](c, "Prune", PruneRequest{})
}

// Segments lists recorded files.
func (c *Client) Segments() (*SegmentsResponse, error) {
	return call[SegmentsResponse](c, "Segments", SegmentsRequest{})
}

// History fetches journaled cycles and evictions.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	return call[HistoryResponse](c, "History", HistoryRequest{Limit: limit})
}

// LogTail fetches daemon log lines.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}
