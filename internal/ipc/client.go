package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
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

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Spool.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Spool.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns jobs, optionally filtered by status names.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.client.Call("Spool.QueueList", QueueListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueDescribe fetches one job by id.
func (c *Client) QueueDescribe(id string) (*QueueDescribeResponse, error) {
	var resp QueueDescribeResponse
	if err := c.client.Call("Spool.QueueDescribe", QueueDescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueCancel requests cooperative cancellation of a job.
func (c *Client) QueueCancel(id string) (*QueueCancelResponse, error) {
	var resp QueueCancelResponse
	if err := c.client.Call("Spool.QueueCancel", QueueCancelRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRetry requeues failed jobs; with no ids, every failed job is retried.
func (c *Client) QueueRetry(ids []string) (*QueueRetryResponse, error) {
	var resp QueueRetryResponse
	if err := c.client.Call("Spool.QueueRetry", QueueRetryRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes terminal jobs, or every job when all is set.
func (c *Client) QueueClear(all bool) (*QueueClearResponse, error) {
	var resp QueueClearResponse
	if err := c.client.Call("Spool.QueueClear", QueueClearRequest{All: all}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Spool.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
