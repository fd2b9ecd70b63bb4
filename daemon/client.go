package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

// Client communicates with the tally daemon over its Unix socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
}

// Connect dials the daemon Unix socket.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	return &Client{conn: conn, scanner: scanner}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}

// Send sends a command and reads one response line.
func (c *Client) Send(cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal command: %w", err)
	}

	data = append(data, '\n')

	_, err = c.conn.Write(data)
	if err != nil {
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}

		return Response{}, fmt.Errorf("connection closed")
	}

	var resp Response

	err = json.Unmarshal(c.scanner.Bytes(), &resp)
	if err != nil {
		return Response{}, fmt.Errorf("unmarshal response: %w", err)
	}

	return resp, nil
}

// Subscribe switches the connection to the event stream. After a
// successful subscribe, use ReadEvent in a loop to receive events.
func (c *Client) Subscribe() error {
	resp, err := c.Send(Command{Cmd: CmdSubscribe})
	if err != nil {
		return err
	}

	if !resp.OK {
		return fmt.Errorf("subscribe rejected: %s", resp.Error)
	}

	return nil
}

// ReadEvent reads the next NDJSON event line. Blocks until data arrives.
func (c *Client) ReadEvent() (Event, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Event{}, fmt.Errorf("read event: %w", err)
		}

		return Event{}, fmt.Errorf("connection closed")
	}

	var ev Event

	err := json.Unmarshal(c.scanner.Bytes(), &ev)
	if err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}

	return ev, nil
}
