// Package client is a Go client for the nickchat line protocol.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"nickchat/models"
	"nickchat/protocol"
)

var (
	ErrClosed  = errors.New("connection closed")
	ErrTimeout = errors.New("timed out waiting for response")
)

// ServerError is an ERROR response.
type ServerError struct {
	Code string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Code
}

// Client sends one command at a time and waits for its response. Messages
// pushed by the server are buffered without bound and handed out on
// Deliveries, so a long backlog never holds up a response. After ErrTimeout the response stream is out of step and the client should
// be closed.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration

	sendMu     sync.Mutex
	responses  chan []string
	pushed     chan models.DeliveryMessage
	deliveries chan models.DeliveryMessage

	done      chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

// Dial connects to a server over TCP.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// New wraps an established connection and starts reading from it.
func New(conn net.Conn) *Client {
	c := &Client{
		conn:       conn,
		reader:     bufio.NewReader(conn),
		timeout:    10 * time.Second,
		responses:  make(chan []string, 1),
		pushed:     make(chan models.DeliveryMessage),
		deliveries: make(chan models.DeliveryMessage, 64),
		done:       make(chan struct{}),
		closing:    make(chan struct{}),
	}
	go c.readLoop()
	go c.forwardDeliveries()
	return c
}

// SetTimeout sets how long a command waits for its response.
func (c *Client) SetTimeout(d time.Duration) {
	c.sendMu.Lock()
	c.timeout = d
	c.sendMu.Unlock()
}

// Deliveries yields pushed messages. It is closed once the connection has
// ended and every buffered message was received, or on Close.
func (c *Client) Deliveries() <-chan models.DeliveryMessage {
	return c.deliveries
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.pushed)

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		fields := protocol.SplitFields(line)
		if fields[0] == protocol.TypeDeliver {
			msg, err := protocol.ParseDelivery(fields[1:])
			if err != nil {
				continue
			}
			select {
			case c.pushed <- msg:
			case <-c.closing:
				return
			}
			continue
		}

		select {
		case c.responses <- fields:
		case <-c.closing:
			return
		}
	}
}

// forwardDeliveries moves pushed messages from the reader to Deliveries
// through a queue that grows as needed. The reader never waits on the
// consumer.
func (c *Client) forwardDeliveries() {
	defer close(c.deliveries)

	in := c.pushed
	var queue []models.DeliveryMessage
	for in != nil || len(queue) > 0 {
		var out chan<- models.DeliveryMessage
		var next models.DeliveryMessage
		if len(queue) > 0 {
			out = c.deliveries
			next = queue[0]
		}

		select {
		case msg, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, msg)
		case out <- next:
			queue = queue[1:]
		case <-c.closing:
			return
		}
	}
}

func (c *Client) roundTrip(req protocol.Request) ([]string, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if _, err := c.conn.Write([]byte(protocol.FormatRequest(req))); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var fields []string
	select {
	case fields = <-c.responses:
	case <-c.done:
		// the response may have arrived just before the connection ended
		select {
		case fields = <-c.responses:
		default:
			return nil, ErrClosed
		}
	case <-timer.C:
		return nil, ErrTimeout
	}

	if fields[0] == protocol.TypeError {
		code := ""
		if len(fields) > 1 {
			code = fields[1]
		}
		return nil, &ServerError{Code: code}
	}
	return fields, nil
}

func (c *Client) expectOK(req protocol.Request) ([]string, error) {
	fields, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if fields[0] != protocol.TypeOK {
		return nil, fmt.Errorf("unexpected %s response to %s", fields[0], req.Verb())
	}
	return fields[1:], nil
}

func (c *Client) Register(nick, name string) error {
	_, err := c.expectOK(protocol.RegisterRequest{Nick: nick, Name: name})
	return err
}

func (c *Client) Login(nick string) error {
	_, err := c.expectOK(protocol.LoginRequest{Nick: nick})
	return err
}

func (c *Client) Logout(nick string) error {
	_, err := c.expectOK(protocol.LogoutRequest{Nick: nick})
	return err
}

func (c *Client) Delete(nick string) error {
	_, err := c.expectOK(protocol.DeleteRequest{Nick: nick})
	return err
}

func (c *Client) Send(to, text string) error {
	_, err := c.expectOK(protocol.SendRequest{To: to, Text: text})
	return err
}

func (c *Client) List() ([]models.UserInfo, error) {
	fields, err := c.roundTrip(protocol.ListRequest{})
	if err != nil {
		return nil, err
	}
	if fields[0] != protocol.TypeUsers {
		return nil, fmt.Errorf("unexpected %s response to %s", fields[0], protocol.VerbList)
	}
	return protocol.ParseUsers(fields[1:])
}

func (c *Client) Ping() error {
	fields, err := c.roundTrip(protocol.PingRequest{})
	if err != nil {
		return err
	}
	if fields[0] != protocol.TypePong {
		return fmt.Errorf("unexpected %s response to %s", fields[0], protocol.VerbPing)
	}
	return nil
}
