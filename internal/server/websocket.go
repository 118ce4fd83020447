package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Command budget per connection.
const (
	commandRate  = rate.Limit(10)
	commandBurst = 20
	writeTimeout = 5 * time.Second
)

// upgrader only accepts same-host, loopback and private network origins.
var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Allow requests without Origin header (same-origin requests)
	if origin == "" {
		return true
	}
	if allowedOrigin(origin, r.Host) {
		return true
	}
	slog.Warn("rejected websocket connection", "origin", origin)
	return false
}

// allowedOrigin compares the parsed origin host exactly, never by substring.
func allowedOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if strings.EqualFold(u.Host, host) {
		return true
	}
	name := u.Hostname()
	if strings.EqualFold(name, "localhost") {
		return true
	}
	ip := net.ParseIP(name)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// Conn is a client connection. Writes are serialised and incoming commands
// are rate limited.
type Conn struct {
	ws      *websocket.Conn
	limiter *rate.Limiter

	mu sync.Mutex // serialises writes
}

// UpgradeConnection upgrades an HTTP connection to WebSocket.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{
		ws:      ws,
		limiter: rate.NewLimiter(commandRate, commandBurst),
	}, nil
}

// WriteJSON sends v as one text message.
func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// ReadCommand blocks until the next command arrives.
func (c *Conn) ReadCommand() (WSCommand, error) {
	var cmd WSCommand
	err := c.ws.ReadJSON(&cmd)
	return cmd, err
}

// Allow reports whether the connection may run another command now.
func (c *Conn) Allow() bool {
	return c.limiter.Allow()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
