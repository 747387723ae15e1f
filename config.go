package mcpipe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadBufferSize = 4096
)

// Protocol selects the wire protocol spoken on a connection.
// The client itself is protocol-agnostic; the value is used by the request builders
// and by Connect to authenticate.
type Protocol uint8

const (
	// ProtocolText is the memcached meta text protocol (mg, ms, md, ma, mn).
	ProtocolText Protocol = iota

	// ProtocolBinary is the memcached binary protocol.
	ProtocolBinary
)

func (p Protocol) String() string {
	switch p {
	case ProtocolText:
		return "text"
	case ProtocolBinary:
		return "binary"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

// Auth holds the credentials sent right after the connection is established.
type Auth struct {
	Username string
	Password string
}

// Config configures a Client. The zero value is usable.
type Config struct {
	// ConnectTimeout bounds dialing and authentication.
	// Default: DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// RequestTimeout is the maximum age of the oldest outstanding request.
	// When exceeded the connection is closed and every pending request fails: the
	// stream cannot be resynchronized once a response is missing.
	// Default: 0 (disabled).
	RequestTimeout time.Duration

	// WriteTimeout is the deadline applied to each socket write.
	// Default: 0 (no deadline).
	WriteTimeout time.Duration

	// Protocol is the wire protocol of the server.
	// Default: ProtocolText.
	Protocol Protocol

	// Auth, if set, authenticates the connection before Connect returns.
	// ProtocolBinary uses SASL PLAIN. ProtocolText uses the "set _auth" convention of
	// memcached's text protocol authentication.
	Auth *Auth

	// ReadBufferSize is the initial size of the read buffer. It grows as needed to
	// hold a complete response.
	// Default: DefaultReadBufferSize.
	ReadBufferSize int

	// Logger receives connection lifecycle events.
	// Default: zap.NewNop().
	Logger *zap.Logger

	// DialContext opens the network connection.
	// Default: (&net.Dialer{}).DialContext.
	DialContext func(ctx context.Context, network, address string) (net.Conn, error)
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.DialContext == nil {
		var d net.Dialer
		c.DialContext = d.DialContext
	}
	return c
}

func (c Config) validate() error {
	var errs []error
	if c.ConnectTimeout < 0 {
		errs = append(errs, errors.New("ConnectTimeout must not be negative"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("RequestTimeout must not be negative"))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, errors.New("WriteTimeout must not be negative"))
	}
	if c.ReadBufferSize < 0 {
		errs = append(errs, errors.New("ReadBufferSize must not be negative"))
	}
	if c.Protocol > ProtocolBinary {
		errs = append(errs, fmt.Errorf("unknown protocol %s", c.Protocol))
	}
	if c.Auth != nil && c.Auth.Username == "" {
		errs = append(errs, errors.New("Auth.Username is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("mcpipe: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
