package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// --------------------------------------------------------------------------
// Hosted matrices
// --------------------------------------------------------------------------

// MatrixConfig describes one matrix hosted by the RPC server
type MatrixConfig struct {
	// ID is the id clients use to address the matrix
	ID uint64
	// Path of the backing file, "" for a memory only matrix
	Path string
	// CacheSize is the number of rows kept in memory (0 = default)
	CacheSize int
	// Codec is the compression of rows written to the backing file
	Codec string
}

// ParseMatrixConfig parses a matrix definition of the form "ID=path" or "ID=mem".
// Options can be appended to the path: "1=/data/a.smx,cache=1000,codec=zstd".
func ParseMatrixConfig(s string) (MatrixConfig, error) {
	idStr, rest, ok := strings.Cut(s, "=")
	if !ok {
		return MatrixConfig{}, fmt.Errorf("invalid matrix definition %q: expected ID=path or ID=mem", s)
	}

	id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
	if err != nil {
		return MatrixConfig{}, fmt.Errorf("invalid matrix id %q: %w", idStr, err)
	}

	parts := strings.Split(rest, ",")
	cfg := MatrixConfig{ID: id, Path: strings.TrimSpace(parts[0]), Codec: "none"}
	if cfg.Path == "mem" {
		cfg.Path = ""
	}

	for _, opt := range parts[1:] {
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			return MatrixConfig{}, fmt.Errorf("invalid matrix option %q in %q", opt, s)
		}
		switch strings.TrimSpace(key) {
		case "cache":
			if cfg.CacheSize, err = strconv.Atoi(value); err != nil {
				return MatrixConfig{}, fmt.Errorf("invalid cache size %q: %w", value, err)
			}
		case "codec":
			cfg.Codec = value
		default:
			return MatrixConfig{}, fmt.Errorf("unknown matrix option %q in %q", key, s)
		}
	}

	return cfg, nil
}

// String returns the matrix definition in the format accepted by ParseMatrixConfig
func (c MatrixConfig) String() string {
	path := c.Path
	if path == "" {
		return fmt.Sprintf("%d=mem", c.ID)
	}
	s := fmt.Sprintf("%d=%s", c.ID, path)
	if c.CacheSize > 0 {
		s += fmt.Sprintf(",cache=%d", c.CacheSize)
	}
	if c.Codec != "" && c.Codec != "none" {
		s += ",codec=" + c.Codec
	}
	return s
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig holds the settings of the server transport layer
type ServerTransportConfig struct {
	// Endpoint the server listens on (host:port or socket path)
	Endpoint string
	// TimeoutSecond is the read and write timeout of a connection (0 = none)
	TimeoutSecond int64
	// WorkersPerConn limits the requests handled in parallel per connection
	WorkersPerConn int
	// BufferSize is the size of the pooled request buffers
	BufferSize int

	// TCP socket settings
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // 0 keeps the system default
	WriteBufferSize int
	ReadBufferSize  int
}

// ServerConfig holds all configuration parameters of the RPC server
type ServerConfig struct {
	// Matrices hosted by the server
	Matrices []MatrixConfig

	// Transport settings
	Transport ServerTransportConfig

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.Transport.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("Buffer Size", humanize.IBytes(uint64(max(c.Transport.BufferSize, 0))))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Matrices
	addSection("Matrices")
	for _, m := range c.Matrices {
		if m.Path == "" {
			addField(strconv.FormatUint(m.ID, 10), "memory")
			continue
		}
		cache := "default"
		if m.CacheSize > 0 {
			cache = humanize.Comma(int64(m.CacheSize)) + " rows"
		}
		addField(strconv.FormatUint(m.ID, 10), fmt.Sprintf("%s (cache %s, codec %s)", m.Path, cache, m.Codec))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the settings of the client transport layer
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int

	// TCP socket settings
	TCPNoDelay      bool
	TCPKeepAliveSec int
}

// ClientConfig holds all configuration parameters of an RPC client
type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
