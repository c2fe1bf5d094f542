// Package tftpclient implements the TFTP client driver: it resolves a
// server address, then drives tftpengine initiator transfers against the
// local filesystem for GET and PUT.
package tftpclient

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/gotftp/gotftp/pkg/tftpengine"
	"github.com/gotftp/gotftp/pkg/tftpstore"
	"github.com/gotftp/gotftp/pkg/tftpwire"
)

const defaultClientTimeoutSeconds = 5

// Connector is the command surface the CLI evaluator drives. A Client is
// the production implementation; tests may substitute a fake.
type Connector interface {
	Connect(addr string) error
	Get(ctx context.Context, filename string) error
	Put(ctx context.Context, filename string) error
	SetTimeout(timeout uint)
	SetBlksize(blksize uint16)
	SetTrace(on bool)
}

// Client is a TFTP client bound to one server address at a time. Each
// Get/Put opens a fresh ephemeral socket, mirroring a real client's TID
// allocation: the same long-lived socket can't be reused across
// transfers because the engine closes it on completion.
type Client struct {
	log     *zap.SugaredLogger
	local   tftpstore.Store
	server  net.Addr
	timeout time.Duration
	blksize uint16
	trace   bool
}

// NewClient builds a Client that reads/writes real local files rooted at
// localRoot (use "." for the current directory).
func NewClient(log *zap.SugaredLogger, localRoot string) *Client {
	return NewClientWithStore(log, tftpstore.NewFSStore(afero.NewOsFs(), localRoot, true))
}

// NewClientWithStore builds a Client against an arbitrary local Store,
// letting tests substitute an in-memory filesystem.
func NewClientWithStore(log *zap.SugaredLogger, local tftpstore.Store) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Client{
		log:     log,
		local:   local,
		timeout: defaultClientTimeoutSeconds * time.Second,
	}
}

// Connect resolves addr (host:port) as the server to talk to. No socket
// is opened yet; each transfer opens and closes its own.
func (c *Client) Connect(addr string) error {
	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("tftpclient: resolve %s: %w", addr, err)
	}

	c.server = resolved

	return nil
}

// SetTimeout changes the per-packet retransmission timeout used by
// subsequent transfers.
func (c *Client) SetTimeout(timeout uint) {
	c.timeout = time.Duration(timeout) * time.Second
}

// SetBlksize changes the block size requested by subsequent transfers.
// Zero disables the option, falling back to the engine's default.
func (c *Client) SetBlksize(blksize uint16) {
	c.blksize = blksize
}

// SetTrace toggles verbose per-packet logging for subsequent transfers.
func (c *Client) SetTrace(on bool) {
	c.trace = on
}

func (c *Client) engineConfig() tftpengine.Config {
	return tftpengine.Config{Timeout: c.timeout, RetryLimit: 5}
}

func (c *Client) requestOptions() []tftpwire.Option {
	if c.blksize == 0 {
		return nil
	}

	return []tftpwire.Option{{Name: tftpwire.OptBlksize, Value: strconv.FormatUint(uint64(c.blksize), 10)}}
}

func (c *Client) engineLog() *zap.SugaredLogger {
	if c.trace {
		return c.log
	}

	return zap.NewNop().Sugar()
}

// Get downloads filename from the connected server into the local root
// under the same name. It is the REPL/Connector convenience form of
// GetAs.
func (c *Client) Get(ctx context.Context, filename string) error {
	return c.GetAs(ctx, filename, filename)
}

// GetAs downloads remote from the connected server into local, for the
// one-shot CLI mode where the two names may differ.
func (c *Client) GetAs(ctx context.Context, remote, local string) error {
	if c.server == nil {
		return fmt.Errorf("tftpclient: not connected")
	}

	writer, err := c.local.OpenWriter(ctx, local)
	if err != nil {
		return fmt.Errorf("tftpclient: open local %s for write: %w", local, err)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		_ = writer.Close()

		return fmt.Errorf("tftpclient: open transfer socket: %w", err)
	}

	engine := tftpengine.NewWriterInitiator(conn, c.server, writer, c.engineConfig(), c.engineLog())
	if err := engine.RunInitiator(ctx, remote, tftpwire.ModeOctet, c.requestOptions()); err != nil {
		return fmt.Errorf("tftpclient: get %s: %w", remote, err)
	}

	return nil
}

// Put uploads filename from the local root to the connected server under
// the same name. It is the REPL/Connector convenience form of PutAs.
func (c *Client) Put(ctx context.Context, filename string) error {
	return c.PutAs(ctx, filename, filename)
}

// PutAs uploads local to the connected server as remote, for the
// one-shot CLI mode where the two names may differ.
func (c *Client) PutAs(ctx context.Context, local, remote string) error {
	if c.server == nil {
		return fmt.Errorf("tftpclient: not connected")
	}

	reader, err := c.local.OpenReader(ctx, local)
	if err != nil {
		return fmt.Errorf("tftpclient: open local %s for read: %w", local, err)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		_ = reader.Close()

		return fmt.Errorf("tftpclient: open transfer socket: %w", err)
	}

	engine := tftpengine.NewReaderInitiator(conn, c.server, reader, c.engineConfig(), c.engineLog())
	if err := engine.RunInitiator(ctx, remote, tftpwire.ModeOctet, c.requestOptions()); err != nil {
		return fmt.Errorf("tftpclient: put %s: %w", remote, err)
	}

	return nil
}
