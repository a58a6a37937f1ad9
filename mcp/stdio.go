package mcp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"

	"github.com/iotaevm/gateway/log"
)

// maxFrameSize bounds a single stdio message. Contract ABIs inflate
// tools/call payloads well past typical JSON-RPC sizes.
const maxFrameSize = 10 * 1024 * 1024

// StdioTransport serves MCP over newline-delimited JSON-RPC on a reader and
// writer pair, normally stdin and stdout. stdout carries protocol frames
// only; all logging goes through the stderr logger.
type StdioTransport struct {
	srv *Server
	in  io.Reader
	out io.Writer
	log *log.Logger
}

// NewStdioTransport creates a transport bound to os.Stdin and os.Stdout.
func NewStdioTransport(srv *Server) *StdioTransport {
	return NewStdioTransportPipe(srv, os.Stdin, os.Stdout)
}

// NewStdioTransportPipe creates a transport over explicit streams.
func NewStdioTransportPipe(srv *Server, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{
		srv: srv,
		in:  in,
		out: out,
		log: log.Default().Module("mcp.stdio"),
	}
}

// Run reads messages until EOF or context cancellation. Messages dispatch
// serially so responses preserve request order; blank lines are skipped and
// notifications produce no output.
func (t *StdioTransport) Run(ctx context.Context) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	t.log.Info("stdio transport started")
	for {
		select {
		case <-ctx.Done():
			t.log.Info("stdio transport stopped", "reason", ctx.Err())
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				t.log.Error("stdio read failed", "err", err)
				return err
			}
			t.log.Info("stdio transport stopped", "reason", "eof")
			return nil
		case line := <-lines:
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			resp := t.srv.HandleMessage(ctx, line)
			if resp == nil {
				continue
			}
			if err := t.write(resp); err != nil {
				return err
			}
		}
	}
}

func (t *StdioTransport) write(frame []byte) error {
	if _, err := t.out.Write(frame); err != nil {
		return err
	}
	_, err := t.out.Write([]byte{'\n'})
	return err
}
