// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
)

// readResult holds the result of a single line read from the reader.
type readResult struct {
	data []byte
	err  error
}

// StdioServerTransport reads newline-delimited JSON-RPC frames from a
// reader (typically os.Stdin) and writes frames to a writer (typically
// os.Stdout).
//
// A persistent reader goroutine runs for the transport's lifetime, so
// cancelled Receive calls do not leak goroutines.
type StdioServerTransport struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex // protects writer and closed
	closed bool

	readCh chan readResult
	once   sync.Once
}

// NewStdioServerTransport creates a stdio transport over r and w.
func NewStdioServerTransport(r io.Reader, w io.Writer) *StdioServerTransport {
	return &StdioServerTransport{
		reader: bufio.NewReaderSize(r, 1024*1024),
		writer: w,
		readCh: make(chan readResult, 1),
	}
}

// startReader launches the reader goroutine once. It exits on the first
// read error, including io.EOF.
func (t *StdioServerTransport) startReader() {
	t.once.Do(func() {
		go func() {
			defer close(t.readCh)
			for {
				line, err := t.reader.ReadBytes('\n')
				t.readCh <- readResult{data: line, err: err}
				if err != nil {
					return
				}
			}
		}()
	})
}

// Send writes message followed by a newline. Frames from concurrent
// callers are never interleaved.
func (t *StdioServerTransport) Send(_ context.Context, message []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	buf := make([]byte, 0, len(message)+1)
	buf = append(append(buf, message...), '\n')
	if _, err := t.writer.Write(buf); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Receive returns the next non-empty line without its line terminator.
func (t *StdioServerTransport) Receive(ctx context.Context) ([]byte, error) {
	t.startReader()

	for {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case result, ok := <-t.readCh:
			if !ok {
				return nil, io.EOF
			}
			line := trimLine(result.data)
			if result.err != nil {
				// A final line without a newline is still a frame.
				if result.err == io.EOF && len(line) > 0 {
					return line, nil
				}
				if result.err == io.EOF {
					return nil, io.EOF
				}
				return nil, errors.Wrap(result.err, "read message")
			}
			if len(line) == 0 {
				continue
			}
			return line, nil
		}
	}
}

func trimLine(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// Close marks the transport closed. The underlying reader and writer are
// left open since they are usually the process's stdio.
func (t *StdioServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

var _ Transport = (*StdioServerTransport)(nil)
