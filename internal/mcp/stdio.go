package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// stdioMaxLine bounds one newline-delimited protocol frame.
const stdioMaxLine = 4 << 20

// ServeStdio runs the newline-delimited JSON-RPC transport over the given
// reader/writer pair until EOF or context cancellation. The stdio transport
// is sessionless: there is exactly one client on the other end of the pipe.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), stdioMaxLine)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		responses, batch, _, parseErr := s.processPayload(ctx, line)
		var payload interface{}
		switch {
		case parseErr != nil:
			payload = parseErr
		case len(responses) == 0:
			continue
		case batch:
			payload = responses
		default:
			payload = responses[0]
		}

		data, err := json.Marshal(payload)
		if err != nil {
			s.log.Error("marshal response failed", zap.Error(err))
			continue
		}
		if _, err := out.Write(data); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := out.WriteByte('\n'); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := out.Flush(); err != nil {
			return fmt.Errorf("flush response: %w", err)
		}
	}
	return scanner.Err()
}
