package connection

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rickgao/updatewatch/internal/version"
)

// maxFrameSize bounds a single SSE line. Longer lines are skipped, not fatal.
const maxFrameSize = 1 << 20

var errLineTooLong = errors.New("sse line exceeds max frame size")

// sseClient streams Server-Sent Events over a long-lived HTTP GET.
type sseClient struct {
	stream

	httpClient *http.Client

	cancel context.CancelFunc
	body   io.ReadCloser
}

func newSSEClient(cfg ClientConfig, logger *slog.Logger) *sseClient {
	c := &sseClient{
		// No client timeout: the response body stays open for the life of the stream.
		httpClient: &http.Client{},
	}
	c.init(cfg, logger)
	return c
}

// Connect issues the GET and starts reading events once the server answers 200.
func (c *sseClient) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrAlreadyClosed
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("sse connect: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.body = resp.Body
	c.mu.Unlock()

	if !c.markConnected() {
		// Close raced with the handshake
		cancel()
		resp.Body.Close()
		return ErrAlreadyClosed
	}

	go c.readLoop(resp.Body)
	if c.cfg.StaleTimeout > 0 {
		go c.staleLoop(nil)
	}

	c.logger.Debug("sse stream connected", "url", c.cfg.URL)

	return nil
}

// Close cancels the request and closes the response body.
func (c *sseClient) Close() error {
	if !c.markClosed() {
		return nil
	}

	c.mu.RLock()
	cancel, body := c.cancel, c.body
	c.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		return body.Close()
	}
	return nil
}

// readLoop parses the event stream and emits one frame per event.
func (c *sseClient) readLoop(body io.Reader) {
	r := bufio.NewReaderSize(body, 64*1024)

	var p sseParser
	for {
		line, err := readLine(r, maxFrameSize)
		if errors.Is(err, errLineTooLong) {
			c.touch()
			c.logger.Warn("skipping oversized sse line", "limit", maxFrameSize)
			p.skip(line)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamClosed
			}
			c.fail(err)
			return
		}

		receivedAt := c.touch()

		data, ok := p.feed(string(line))
		if !ok {
			continue
		}
		if !c.emit(data, receivedAt) {
			return
		}
	}
}

// readLine returns the next line without its line ending. A line longer than
// limit is consumed up to its newline and returned truncated with
// errLineTooLong. A final line without a newline is returned before io.EOF.
func readLine(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	tooLong := false

	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				chunk = chunk[:limit-len(line)]
				tooLong = true
			}
			line = append(line, chunk...)
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0 && !tooLong:
			return trimEOL(line), nil
		case err != nil:
			return nil, err
		case tooLong:
			return line, errLineTooLong
		}
		return trimEOL(line), nil
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// sseParser assembles SSE lines into event payloads.
type sseParser struct {
	data     []string
	skipping bool // rest of an event whose data was too long
}

// skip drops the event an oversized line belongs to. head is the start of
// that line. A bare JSON line is a frame of its own, so only a data: line
// discards the rest of its event.
func (p *sseParser) skip(head []byte) {
	if !bytes.HasPrefix(head, []byte("data:")) {
		return
	}
	p.data = p.data[:0]
	p.skipping = true
}

// feed consumes one line and returns a complete payload when one is ready.
//
// data: lines accumulate until a blank line. Comment lines (":") and the
// event, id and retry fields are accepted and ignored. A bare JSON object line
// outside an event is treated as a newline-delimited frame.
func (p *sseParser) feed(line string) ([]byte, bool) {
	if p.skipping {
		if line == "" {
			p.skipping = false
		}
		return nil, false
	}

	switch {
	case line == "":
		if len(p.data) == 0 {
			return nil, false
		}
		payload := strings.Join(p.data, "\n")
		p.data = p.data[:0]
		return []byte(payload), true

	case strings.HasPrefix(line, ":"):
		return nil, false

	case strings.HasPrefix(line, "data:"):
		v := strings.TrimPrefix(line, "data:")
		v = strings.TrimPrefix(v, " ")
		p.data = append(p.data, v)
		return nil, false

	case len(p.data) == 0 && strings.HasPrefix(line, "{"):
		return []byte(line), true
	}

	return nil, false
}
