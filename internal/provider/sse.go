package provider

import (
	"bufio"
	"io"
	"strings"
)

const sseDoneSentinel = "[DONE]"

// sse buffer sizes; deltas are small but a single event can carry a full
// encrypted reasoning block, so the line cap is generous.
const (
	sseInitialBufferSize = 64 * 1024
	sseMaxLineSize       = 1024 * 1024
)

// scanSSE reads a text/event-stream body and invokes handle for every data
// payload until the stream ends, the [DONE] sentinel arrives, or handle
// returns false. Event-name lines and comments are skipped; only the data
// field matters for both providers we talk to.
func scanSSE(body io.Reader, handle func(data string) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, sseInitialBufferSize), sseMaxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == sseDoneSentinel {
			return nil
		}
		if !handle(data) {
			return nil
		}
	}
	return scanner.Err()
}
