// Package eventstream parses the line-delimited JSON a worker CLI writes to
// its standard output. It is grounded on the same bufio.Scanner line
// discipline the ACP JSON-RPC client in this codebase's lineage uses:
// newline-split, partial trailing lines buffered until the next newline or
// EOF, malformed lines counted and skipped rather than treated as fatal.
package eventstream

import (
	"bufio"
	"encoding/json"
	"io"

	"go.uber.org/zap"

	"github.com/fedi-cli/fedi/internal/common/logger"
)

const (
	initialBufSize = 64 * 1024
	maxBufSize     = 1024 * 1024
)

// Event is the generic shape every decoded line is handed to the driver
// as. AgentDriver implementations look at Type and re-decode Raw into a
// CLI-specific struct as needed.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// Decoder reads one subprocess's stdout and emits Events on a channel; it
// does not close the channel when the stream ends. Malformed lines increment
// Malformed and are logged once; they never stop the stream.
type Decoder struct {
	log       *logger.Logger
	agentID   string
	Malformed int
}

// New returns a Decoder that logs malformed-line warnings tagged with
// agentID under log.
func New(log *logger.Logger, agentID string) *Decoder {
	return &Decoder{log: log, agentID: agentID}
}

// Run reads r until EOF or ctx-independent close, sending one Event per
// well-formed non-empty line to events. It returns when r is exhausted; the
// caller is responsible for closing events afterward if needed.
func (d *Decoder) Run(r io.Reader, events chan<- Event) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialBufSize), maxBufSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			d.Malformed++
			if d.log != nil {
				d.log.Warn("malformed event stream line",
					zap.String("agent_id", d.agentID), zap.Int("malformed_count", d.Malformed))
			}
			continue
		}

		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		events <- Event{Type: probe.Type, Raw: raw}
	}
}
