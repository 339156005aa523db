package protocol

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// CallIDGenerator hands out call ids that never repeat within a process:
// a random per-generator prefix joined to a monotonic counter.
type CallIDGenerator struct {
	prefix  string
	counter atomic.Uint64
}

func NewCallIDGenerator() *CallIDGenerator {
	return &CallIDGenerator{
		prefix: strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
	}
}

// Next returns a fresh call id. Safe for concurrent use.
func (g *CallIDGenerator) Next() string {
	n := g.counter.Add(1)
	return g.prefix + "." + strconv.FormatUint(n, 36)
}

var defaultCallIDs = NewCallIDGenerator()

// NextCallID returns a call id from the process-wide generator.
func NextCallID() string {
	return defaultCallIDs.Next()
}
