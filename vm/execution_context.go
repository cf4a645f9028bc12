package vm

import (
	"fmt"

	"github.com/govm-net/helloworld/core"
)

// initContext implements core.InitContext for one initialization
type initContext struct {
	origin core.Address
	height uint64
	time   int64
	param  []byte
}

func (c *initContext) Origin() core.Address { return c.origin }
func (c *initContext) BlockHeight() uint64  { return c.height }
func (c *initContext) BlockTime() int64     { return c.time }
func (c *initContext) Parameter() []byte    { return c.param }

// receiveContext implements core.ReceiveContext for one call
type receiveContext struct {
	origin core.Address
	sender core.Address
	self   core.Address
	owner  core.Address
	height uint64
	time   int64
	param  []byte
}

func (c *receiveContext) Origin() core.Address { return c.origin }
func (c *receiveContext) Sender() core.Address { return c.sender }
func (c *receiveContext) Self() core.Address   { return c.self }
func (c *receiveContext) Owner() core.Address  { return c.owner }
func (c *receiveContext) BlockHeight() uint64  { return c.height }
func (c *receiveContext) BlockTime() int64     { return c.time }
func (c *receiveContext) Parameter() []byte    { return c.param }

// stateBuilder collects the entries allocated by an initializer
type stateBuilder struct {
	entries map[string][]byte
}

func newStateBuilder() *stateBuilder {
	return &stateBuilder{entries: make(map[string][]byte)}
}

func (sb *stateBuilder) Allocate(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("empty state key: %w", core.ErrInvalidArgument)
	}
	sb.entries[key] = append([]byte{}, value...)
	return nil
}

// size is the number of bytes the entries occupy
func (sb *stateBuilder) size() int {
	n := 0
	for k, v := range sb.entries {
		n += len(k) + len(v)
	}
	return n
}

// host is a read-only view of an instance's state. Receive functions get
// copies so they cannot change the stored instance.
type host struct {
	state   []byte
	entries map[string][]byte
}

func (h *host) State() []byte {
	return append([]byte{}, h.state...)
}

func (h *host) Entry(key string) ([]byte, bool) {
	v, ok := h.entries[key]
	if !ok {
		return nil, false
	}
	return append([]byte{}, v...), true
}
