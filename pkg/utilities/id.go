package utilities

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out time-ordered snowflake IDs from a single node.
// Share one generator per process: two nodes with the same node ID can collide
// within a millisecond.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates a generator for the given node (0..1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// Next returns the next ID. IDs from one generator are strictly increasing.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}

// NextWithTime returns the next ID together with the millisecond timestamp embedded in it.
// Ordering by the returned time and then by ID matches generation order.
func (g *IDGenerator) NextWithTime() (int64, time.Time) {
	id := g.node.Generate()
	return id.Int64(), time.UnixMilli(id.Time()).UTC()
}
