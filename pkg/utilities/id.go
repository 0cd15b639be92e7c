package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID returns a sortable 27 char id. Used for subscriber ids.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewRequestID returns a random UUID for X-Request-ID.
func NewRequestID() string {
	return uuid.NewString()
}

// NewSnowflakeID returns an account id from the process-wide node.
// The node id comes from SNOWFLAKE_NODE and defaults to 1.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		id := int64(1)
		if v, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64); err == nil {
			id = v
		}
		n, err := snowflake.NewNode(id)
		if err != nil {
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	return node.Generate().String()
}

// NewSnowflakeIDWithNode builds a throwaway node. Falls back to a KSUID when
// nodeID is out of range.
func NewSnowflakeIDWithNode(nodeID int64) string {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return NewKSUID()
	}
	return n.Generate().String()
}
