package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level metric collectors, registered once at package init and
// updated by every Leader/Follower instance — mirrors how the
// teacher's ambient instrumentation is a singleton shared across
// request handlers rather than per-handler state.
var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kvreplica_commands_total",
		Help: "Number of commands dispatched by the command engine, by command name.",
	}, []string{"command"})

	connectedFollowers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kvreplica_connected_followers",
		Help: "Number of follower sessions currently attached to this leader.",
	})

	storeKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kvreplica_store_keys",
		Help: "Number of keys physically present in the store.",
	})

	replicationOffset = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kvreplica_replication_offset",
		Help: "Replication offset reported in INFO replication.",
	})
)

// SetReplicationOffset publishes offset on the kvreplica_replication_offset
// gauge; called from the heartbeat job and the admin /debug/vars
// handler, since WAIT never advances the offset past 0 in this build.
func SetReplicationOffset(offset int64) {
	replicationOffset.Set(float64(offset))
}
