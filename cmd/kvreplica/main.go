// Command kvreplica is the bootstrap entry point of spec §4.9: it wires
// together the store, replication state, and broadcast hub, starts the
// follower client if configured as a replica, and always serves the
// leader listener regardless of role.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cannero/kvreplica/internal/admin"
	"github.com/cannero/kvreplica/internal/broadcast"
	"github.com/cannero/kvreplica/internal/config"
	"github.com/cannero/kvreplica/internal/engine"
	"github.com/cannero/kvreplica/internal/followerclient"
	"github.com/cannero/kvreplica/internal/kvlog"
	"github.com/cannero/kvreplica/internal/leaderconn"
	"github.com/cannero/kvreplica/internal/natsmirror"
	"github.com/cannero/kvreplica/internal/store"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

func main() {
	var flagPort int
	var flagReplicaOf, flagConfigFile, flagAdminAddr, flagNatsURL string
	var flagHeartbeat time.Duration
	var flagGops bool

	flag.IntVar(&flagPort, "port", config.Defaults.Port, "TCP port to listen on for client and replication connections")
	flag.StringVar(&flagReplicaOf, "replicaof", "", "Leader address as `\"host port\"`; absent means this process is the leader")
	flag.StringVar(&flagConfigFile, "config", "", "Path to a JSON config file, validated against the embedded schema")
	flag.StringVar(&flagAdminAddr, "admin-addr", "", "Address for the optional read-only admin HTTP surface (disabled if empty)")
	flag.StringVar(&flagNatsURL, "nats-url", "", "NATS server URL to mirror applied writes to (disabled if empty)")
	flag.DurationVar(&flagHeartbeat, "heartbeat", 0, "Interval for a NOTICE-level status heartbeat (0 disables)")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		kvlog.Warnf("parsing '.env' file failed: %s", err.Error())
	}

	cfg := config.Defaults
	cfg.Port = flagPort
	cfg.ReplicaOf = flagReplicaOf
	cfg.AdminAddr = flagAdminAddr
	cfg.NatsURL = flagNatsURL
	cfg.HeartbeatInterval = flagHeartbeat.String()

	if flagConfigFile != "" {
		loaded, err := config.Load(cfg, flagConfigFile)
		if err != nil {
			kvlog.Fatalf("loading config file %q: %s", flagConfigFile, err.Error())
		}
		cfg = loaded
	}

	kvlog.SetLevel(cfg.LogLevel)
	kvlog.SetLogDateTime(cfg.LogDateTime)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			kvlog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	role := engine.LeaderRole
	if cfg.ReplicaOf != "" {
		role = engine.FollowerRole
	}

	state, err := engine.NewServerConfig(role, cfg.Port)
	if err != nil {
		kvlog.Fatalf("generating replication id: %s", err.Error())
	}

	s := store.New()
	hub := broadcast.New(256)

	var wg sync.WaitGroup

	if role == engine.FollowerRole {
		leaderAddr, err := parseReplicaOf(cfg.ReplicaOf)
		if err != nil {
			kvlog.Fatalf("--replicaof: %s", err.Error())
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := followerclient.Run(leaderAddr, cfg.Port, s, hub); err != nil {
				kvlog.Errorf("followerclient: %s", err.Error())
			}
		}()
	}

	if cfg.AdminAddr != "" {
		adminSrv := admin.New(cfg.AdminAddr, s, state)
		wg.Add(1)
		go func() {
			defer wg.Done()
			kvlog.Infof("admin: listening at %s", cfg.AdminAddr)
			if err := adminSrv.Serve(); err != nil {
				kvlog.Warnf("admin: server stopped: %s", err.Error())
			}
		}()
	}

	if cfg.NatsURL != "" {
		mirror, err := natsmirror.Connect(cfg.NatsURL, "")
		if err != nil {
			kvlog.Warnf("natsmirror: connect to %s failed: %s", cfg.NatsURL, err.Error())
		} else {
			defer mirror.Close()
			go mirror.Run(hub)
		}
	}

	if cfg.HeartbeatInterval != "" && cfg.HeartbeatInterval != "0s" {
		if interval, err := time.ParseDuration(cfg.HeartbeatInterval); err != nil {
			kvlog.Warnf("--heartbeat: %s", err.Error())
		} else if interval > 0 {
			startHeartbeat(interval, s, state)
		}
	}

	leader := engine.NewLeader(s, state, hub)

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		kvlog.Fatalf("binding listener: %s", err.Error())
	}
	limited := leaderconn.NewRateLimitedListener(listener, rate.Limit(200), 50)

	kvlog.Infof("kvreplica: listening at %s, role=%s", listener.Addr(), state.Role)

	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		kvlog.Info("kvreplica: shutting down")
		cancel()
		limited.Close()
	}()

	acceptLoop(ctx, limited, leader, hub)
	wg.Wait()
	kvlog.Info("kvreplica: graceful shutdown complete")
}

// acceptLoop accepts connections until the listener is closed (on
// shutdown) or Accept returns any other error, spawning a Conn
// per accepted socket the way leaderconn.Conn expects to be driven.
func acceptLoop(ctx context.Context, listener net.Listener, leader *engine.Leader, hub *broadcast.Hub) {
	for {
		netConn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			kvlog.Errorf("accept: %s", err.Error())
			return
		}

		conn := leaderconn.New(netConn, leader, hub)
		go conn.Serve(ctx)
	}
}

// parseReplicaOf splits a "host port" flag value into the net.Dial
// address of the leader, per spec §4.8(1): it must split into exactly
// two whitespace-separated tokens and the second must parse as a u16.
func parseReplicaOf(v string) (string, error) {
	fields := strings.Fields(v)
	if len(fields) != 2 {
		return "", fmt.Errorf("expected \"host port\", got %q", v)
	}
	port, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return "", fmt.Errorf("invalid port %q: %w", fields[1], err)
	}
	return fmt.Sprintf("%s:%d", fields[0], port), nil
}

// startHeartbeat registers a gocron job logging role, replication
// offset, follower count, and store size at NOTICE level, mirroring
// the teacher's own gocron.NewScheduler/NewTask idiom rather than a
// bare time.Tick goroutine.
func startHeartbeat(interval time.Duration, s *store.Store, state *engine.ServerConfig) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		kvlog.Warnf("heartbeat: could not create scheduler: %s", err.Error())
		return
	}

	_, err = scheduler.NewJob(gocron.DurationJob(interval),
		gocron.NewTask(func() {
			engine.SetReplicationOffset(state.ReplOffset)
			kvlog.Notef("heartbeat: role=%s offset=%d followers=%d keys=%d",
				state.Role, state.ReplOffset, state.Followers().Load(), s.Len())
		}))
	if err != nil {
		kvlog.Warnf("heartbeat: could not register job: %s", err.Error())
		return
	}

	scheduler.Start()
}
