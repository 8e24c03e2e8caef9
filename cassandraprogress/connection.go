// Package cassandraprogress implements batchworker.ProgressStore on top of
// Cassandra, following the teacher lineage's adapters/cassandra connection
// and query-building conventions (one global session). A single
// cluster-wide consistency level applies to every query; there are no
// per-operation consistency overrides.
package cassandraprogress

import (
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/gocql/gocql"
)

// Config holds the Cassandra cluster and keyspace/table parameters for the
// progress store.
type Config struct {
	ClusterHosts      []string
	Keyspace          string
	Table             string
	Consistency       gocql.Consistency
	ConnectionTimeout time.Duration
	Authenticator     gocql.Authenticator
	ReplicationClause string
}

// Connection wraps a Cassandra session and its configuration.
type Connection struct {
	Session *gocql.Session
	Config  Config
}

var (
	session *gocql.Session
	config  Config
	mux     sync.Mutex
)

// OpenConnection returns the existing global session or opens a new one,
// creating the keyspace and progress table if they do not yet exist.
func OpenConnection(cfg Config) (*Connection, error) {
	mux.Lock()
	defer mux.Unlock()

	if session == nil {
		if cfg.Keyspace == "" {
			cfg.Keyspace = "batchworker"
		}
		if cfg.Table == "" {
			cfg.Table = "file_progress"
		}
		if cfg.Consistency == gocql.Any {
			cfg.Consistency = gocql.LocalQuorum
		}
		if cfg.ReplicationClause == "" {
			cfg.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
		}

		log.Info("opening cassandra connection", "hosts", cfg.ClusterHosts, "keyspace", cfg.Keyspace)
		cluster := gocql.NewCluster(cfg.ClusterHosts...)
		cluster.Consistency = cfg.Consistency
		if cfg.ConnectionTimeout > 0 {
			cluster.ConnectTimeout = cfg.ConnectionTimeout
		}
		if cfg.Authenticator != nil {
			cluster.Authenticator = cfg.Authenticator
		}
		s, err := cluster.CreateSession()
		if err != nil {
			return nil, fmt.Errorf("failed to create cassandra session: %w", err)
		}
		if err := initSchema(s, cfg); err != nil {
			s.Close()
			return nil, err
		}
		session = s
		config = cfg
	}

	return &Connection{Session: session, Config: config}, nil
}

func initSchema(s *gocql.Session, cfg Config) error {
	createKeyspace := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = %s",
		cfg.Keyspace, cfg.ReplicationClause)
	if err := s.Query(createKeyspace).Exec(); err != nil {
		return fmt.Errorf("creating keyspace: %w", err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
		file_id text PRIMARY KEY,
		worker_id text,
		status int,
		last_page int,
		cumulative_rows bigint,
		started_at timestamp,
		completed_at timestamp
	)`, cfg.Keyspace, cfg.Table)
	if err := s.Query(createTable).Exec(); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	return nil
}

// CloseConnection closes the global session. Intended for test teardown.
func CloseConnection() {
	mux.Lock()
	defer mux.Unlock()
	if session != nil {
		session.Close()
		session = nil
	}
}
