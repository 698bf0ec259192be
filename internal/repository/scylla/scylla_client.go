package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"secmon-service/internal/config"
	"secmon-service/internal/util"
)

// PreparedStatements holds the statements used by the repositories
type PreparedStatements struct {
	GetSessionByToken   *gocql.Query
	UpdateActivity      *gocql.Query
	InvalidateSession   *gocql.Query
	GetUserSessions     *gocql.Query
	SelectActiveExpired *gocql.Query

	RecentByEmail *gocql.Query
	RecentByIP    *gocql.Query

	InsertThreat      *gocql.Query
	InsertEvent       *gocql.Query
	InsertSensitiveOp *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.GetSessionByToken = s.Session.Query(`
        SELECT session_token, id, user_id, ip_address, user_agent, is_active,
            created_at, last_activity, expires_at, invalidated_at, invalidated_reason
        FROM sessions WHERE session_token = ?`)

	// Conditional update: only rows still marked active take the write
	prepared.UpdateActivity = s.Session.Query(`
        UPDATE sessions SET last_activity = ?
        WHERE session_token = ? IF is_active = true`)

	prepared.InvalidateSession = s.Session.Query(`
        UPDATE sessions SET is_active = false, invalidated_at = ?, invalidated_reason = ?
        WHERE session_token = ? IF is_active = true`)

	prepared.GetUserSessions = s.Session.Query(`
        SELECT session_token FROM user_sessions WHERE user_id = ?`)

	prepared.SelectActiveExpired = s.Session.Query(`
        SELECT session_token FROM sessions
        WHERE is_active = true AND expires_at < ? ALLOW FILTERING`)

	prepared.RecentByEmail = s.Session.Query(`
        SELECT attempt_id, email_hash, ip_address, success, blocked_until,
            user_agent, attempted_at
        FROM login_attempts_by_email
        WHERE email_hash = ? AND attempted_at > ?`)

	prepared.RecentByIP = s.Session.Query(`
        SELECT attempt_id, email_hash, ip_address, success, blocked_until,
            user_agent, attempted_at
        FROM login_attempts_by_ip
        WHERE ip_address = ? AND attempted_at > ?`)

	prepared.InsertThreat = s.Session.Query(`
        INSERT INTO threat_records (
            threat_bucket, threat_date, threat_id, threat_type, severity,
            source, details, detected_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.InsertEvent = s.Session.Query(`
        INSERT INTO security_events (
            event_bucket, event_date, event_id, occurred_at, action,
            resource_type, resource_id, user_id, success, risk_level,
            ip_address, details, context
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.InsertSensitiveOp = s.Session.Query(`
        INSERT INTO sensitive_operations (
            id, operation_type, operation_details, requires_approval, created_at
        ) VALUES (?, ?, ?, ?, ?)`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}
