// Package storage implements the persistence collaborator: an append-only
// history of protocol snapshots, ensemble predictions, and allocation
// plans. The core never requires it; hosts wire it in for trending.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"rwa-yield-engine/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New creates a new database connection from a connection string
func New(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Check connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// NewFromParams creates a new database connection from discrete parameters
func NewFromParams(params ConnectionParams) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)
	return New(dsn)
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS protocol_history (
			id SERIAL PRIMARY KEY,
			protocol_id TEXT NOT NULL,
			current_apy DOUBLE PRECISION NOT NULL,
			risk_score DOUBLE PRECISION NOT NULL,
			asset_type TEXT,
			tvl DOUBLE PRECISION,
			active_pools INTEGER,
			min_investment DOUBLE PRECISION,
			lock_period TEXT,
			change_1d DOUBLE PRECISION,
			change_7d DOUBLE PRECISION,
			is_fallback BOOLEAN NOT NULL DEFAULT FALSE,
			recorded_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS prediction_history (
			id SERIAL PRIMARY KEY,
			protocol_id TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			predicted_apy DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			consensus_spread DOUBLE PRECISION NOT NULL,
			contributing_sources TEXT,
			generated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS allocation_plans (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			plan JSONB NOT NULL,
			total_investment DOUBLE PRECISION NOT NULL,
			risk_tolerance TEXT NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// SaveProtocolRecord appends one protocol snapshot to the history.
func (db *DB) SaveProtocolRecord(rec models.ProtocolRecord) error {
	_, err := db.Exec(`
		INSERT INTO protocol_history (
			protocol_id, current_apy, risk_score, asset_type, tvl, active_pools,
			min_investment, lock_period, change_1d, change_7d, is_fallback, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ProtocolID, rec.CurrentAPY, rec.RiskScore, rec.AssetType, rec.TVL, rec.ActivePools,
		rec.MinInvestment, rec.LockPeriod, rec.Change1D, rec.Change7D, rec.IsFallback, rec.Timestamp,
	)
	return err
}

// LatestProtocolRecord returns the most recent snapshot for a protocol.
func (db *DB) LatestProtocolRecord(protocolID string) (models.ProtocolRecord, error) {
	row := db.QueryRow(`
		SELECT protocol_id, current_apy, risk_score, asset_type, tvl, active_pools,
		       min_investment, lock_period, change_1d, change_7d, is_fallback, recorded_at
		FROM protocol_history
		WHERE protocol_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1`, protocolID,
	)
	return scanRecord(row)
}

// ProtocolHistory returns snapshots for a protocol within the trailing
// number of days, newest first.
func (db *DB) ProtocolHistory(protocolID string, days int) ([]models.ProtocolRecord, error) {
	rows, err := db.Query(`
		SELECT protocol_id, current_apy, risk_score, asset_type, tvl, active_pools,
		       min_investment, lock_period, change_1d, change_7d, is_fallback, recorded_at
		FROM protocol_history
		WHERE protocol_id = $1 AND recorded_at > $2
		ORDER BY recorded_at DESC`,
		protocolID, time.Now().AddDate(0, 0, -days),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ProtocolRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SavePrediction appends one ensemble prediction to the history.
func (db *DB) SavePrediction(pred models.EnsemblePrediction) error {
	sources, err := json.Marshal(pred.ContributingSources)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO prediction_history (
			protocol_id, timeframe, predicted_apy, confidence, consensus_spread,
			contributing_sources, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pred.ProtocolID, pred.Timeframe, pred.PredictedAPY, pred.Confidence,
		pred.ConsensusSpread, string(sources), pred.GeneratedAt,
	)
	return err
}

// SaveAllocationPlan stores a full plan as JSON alongside its key fields.
func (db *DB) SaveAllocationPlan(plan models.AllocationPlan) error {
	body, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO allocation_plans (session_id, plan, total_investment, risk_tolerance, generated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		plan.SessionID, string(body), plan.TotalInvestment, string(plan.RiskTolerance), plan.GeneratedAt,
	)
	return err
}

// CleanupOlderThan removes history rows older than the given number of days.
func (db *DB) CleanupOlderThan(days int) error {
	cutoff := time.Now().AddDate(0, 0, -days)
	if _, err := db.Exec(`DELETE FROM protocol_history WHERE recorded_at < $1`, cutoff); err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM prediction_history WHERE generated_at < $1`, cutoff); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM allocation_plans WHERE generated_at < $1`, cutoff)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.ProtocolRecord, error) {
	var rec models.ProtocolRecord
	err := row.Scan(
		&rec.ProtocolID, &rec.CurrentAPY, &rec.RiskScore, &rec.AssetType, &rec.TVL, &rec.ActivePools,
		&rec.MinInvestment, &rec.LockPeriod, &rec.Change1D, &rec.Change7D, &rec.IsFallback, &rec.Timestamp,
	)
	return rec, err
}
