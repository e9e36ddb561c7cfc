package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"contractkit/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository and makes sure
// its tables exist
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// EnsureSchema creates missing tables and indexes
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	slog.Debug("Database schema ready")
	return nil
}

// SaveDeployment saves a deployment, replacing an earlier one at the same address
func (r *PostgresRepository) SaveDeployment(ctx context.Context, d *models.Deployment) error {
	query := `
		INSERT INTO deployments (
			address, contract_name, tx_hash, block_number, deployer,
			gas_used, deployed_at, constructor_args
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (address) DO UPDATE SET
			contract_name = EXCLUDED.contract_name,
			tx_hash = EXCLUDED.tx_hash,
			block_number = EXCLUDED.block_number,
			deployer = EXCLUDED.deployer,
			gas_used = EXCLUDED.gas_used,
			deployed_at = EXCLUDED.deployed_at,
			constructor_args = EXCLUDED.constructor_args
	`

	_, err := r.pool.Exec(ctx, query,
		d.Address,
		d.ContractName,
		d.TxHash,
		int64(d.BlockNumber),
		d.Deployer,
		int64(d.GasUsed),
		d.DeployedAt,
		nonNil(d.ConstructorArgs),
	)
	if err != nil {
		return fmt.Errorf("failed to save deployment: %w", err)
	}
	return nil
}

const deploymentColumns = `
	address, contract_name, tx_hash, block_number, deployer,
	gas_used, deployed_at, constructor_args
`

func scanDeployment(row pgx.Row) (*models.Deployment, error) {
	var d models.Deployment
	var block, gas int64
	err := row.Scan(
		&d.Address,
		&d.ContractName,
		&d.TxHash,
		&block,
		&d.Deployer,
		&gas,
		&d.DeployedAt,
		&d.ConstructorArgs,
	)
	if err != nil {
		return nil, err
	}
	d.BlockNumber, d.GasUsed = uint64(block), uint64(gas)
	return &d, nil
}

// GetDeployment retrieves a deployment by address
func (r *PostgresRepository) GetDeployment(ctx context.Context, address string) (*models.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE address = $1`

	d, err := scanDeployment(r.pool.QueryRow(ctx, query, address))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("deployment %s: %w", address, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return d, nil
}

// ListDeployments lists deployments, newest first
func (r *PostgresRepository) ListDeployments(ctx context.Context, limit, offset int) ([]*models.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments
		ORDER BY deployed_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var deployments []*models.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}
	return deployments, nil
}

// SaveInvocation upserts an invocation by id
func (r *PostgresRepository) SaveInvocation(ctx context.Context, inv *models.Invocation) error {
	query := `
		INSERT INTO invocations (
			id, kind, contract_name, address, function, args, phase,
			tx_hash, sender, nonce, block_number, gas_used, results, error,
			started_at, submitted_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			tx_hash = EXCLUDED.tx_hash,
			nonce = EXCLUDED.nonce,
			block_number = EXCLUDED.block_number,
			gas_used = EXCLUDED.gas_used,
			results = EXCLUDED.results,
			error = EXCLUDED.error,
			submitted_at = EXCLUDED.submitted_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err := r.pool.Exec(ctx, query,
		inv.ID,
		string(inv.Kind),
		inv.ContractName,
		inv.Address,
		inv.Function,
		nonNil(inv.Args),
		string(inv.Phase),
		inv.TxHash,
		inv.Sender,
		int64(inv.Nonce),
		int64(inv.BlockNumber),
		int64(inv.GasUsed),
		nonNil(inv.Results),
		inv.Error,
		inv.StartedAt,
		inv.SubmittedAt,
		inv.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save invocation: %w", err)
	}
	return nil
}

// ListInvocations lists the invocations against address, newest first
func (r *PostgresRepository) ListInvocations(ctx context.Context, address string, limit, offset int) ([]*models.Invocation, error) {
	query := `
		SELECT
			id, kind, contract_name, address, function, args, phase,
			tx_hash, sender, nonce, block_number, gas_used, results, error,
			started_at, submitted_at, finished_at
		FROM invocations
		WHERE address = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, address, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer rows.Close()

	var invocations []*models.Invocation
	for rows.Next() {
		var inv models.Invocation
		var kind, phase string
		var nonce, block, gas int64

		err := rows.Scan(
			&inv.ID,
			&kind,
			&inv.ContractName,
			&inv.Address,
			&inv.Function,
			&inv.Args,
			&phase,
			&inv.TxHash,
			&inv.Sender,
			&nonce,
			&block,
			&gas,
			&inv.Results,
			&inv.Error,
			&inv.StartedAt,
			&inv.SubmittedAt,
			&inv.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		inv.Kind, inv.Phase = models.InvocationKind(kind), models.Phase(phase)
		inv.Nonce, inv.BlockNumber, inv.GasUsed = uint64(nonce), uint64(block), uint64(gas)
		invocations = append(invocations, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invocations: %w", err)
	}
	return invocations, nil
}

// SaveScenarioRun saves a finished scenario run
func (r *PostgresRepository) SaveScenarioRun(ctx context.Context, run *models.ScenarioRun) error {
	stepsJSON, err := json.Marshal(nonNil(run.Steps))
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO scenario_runs (
			id, scenario, steps, passed, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Scenario,
		stepsJSON,
		run.Passed,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save scenario run: %w", err)
	}
	return nil
}

const scenarioRunColumns = `id, scenario, steps, passed, error, started_at, finished_at`

func scanScenarioRun(row pgx.Row) (*models.ScenarioRun, error) {
	var run models.ScenarioRun
	var stepsJSON []byte
	err := row.Scan(
		&run.ID,
		&run.Scenario,
		&stepsJSON,
		&run.Passed,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	return &run, nil
}

// GetScenarioRun retrieves a scenario run by id
func (r *PostgresRepository) GetScenarioRun(ctx context.Context, id string) (*models.ScenarioRun, error) {
	query := `SELECT ` + scenarioRunColumns + ` FROM scenario_runs WHERE id = $1`

	run, err := scanScenarioRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scenario run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario run: %w", err)
	}
	return run, nil
}

// ListScenarioRuns lists scenario runs, newest first
func (r *PostgresRepository) ListScenarioRuns(ctx context.Context, limit, offset int) ([]*models.ScenarioRun, error) {
	query := `SELECT ` + scenarioRunColumns + ` FROM scenario_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenario runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ScenarioRun
	for rows.Next() {
		run, err := scanScenarioRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scenario run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scenario runs: %w", err)
	}
	return runs, nil
}

// Ping checks the database connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	slog.Info("Database connection pool closed")
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
