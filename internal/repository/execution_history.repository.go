package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/futures-signal-executor/internal/entity"
)

const (
	defaultExecutionListLimit = 50
	maxExecutionListLimit     = 500
)

var ErrExecutionNotFound = errors.New("execution not found")

type ExecutionHistoryFilter struct {
	Symbol string
	Status string
	Limit  uint64
}

type ExecutionHistoryRepository struct {
	db *sqlx.DB
}

func NewExecutionHistoryRepository(db *sqlx.DB) *ExecutionHistoryRepository {
	return &ExecutionHistoryRepository{db: db}
}

func (r *ExecutionHistoryRepository) Create(ctx context.Context, history *entity.ExecutionHistory) error {
	query, args, err := buildInsertExecutionQuery(history)
	if err != nil {
		return err
	}

	var id string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		return err
	}

	history.ID = id

	return nil
}

func (r *ExecutionHistoryRepository) GetByRequestID(ctx context.Context, requestID string) (*entity.ExecutionHistory, error) {
	var history entity.ExecutionHistory
	err := r.db.GetContext(ctx, &history, "SELECT * FROM executions WHERE request_id = $1 ORDER BY created_at DESC LIMIT 1", requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &history, nil
}

func (r *ExecutionHistoryRepository) List(ctx context.Context, filter ExecutionHistoryFilter) ([]entity.ExecutionHistory, error) {
	query, args, err := buildListExecutionsQuery(filter)
	if err != nil {
		return nil, err
	}

	histories := make([]entity.ExecutionHistory, 0)
	err = r.db.SelectContext(ctx, &histories, query, args...)
	if err != nil {
		return nil, err
	}

	return histories, nil
}

func buildInsertExecutionQuery(history *entity.ExecutionHistory) (string, []any, error) {
	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(history.TableName()).
		Columns(
			"request_id",
			"symbol",
			"direction",
			"quantity",
			"leverage",
			"status",
			"close_side",
			"close_volume",
			"close_order_id",
			"close_accepted",
			"open_side",
			"open_order_id",
			"open_accepted",
			"error_class",
			"error_message",
			"started_at",
			"finished_at",
			"created_at",
		).
		Values(
			history.RequestID,
			history.Symbol,
			history.Direction,
			history.Quantity,
			history.Leverage,
			history.Status,
			history.CloseSide,
			history.CloseVolume,
			history.CloseOrderID,
			history.CloseAccepted,
			history.OpenSide,
			history.OpenOrderID,
			history.OpenAccepted,
			history.ErrorClass,
			history.ErrorMessage,
			history.StartedAt,
			history.FinishedAt,
			history.CreatedAt,
		).
		Suffix("RETURNING id").
		ToSql()
}

func buildListExecutionsQuery(filter ExecutionHistoryFilter) (string, []any, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = defaultExecutionListLimit
	}
	if limit > maxExecutionListLimit {
		limit = maxExecutionListLimit
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From(entity.ExecutionHistory{}.TableName()).
		OrderBy("created_at desc").
		Limit(limit)

	if symbol := strings.TrimSpace(filter.Symbol); symbol != "" {
		queryBuilder = queryBuilder.Where(sq.Eq{"symbol": symbol})
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		queryBuilder = queryBuilder.Where(sq.Eq{"status": strings.ToUpper(status)})
	}

	return queryBuilder.ToSql()
}
