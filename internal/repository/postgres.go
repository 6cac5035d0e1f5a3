// Package repository содержит реализации хранилища доставок и учётных записей:
// PostgreSQL для штатной работы и память процесса для деградированного режима.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/parceltrack/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool       *pgxpool.Pool
	retryDelay []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:       pool,
		retryDelay: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.retryDelay); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		retryable := isConnectionError(err)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			retryable = pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
		}

		if !retryable || i == len(r.retryDelay) {
			break
		}

		timer := time.NewTimer(r.retryDelay[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const selectDelivery = `
	SELECT id, order_number, recipient_name, recipient_document,
	       street, address_number, complement, district, city,
	       sender_name, volumes, weight_grams, status, driver_id, driver_name, created_at
	FROM deliveries`

// deliveryRow хранит строку таблицы deliveries вместе с исходным значением статуса.
type deliveryRow struct {
	delivery  model.Delivery
	rawStatus string
}

func scanDelivery(row pgx.Row) (*deliveryRow, error) {
	var (
		res         deliveryRow
		d           = &res.delivery
		weightGrams int64
	)

	err := row.Scan(
		&d.ID, &d.OrderNumber, &d.RecipientName, &d.RecipientDocument,
		&d.Address.Street, &d.Address.Number, &d.Address.Complement, &d.Address.District, &d.Address.City,
		&d.SenderName, &d.Volumes, &weightGrams, &res.rawStatus, &d.DriverID, &d.DriverName, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	status, err := model.ParseDeliveryStatus(res.rawStatus)
	if err != nil {
		return nil, fmt.Errorf("delivery %s: %w", d.OrderNumber, err)
	}
	d.Status = status
	d.WeightKg = float64(weightGrams) / 1000
	d.CreatedAt = d.CreatedAt.UTC()

	return &res, nil
}

func weightToGrams(kg float64) int64 {
	return int64(math.Round(kg * 1000))
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadMovements(ctx context.Context, q querier, deliveryID string) ([]model.Movement, error) {
	rows, err := q.Query(ctx,
		`SELECT status, author, note, occurred_at
		 FROM delivery_movements
		 WHERE delivery_id = $1
		 ORDER BY seq DESC`,
		deliveryID,
	)
	if err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	defer rows.Close()

	var res []model.Movement
	for rows.Next() {
		var (
			m      model.Movement
			status string
		)
		if err := rows.Scan(&status, &m.Author, &m.Note, &m.At); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		if m.Status, err = model.ParseDeliveryStatus(status); err != nil {
			return nil, fmt.Errorf("movement of delivery %s: %w", deliveryID, err)
		}
		m.At = m.At.UTC()
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CountDeliveries возвращает общее число доставок.
func (r *PostgresRepository) CountDeliveries(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deliveries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return n, nil
}

// InsertDelivery сохраняет новую доставку вместе с её журналом.
// Занятый номер заказа приводит к ErrOrderNumberTaken.
func (r *PostgresRepository) InsertDelivery(ctx context.Context, d *model.Delivery) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`INSERT INTO deliveries (
				id, order_number, recipient_name, recipient_document,
				street, address_number, complement, district, city,
				sender_name, volumes, weight_grams, status, driver_id, driver_name, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			 ON CONFLICT (order_number) DO NOTHING`,
			d.ID, d.OrderNumber, d.RecipientName, d.RecipientDocument,
			d.Address.Street, d.Address.Number, d.Address.Complement, d.Address.District, d.Address.City,
			d.SenderName, d.Volumes, weightToGrams(d.WeightKg), string(d.Status), d.DriverID, d.DriverName, d.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert delivery: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrOrderNumberTaken, d.OrderNumber)
		}

		for i, m := range d.Movements {
			seq := len(d.Movements) - i
			if err := insertMovement(ctx, tx, d.ID, seq, m); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func insertMovement(ctx context.Context, tx pgx.Tx, deliveryID string, seq int, m model.Movement) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO delivery_movements (delivery_id, seq, status, author, note, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		deliveryID, seq, string(m.Status), m.Author, m.Note, m.At,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// GetDelivery возвращает доставку по номеру заказа вместе с журналом перемещений.
func (r *PostgresRepository) GetDelivery(ctx context.Context, orderNumber string) (*model.Delivery, error) {
	row, err := scanDelivery(r.pool.QueryRow(ctx, selectDelivery+` WHERE order_number = $1`, orderNumber))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrDeliveryNotFound, orderNumber)
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}

	d := &row.delivery
	if d.Movements, err = loadMovements(ctx, r.pool, d.ID); err != nil {
		return nil, err
	}

	return d, nil
}

// ListDeliveries возвращает доставки без журнала перемещений, от новых к старым.
func (r *PostgresRepository) ListDeliveries(ctx context.Context, filter model.DeliveryFilter) ([]model.Delivery, error) {
	pattern := ""
	if filter.Query != "" {
		pattern = "%" + escapeLike(filter.Query) + "%"
	}

	rows, err := r.pool.Query(ctx, selectDelivery+`
		 WHERE ($1 = '' OR order_number ILIKE $1 OR recipient_name ILIKE $1 OR sender_name ILIKE $1
		        OR street ILIKE $1 OR city ILIKE $1)
		   AND (NOT $2 OR driver_id = '')
		 ORDER BY created_at DESC`,
		pattern, filter.PendingOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("select deliveries: %w", err)
	}
	defer rows.Close()

	var res []model.Delivery
	for rows.Next() {
		row, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		res = append(res, row.delivery)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateDeliveryDetails обновляет редактируемые поля доставки.
// Статус, водитель и журнал перемещений не затрагиваются.
func (r *PostgresRepository) UpdateDeliveryDetails(ctx context.Context, orderNumber string, details model.DeliveryDetails) (*model.Delivery, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE deliveries
		 SET recipient_name = $2, recipient_document = $3,
		     street = $4, address_number = $5, complement = $6, district = $7, city = $8,
		     sender_name = $9, volumes = $10, weight_grams = $11
		 WHERE order_number = $1`,
		orderNumber, details.RecipientName, details.RecipientDocument,
		details.Address.Street, details.Address.Number, details.Address.Complement, details.Address.District, details.Address.City,
		details.SenderName, details.Volumes, weightToGrams(details.WeightKg),
	)
	if err != nil {
		return nil, fmt.Errorf("update delivery: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeliveryNotFound, orderNumber)
	}

	return r.GetDelivery(ctx, orderNumber)
}

// TransitionDelivery блокирует строку доставки, передаёт её текущее состояние в fn и
// применяет вычисленный переход одной транзакцией. Ошибка fn откатывает транзакцию.
func (r *PostgresRepository) TransitionDelivery(
	ctx context.Context,
	orderNumber string,
	fn func(current model.Delivery) (model.Transition, error),
) (*model.Delivery, error) {
	var result *model.Delivery

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		row, err := scanDelivery(tx.QueryRow(ctx, selectDelivery+` WHERE order_number = $1 FOR UPDATE`, orderNumber))
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: %s", ErrDeliveryNotFound, orderNumber)
			}
			return fmt.Errorf("lock delivery: %w", err)
		}

		d := row.delivery
		if d.Movements, err = loadMovements(ctx, tx, d.ID); err != nil {
			return err
		}

		t, err := fn(d)
		if err != nil {
			return err
		}

		cmdTag, err := tx.Exec(ctx,
			`UPDATE deliveries
			 SET status = $2, driver_id = $3, driver_name = $4
			 WHERE id = $1 AND status = $5 AND driver_id = $6`,
			d.ID, string(t.Status), t.DriverID, t.DriverName, row.rawStatus, d.DriverID,
		)
		if err != nil {
			return fmt.Errorf("update delivery status: %w", err)
		}
		if cmdTag.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s", ErrConcurrentUpdate, orderNumber)
		}

		var seq int
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM delivery_movements WHERE delivery_id = $1`,
			d.ID,
		).Scan(&seq)
		if err != nil {
			return fmt.Errorf("next movement seq: %w", err)
		}

		if err := insertMovement(ctx, tx, d.ID, seq, t.Movement); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		d.Status = t.Status
		d.DriverID = t.DriverID
		d.DriverName = t.DriverName
		d.Movements = append([]model.Movement{t.Movement}, d.Movements...)
		result = &d
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// RenumberDelivery меняет номер заказа доставки. Используется только при сверке
// исторических номеров.
func (r *PostgresRepository) RenumberDelivery(ctx context.Context, id, orderNumber string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE deliveries SET order_number = $2 WHERE id = $1`,
		id, orderNumber,
	)
	if err != nil {
		if c, ok := uniqueViolation(err); ok && c == constraintOrderNumber {
			return fmt.Errorf("%w: %s", ErrOrderNumberTaken, orderNumber)
		}
		return fmt.Errorf("renumber delivery: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDeliveryNotFound, id)
	}
	return nil
}
