package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"taskboard/api/internal/ordering"
)

const uniqueViolation = "23505"

type tableSpec struct {
	container string
	items     string
	parent    string
	label     string
}

var tables = map[ContainerKind]tableSpec{
	KindBoard: {container: "boards", items: "lists", parent: "board_id", label: "name"},
	KindList:  {container: "lists", items: "cards", parent: "list_id", label: "title"},
}

func specFor(kind ContainerKind) (tableSpec, error) {
	spec, ok := tables[kind]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return spec, nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// ReadSequence returns the container's items sorted by position. The version
// and the items come from one snapshot.
func (s *PostgresStore) ReadSequence(ctx context.Context, kind ContainerKind, containerID string) (Sequence, error) {
	spec, err := specFor(kind)
	if err != nil {
		return Sequence{}, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return Sequence{}, fmt.Errorf("begin read %s %s: %w", kind, containerID, err)
	}
	defer func() { _ = tx.Rollback() }()

	seq := Sequence{Kind: kind, ContainerID: containerID}
	err = tx.QueryRowContext(ctx,
		`SELECT order_version FROM `+spec.container+` WHERE id=$1`, containerID,
	).Scan(&seq.Version)
	if err != nil {
		return Sequence{}, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, position FROM `+spec.items+` WHERE `+spec.parent+`=$1 ORDER BY position ASC, id ASC`, containerID,
	)
	if err != nil {
		return Sequence{}, fmt.Errorf("list %s items: %w", kind, err)
	}
	defer rows.Close()

	seq.Items = make([]ordering.Item, 0)
	for rows.Next() {
		var item ordering.Item
		if err := rows.Scan(&item.ID, &item.Position); err != nil {
			return Sequence{}, fmt.Errorf("scan %s item: %w", kind, err)
		}
		seq.Items = append(seq.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Sequence{}, fmt.Errorf("iterate %s items: %w", kind, err)
	}
	return seq, nil
}

// WritePositions applies w in one transaction. It fails with ErrStaleSequence
// when the container's version moved past w.ExpectedVersion or an updated
// item no longer sits where the write expects it; every other failure is
// wrapped in ErrStoreWriteFailed.
func (s *PostgresStore) WritePositions(ctx context.Context, w OrderWrite) error {
	spec, err := specFor(w.Kind)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStoreWriteFailed, err)
	}

	if err := s.writePositionsTx(ctx, tx, spec, w); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyWriteError("commit", err)
	}
	return nil
}

func (s *PostgresStore) writePositionsTx(ctx context.Context, tx *sql.Tx, spec tableSpec, w OrderWrite) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE `+spec.container+` SET order_version = order_version + 1 WHERE id=$1 AND order_version=$2`,
		w.ContainerID, w.ExpectedVersion,
	)
	if err != nil {
		return classifyWriteError("bump version", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return classifyWriteError("bump version", err)
	} else if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM `+spec.container+` WHERE id=$1)`, w.ContainerID,
		).Scan(&exists); err != nil {
			return classifyWriteError("check container", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
		return ErrStaleSequence
	}

	inserts := make(map[string]string, len(w.Inserts))
	for _, item := range w.Inserts {
		inserts[item.ID] = item.Label
	}

	for _, update := range w.Updates {
		label, isInsert := inserts[update.ID]
		switch {
		case isInsert:
			delete(inserts, update.ID)
			_, err = tx.ExecContext(ctx,
				`INSERT INTO `+spec.items+` (id, `+spec.parent+`, `+spec.label+`, position) VALUES ($1, $2, $3, $4)`,
				update.ID, w.ContainerID, label, update.Position,
			)
			if err != nil {
				return classifyWriteError("insert "+update.ID, err)
			}
			continue

		case w.Transfer != nil && update.ID == w.Transfer.ItemID:
			res, err = tx.ExecContext(ctx,
				`UPDATE `+spec.items+` SET `+spec.parent+`=$1, position=$2 WHERE id=$3 AND `+spec.parent+`=$4`,
				w.ContainerID, update.Position, update.ID, w.Transfer.SourceID,
			)

		default:
			res, err = tx.ExecContext(ctx,
				`UPDATE `+spec.items+` SET position=$1 WHERE id=$2 AND `+spec.parent+`=$3`,
				update.Position, update.ID, w.ContainerID,
			)
		}
		if err != nil {
			return classifyWriteError("update "+update.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return classifyWriteError("update "+update.ID, err)
		}
		if n == 0 {
			return ErrStaleSequence
		}
	}

	if len(inserts) > 0 {
		return fmt.Errorf("%w: %d inserted items have no position", ErrStoreWriteFailed, len(inserts))
	}

	if w.Kind == KindList && len(w.Updates) > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE cards SET updated_at=NOW() WHERE id = ANY($1)`, updateIDs(w.Updates)); err != nil {
			return classifyWriteError("touch cards", err)
		}
	}
	return nil
}

func updateIDs(updates []ordering.Update) []string {
	ids := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
	}
	return ids
}

func classifyWriteError(step string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s: %w", ErrStoreWriteFailed, step, errors.Join(ErrDuplicatePosition, err))
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreWriteFailed, step, err)
}

func (s *PostgresStore) CreateBoard(ctx context.Context, board Board) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO boards (id, name) VALUES ($1, $2)`, board.ID, board.Name)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var board Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, order_version, created_at
		FROM boards
		WHERE id=$1
	`, boardID).Scan(&board.ID, &board.Name, &board.OrderVersion, &board.CreatedAt)
	if err != nil {
		return Board{}, err
	}
	return board, nil
}

func (s *PostgresStore) ListLists(ctx context.Context, boardID string) ([]List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, name, position, order_version, created_at
		FROM lists
		WHERE board_id=$1
		ORDER BY position ASC, id ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	items := make([]List, 0)
	for rows.Next() {
		var item List
		if err := rows.Scan(&item.ID, &item.BoardID, &item.Name, &item.Position, &item.OrderVersion, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetList(ctx context.Context, listID string) (List, error) {
	var item List
	err := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, name, position, order_version, created_at
		FROM lists
		WHERE id=$1
	`, listID).Scan(&item.ID, &item.BoardID, &item.Name, &item.Position, &item.OrderVersion, &item.CreatedAt)
	if err != nil {
		return List{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListCards(ctx context.Context, listID string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, list_id, title, position, created_at, updated_at
		FROM cards
		WHERE list_id=$1
		ORDER BY position ASC, id ASC
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	items := make([]Card, 0)
	for rows.Next() {
		var item Card
		if err := rows.Scan(&item.ID, &item.ListID, &item.Title, &item.Position, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, cardID string) (Card, error) {
	var item Card
	err := s.db.QueryRowContext(ctx, `
		SELECT id, list_id, title, position, created_at, updated_at
		FROM cards
		WHERE id=$1
	`, cardID).Scan(&item.ID, &item.ListID, &item.Title, &item.Position, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Card{}, err
	}
	return item, nil
}

// DeleteCard removes the row only; the list's other positions are left as
// they are.
func (s *PostgresStore) DeleteCard(ctx context.Context, cardID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id=$1`, cardID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) DeleteList(ctx context.Context, listID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lists WHERE id=$1`, listID)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
