package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const (
	postgresChannel   = "site_storage"
	postgresOpTimeout = 5 * time.Second
)

// PostgresStore stores all collections in one table and announces every
// write on the site_storage channel so other processes can follow along.
// Notifications carry the writer's origin id and Watch skips its own.
//
// Tables:
//
//	site_storage(collection, key, value)  PRIMARY KEY (collection, key)
type PostgresStore struct {
	pool   *pgxpool.Pool
	origin string
}

// NewPostgresStore connects to databaseURL and creates the table if needed.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "could not create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "could not ping database")
	}
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS site_storage (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, key)
	)`); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "could not create site_storage table")
	}
	return &PostgresStore{pool: pool, origin: uuid.NewString()}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), postgresOpTimeout)
}

func (s *PostgresStore) GetItem(collection, key string) (string, bool, error) {
	ctx, cancel := opContext()
	defer cancel()
	var value string
	err := s.pool.QueryRow(ctx,
		"SELECT value FROM site_storage WHERE collection = $1 AND key = $2",
		collection, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "could not read %s/%s", collection, key)
	}
	return value, true, nil
}

func (s *PostgresStore) SetItem(collection, key, value string) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}
	ctx, cancel := opContext()
	defer cancel()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "could not begin transaction")
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx,
		`INSERT INTO site_storage (collection, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value, updated_at = now()`,
		collection, key, value,
	); err != nil {
		return errors.Wrapf(err, "could not write %s/%s", collection, key)
	}
	if err := s.notify(ctx, tx, collection, key); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "could not commit write")
}

func (s *PostgresStore) RemoveItem(collection, key string) (bool, error) {
	ctx, cancel := opContext()
	defer cancel()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, errors.Wrap(err, "could not begin transaction")
	}
	defer tx.Rollback(ctx)
	tag, err := tx.Exec(ctx,
		"DELETE FROM site_storage WHERE collection = $1 AND key = $2",
		collection, key,
	)
	if err != nil {
		return false, errors.Wrapf(err, "could not delete %s/%s", collection, key)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := s.notify(ctx, tx, collection, key); err != nil {
		return false, err
	}
	return true, errors.Wrap(tx.Commit(ctx), "could not commit delete")
}

func (s *PostgresStore) notify(ctx context.Context, tx pgx.Tx, collection, key string) error {
	_, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", postgresChannel, notification(s.origin, collection, key))
	return errors.Wrap(err, "could not notify")
}

// notification payloads look like "<origin> <collection>/<key>".
func notification(origin, collection, key string) string {
	return origin + " " + collection + "/" + key
}

// parseNotification decodes payload. Writes made by self and malformed
// payloads report false.
func parseNotification(payload, self string) (Event, bool) {
	origin, path, ok := strings.Cut(payload, " ")
	if !ok || origin == self {
		return Event{}, false
	}
	collection, key, ok := strings.Cut(path, "/")
	if !ok || collection == "" || key == "" {
		return Event{}, false
	}
	return Event{Collection: collection, Key: key}, true
}

func (s *PostgresStore) Keys(collection string) ([]string, error) {
	ctx, cancel := opContext()
	defer cancel()
	rows, err := s.pool.Query(ctx,
		"SELECT key FROM site_storage WHERE collection = $1 ORDER BY key", collection)
	if err != nil {
		return nil, errors.Wrapf(err, "could not list keys of %s", collection)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrapf(err, "could not scan keys of %s", collection)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (s *PostgresStore) ListCollections() ([]string, error) {
	ctx, cancel := opContext()
	defer cancel()
	rows, err := s.pool.Query(ctx,
		"SELECT DISTINCT collection FROM site_storage ORDER BY collection")
	if err != nil {
		return nil, errors.Wrap(err, "could not list collections")
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Watch listens on the site_storage channel until ctx is cancelled and
// reports writes made by other processes. The returned channel is closed
// when the listener stops; a lost connection is reported as a final Event
// with Err set.
func (s *PostgresStore) Watch(ctx context.Context) (<-chan Event, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not acquire listener connection")
	}
	if _, err := conn.Exec(ctx, "LISTEN "+postgresChannel); err != nil {
		conn.Release()
		return nil, errors.Wrap(err, "could not listen")
	}
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer func() {
			// The listener connection is not handed back to the pool still subscribed.
			_ = conn.Conn().Close(context.Background())
			conn.Release()
		}()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					select {
					case events <- Event{Err: errors.Wrap(err, "listener stopped")}:
					case <-ctx.Done():
					}
				}
				return
			}
			ev, ok := parseNotification(n.Payload, s.origin)
			if !ok {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
