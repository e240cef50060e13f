package publish

import (
	"context"
	"database/sql"

	"github.com/gr-butler/irlearner/store"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

const createLearnedCommands = `CREATE TABLE IF NOT EXISTS learned_commands (
	name       TEXT PRIMARY KEY,
	protocol   TEXT NOT NULL,
	code       TEXT NOT NULL DEFAULT '',
	pulses     INTEGER[] NOT NULL,
	learned_at TIMESTAMPTZ NOT NULL
)`

const upsertLearnedCommand = `INSERT INTO learned_commands (name, protocol, code, pulses, learned_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE SET
	protocol = EXCLUDED.protocol,
	code = EXCLUDED.code,
	pulses = EXCLUDED.pulses,
	learned_at = EXCLUDED.learned_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Archive keeps a copy of every learned command in Postgres. Re-learning a
// name replaces its row, the same as the JSON file.
type Archive struct {
	db    execer
	close func() error
}

func OpenArchive(ctx context.Context, dsn string) (*Archive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to reach postgres")
	}
	a, err := newArchive(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.close = db.Close
	logger.Info("Connected to postgres archive")
	return a, nil
}

func newArchive(ctx context.Context, db execer) (*Archive, error) {
	if _, err := db.ExecContext(ctx, createLearnedCommands); err != nil {
		return nil, errors.Wrap(err, "failed to create learned_commands")
	}
	return &Archive{db: db, close: func() error { return nil }}, nil
}

func (a *Archive) String() string {
	return "postgres learned_commands"
}

func (a *Archive) Publish(ctx context.Context, cmd store.LearnedCommand) error {
	pulses := make([]int64, len(cmd.Pulses))
	for i, us := range cmd.Pulses {
		pulses[i] = int64(us)
	}
	_, err := a.db.ExecContext(ctx, upsertLearnedCommand,
		cmd.Name, cmd.Protocol.String(), cmd.Code, pq.Array(pulses), cmd.LearnedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to archive %v", cmd.Name)
	}
	return nil
}

func (a *Archive) Close() error {
	return a.close()
}
