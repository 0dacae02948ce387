package persistence

import (
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	// registers "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/VolantMQ/alarmping/configuration"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS wake_audit (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	operation TEXT    NOT NULL,
	tag       TEXT    NOT NULL,
	lease_id  TEXT    NOT NULL,
	held_ns   INTEGER NOT NULL DEFAULT 0,
	reason    TEXT    NOT NULL DEFAULT '',
	at        TEXT    NOT NULL
);
`

type sqliteImpl struct {
	status dbStatus
	once   sync.Once
	db     *sql.DB
	insert *sql.Stmt
	log    *zap.SugaredLogger
	a      sqliteAudit
}

type sqliteAudit struct {
	p       *sqliteImpl
	maxRows int
	lock    sync.RWMutex
}

var _ Provider = (*sqliteImpl)(nil)
var _ Audit = (*sqliteAudit)(nil)

// NewSQLite open or create sqlite database at config.Path
func NewSQLite(config *SQLiteConfig) (Provider, error) {
	if config == nil || config.Path == "" {
		return nil, ErrInvalidArgs
	}

	pl := &sqliteImpl{
		log: configuration.GetLogger().Named("persistence"),
	}

	pl.status.done = make(chan struct{})

	db, err := sql.Open("sqlite", config.Path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	// single connection keeps ":memory:" databases consistent across queries
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		return nil, multierr.Append(errors.Wrap(err, "ping database"), db.Close())
	}

	if _, err = db.Exec(auditSchema); err != nil {
		return nil, multierr.Append(errors.Wrap(err, "init schema"), db.Close())
	}

	pl.insert, err = db.Prepare(`INSERT INTO wake_audit (operation, tag, lease_id, held_ns, reason, at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, multierr.Append(errors.Wrap(err, "prepare insert"), db.Close())
	}

	pl.db = db
	pl.a = sqliteAudit{
		p:       pl,
		maxRows: config.MaxRows,
	}

	pl.log.Debugw("audit database ready", "path", config.Path, "maxRows", config.MaxRows)

	return pl, nil
}

// Audit
func (p *sqliteImpl) Audit() (Audit, error) {
	if p.status.closed() {
		return nil, ErrNotOpen
	}

	return &p.a, nil
}

// Shutdown close database
func (p *sqliteImpl) Shutdown() error {
	err := error(ErrNotOpen)

	p.once.Do(func() {
		close(p.status.done)

		p.a.lock.Lock()
		err = multierr.Combine(p.insert.Close(), p.db.Close())
		p.a.lock.Unlock()
	})

	return err
}

func (a *sqliteAudit) Store(e *Entry) error {
	if e == nil {
		return ErrInvalidArgs
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	if a.p.status.closed() {
		return ErrNotOpen
	}

	tx, err := a.p.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	res, err := tx.Stmt(a.p.insert).Exec(
		string(e.Operation),
		e.Tag,
		e.LeaseID,
		int64(e.Held),
		e.Reason,
		e.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return multierr.Append(errors.Wrap(err, "insert audit entry"), tx.Rollback())
	}

	id, err := res.LastInsertId()
	if err != nil {
		return multierr.Append(errors.Wrap(err, "last insert id"), tx.Rollback())
	}

	if a.maxRows > 0 {
		_, err = tx.Exec(`DELETE FROM wake_audit WHERE id NOT IN (SELECT id FROM wake_audit ORDER BY id DESC LIMIT ?)`, a.maxRows)
		if err != nil {
			return multierr.Append(errors.Wrap(err, "prune audit"), tx.Rollback())
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit audit entry")
	}

	e.ID = id

	return nil
}

func (a *sqliteAudit) List(limit int) ([]*Entry, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	if a.p.status.closed() {
		return nil, ErrNotOpen
	}

	query := `SELECT id, operation, tag, lease_id, held_ns, reason, at FROM wake_audit ORDER BY id DESC`

	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.p.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query audit")
	}
	defer rows.Close() // nolint: errcheck

	var entries []*Entry
	for rows.Next() {
		var (
			e    Entry
			op   string
			held int64
			at   string
		)

		if err = rows.Scan(&e.ID, &op, &e.Tag, &e.LeaseID, &held, &e.Reason, &at); err != nil {
			return nil, errors.Wrap(err, "scan audit row")
		}

		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, ErrBrokenEntry
		}

		e.Operation = Operation(op)
		e.Held = time.Duration(held)

		entries = append(entries, &e)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate audit rows")
	}

	return entries, nil
}

func (a *sqliteAudit) Wipe() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.p.status.closed() {
		return ErrNotOpen
	}

	_, err := a.p.db.Exec(`DELETE FROM wake_audit`)

	return errors.Wrap(err, "wipe audit")
}
