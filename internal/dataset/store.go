package dataset

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	path   TEXT PRIMARY KEY,
	parent TEXT NOT NULL,
	name   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS groups_parent ON groups(parent);

CREATE TABLE IF NOT EXISTS attrs (
	path  TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (path, key)
);

CREATE TABLE IF NOT EXISTS arrays (
	path   TEXT PRIMARY KEY,
	parent TEXT NOT NULL,
	name   TEXT NOT NULL,
	info   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS arrays_parent ON arrays(parent);

CREATE TABLE IF NOT EXISTS chunks (
	path TEXT NOT NULL,
	idx  INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (path, idx)
);
`

// store is a hierarchical group/attribute/array layout on top of SQLite.
// Paths are slash separated and the root group is "".
type store struct {
	mu       sync.Mutex
	db       *sql.DB
	readOnly bool
}

func dsn(path string, mode Mode, busyTimeout time.Duration) string {
	q := url.Values{}
	switch mode {
	case ModeRead:
		q.Set("mode", "ro")
	case ModeReadWrite:
		q.Set("mode", "rw")
	default:
		q.Set("mode", "rwc")
	}
	q.Set("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	// SQLite decodes %XX in URI paths, so ? and # in a file name survive
	return fmt.Sprintf("file:%s?%s", (&url.URL{Path: path}).EscapedPath(), q.Encode())
}

func openStore(path string, mode Mode, busyTimeout time.Duration) (*store, error) {
	db, err := sql.Open("sqlite", dsn(path, mode, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection serializes statements and keeps the writer single
	db.SetMaxOpenConns(1)

	// SQLite reads the file lazily, so a foreign file is only detected by
	// the first query against it
	if mode == ModeCreate {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &store{db: db, readOnly: mode == ModeRead}, nil
}

func (s *store) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *store) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

func (s *store) writer() (*sql.DB, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if s.readOnly {
		return nil, ErrReadOnly
	}
	return db, nil
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func split(path string) (parent, name string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: invalid name %q", ErrPrecondition, name)
	}
	return nil
}

func (s *store) createGroup(path string) error {
	db, err := s.writer()
	if err != nil {
		return err
	}
	parent, name := split(path)
	if err := validName(name); err != nil {
		return err
	}
	if parent != "" {
		ok, err := s.hasGroup(parent)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: group %q", ErrNotFound, parent)
		}
	}

	res, err := db.Exec(`INSERT OR IGNORE INTO groups (path, parent, name) VALUES (?, ?, ?)`, path, parent, name)
	if err != nil {
		return fmt.Errorf("create group %q: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: group %q", ErrExists, path)
	}
	return nil
}

func (s *store) hasGroup(path string) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM groups WHERE path = ?`, path).Scan(&n); err != nil {
		return false, fmt.Errorf("query group %q: %w", path, err)
	}
	return n > 0, nil
}

// childGroups returns the names of the direct subgroups of path in creation
// order.
func (s *store) childGroups(path string) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT name FROM groups WHERE parent = ? ORDER BY rowid`, path)
	if err != nil {
		return nil, fmt.Errorf("query groups of %q: %w", path, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// removeGroup deletes path and everything below it.
func (s *store) removeGroup(path string) error {
	db, err := s.writer()
	if err != nil {
		return err
	}

	// '0' sorts right after '/', so [path/, path0) covers every descendant
	lo, hi := path+"/", path+"0"
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"groups", "attrs", "arrays", "chunks"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE path = ? OR (path >= ? AND path < ?)`, table)
		if _, err := tx.Exec(query, path, lo, hi); err != nil {
			return fmt.Errorf("remove %s of %q: %w", table, path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit removal of %q: %w", path, err)
	}
	return nil
}

func (s *store) setAttr(path, key string, value any) error {
	db, err := s.writer()
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal attribute %s@%s: %w", key, path, err)
	}
	if _, err := db.Exec(`INSERT INTO attrs (path, key, value) VALUES (?, ?, ?)
		ON CONFLICT(path, key) DO UPDATE SET value = excluded.value`, path, key, string(data)); err != nil {
		return fmt.Errorf("write attribute %s@%s: %w", key, path, err)
	}
	return nil
}

func (s *store) attr(path, key string, dst any) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	var value string
	err = db.QueryRow(`SELECT value FROM attrs WHERE path = ? AND key = ?`, path, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: attribute %s@%s", ErrNotFound, key, path)
	}
	if err != nil {
		return fmt.Errorf("read attribute %s@%s: %w", key, path, err)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return fmt.Errorf("%w: attribute %s@%s: %v", ErrSchemaMismatch, key, path, err)
	}
	return nil
}

func (s *store) hasAttr(path, key string) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM attrs WHERE path = ? AND key = ?`, path, key).Scan(&n); err != nil {
		return false, fmt.Errorf("query attribute %s@%s: %w", key, path, err)
	}
	return n > 0, nil
}

func (s *store) deleteAttr(path, key string) error {
	db, err := s.writer()
	if err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM attrs WHERE path = ? AND key = ?`, path, key); err != nil {
		return fmt.Errorf("delete attribute %s@%s: %w", key, path, err)
	}
	return nil
}

// arrayWriter streams rows of an array into fixed-size chunks.
type arrayWriter struct {
	s        *store
	path     string
	info     arrayInfo
	rowSize  int
	buf      []byte
	chunkIdx int
	rows     int
}

// newArrayWriter starts an array whose rows have the given trailing shape.
func (s *store) newArrayWriter(path, dtype string, rowShape []int, chunkLen int, encoding string) (*arrayWriter, error) {
	if _, err := s.writer(); err != nil {
		return nil, err
	}
	_, name := split(path)
	if err := validName(name); err != nil {
		return nil, err
	}
	if chunkLen < 1 {
		chunkLen = 1
	}
	info := arrayInfo{
		DType:    dtype,
		Shape:    append([]int{0}, rowShape...),
		ChunkLen: chunkLen,
		Encoding: encoding,
	}
	rowSize, err := info.rowSize()
	if err != nil {
		return nil, err
	}
	return &arrayWriter{s: s, path: path, info: info, rowSize: rowSize}, nil
}

// Write appends whole rows.
func (w *arrayWriter) Write(p []byte) (int, error) {
	if len(p)%w.rowSize != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte rows", ErrPrecondition, len(p), w.rowSize)
	}
	chunkBytes := w.info.ChunkLen * w.rowSize
	written := 0
	for len(p) > 0 {
		n := min(chunkBytes-len(w.buf), len(p))
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
		written += n
		if len(w.buf) == chunkBytes {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (w *arrayWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	db, err := w.s.writer()
	if err != nil {
		return err
	}
	data, err := encodeChunk(w.info, w.buf)
	if err != nil {
		return err
	}
	if _, err := db.Exec(`INSERT INTO chunks (path, idx, data) VALUES (?, ?, ?)`, w.path, w.chunkIdx, data); err != nil {
		return fmt.Errorf("write chunk %d of %q: %w", w.chunkIdx, w.path, err)
	}
	w.rows += len(w.buf) / w.rowSize
	w.chunkIdx++
	w.buf = w.buf[:0]
	return nil
}

// Close flushes the last chunk and registers the array.
func (w *arrayWriter) Close() error {
	if err := w.flush(); err != nil {
		return err
	}
	db, err := w.s.writer()
	if err != nil {
		return err
	}
	w.info.Shape[0] = w.rows
	info, err := json.Marshal(w.info)
	if err != nil {
		return fmt.Errorf("marshal array info: %w", err)
	}
	parent, name := split(w.path)
	if _, err := db.Exec(`INSERT INTO arrays (path, parent, name, info) VALUES (?, ?, ?, ?)`,
		w.path, parent, name, string(info)); err != nil {
		return fmt.Errorf("register array %q: %w", w.path, err)
	}
	return nil
}

func (s *store) writeArray(path, dtype string, shape []int, data []byte, chunkLen int, encoding string) error {
	if len(shape) == 0 {
		return fmt.Errorf("%w: array %q without shape", ErrPrecondition, path)
	}
	w, err := s.newArrayWriter(path, dtype, shape[1:], chunkLen, encoding)
	if err != nil {
		return err
	}
	if want := shape[0] * w.rowSize; len(data) != want {
		return fmt.Errorf("%w: array %q has %d bytes, shape needs %d", ErrPrecondition, path, len(data), want)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

func (s *store) writeStrings(path string, values []string) error {
	db, err := s.writer()
	if err != nil {
		return err
	}
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal strings: %w", err)
	}
	data, err := compress(raw)
	if err != nil {
		return err
	}
	if _, err := db.Exec(`INSERT INTO chunks (path, idx, data) VALUES (?, 0, ?)`, path, data); err != nil {
		return fmt.Errorf("write strings %q: %w", path, err)
	}
	info, _ := json.Marshal(arrayInfo{DType: dtypeString, Shape: []int{len(values)}, ChunkLen: max(len(values), 1), Encoding: chunkZstd})
	parent, name := split(path)
	if _, err := db.Exec(`INSERT INTO arrays (path, parent, name, info) VALUES (?, ?, ?, ?)`,
		path, parent, name, string(info)); err != nil {
		return fmt.Errorf("register array %q: %w", path, err)
	}
	return nil
}

func (s *store) readStrings(path string) ([]string, error) {
	info, err := s.arrayInfo(path)
	if err != nil {
		return nil, err
	}
	if info.DType != dtypeString {
		return nil, fmt.Errorf("%w: array %q is %s, want string", ErrSchemaMismatch, path, info.DType)
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := db.QueryRow(`SELECT data FROM chunks WHERE path = ? AND idx = 0`, path).Scan(&data); err != nil {
		return nil, fmt.Errorf("%w: strings %q: %v", ErrSchemaMismatch, path, err)
	}
	raw, err := decompress(data)
	if err != nil {
		return nil, err
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%w: strings %q: %v", ErrSchemaMismatch, path, err)
	}
	if len(values) != info.rows() {
		return nil, fmt.Errorf("%w: strings %q hold %d values, shape says %d", ErrSchemaMismatch, path, len(values), info.rows())
	}
	return values, nil
}

func (s *store) arrayInfo(path string) (arrayInfo, error) {
	db, err := s.conn()
	if err != nil {
		return arrayInfo{}, err
	}
	var raw string
	err = db.QueryRow(`SELECT info FROM arrays WHERE path = ?`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return arrayInfo{}, fmt.Errorf("%w: array %q", ErrNotFound, path)
	}
	if err != nil {
		return arrayInfo{}, fmt.Errorf("read array %q: %w", path, err)
	}
	var info arrayInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil || len(info.Shape) == 0 || info.ChunkLen < 1 {
		return arrayInfo{}, fmt.Errorf("%w: array %q has invalid info %q", ErrSchemaMismatch, path, raw)
	}
	return info, nil
}

func (s *store) hasArray(path string) (bool, error) {
	_, err := s.arrayInfo(path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// childArrays returns the names of the arrays directly under group path.
func (s *store) childArrays(path string) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT name FROM arrays WHERE parent = ? ORDER BY rowid`, path)
	if err != nil {
		return nil, fmt.Errorf("query arrays of %q: %w", path, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan array: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// readRows returns the raw bytes of rows [start, end), touching only the
// chunks that overlap the range.
func (s *store) readRows(path string, info arrayInfo, start, end int) ([]byte, error) {
	if start < 0 || end > info.rows() || end < start {
		return nil, fmt.Errorf("%w: rows [%d, %d) of %q with %d rows", ErrInvalidRange, start, end, path, info.rows())
	}
	rowSize, err := info.rowSize()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, (end-start)*rowSize)
	if end == start {
		return out, nil
	}

	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	first, last := start/info.ChunkLen, (end-1)/info.ChunkLen
	rows, err := db.Query(`SELECT idx, data FROM chunks WHERE path = ? AND idx BETWEEN ? AND ? ORDER BY idx`, path, first, last)
	if err != nil {
		return nil, fmt.Errorf("query chunks of %q: %w", path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var data []byte
		if err := rows.Scan(&idx, &data); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		raw, err := decodeChunk(info, data)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %q: %w", idx, path, err)
		}
		chunkStart := idx * info.ChunkLen
		chunkEnd := chunkStart + len(raw)/rowSize
		lo := max(start, chunkStart) - chunkStart
		hi := min(end, chunkEnd) - chunkStart
		if hi > lo {
			out = append(out, raw[lo*rowSize:hi*rowSize]...)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read chunks of %q: %w", path, err)
	}
	if len(out) != (end-start)*rowSize {
		return nil, fmt.Errorf("%w: array %q is missing chunks in rows [%d, %d)", ErrSchemaMismatch, path, start, end)
	}
	return out, nil
}

func (s *store) readAll(path string) ([]byte, arrayInfo, error) {
	info, err := s.arrayInfo(path)
	if err != nil {
		return nil, arrayInfo{}, err
	}
	data, err := s.readRows(path, info, 0, info.rows())
	return data, info, err
}

func (s *store) removeArray(path string) error {
	db, err := s.writer()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("remove chunks of %q: %w", path, err)
	}
	if _, err := tx.Exec(`DELETE FROM arrays WHERE path = ?`, path); err != nil {
		return fmt.Errorf("remove array %q: %w", path, err)
	}
	return tx.Commit()
}
