// Package record stores published frames in SQLite so a run can be plotted
// or inspected after the fact.
package record

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/common"
)

var ErrNoFrame = errors.New("record: frame not found")

const schema = `
CREATE TABLE IF NOT EXISTS bodies (
	frame         INTEGER NOT NULL,
	slot          INTEGER NOT NULL,
	body          TEXT    NOT NULL,
	x             REAL    NOT NULL,
	y             REAL    NOT NULL,
	z             REAL    NOT NULL,
	angle         REAL    NOT NULL,
	linear_speed  REAL    NOT NULL,
	angular_speed REAL    NOT NULL,
	contacts      INTEGER NOT NULL,
	PRIMARY KEY (frame, slot)
);
CREATE INDEX IF NOT EXISTS bodies_by_id ON bodies (body, frame);
CREATE TABLE IF NOT EXISTS snapshots (
	frame INTEGER PRIMARY KEY,
	data  BLOB NOT NULL
);
`

// Row is one body in one frame.
type Row struct {
	Slot         int
	Body         string
	Pose         common.Pose
	Z            float32
	LinearSpeed  float32
	AngularSpeed float32
	Contacts     int
}

// Sample is a recorded row of a single body's trace.
type Sample struct {
	Frame int64
	Row
}

// Rows reads every body in ids out of buf.
func Rows(buf *buffer.Buffer, ids map[int]string) []Row {
	slots := make([]int, 0, len(ids))
	for s := range ids {
		if s >= 0 && s < buf.Capacity() {
			slots = append(slots, s)
		}
	}
	sort.Ints(slots)

	rows := make([]Row, 0, len(slots))
	var hits []int32
	for _, s := range slots {
		m := buf.Matrix(s)
		hits = buf.Collisions(s, hits[:0])
		rows = append(rows, Row{
			Slot:         s,
			Body:         ids[s],
			Pose:         common.PoseFromMatrix(m),
			Z:            m[14],
			LinearSpeed:  buf.LinearSpeed(s),
			AngularSpeed: buf.AngularSpeed(s),
			Contacts:     len(hits),
		})
	}
	return rows
}

type Recorder struct {
	db *sql.DB
}

// Open creates or appends to the database at path.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("record: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("record: schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// WriteFrame stores rows for frame in one transaction. Rewriting a frame
// replaces it.
func (r *Recorder) WriteFrame(frame int64, rows []Row) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("record: begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO bodies
		(frame, slot, body, x, y, z, angle, linear_speed, angular_speed, contacts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("record: prepare: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(frame, row.Slot, row.Body, row.Pose.X, row.Pose.Y, row.Z,
			row.Pose.Angle, row.LinearSpeed, row.AngularSpeed, row.Contacts); err != nil {
			tx.Rollback()
			return fmt.Errorf("record: frame %d slot %d: %w", frame, row.Slot, err)
		}
	}
	return tx.Commit()
}

// WriteSnapshot stores the raw buffer payload for frame.
func (r *Recorder) WriteSnapshot(frame int64, buf *buffer.Buffer) error {
	data, err := buf.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(`INSERT OR REPLACE INTO snapshots (frame, data) VALUES (?, ?)`, frame, data); err != nil {
		return fmt.Errorf("record: snapshot %d: %w", frame, err)
	}
	return nil
}

// Snapshot returns the payload stored for frame.
func (r *Recorder) Snapshot(frame int64) (*buffer.Buffer, error) {
	var data []byte
	err := r.db.QueryRow(`SELECT data FROM snapshots WHERE frame = ?`, frame).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNoFrame, frame)
	}
	if err != nil {
		return nil, fmt.Errorf("record: snapshot %d: %w", frame, err)
	}
	buf := &buffer.Buffer{}
	if err := buf.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return buf, nil
}

// Trace returns every recorded row of a body in frame order.
func (r *Recorder) Trace(body string) ([]Sample, error) {
	rows, err := r.db.Query(`SELECT frame, slot, x, y, z, angle, linear_speed, angular_speed, contacts
		FROM bodies WHERE body = ? ORDER BY frame`, body)
	if err != nil {
		return nil, fmt.Errorf("record: trace %s: %w", body, err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		s := Sample{Row: Row{Body: body}}
		if err := rows.Scan(&s.Frame, &s.Slot, &s.Pose.X, &s.Pose.Y, &s.Z, &s.Pose.Angle,
			&s.LinearSpeed, &s.AngularSpeed, &s.Contacts); err != nil {
			return nil, fmt.Errorf("record: trace %s: %w", body, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Bodies lists the recorded body ids.
func (r *Recorder) Bodies() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT body FROM bodies ORDER BY body`)
	if err != nil {
		return nil, fmt.Errorf("record: bodies: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Frames is the number of distinct recorded frames.
func (r *Recorder) Frames() (int64, error) {
	var n int64
	err := r.db.QueryRow(`SELECT COUNT(DISTINCT frame) FROM bodies`).Scan(&n)
	return n, err
}
