// Package datalog records program and room history in a SQLite database, so
// the dashboard can chart what the engine did and why.
package datalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smarttherm/fglair-smart/internal/smart"
)

const schema = `
CREATE TABLE IF NOT EXISTS program_log (
	timestamp INTEGER NOT NULL,
	mode TEXT NOT NULL,
	target REAL,
	current REAL,
	reference REAL,
	low REAL,
	high REAL,
	held INTEGER NOT NULL,
	eco INTEGER NOT NULL,
	away INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS program_log_timestamp ON program_log(timestamp);

CREATE TABLE IF NOT EXISTS room_log (
	timestamp INTEGER NOT NULL,
	room TEXT NOT NULL,
	temperature REAL NOT NULL,
	humidity REAL NOT NULL,
	active INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS room_log_room_timestamp ON room_log(room, timestamp);
`

// Publisher is the engine's update feed.
type Publisher interface {
	Subscribe() chan smart.Update
	Unsubscribe(ch chan smart.Update)
}

// DataLog stores one sample per engine update and prunes rows older than the
// retention period.
type DataLog struct {
	publisher Publisher
	logger    *slog.Logger
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

func Open(path string, retention time.Duration, publisher Publisher, logger *slog.Logger) (*DataLog, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &DataLog{
		publisher: publisher,
		logger:    logger,
		db:        db,
		retention: retention,
		now:       time.Now,
	}, nil
}

func (d *DataLog) Close() error {
	return d.db.Close()
}

// Run records updates until the context is canceled, pruning old rows twice
// a day.
func (d *DataLog) Run(ctx context.Context) error {
	d.logger.Debug("started")
	defer d.logger.Debug("stopped")

	ch := d.publisher.Subscribe()
	defer d.publisher.Unsubscribe(ch)

	ticker := time.NewTicker(12 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			if err := d.record(ctx, update); err != nil {
				d.logger.Error("failed to record sample", slog.Any("err", err))
			}
		case <-ticker.C:
			if err := d.prune(ctx); err != nil {
				d.logger.Error("failed to prune history", slog.Any("err", err))
			}
		}
	}
}

func (d *DataLog) record(ctx context.Context, update smart.Update) error {
	timestamp := d.now().Unix()
	program := update.Program

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO program_log (timestamp, mode, target, current, reference, low, high, held, eco, away)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		timestamp, program.TargetMode.String(),
		program.TargetTemperature, program.CurrentTemperature, program.ReferenceTemperature,
		program.AdjustedLow, program.AdjustedHigh,
		program.Held, program.EcoActive, program.Away,
	)
	if err != nil {
		return err
	}

	for room := range update.Devices {
		env, ok := update.Devices.Environ(room)
		if !ok || !env.Online {
			continue
		}
		_, err = d.db.ExecContext(ctx, `
			INSERT INTO room_log (timestamp, room, temperature, humidity, active)
			VALUES (?, ?, ?, ?, ?)`,
			timestamp, room, env.Temperature, env.Humidity, update.Devices.Active(room),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *DataLog) prune(ctx context.Context) error {
	cutoff := d.now().Add(-d.retention).Unix()
	for _, table := range []string{"program_log", "room_log"} {
		if _, err := d.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE timestamp < ?", cutoff); err != nil {
			return err
		}
	}
	return nil
}

// ProgramSample is one recorded program state.
type ProgramSample struct {
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	Target    *float64  `json:"target"`
	Current   *float64  `json:"current"`
	Reference *float64  `json:"reference"`
	Low       *float64  `json:"low"`
	High      *float64  `json:"high"`
	Held      bool      `json:"held"`
	Eco       bool      `json:"eco"`
	Away      bool      `json:"away"`
}

// ProgramHistory returns the recorded program states in [from, to].
func (d *DataLog) ProgramHistory(ctx context.Context, from, to time.Time) ([]ProgramSample, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT timestamp, mode, target, current, reference, low, high, held, eco, away
		FROM program_log WHERE timestamp BETWEEN ? AND ? ORDER BY timestamp`,
		from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var samples []ProgramSample
	for rows.Next() {
		var s ProgramSample
		var timestamp int64
		if err = rows.Scan(&timestamp, &s.Mode, &s.Target, &s.Current, &s.Reference, &s.Low, &s.High, &s.Held, &s.Eco, &s.Away); err != nil {
			return nil, err
		}
		s.Timestamp = time.Unix(timestamp, 0)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// RoomSample is one recorded room reading.
type RoomSample struct {
	Timestamp   time.Time `json:"timestamp"`
	Room        string    `json:"room"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Active      bool      `json:"active"`
}

// RoomHistory returns the recorded readings for one room in [from, to].
func (d *DataLog) RoomHistory(ctx context.Context, room string, from, to time.Time) ([]RoomSample, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT timestamp, room, temperature, humidity, active
		FROM room_log WHERE room = ? AND timestamp BETWEEN ? AND ? ORDER BY timestamp`,
		room, from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var samples []RoomSample
	for rows.Next() {
		var s RoomSample
		var timestamp int64
		if err = rows.Scan(&timestamp, &s.Room, &s.Temperature, &s.Humidity, &s.Active); err != nil {
			return nil, err
		}
		s.Timestamp = time.Unix(timestamp, 0)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
