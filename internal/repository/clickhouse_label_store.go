package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MarketLabel/internal/domain/models"
	domrepo "MarketLabel/internal/domain/repository"
	pkgch "MarketLabel/pkg/clickhouse"
	applogger "MarketLabel/pkg/logger"
)

const labelChunkSize = 2000

// CHLabelStore writes label runs to ClickHouse and reads stored labels back.
type CHLabelStore struct {
	db       *sql.DB
	database string
	l        applogger.Interface
}

func NewCHLabelStore(ch *pkgch.Client, database string, l applogger.Interface) *CHLabelStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHLabelStore{db: ch.DB(), database: database, l: l}
}

// SaveRun inserts every labeled bar and every anomaly interval of run.
func (s *CHLabelStore) SaveRun(ctx context.Context, run *models.LabelRun) error {
	start := time.Now()
	labels := qualify(s.database, "trend_labels")
	for _, stmt := range labelInserts(labels, run, labelChunkSize) {
		if _, err := s.db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			s.l.Error("clickhouse insert labels error",
				applogger.String("run_id", run.RunID),
				applogger.String("symbol", run.Symbol),
				applogger.Error(err),
			)
			return fmt.Errorf("insert labels: %w", err)
		}
	}
	if len(run.Intervals) > 0 {
		stmt := intervalInsert(qualify(s.database, "anomaly_intervals"), run)
		if _, err := s.db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("insert intervals: %w", err)
		}
	}
	s.l.Info("clickhouse save_run ok",
		applogger.String("run_id", run.RunID),
		applogger.String("symbol", run.Symbol),
		applogger.Int("bars", len(run.Bars)),
		applogger.Int("intervals", len(run.Intervals)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHLabelStore) GetLabels(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time, limit int) ([]models.LabeledBar, error) {
	table := qualify(s.database, "trend_labels")
	const qtpl = `
        SELECT l.bucket, l.symbol, l.trend, l.volume_anomaly
        FROM %s AS l FINAL
        WHERE l.symbol = ? AND l.tf = ? AND l.bucket >= ? AND l.bucket <= ?
        ORDER BY l.bucket ASC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, table), symbol, string(tf), from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("get labels: %w", err)
	}
	defer rows.Close()

	var out []models.LabeledBar
	for rows.Next() {
		var b models.LabeledBar
		var anomaly uint8
		if err := rows.Scan(&b.Bucket, &b.Symbol, &b.Trend, &anomaly); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		b.VolumeAnomaly = anomaly == 1
		out = append(out, b)
	}
	return out, rows.Err()
}

type statement struct {
	query string
	args  []interface{}
}

// labelInserts splits the bars of run into multi-row INSERTs of at most chunk rows.
func labelInserts(table string, run *models.LabelRun, chunk int) []statement {
	var out []statement
	for start := 0; start < len(run.Bars); start += chunk {
		end := start + chunk
		if end > len(run.Bars) {
			end = len(run.Bars)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, b := range run.Bars[start:end] {
			var anomaly uint8
			if b.VolumeAnomaly {
				anomaly = 1
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, run.RunID, run.Symbol, run.Timeframe, b.Bucket, b.Trend, anomaly)
		}
		out = append(out, statement{
			query: fmt.Sprintf("INSERT INTO %s (run_id, symbol, tf, bucket, trend, volume_anomaly) VALUES %s", table, strings.Join(values, ",")),
			args:  args,
		})
	}
	return out
}

func intervalInsert(table string, run *models.LabelRun) statement {
	values := make([]string, 0, len(run.Intervals))
	args := make([]interface{}, 0, len(run.Intervals)*5)
	for _, iv := range run.Intervals {
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, run.RunID, run.Symbol, run.Timeframe, iv.Start, iv.End)
	}
	return statement{
		query: fmt.Sprintf("INSERT INTO %s (run_id, symbol, tf, start, end) VALUES %s", table, strings.Join(values, ",")),
		args:  args,
	}
}

var _ domrepo.LabelStore = (*CHLabelStore)(nil)
