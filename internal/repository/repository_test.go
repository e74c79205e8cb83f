package repository

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"MarketLabel/internal/domain/models"
	pkgkafka "MarketLabel/pkg/kafka"
)

func sampleRun(bars int) *models.LabelRun {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	run := &models.LabelRun{RunID: "r1", Symbol: "AAPL", Timeframe: "1m"}
	for i := 0; i < bars; i++ {
		run.Bars = append(run.Bars, models.LabeledBar{Bucket: ts.Add(time.Duration(i) * time.Minute), Trend: "rise", VolumeAnomaly: i%2 == 0})
	}
	run.Intervals = []models.AnomalyInterval{{Start: ts, End: ts.Add(time.Hour)}}
	return run
}

func TestLabelInsertsChunking(t *testing.T) {
	stmts := labelInserts("marketlabel.trend_labels", sampleRun(5), 2)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}
	if strings.Count(stmts[0].query, "(?, ?, ?, ?, ?, ?)") != 2 || len(stmts[0].args) != 12 {
		t.Fatalf("unexpected first chunk %q %d", stmts[0].query, len(stmts[0].args))
	}
	if len(stmts[2].args) != 6 {
		t.Fatalf("unexpected last chunk args %d", len(stmts[2].args))
	}
	if stmts[0].args[5] != uint8(1) || stmts[0].args[11] != uint8(0) {
		t.Fatalf("anomaly flags not encoded as UInt8: %v %v", stmts[0].args[5], stmts[0].args[11])
	}
}

func TestIntervalInsert(t *testing.T) {
	st := intervalInsert("anomaly_intervals", sampleRun(1))
	if !strings.HasPrefix(st.query, "INSERT INTO anomaly_intervals") || len(st.args) != 5 {
		t.Fatalf("unexpected statement %q %v", st.query, st.args)
	}
}

func TestQualify(t *testing.T) {
	if qualify("", "t") != "t" || qualify("db", "t") != "db.t" {
		t.Fatalf("unexpected qualification")
	}
}

type captureWriter struct{ msgs []kafka.Message }

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaPublisherEvent(t *testing.T) {
	w := &captureWriter{}
	pub := NewKafkaPublisher(pkgkafka.NewProducerWithWriter(w, "gzip"), "marketlabel.events")
	run := sampleRun(3)
	run.Stats = models.RunStats{Bars: 3, Rise: 3, AnomalyBars: 2}

	if err := pub.PublishRun(context.Background(), run); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "AAPL" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var ev models.LabelRunEvent
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != "label_run" || ev.Rise != 3 || ev.Anomalies != 2 || len(ev.Intervals) != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestKafkaJobQueue(t *testing.T) {
	w := &captureWriter{}
	q := NewKafkaJobQueue(pkgkafka.NewProducerWithWriter(w, "none"), "marketlabel.jobs")
	job := models.LabelJob{Symbol: "MSFT", TF: "5m"}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "MSFT" || w.msgs[0].Topic != "marketlabel.jobs" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var got models.LabelJob
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil || got.TF != "5m" {
		t.Fatalf("decode job: %+v %v", got, err)
	}
}

type captureEnqueuer struct {
	msgType string
	payload interface{}
}

func (c *captureEnqueuer) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	c.msgType, c.payload = msgType, payload
	return nil
}

func TestRedisJobQueue(t *testing.T) {
	e := &captureEnqueuer{}
	if err := NewRedisJobQueue(e).Enqueue(context.Background(), models.LabelJob{Symbol: "MSFT"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if e.msgType != models.LabelJobType {
		t.Fatalf("unexpected type %q", e.msgType)
	}
	if job, ok := e.payload.(models.LabelJob); !ok || job.Symbol != "MSFT" {
		t.Fatalf("unexpected payload %#v", e.payload)
	}
}
