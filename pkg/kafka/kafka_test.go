package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerPublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "gzip")

	if err := p.Publish(context.Background(), "events", []byte("AAPL"), map[string]int{"bars": 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || w.msgs[0].Topic != "events" || string(w.msgs[0].Key) != "AAPL" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var got map[string]int
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil || got["bars"] != 3 {
		t.Fatalf("unexpected payload %s", w.msgs[0].Value)
	}
}

func TestProducerPublishBatchAndErrors(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "gzip")
	err := p.PublishBatch(context.Background(), "events", []Message{{Value: "a"}, {Value: []byte("b")}})
	if err != nil || len(w.msgs) != 2 || string(w.msgs[1].Value) != "b" {
		t.Fatalf("batch: %v %+v", err, w.msgs)
	}

	w.err = errors.New("broker down")
	if err := p.PublishMessage(context.Background(), "logs", "x"); err == nil {
		t.Fatalf("expected writer error")
	}
}

func TestPermanentIsDetectable(t *testing.T) {
	err := Permanent(errors.New("bad json"))
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected ErrPermanent in chain")
	}
}

type recordingHook struct {
	NoopHook
	calls *[]string
	name  string
}

func (h recordingHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	*h.calls = append(*h.calls, "before:"+h.name)
	return ctx, km, data, nil
}

func (h recordingHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {
	*h.calls = append(*h.calls, "after:"+h.name)
}

func TestHookChainOrder(t *testing.T) {
	var calls []string
	chain := NewHookChain(recordingHook{calls: &calls, name: "a"}, nil, recordingHook{calls: &calls, name: "b"})
	ctx, km, data, err := chain.BeforeHandle(context.Background(), "jobs", kafka.Message{}, []byte("x"))
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	chain.AfterHandle(ctx, "jobs", km, data, nil)
	want := []string{"before:a", "before:b", "after:b", "after:a"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

type panicHook struct{ NoopHook }

func (panicHook) BeforeHandle(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
	panic("boom")
}

func TestHookChainRecoversPanic(t *testing.T) {
	chain := NewHookChain(panicHook{})
	if _, _, _, err := chain.BeforeHandle(context.Background(), "jobs", kafka.Message{}, nil); err == nil {
		t.Fatalf("expected panic to surface as error")
	}
}

func TestExtractTraceID(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	if ExtractTraceID(km) != "abc" {
		t.Fatalf("trace id not found")
	}
	ctx, _, _, _ := LoggingHook{}.BeforeHandle(context.Background(), "jobs", km, nil)
	if TraceID(ctx) != "abc" {
		t.Fatalf("trace id not stored in context")
	}
}
