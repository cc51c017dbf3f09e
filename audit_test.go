package goCred

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)
	defer d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: auditEventTokenIssued, SubjectID: "u1", Success: true})

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventTokenIssued || event.SubjectID != "u1" || !event.Success {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := NewChannelSink(64)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventTokenConsumed})
	}
	d.Close()

	delivered := 0
	for {
		select {
		case <-sink.Events():
			delivered++
			if delivered == 10 {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("expected 10 drained events, got %d", delivered)
		}
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// No consumer and a one-slot buffer: the worker may pull at most one
	// event off the channel, so flooding must shed load.
	blocked := make(chan struct{})
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, blockingSink{unblock: blocked})

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventRateLimitHit})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events under backpressure")
	}

	close(blocked)
	d.Close()
}

type blockingSink struct {
	unblock chan struct{}
}

func (s blockingSink) Emit(_ context.Context, _ AuditEvent) {
	<-s.unblock
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("disabled audit must not allocate a dispatcher")
	}
	// Nil receivers are safe.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports zero drops")
	}
}

func TestJSONWriterSinkWritesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventMFAChallenge,
		SubjectID: "u1",
		Success:   false,
		Error:     "mfa_invalid_code",
	})
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventTokenIssued,
		SubjectID: "u2",
		Success:   true,
	})

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		lines++
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if event.EventType == "" {
			t.Fatalf("line %d lost the event type", lines)
		}
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestEngineEmitsAuditEvents(t *testing.T) {
	accounts := newMockAccounts()
	accounts.Put(AccountRecord{AccountID: "u1", Email: "alice@example.com"})

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64

	sink := NewChannelSink(64)

	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(accounts).
		WithHasher(newTestHasher(t)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	defer engine.Close()

	raw, _, err := engine.IssueToken(context.Background(), "u1", PurposeEmailVerification, "")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := engine.ConsumeToken(context.Background(), raw, PurposeEmailVerification); err != nil {
		t.Fatalf("ConsumeToken failed: %v", err)
	}

	want := map[string]bool{
		auditEventTokenIssued:   false,
		auditEventTokenConsumed: false,
	}
	deadline := time.After(2 * time.Second)
	for {
		remaining := false
		for _, seen := range want {
			if !seen {
				remaining = true
			}
		}
		if !remaining {
			break
		}

		select {
		case event := <-sink.Events():
			if _, tracked := want[event.EventType]; tracked {
				if !event.Success {
					t.Fatalf("expected success event for %s, got %+v", event.EventType, event)
				}
				want[event.EventType] = true
			}
		case <-deadline:
			t.Fatalf("missing audit events: %+v", want)
		}
	}
}
