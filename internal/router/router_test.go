package router

import (
	"testing"
	"time"
)

func testRouter(filter TopicFilter) *Router {
	return New(Config{HistorySize: 10}, filter, nil)
}

func TestParse_ValidFrame(t *testing.T) {
	r := testRouter(nil)
	now := time.Now()

	msg, err := r.Parse([]byte(`{"type":"task_update","task_id":"T1","timestamp":"2026-01-15T10:00:00Z","data":{"id":"T1","status":"running"}}`), now)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if msg.Type != TypeTaskUpdate {
		t.Errorf("Type = %q, want %q", msg.Type, TypeTaskUpdate)
	}
	if msg.Topic != "T1" {
		t.Errorf("Topic = %q, want T1", msg.Topic)
	}
	if msg.ServerTime != "2026-01-15T10:00:00Z" {
		t.Errorf("ServerTime = %q", msg.ServerTime)
	}
	if !msg.ReceivedAt.Equal(now) {
		t.Errorf("ReceivedAt = %v, want %v", msg.ReceivedAt, now)
	}
}

func TestParse_MalformedFrame(t *testing.T) {
	r := testRouter(nil)

	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{{garbage`},
		{"missing type", `{"task_id":"T1"}`},
		{"wrong shape", `[1,2,3]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.Parse([]byte(tc.data), time.Now()); err == nil {
				t.Error("expected parse error")
			}
		})
	}

	if got := r.Stats().ParseErrors; got != int64(len(cases)) {
		t.Errorf("ParseErrors = %d, want %d", got, len(cases))
	}

	// The next well-formed frame still parses.
	if _, err := r.Parse([]byte(`{"type":"task_update"}`), time.Now()); err != nil {
		t.Errorf("well-formed frame after malformed ones failed: %v", err)
	}
}

func TestDispatch_TypedHandler(t *testing.T) {
	r := testRouter(nil)

	var got []Message
	r.Handle(TypeTaskUpdate, func(m Message) {
		got = append(got, m)
	})

	msg := Message{Type: TypeTaskUpdate, Topic: "T1"}
	if !r.Dispatch(msg) {
		t.Fatal("Dispatch returned false")
	}

	if len(got) != 1 || got[0].Topic != "T1" {
		t.Fatalf("handler got %v", got)
	}
	if r.Stats().Dispatched != 1 {
		t.Errorf("Dispatched = %d, want 1", r.Stats().Dispatched)
	}
}

func TestDispatch_UnknownTypeToGeneral(t *testing.T) {
	r := testRouter(nil)

	var got []Message
	r.HandleGeneral(func(m Message) {
		got = append(got, m)
	})

	r.Dispatch(Message{Type: "workspace_renamed"})

	if len(got) != 1 || got[0].Type != "workspace_renamed" {
		t.Fatalf("general handler got %v", got)
	}
	if r.Stats().UnknownTypes != 1 {
		t.Errorf("UnknownTypes = %d, want 1", r.Stats().UnknownTypes)
	}
}

func TestDispatch_DomainTypeWithoutHandlerFallsBack(t *testing.T) {
	r := testRouter(nil)

	var got []Message
	r.HandleGeneral(func(m Message) {
		got = append(got, m)
	})

	r.Dispatch(Message{Type: TypeThinkingStep})

	if len(got) != 1 {
		t.Fatalf("general handler got %d messages, want 1", len(got))
	}
	// Known domain type: falls back to general but is not "unknown".
	if r.Stats().UnknownTypes != 0 {
		t.Errorf("UnknownTypes = %d, want 0", r.Stats().UnknownTypes)
	}
}

func TestDispatch_TopicFilter(t *testing.T) {
	watched := map[string]bool{"T1": true}
	r := testRouter(func(topic string) bool { return watched[topic] })

	var got []Message
	r.Handle(TypeTaskUpdate, func(m Message) {
		got = append(got, m)
	})

	r.Dispatch(Message{Type: TypeTaskUpdate, Topic: "T1"})
	r.Dispatch(Message{Type: TypeTaskUpdate, Topic: "T2"})
	r.Dispatch(Message{Type: TypeThinkingStep}) // unscoped, always delivered

	if len(got) != 1 || got[0].Topic != "T1" {
		t.Fatalf("handler got %v, want only T1", got)
	}
	if r.Stats().Filtered != 1 {
		t.Errorf("Filtered = %d, want 1", r.Stats().Filtered)
	}
	if r.History().Len() != 2 {
		t.Errorf("history has %d entries, want 2 (filtered message not recorded)", r.History().Len())
	}
}

func TestDispatch_OrderPreserved(t *testing.T) {
	r := testRouter(nil)

	var order []string
	r.HandleGeneral(func(m Message) {
		order = append(order, m.Topic)
	})

	for _, topic := range []string{"a", "b", "c", "d"} {
		r.Dispatch(Message{Type: TypeTaskUpdate, Topic: topic})
	}

	want := "abcd"
	var got string
	for _, s := range order {
		got += s
	}
	if got != want {
		t.Errorf("delivery order = %q, want %q", got, want)
	}
}

func TestIsAdministrative(t *testing.T) {
	if !IsAdministrative(TypeConnectionConfirmed) || !IsAdministrative(TypeSubscriptionConfirmed) {
		t.Error("administrative types not recognized")
	}
	if IsAdministrative(TypeTaskUpdate) {
		t.Error("task_update is not administrative")
	}
}
