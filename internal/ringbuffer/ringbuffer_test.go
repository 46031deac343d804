package ringbuffer

import (
	"testing"

	"github.com/ryym/procfleet/internal/logrecord"
)

func rec(kind logrecord.Kind, text string) logrecord.Record {
	return logrecord.Record{Kind: kind, Text: text}
}

func TestBuffer_AppendAndLen(t *testing.T) {
	b := New(3)
	b.Append(rec(logrecord.Stdout, "a\n"))
	b.Append(rec(logrecord.Stdout, "b\n"))

	if b.Len() != 2 {
		t.Errorf("expected length 2, got %d", b.Len())
	}
}

func TestBuffer_Overflow(t *testing.T) {
	b := New(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.Append(rec(logrecord.Stdout, s))
	}

	if b.Len() != 3 {
		t.Fatalf("expected length 3, got %d", b.Len())
	}

	got, err := b.Tail(3, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"c", "d", "e"}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("index %d: got %q, want %q", i, got[i].Text, w)
		}
	}
}

func TestBuffer_Capacity1001(t *testing.T) {
	b := New(1000)
	for i := 0; i < 1001; i++ {
		b.Append(rec(logrecord.Stdout, "line"))
	}
	if b.Len() != 1000 {
		t.Fatalf("expected length 1000, got %d", b.Len())
	}
}

func TestBuffer_TailOrderingAndFilter(t *testing.T) {
	b := New(10)
	b.Append(rec(logrecord.Stdout, "Start\n"))
	b.Append(rec(logrecord.Stdout, "Output 1\n"))
	b.Append(rec(logrecord.Stderr, "Err 1\n"))
	b.Append(rec(logrecord.Stdout, "Output 2\n"))
	b.Append(rec(logrecord.Stderr, "Err 2\n"))

	all, err := b.Tail(2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all[0].Text != "Output 2\n" || all[1].Text != "Err 2\n" {
		t.Errorf("unexpected tail(2, true): %+v", all)
	}

	noStderr, err := b.Tail(2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(noStderr) != 2 || noStderr[0].Text != "Output 1\n" || noStderr[1].Text != "Output 2\n" {
		t.Errorf("unexpected tail(2, false): %+v", noStderr)
	}
}

func TestBuffer_TailBound(t *testing.T) {
	b := New(10)
	b.Append(rec(logrecord.Stdout, "a\n"))
	b.Append(rec(logrecord.Stdout, "b\n"))

	got, err := b.Tail(100, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
}

func TestBuffer_NegativeNIsError(t *testing.T) {
	b := New(10)
	if _, err := b.Tail(-1, true); err != ErrNegativeN {
		t.Errorf("expected ErrNegativeN, got %v", err)
	}
}

func TestBuffer_Clear(t *testing.T) {
	b := New(3)
	b.Append(rec(logrecord.Stdout, "a"))
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("expected empty buffer after Clear, got len=%d", b.Len())
	}
}

func TestBuffer_ReplaceNewest(t *testing.T) {
	b := New(3)
	b.Append(rec(logrecord.Stdout, "Partial "))
	newest, ok := b.Newest()
	if !ok {
		t.Fatal("expected a newest record")
	}
	newest.Text += "rest\n"
	b.ReplaceNewest(newest)

	got, _ := b.Tail(1, true)
	if len(got) != 1 || got[0].Text != "Partial rest\n" {
		t.Errorf("expected merged record, got %+v", got)
	}
}
