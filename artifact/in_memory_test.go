package artifact

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/AntoineDubuc/conclave/core"
)

// Interface compliance (compile-time assertions)
var (
	_ core.Recorder = (*InMemoryRecorder)(nil)
	_ core.Recorder = (*DirRecorder)(nil)
)

func TestInMemoryRecorder_WriteGetIsolation(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryRecorder()

	loc, err := r.Begin(ctx, "run-1", "basic")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if loc != "memory://run-1" {
		t.Fatalf("unexpected location %q", loc)
	}

	rec := core.Record{RunID: "run-1", Round: 1, InstanceID: "a", DisplayName: "A", Content: "hello"}
	if err := r.Write(ctx, rec); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := r.Get("run-1", "round_1_a.md")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// mutate returned slice
	out[0] = 'x'
	out2, _ := r.Get("run-1", "round_1_a.md")
	if out2[0] != '-' { // stored artifact starts with front matter
		t.Fatalf("expected isolation, got %q", string(out2))
	}

	_, body, err := Parse(out2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if body != "hello\n" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestInMemoryRecorder_UnknownRun(t *testing.T) {
	r := NewInMemoryRecorder()
	if err := r.Write(context.Background(), core.Record{RunID: "nope", Round: 1, InstanceID: "a"}); err != ErrUnknownRun {
		t.Fatalf("expected ErrUnknownRun, got %v", err)
	}
	if _, err := r.Get("nope", "x"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryRecorder_ListOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryRecorder()
	if _, err := r.Begin(ctx, "run-1", "leading"); err != nil {
		t.Fatal(err)
	}

	writes := []core.Record{
		{RunID: "run-1", Round: 2, InstanceID: "lead", Content: "draft"},
		{RunID: "run-1", Round: 1, InstanceID: "b", Content: "b1"},
		{RunID: "run-1", Round: 2, InstanceID: "lead", Content: "edited", Edited: true},
		{RunID: "run-1", Round: 4, InstanceID: "lead", Content: "final", Final: true},
	}
	for _, w := range writes {
		if err := r.Write(ctx, w); err != nil {
			t.Fatal(err)
		}
	}

	names := r.List("run-1")
	want := []string{"final_synthesis.md", "round_1_b.md", "round_2_lead.md"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}

	data, _ := r.Get("run-1", "round_2_lead.md")
	h, body, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if !h.Edited || body != "edited\n" {
		t.Fatalf("expected edited overwrite, got %+v %q", h, body)
	}

	if got := len(r.Records("run-1")); got != 4 {
		t.Fatalf("expected 4 records, got %d", got)
	}

	if err := r.Delete("run-1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete("run-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(r.Runs()) != 0 {
		t.Fatalf("expected no runs, got %v", r.Runs())
	}
}

func TestInMemoryRecorder_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryRecorder()
	if _, err := r.Begin(ctx, "run", "f"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Write(ctx, core.Record{RunID: "run", Round: 1, InstanceID: fmt.Sprintf("p%d", i), Content: "x"})
		}(i)
	}
	wg.Wait()

	if got := len(r.List("run")); got != 50 {
		t.Fatalf("expected 50 artifacts, got %d", got)
	}
}
