package templates

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"spawnme/internal/storage"
	logx "spawnme/pkg/logx"
)

func TestAddAssignsSequentialIDs(t *testing.T) {
	var ts []Template
	for i := 1; i <= 20; i++ {
		ts = Add(ts, "t", "b")
		if got := ts[len(ts)-1].ID; got != i {
			t.Fatalf("add #%d got id %d", i, got)
		}
	}
	seen := map[int]bool{}
	for _, tpl := range ts {
		if seen[tpl.ID] {
			t.Fatalf("duplicate id %d", tpl.ID)
		}
		seen[tpl.ID] = true
	}
}

func TestAddUsesMaxNotLast(t *testing.T) {
	ts := []Template{{ID: 7}, {ID: 3}}
	ts = Add(ts, "x", "y")
	if ts[2].ID != 8 {
		t.Fatalf("id = %d, want 8", ts[2].ID)
	}
}

func TestAddDoesNotMutateInput(t *testing.T) {
	in := make([]Template, 1, 4)
	in[0] = Template{ID: 1, Title: "a"}
	out := Add(in, "b", "c")
	out[0].Title = "changed"
	if in[0].Title != "a" {
		t.Fatalf("input mutated")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ts := []Template{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}, {ID: 1, Title: "dup"}}
	once := Delete(ts, 1)
	twice := Delete(once, 1)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("delete not idempotent: %v vs %v", once, twice)
	}
	if len(once) != 1 || once[0].ID != 2 {
		t.Fatalf("unexpected result %v", once)
	}
	if got := Delete(ts, 99); len(got) != len(ts) {
		t.Fatalf("deleting unknown id changed list: %v", got)
	}
}

func TestExampleSequence(t *testing.T) {
	var ts []Template
	ts = Add(ts, "Break", "Time for a break")
	want := []Template{{ID: 1, Title: "Break", Body: "Time for a break"}}
	if !reflect.DeepEqual(ts, want) {
		t.Fatalf("after first add: %v", ts)
	}
	ts = Add(ts, "Water", "Drink water")
	ts = Delete(ts, 1)
	want = []Template{{ID: 2, Title: "Water", Body: "Drink water"}}
	if !reflect.DeepEqual(ts, want) {
		t.Fatalf("after delete: %v", ts)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := [][]Template{
		{},
		{{ID: 1, Title: "", Body: ""}},
		{{ID: 3, Title: "Water", Body: "Drink water"}, {ID: 1, Title: "Break", Body: "Ünïcode ✓ <b>"}},
	}
	for _, ts := range tests {
		b, err := Encode(ts)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !reflect.DeepEqual(got, ts) {
			t.Fatalf("round trip = %v, want %v", got, ts)
		}
	}
}

func TestEncodeUsesContentKey(t *testing.T) {
	b, err := Encode([]Template{{ID: 1, Title: "Break", Body: "Time for a break"}})
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"id": float64(1), "title": "Break", "content": "Time for a break"}
	if !reflect.DeepEqual(raw[0], want) {
		t.Fatalf("encoded object = %v, want %v", raw[0], want)
	}
	if b, _ := Encode(nil); string(b) != "[]" {
		t.Fatalf("Encode(nil) = %s", b)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, in := range []string{"", "{", `{"id":1}`, `[{"id":"one"}]`, `[] []`, `[]]`, `[{"id":1,"title":"a","content":"b"}]}`, "[] x"} {
		if _, err := Decode([]byte(in)); err == nil {
			t.Fatalf("Decode(%q) expected error", in)
		}
	}
	ts, err := Decode([]byte("null"))
	if err != nil || len(ts) != 0 {
		t.Fatalf("Decode(null) = %v, %v", ts, err)
	}
}

func TestRepositoryLoadSave(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	repo := NewRepository(st, logx.Nop())

	ts, err := repo.Load(ctx)
	if err != nil || len(ts) != 0 {
		t.Fatalf("Load empty = %v, %v", ts, err)
	}

	want := Add(Add(nil, "Break", "Time for a break"), "Water", "Drink water")
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Load = %v, want %v", got, want)
	}
}

func TestRepositoryMalformedDowngradesToEmpty(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.Set(ctx, StorageKey, []byte(`[{"id":1,"title":`))
	repo := NewRepository(st, logx.Nop())

	_, err := repo.Load(ctx)
	var de *DeserializationError
	if !errors.As(err, &de) {
		t.Fatalf("Load err = %v, want *DeserializationError", err)
	}
	if got := repo.LoadOrEmpty(ctx); len(got) != 0 {
		t.Fatalf("LoadOrEmpty = %v, want empty", got)
	}
}

type failingStore struct{ storage.Store }

func (failingStore) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestRepositorySaveFailureIsSerializationError(t *testing.T) {
	repo := NewRepository(failingStore{storage.NewMemory()}, logx.Nop())
	err := repo.Save(context.Background(), []Template{{ID: 1}})
	var se *SerializationError
	if !errors.As(err, &se) {
		t.Fatalf("Save err = %v, want *SerializationError", err)
	}
}

func TestLibraryCreateRemove(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	repo := NewRepository(st, logx.Nop())
	lib := OpenLibrary(ctx, repo, logx.Nop())

	a, err := lib.Create(ctx, "Break", "Time for a break")
	if err != nil || a.ID != 1 {
		t.Fatalf("Create = %v, %v", a, err)
	}
	b, err := lib.Create(ctx, "Water", "Drink water")
	if err != nil || b.ID != 2 {
		t.Fatalf("Create = %v, %v", b, err)
	}
	removed, err := lib.Remove(ctx, 1)
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	removed, err = lib.Remove(ctx, 1)
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v", removed, err)
	}

	// A fresh library sees the persisted state.
	again := OpenLibrary(ctx, repo, logx.Nop())
	want := []Template{{ID: 2, Title: "Water", Body: "Drink water"}}
	if !reflect.DeepEqual(again.List(), want) {
		t.Fatalf("reopened list = %v, want %v", again.List(), want)
	}
	if _, ok := again.Get(2); !ok {
		t.Fatalf("Get(2) missing")
	}
}

func TestLibraryKeepsChangesWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(failingStore{storage.NewMemory()}, logx.Nop())
	lib := OpenLibrary(ctx, repo, logx.Nop())

	tpl, err := lib.Create(ctx, "Break", "Time for a break")
	var se *SerializationError
	if !errors.As(err, &se) {
		t.Fatalf("Create err = %v, want *SerializationError", err)
	}
	if got := lib.List(); len(got) != 1 || got[0] != tpl {
		t.Fatalf("in-memory list = %v", got)
	}
}
