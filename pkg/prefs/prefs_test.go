package prefs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"advisorai/pkg/domain"
)

func TestRedisStoreSaveAndLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(mr.Addr(), "")
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	ctx := context.Background()

	got, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load before save: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("fresh user prefs = %+v, want defaults", got)
	}

	want := Preferences{Language: domain.LangEN, Theme: domain.ThemeDark}
	if err := store.Save(ctx, "u1", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("prefs = %+v, want %+v", got, want)
	}
}

func TestRedisStoreNormalizesUnknownValues(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(mr.Addr(), "")
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "u1", Preferences{Language: "fr", Theme: "sepia"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Language != domain.LangZH || got.Theme != domain.ThemeDark {
		t.Fatalf("prefs = %+v, want normalized defaults", got)
	}
}

func TestRedisStoreRequiresAddr(t *testing.T) {
	if _, err := NewRedisStore("", ""); err == nil {
		t.Fatal("empty addr should fail")
	}
}

func TestMemoryStoreSaveAndLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	got, err := store.Load(ctx, "u1")
	if err != nil || got != Defaults() {
		t.Fatalf("fresh user prefs = %+v %v, want defaults", got, err)
	}
	want := Preferences{Language: domain.LangEN, Theme: domain.ThemeDark}
	if err := store.Save(ctx, "u1", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ = store.Load(ctx, "u1")
	if got != want {
		t.Fatalf("prefs = %+v, want %+v", got, want)
	}
}
