package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"storagecore/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()

	if _, err := store.Put(ctx, "picks/x.csv", strings.NewReader("body"), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"batch": "B1"},
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "picks/x.csv", strings.NewReader("other"), core.PutOptions{}); err == nil {
		t.Fatalf("duplicate put must fail")
	}

	info, rc, err := store.Get(ctx, "picks/x.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "body" || info.ContentType != "text/csv" {
		t.Fatalf("round trip: %q %+v", data, info)
	}

	// Metadata is copied, not shared.
	info.Metadata["batch"] = "mutated"
	again, err := store.Head(ctx, "picks/x.csv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if again.Metadata["batch"] != "B1" {
		t.Fatalf("stored metadata mutated: %+v", again.Metadata)
	}

	if _, err := store.PresignURL(ctx, "picks/x.csv", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("presign should be unsupported, got %v", err)
	}

	existed, err := store.Delete(ctx, "picks/x.csv")
	if err != nil || !existed {
		t.Fatalf("delete: %v existed=%v", err, existed)
	}
	if _, _, err := store.Get(ctx, "picks/x.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"a/1", "a/2", "b/1"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "a/1" || infos[1].Key != "a/2" {
		t.Fatalf("unexpected listing: %+v", infos)
	}
}
