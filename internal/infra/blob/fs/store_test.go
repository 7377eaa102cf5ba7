package fs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"storagecore/internal/blob/core"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	payload := "SRC,A01,T1,DEST,A01\r\n"
	info, err := store.Put(ctx, "picks/LCSET-1/transfer.csv", strings.NewReader(payload), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"batch": "LCSET-1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(payload)) || info.ContentType != "text/csv" || info.ETag == "" {
		t.Fatalf("unexpected info: %+v", info)
	}

	got, rc, err := store.Get(ctx, "picks/LCSET-1/transfer.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("content round trip: %q", data)
	}
	if got.Metadata["batch"] != "LCSET-1" {
		t.Fatalf("metadata round trip: %+v", got.Metadata)
	}

	// Archived files are immutable.
	if _, err := store.Put(ctx, "picks/LCSET-1/transfer.csv", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("duplicate put must fail")
	}
}

func TestHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"picks/a.csv", "picks/b.csv", "other/c.csv"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	infos, err := store.List(ctx, "picks/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "picks/a.csv" || infos[1].Key != "picks/b.csv" {
		t.Fatalf("unexpected listing: %+v", infos)
	}

	if _, err := store.Head(ctx, "missing.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}

	existed, err := store.Delete(ctx, "picks/a.csv")
	if err != nil || !existed {
		t.Fatalf("delete: %v existed=%v", err, existed)
	}
	existed, err = store.Delete(ctx, "picks/a.csv")
	if err != nil || existed {
		t.Fatalf("second delete: %v existed=%v", err, existed)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"", "/abs", "../escape", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("key %q must be rejected", key)
		}
	}
}
