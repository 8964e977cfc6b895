package artifact

import "testing"

func TestBuiltinKindsRegistered(t *testing.T) {
	for _, key := range []string{KindManifest, KindReadme, KindDocs, KindModule, KindRecord} {
		if _, ok := Resolve(key); !ok {
			t.Fatalf("expected builtin kind %s to be registered", key)
		}
	}
}

func TestResolveNormalizesKey(t *testing.T) {
	kind, ok := Resolve("  README ")
	if !ok {
		t.Fatalf("expected case-insensitive lookup to succeed")
	}
	if kind.FileName() != "readme.md" {
		t.Fatalf("unexpected file name %s", kind.FileName())
	}
}

func TestRegistryRejectsDuplicatesAndPathKeys(t *testing.T) {
	r := newRegistry()
	if err := r.register(Kind{Key: "blob", Extension: "bin"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.register(Kind{Key: "BLOB"}); err == nil {
		t.Fatalf("duplicate key should fail")
	}
	if err := r.register(Kind{Key: "../etc"}); err == nil {
		t.Fatalf("path-like key should fail")
	}
	if err := r.register(Kind{Key: " "}); err == nil {
		t.Fatalf("empty key should fail")
	}

	kind, ok := r.resolve("blob")
	if !ok || kind.Extension != ".bin" {
		t.Fatalf("expected extension to be normalized, got %+v", kind)
	}
}

func TestListIsSorted(t *testing.T) {
	keys := Keys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}
