package filter

import (
	"reflect"
	"testing"
	"time"
)

func TestParse_StateEquals(t *testing.T) {
	cond, err := Parse(`state = "PENDING"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if cond.Clause != "state = ?" {
		t.Errorf("expected 'state = ?', got %q", cond.Clause)
	}
	if !reflect.DeepEqual(cond.Params, []any{"PENDING"}) {
		t.Fatalf("Params = %v", cond.Params)
	}
	if !cond.Match(Fields{"state": "PENDING"}) {
		t.Fatal("expected PENDING to match")
	}
	if cond.Match(Fields{"state": "APPROVED"}) {
		t.Fatal("expected APPROVED not to match")
	}
}

func TestParse_Empty(t *testing.T) {
	cond, err := Parse(" ")
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if !cond.Empty() || cond.Params != nil {
		t.Fatalf("expected empty condition, got %+v", cond)
	}
	if !cond.Match(Fields{}) {
		t.Fatal("empty condition should match everything")
	}
}

func TestParse_AndOr(t *testing.T) {
	cond, err := Parse(`kind = "transfer" AND wallet_uid = "w-1"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if cond.Clause != "(kind = ? AND wallet_uid = ?)" {
		t.Fatalf("Clause = %q", cond.Clause)
	}
	if !reflect.DeepEqual(cond.Params, []any{"transfer", "w-1"}) {
		t.Fatalf("Params = %v", cond.Params)
	}
	if !cond.Match(Fields{"kind": "transfer", "wallet_uid": "w-1"}) {
		t.Fatal("expected match")
	}
	if cond.Match(Fields{"kind": "transfer", "wallet_uid": "w-2"}) {
		t.Fatal("expected no match for other wallet")
	}

	cond, err = Parse(`state = "EXECUTED" OR state = "FAILED"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if cond.Clause != "(state = ? OR state = ?)" {
		t.Fatalf("Clause = %q", cond.Clause)
	}
	if !cond.Match(Fields{"state": "FAILED"}) || cond.Match(Fields{"state": "PENDING"}) {
		t.Fatal("OR evaluated incorrectly")
	}
}

func TestParse_NumericAndTimestamp(t *testing.T) {
	cond, err := Parse(`id > 3`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if cond.Clause != "id > ?" {
		t.Fatalf("Clause = %q", cond.Clause)
	}
	if !cond.Match(Fields{"id": int64(4)}) || cond.Match(Fields{"id": int64(3)}) {
		t.Fatal("id comparison evaluated incorrectly")
	}

	cond, err = Parse(`created_at >= timestamp("2026-01-01T00:00:00Z")`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if cond.Clause != "created_at >= ?" {
		t.Fatalf("Clause = %q", cond.Clause)
	}
	want := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if !reflect.DeepEqual(cond.Params, []any{want}) {
		t.Fatalf("Params = %v, want [%d]", cond.Params, want)
	}
	if !cond.Match(Fields{"created_at": want}) || cond.Match(Fields{"created_at": want - 1}) {
		t.Fatal("timestamp comparison evaluated incorrectly")
	}
}

func TestParse_MismatchedTypesDoNotMatch(t *testing.T) {
	cond, err := Parse(`initiator = "alice"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if cond.Match(Fields{"initiator": int64(1)}) {
		t.Fatal("a non-string value must not match a string constant")
	}
	if cond.Match(Fields{}) {
		t.Fatal("a missing field must not match")
	}
}

func TestParse_InvalidField(t *testing.T) {
	_, err := Parse(`unknown = "x"`)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParse_InvalidTimestamp(t *testing.T) {
	_, err := Parse(`created_at = timestamp("not-a-time")`)
	if err == nil {
		t.Fatal("expected error for invalid timestamp")
	}
}
