package store

import (
	"errors"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := record{Name: "shirayuki", Count: 12}
	if err := s.Set("test/record", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var got record
	if err := s.Get("test/record", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := openTestStore(t)

	var got record
	err := s.Get("never/written", &got)
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}
}

func TestSetReplacesRecord(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("k", record{Name: "first"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set("k", record{Name: "second"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var got record
	if err := s.Get("k", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "second" {
		t.Errorf("Name = %q, want %q", got.Name, "second")
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("k", record{Name: "gone soon"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var got record
	if err := s.Get("k", &got); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrKeyNotFound", err)
	}

	// Deleting a missing key is not an error.
	if err := s.Delete("never/written"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}
