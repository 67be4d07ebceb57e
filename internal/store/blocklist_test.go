package store

import (
	"errors"
	"net"
	"path/filepath"
	"testing"
)

func TestBlockList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "block.db")

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := b.Block("10.0.0.1", "spam"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	if err := b.Block("::ffff:10.0.0.2", ""); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	if !b.Blocked(net.IPv4(10, 0, 0, 1)) || !b.Blocked(net.ParseIP("10.0.0.2")) {
		t.Error("blocked address not reported")
	}

	if b.Blocked(net.IPv4(10, 0, 0, 3)) {
		t.Error("unlisted address reported as blocked")
	}

	if err := b.Unblock("10.0.0.2"); err != nil {
		t.Fatalf("Unblock failed: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Entries survive reopening the database.
	b, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b.Close()

	list := b.List()
	if len(list) != 1 || list["10.0.0.1"] != "spam" {
		t.Errorf("list after reopen = %v", list)
	}
}

func TestBlockListRejectsInvalidAddresses(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "block.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer b.Close()

	if err := b.Block("not an address", ""); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Block returned %v", err)
	}

	if err := b.Unblock("10.0.0"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Unblock returned %v", err)
	}
}
