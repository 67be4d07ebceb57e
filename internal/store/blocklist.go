// Package store persists the addresses a listener refuses to talk to.
package store

import (
	"database/sql"
	"errors"
	"net"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// This error is returned when an address to block or unblock is not an IP address.
var ErrInvalidAddress = errors.New("invalid ip address format")

const initSQL = `CREATE TABLE IF NOT EXISTS block (
	addr TEXT PRIMARY KEY NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);`

// BlockList is a set of IP addresses backed by a SQLite database. Lookups are served from memory
// so they can run on the packet path.
type BlockList struct {
	db *sql.DB

	mu      sync.RWMutex
	blocked map[string]string
}

// Open opens or creates the block list database at path and loads its entries.
func Open(path string) (*BlockList, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(initSQL); err != nil {
		db.Close()
		return nil, err
	}

	b := &BlockList{db: db, blocked: map[string]string{}}
	if err := b.load(); err != nil {
		db.Close()
		return nil, err
	}

	return b, nil
}

func (b *BlockList) load() error {
	rows, err := b.db.Query(`SELECT addr, reason FROM block;`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var addr, reason string
		if err := rows.Scan(&addr, &reason); err != nil {
			return err
		}

		b.blocked[addr] = reason
	}

	return rows.Err()
}

// normalize returns the canonical text form of an IP address.
func normalize(addr string) (string, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return "", ErrInvalidAddress
	}
	return ip.String(), nil
}

// Block adds an address to the list. Blocking a blocked address replaces its reason.
func (b *BlockList) Block(addr, reason string) error {
	addr, err := normalize(addr)
	if err != nil {
		return err
	}

	_, err = b.db.Exec(`INSERT INTO block (addr, reason) VALUES (?, ?)
		ON CONFLICT(addr) DO UPDATE SET reason = excluded.reason;`, addr, reason)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.blocked[addr] = reason
	b.mu.Unlock()
	return nil
}

// Unblock removes an address from the list.
func (b *BlockList) Unblock(addr string) error {
	addr, err := normalize(addr)
	if err != nil {
		return err
	}

	if _, err := b.db.Exec(`DELETE FROM block WHERE addr = ?;`, addr); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.blocked, addr)
	b.mu.Unlock()
	return nil
}

// Blocked reports whether the address is on the list.
func (b *BlockList) Blocked(ip net.IP) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.blocked[ip.String()]
	return ok
}

// List returns the blocked addresses and the reason each was blocked for.
func (b *BlockList) List() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	list := make(map[string]string, len(b.blocked))
	for addr, reason := range b.blocked {
		list[addr] = reason
	}
	return list
}

// Close closes the database.
func (b *BlockList) Close() error {
	return b.db.Close()
}
