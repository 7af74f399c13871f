// Package checkpoint persists resume positions for snapshot runs. Each
// (database, index) pair owns two small hidden files under one directory:
// a row-locator file consumed by the next snapshot run, and a transaction
// id file shared with the change-capture daemon.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Hobby-Box/api-search-sync/tid"
)

var ErrCorrupt = errors.New("checkpoint file is malformed")

// Name derives the file stem for a (database, index) pair: both parts
// lowercased, everything outside [0-9a-z_] dropped. Pairs that differ only
// in case or punctuation share a stem on purpose, matching how the daemon
// names its files.
func Name(database, index string) string {
	raw := database + index
	stem := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			stem = append(stem, c)
		case c >= 'A' && c <= 'Z':
			stem = append(stem, c+'a'-'A')
		}
	}
	return string(stem)
}

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// Path is the row-locator file for a stem, e.g. <dir>/.mydbmyindex.ctid.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, "."+name+".ctid")
}

// TxPath is the transaction id file for a stem, e.g. <dir>/.mydbmyindex.txid.
func (s *Store) TxPath(name string) string {
	return filepath.Join(s.dir, "."+name+".txid")
}

// Save durably records pos as "page,row\n". The write goes to a temp file
// first and is renamed over the old one, so readers see either the previous
// position or the new one, never a torn file.
func (s *Store) Save(name string, pos tid.TID) error {
	body := fmt.Sprintf("%d,%d\n", pos.Page(), pos.Row())
	return s.write(s.Path(name), []byte(body))
}

// Read returns the stored position, and whether one exists. A missing file
// is a fresh start, not an error. An unparseable file is ErrCorrupt; callers
// must not treat it as a fresh start.
func (s *Store) Read(name string) (tid.TID, bool, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return tid.Zero, false, nil
	} else if err != nil {
		return tid.Zero, false, fmt.Errorf("read %s: %w", path, err)
	}

	pos := tid.Parse(string(trimEOL(data)))
	if pos == tid.Bad {
		return tid.Zero, false, fmt.Errorf("%w: %s", ErrCorrupt, path)
	}
	return pos, true, nil
}

// Clear removes the row-locator file. Clearing an absent checkpoint is a
// no-op.
func (s *Store) Clear(name string) error {
	err := os.Remove(s.Path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// SaveTxID records the transaction horizon the catch-up step replayed to.
func (s *Store) SaveTxID(name string, txid int64) error {
	body := strconv.FormatInt(txid, 10) + "\n"
	return s.write(s.TxPath(name), []byte(body))
}

func (s *Store) ReadTxID(name string) (int64, bool, error) {
	path := s.TxPath(name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", path, err)
	}

	txid, err := strconv.ParseInt(string(trimEOL(data)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s", ErrCorrupt, path)
	}
	return txid, true, nil
}

func (s *Store) write(path string, body []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}

	f, err := os.OpenFile(tmp, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	f.Close()

	// Rename is atomic on POSIX filesystems.
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}

	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
