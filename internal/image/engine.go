// ABOUTME: In-memory SQLite engine construction on top of modernc.org/sqlite
// ABOUTME: Raw serialize of the main database and restore from an image file via the backup API

package image

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"modernc.org/sqlite"
)

// ErrUnsupportedDriver is returned when the driver connection cannot
// serialize or deserialize its database.
var ErrUnsupportedDriver = errors.New("driver connection does not support serialization")

// serializer and restorer are implemented by modernc.org/sqlite driver
// connections.
type serializer interface {
	Serialize() ([]byte, error)
}

type restorer interface {
	NewRestore(srcURI string) (*sqlite.Backup, error)
}

// NewEngine opens an empty in-memory engine.
// The pool is pinned to a single connection: every connection of an
// in-memory SQLite database is a separate database.
func NewEngine(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening engine: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting engine: %w", err)
	}
	return db, nil
}

// rawSerialize returns the SQLite database image of the engine's main schema.
func rawSerialize(ctx context.Context, db *sql.DB) ([]byte, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring engine connection: %w", err)
	}
	defer conn.Close()

	var out []byte
	err = conn.Raw(func(driverConn any) error {
		s, ok := driverConn.(serializer)
		if !ok {
			return ErrUnsupportedDriver
		}
		data, err := s.Serialize()
		if err != nil {
			return err
		}
		out = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("serializing engine: %w", err)
	}
	return out, nil
}

// rawDeserialize loads a SQLite database image into the engine's main schema.
// The image is staged in a temporary file and copied page by page with the
// online backup API, so the engine owns every page it holds.
func rawDeserialize(ctx context.Context, db *sql.DB, data []byte) error {
	f, err := os.CreateTemp("", "shopdb-image-*.db")
	if err != nil {
		return fmt.Errorf("staging image: %w", err)
	}
	path := f.Name()
	defer func() {
		for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
			_ = os.Remove(path + suffix)
		}
	}()
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("staging image: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("staging image: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring engine connection: %w", err)
	}
	defer conn.Close()

	// An in-memory destination must match the source page size before the copy.
	if size := imagePageSize(data); size > 0 {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA page_size = %d", size)); err != nil {
			return fmt.Errorf("setting page size: %w", err)
		}
	}

	err = conn.Raw(func(driverConn any) error {
		r, ok := driverConn.(restorer)
		if !ok {
			return ErrUnsupportedDriver
		}
		bck, err := r.NewRestore(path)
		if err != nil {
			return err
		}
		for more := true; more; {
			if more, err = bck.Step(-1); err != nil {
				bck.Finish()
				return err
			}
		}
		return bck.Finish()
	})
	if err != nil {
		return fmt.Errorf("deserializing engine: %w", err)
	}
	return nil
}

// imagePageSize reads the page size from a SQLite file header, or 0 when
// the header is too short.
func imagePageSize(data []byte) int {
	if len(data) < 18 {
		return 0
	}
	size := int(data[16])<<8 | int(data[17])
	if size == 1 {
		return 65536
	}
	return size
}
