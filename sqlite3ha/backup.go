package sqlite3ha

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/litesql/go-sqlite3"
)

// Backup writes a consistent snapshot of db's main database to w. In-memory
// databases are serialized directly; file databases go through the online
// backup API into a temporary file first.
func Backup(ctx context.Context, db *sql.DB, w io.Writer) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	src, err := sqliteConn(conn)
	if err != nil {
		return err
	}
	if src.GetFilename("") == "" {
		b, err := src.Serialize("")
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}

	tmp, err := os.CreateTemp("", "ha-*.db")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := backupTo(ctx, tmp.Name(), src); err != nil {
		return err
	}

	f, err := os.Open(tmp.Name())
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func backupTo(ctx context.Context, path string, src *sqlite3.SQLiteConn) error {
	destDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer destDB.Close()

	conn, err := destDB.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	dest, err := sqliteConn(conn)
	if err != nil {
		return err
	}

	bkp, err := dest.Backup("main", src, "main")
	if err != nil {
		return err
	}
	for more := true; more; {
		if more, err = bkp.Step(-1); err != nil {
			bkp.Close()
			return fmt.Errorf("backup step error: %w", err)
		}
		if bkp.Remaining() == 0 {
			break
		}
	}
	if err := bkp.Finish(); err != nil {
		return fmt.Errorf("backup finish error: %w", err)
	}
	if err := bkp.Close(); err != nil {
		return fmt.Errorf("backup close error: %w", err)
	}
	return nil
}
