package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

const uniqueViolation = "23505"

// Queries runs the users/files statements against a *sql.DB.
type Queries struct {
	db *sql.DB
}

func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

func (q *Queries) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

func (q *Queries) GetUserByID(ctx context.Context, id string) (*DBUser, bool, error) {
	user := &DBUser{}
	err := q.db.QueryRowContext(ctx, `SELECT id, password FROM users WHERE id = $1`, id).Scan(&user.ID, &user.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select user: %w", err)
	}
	return user, true, nil
}

func (q *Queries) CreateUser(ctx context.Context, id string, passwordHash string) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO users(id, password) VALUES($1, $2)`, id, passwordHash)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateFile inserts a files row and returns its id.
func (q *Queries) CreateFile(ctx context.Context, file *DBFile) (int64, error) {
	stmt := `INSERT INTO files(name, filename, mimetype, size, upload_date) VALUES($1, $2, $3, $4, $5) RETURNING id`
	var id int64
	err := q.db.QueryRowContext(ctx, stmt, file.Name, file.FileName, file.MimeType, file.Size, file.UploadDate).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	return id, nil
}

func (q *Queries) GetFileByID(ctx context.Context, id int64) (*DBFile, bool, error) {
	stmt := `SELECT id, name, filename, mimetype, size, upload_date FROM files WHERE id = $1`
	dbFile := &DBFile{}
	err := q.db.QueryRowContext(ctx, stmt, id).Scan(&dbFile.Id, &dbFile.Name, &dbFile.FileName, &dbFile.MimeType, &dbFile.Size, &dbFile.UploadDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select file: %w", err)
	}
	return dbFile, true, nil
}

// ListFiles returns one page of files in insertion order.
func (q *Queries) ListFiles(ctx context.Context, limit, offset int) ([]DBFile, error) {
	stmt := `SELECT id, name, filename, mimetype, size, upload_date FROM files ORDER BY id ASC LIMIT $1 OFFSET $2`
	rows, err := q.db.QueryContext(ctx, stmt, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select files: %w", err)
	}
	defer rows.Close()

	files := []DBFile{}
	for rows.Next() {
		var f DBFile
		if err := rows.Scan(&f.Id, &f.Name, &f.FileName, &f.MimeType, &f.Size, &f.UploadDate); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

// UpdateFile overwrites every column of the row with file.Id. It reports false when the row
// no longer exists.
func (q *Queries) UpdateFile(ctx context.Context, file *DBFile) (bool, error) {
	stmt := `UPDATE files SET name = $1, filename = $2, mimetype = $3, size = $4, upload_date = $5 WHERE id = $6`
	res, err := q.db.ExecContext(ctx, stmt, file.Name, file.FileName, file.MimeType, file.Size, file.UploadDate, file.Id)
	if isUniqueViolation(err) {
		return false, ErrDuplicate
	}
	if err != nil {
		return false, fmt.Errorf("update file: %w", err)
	}
	return affectedOne(res)
}

func (q *Queries) DeleteFileByID(ctx context.Context, id int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
