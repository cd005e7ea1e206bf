// Package testutil holds in-memory stand-ins for the Postgres-backed stores, shared by the
// service and handler tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"drivebox.dev/api/internal/database"
)

// NewLogger returns a logger that records entries instead of printing them.
func NewLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

type MemUsers struct {
	mu    sync.Mutex
	users map[string]database.DBUser
	Err   error
}

func NewMemUsers() *MemUsers {
	return &MemUsers{users: map[string]database.DBUser{}}
}

func (m *MemUsers) GetUserByID(ctx context.Context, id string) (*database.DBUser, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, false, m.Err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, false, nil
	}
	return &u, true, nil
}

func (m *MemUsers) CreateUser(ctx context.Context, id string, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.users[id]; ok {
		return database.ErrDuplicate
	}
	m.users[id] = database.DBUser{ID: id, Password: passwordHash}
	return nil
}

// MemFiles mimics the files table, including id assignment and the unique filename.
type MemFiles struct {
	mu        sync.Mutex
	rows      map[int64]database.DBFile
	nextID    int64
	CreateErr error
	UpdateErr error
	DeleteErr error
}

func NewMemFiles() *MemFiles {
	return &MemFiles{rows: map[int64]database.DBFile{}, nextID: 1}
}

func (m *MemFiles) CreateFile(ctx context.Context, file *database.DBFile) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	for _, row := range m.rows {
		if row.FileName == file.FileName {
			return 0, database.ErrDuplicate
		}
	}
	row := *file
	row.Id = m.nextID
	m.nextID++
	m.rows[row.Id] = row
	return row.Id, nil
}

func (m *MemFiles) GetFileByID(ctx context.Context, id int64) (*database.DBFile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, false, nil
	}
	return &row, true, nil
}

// ListFiles rejects negative bounds the way Postgres does for LIMIT and OFFSET.
func (m *MemFiles) ListFiles(ctx context.Context, limit, offset int) ([]database.DBFile, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("negative limit %d or offset %d", limit, offset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]database.DBFile, 0, len(m.rows))
	for _, row := range m.rows {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Id < all[j].Id })

	out := []database.DBFile{}
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *MemFiles) UpdateFile(ctx context.Context, file *database.DBFile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return false, m.UpdateErr
	}
	if _, ok := m.rows[file.Id]; !ok {
		return false, nil
	}
	m.rows[file.Id] = *file
	return true, nil
}

func (m *MemFiles) DeleteFileByID(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	if _, ok := m.rows[id]; !ok {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

// Len reports the number of rows.
func (m *MemFiles) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// ErrInjected is returned by FaultyBlobs for the operations it is told to fail.
var ErrInjected = errors.New("injected failure")

// FaultyBlobs wraps a blob store and fails selected operations.
type FaultyBlobs struct {
	Blobs interface {
		Put(ctx context.Context, name string, r io.Reader) (int64, error)
		Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
		Remove(ctx context.Context, name string) error
	}
	FailPut    bool
	FailRemove bool
}

func (f *FaultyBlobs) Put(ctx context.Context, name string, r io.Reader) (int64, error) {
	if f.FailPut {
		return 0, ErrInjected
	}
	return f.Blobs.Put(ctx, name, r)
}

func (f *FaultyBlobs) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	return f.Blobs.Open(ctx, name)
}

func (f *FaultyBlobs) Remove(ctx context.Context, name string) error {
	if f.FailRemove {
		return ErrInjected
	}
	return f.Blobs.Remove(ctx, name)
}
