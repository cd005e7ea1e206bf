package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivebox.dev/api/internal/storage"
	"drivebox.dev/api/internal/testutil"
)

type fileFixture struct {
	svc   *FileService
	files *testutil.MemFiles
	blobs *testutil.FaultyBlobs
	dir   string
	hook  *test.Hook
}

func newFileFixture(t *testing.T) *fileFixture {
	t.Helper()
	dir := t.TempDir()
	disk, err := storage.NewDisk(dir)
	require.NoError(t, err)

	logger, hook := testutil.NewLogger()
	files := testutil.NewMemFiles()
	blobs := &testutil.FaultyBlobs{Blobs: disk}
	return &fileFixture{
		svc:   NewFileService(files, blobs, logger),
		files: files,
		blobs: blobs,
		dir:   dir,
		hook:  hook,
	}
}

func (f *fileFixture) upload(t *testing.T, name, content string) int64 {
	t.Helper()
	id, err := f.svc.Upload(context.Background(), Upload{
		Name:      name,
		MediaType: "text/plain",
		Size:      int64(len(content)),
		Content:   strings.NewReader(content),
	})
	require.NoError(t, err)
	return id
}

func hasWarning(hook *test.Hook, substr string) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, substr) {
			return true
		}
	}
	return false
}

func (f *fileFixture) blobCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	return len(entries)
}

func TestUpload_GetAndDownloadRoundTrip(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	content := "hello, world\n"

	id := f.upload(t, "notes.TXT", content)

	file, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, file.Id)
	assert.Equal(t, "notes.TXT", file.Name)
	assert.Equal(t, "text/plain", file.MimeType)
	assert.Equal(t, int64(len(content)), file.Size)
	assert.Regexp(t, regexp.MustCompile(`^file-\d+-[0-9a-f-]{36}\.txt$`), file.FileName)
	assert.Equal(t, time.UTC, file.UploadDate.Location())

	dl, err := f.svc.Download(ctx, id)
	require.NoError(t, err)
	defer dl.Content.Close()
	got, err := io.ReadAll(dl.Content)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
	assert.Equal(t, int64(len(content)), dl.Size)
	assert.Equal(t, file.FileName, dl.File.FileName)
}

func TestUpload_BinaryContentSurvivesIntact(t *testing.T) {
	f := newFileFixture(t)
	payload := make([]byte, 256*1024)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	id, err := f.svc.Upload(context.Background(), Upload{Name: "blob.bin", Content: bytes.NewReader(payload)})
	require.NoError(t, err)

	dl, err := f.svc.Download(context.Background(), id)
	require.NoError(t, err)
	defer dl.Content.Close()
	got, err := io.ReadAll(dl.Content)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}

func TestUpload_RecordsStoredSizeNotDeclared(t *testing.T) {
	f := newFileFixture(t)

	id, err := f.svc.Upload(context.Background(), Upload{Name: "a.txt", Size: 999, Content: strings.NewReader("abc")})
	require.NoError(t, err)

	file, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), file.Size)
	assert.True(t, hasWarning(f.hook, "Declared size"))
}

func TestUpload_Validation(t *testing.T) {
	f := newFileFixture(t)

	_, err := f.svc.Upload(context.Background(), Upload{Name: "a.txt"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Upload(context.Background(), Upload{Name: "  ", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, f.files.Len())
	assert.Zero(t, f.blobCount(t))
}

func TestUpload_BlobFailureLeavesNoRow(t *testing.T) {
	f := newFileFixture(t)
	f.blobs.FailPut = true

	_, err := f.svc.Upload(context.Background(), Upload{Name: "a.txt", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrInternal)
	assert.Zero(t, f.files.Len())
}

func TestUpload_InsertFailureDiscardsBlob(t *testing.T) {
	f := newFileFixture(t)
	f.files.CreateErr = errors.New("db down")

	_, err := f.svc.Upload(context.Background(), Upload{Name: "a.txt", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrInternal)
	assert.Zero(t, f.blobCount(t))
}

func TestUpload_ConcurrentUploadsGetDistinctNames(t *testing.T) {
	f := newFileFixture(t)
	const n = 20

	var wg sync.WaitGroup
	ids := make([]int64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = f.svc.Upload(context.Background(), Upload{
				Name:    "same.txt",
				Content: strings.NewReader(fmt.Sprintf("content %d", i)),
			})
		}(i)
	}
	wg.Wait()

	names := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		file, err := f.svc.Get(context.Background(), ids[i])
		require.NoError(t, err)
		names[file.FileName] = true
	}
	assert.Len(t, names, n)
	assert.Equal(t, n, f.blobCount(t))
}

func TestList_Pagination(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, f.upload(t, fmt.Sprintf("f%d.txt", i), "x"))
	}

	for _, tc := range []struct {
		size, page int
		want       []int64
	}{
		{2, 1, ids[0:2]},
		{2, 2, ids[2:4]},
		{2, 3, ids[4:5]},
		{2, 4, nil},
		{10, 1, ids},
	} {
		t.Run(fmt.Sprintf("size=%d,page=%d", tc.size, tc.page), func(t *testing.T) {
			files, err := f.svc.List(ctx, tc.size, tc.page)
			require.NoError(t, err)
			got := make([]int64, 0, len(files))
			for _, file := range files {
				got = append(got, file.Id)
			}
			assert.Equal(t, len(tc.want), len(got))
			if len(tc.want) > 0 {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestList_DefaultsForNonPositiveArguments(t *testing.T) {
	f := newFileFixture(t)
	for i := 0; i < DefaultPageSize+2; i++ {
		f.upload(t, fmt.Sprintf("f%d.txt", i), "x")
	}

	files, err := f.svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, files, DefaultPageSize)
	assert.Equal(t, int64(1), files[0].Id)

	files, err = f.svc.List(context.Background(), -1, -3)
	require.NoError(t, err)
	assert.Len(t, files, DefaultPageSize)
}

func TestList_HugePageDoesNotOverflowOffset(t *testing.T) {
	f := newFileFixture(t)
	for i := 0; i < 3; i++ {
		f.upload(t, fmt.Sprintf("f%d.txt", i), "x")
	}

	for _, tc := range []struct{ size, page int }{
		{1 << 62, 3},
		{math.MaxInt, 2},
		{2, math.MaxInt},
		{math.MaxInt, math.MaxInt},
	} {
		files, err := f.svc.List(context.Background(), tc.size, tc.page)
		require.NoError(t, err, "size=%d page=%d", tc.size, tc.page)
		assert.Empty(t, files)
	}

	files, err := f.svc.List(context.Background(), math.MaxInt, 1)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestList_Empty(t *testing.T) {
	f := newFileFixture(t)

	files, err := f.svc.List(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestGet_NotFound(t *testing.T) {
	f := newFileFixture(t)

	_, err := f.svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Download(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownload_MissingBlobIsIntegrityError(t *testing.T) {
	f := newFileFixture(t)
	id := f.upload(t, "a.txt", "abc")

	file, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(f.dir, file.FileName)))

	_, err = f.svc.Download(context.Background(), id)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Equal(t, logrus.ErrorLevel, f.hook.LastEntry().Level)
}

func TestDelete(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	id := f.upload(t, "a.txt", "abc")

	require.NoError(t, f.svc.Delete(ctx, id))

	_, err := f.svc.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.blobCount(t))

	assert.ErrorIs(t, f.svc.Delete(ctx, id), ErrNotFound)
}

func TestDelete_NonexistentID(t *testing.T) {
	f := newFileFixture(t)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), 7), ErrNotFound)
}

func TestDelete_FailsClosedWhenBlobRemovalFails(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	id := f.upload(t, "a.txt", "abc")
	f.blobs.FailRemove = true

	err := f.svc.Delete(ctx, id)
	assert.ErrorIs(t, err, ErrInternal)

	file, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", file.Name)

	dl, err := f.svc.Download(ctx, id)
	require.NoError(t, err)
	dl.Content.Close()
}

func TestDelete_MissingBlobStillDeletesRow(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	id := f.upload(t, "a.txt", "abc")

	file, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(f.dir, file.FileName)))

	require.NoError(t, f.svc.Delete(ctx, id))
	assert.Zero(t, f.files.Len())
}

func TestDelete_RowFailureAfterBlobRemoval(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	id := f.upload(t, "a.txt", "abc")
	f.files.DeleteErr = errors.New("db down")

	assert.ErrorIs(t, f.svc.Delete(ctx, id), ErrInternal)
}

func TestUpdate_ReplacesContentAndMetadata(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	id := f.upload(t, "old.txt", "old content")

	before, err := f.svc.Get(ctx, id)
	require.NoError(t, err)

	err = f.svc.Update(ctx, id, Upload{Name: "new.md", MediaType: "text/markdown", Content: strings.NewReader("new")})
	require.NoError(t, err)

	after, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, after.Id)
	assert.Equal(t, "new.md", after.Name)
	assert.Equal(t, "text/markdown", after.MimeType)
	assert.Equal(t, int64(3), after.Size)
	assert.NotEqual(t, before.FileName, after.FileName)
	assert.True(t, strings.HasSuffix(after.FileName, ".md"))

	dl, err := f.svc.Download(ctx, id)
	require.NoError(t, err)
	defer dl.Content.Close()
	got, err := io.ReadAll(dl.Content)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	_, err = os.Stat(filepath.Join(f.dir, before.FileName))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 1, f.blobCount(t))
}

func TestUpdate_NotFoundWritesNothing(t *testing.T) {
	f := newFileFixture(t)

	err := f.svc.Update(context.Background(), 9, Upload{Name: "a.txt", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.blobCount(t))
}

func TestUpdate_RowFailureRollsBackNewBlob(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	id := f.upload(t, "old.txt", "old content")
	before, err := f.svc.Get(ctx, id)
	require.NoError(t, err)

	f.files.UpdateErr = errors.New("db down")
	err = f.svc.Update(ctx, id, Upload{Name: "new.txt", Content: strings.NewReader("new")})
	assert.ErrorIs(t, err, ErrInternal)

	after, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.blobCount(t))

	dl, err := f.svc.Download(ctx, id)
	require.NoError(t, err)
	defer dl.Content.Close()
	got, err := io.ReadAll(dl.Content)
	require.NoError(t, err)
	assert.Equal(t, "old content", string(got))
}

func TestUpdate_BlobFailureKeepsOldFile(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	id := f.upload(t, "old.txt", "old content")
	f.blobs.FailPut = true

	err := f.svc.Update(ctx, id, Upload{Name: "new.txt", Content: strings.NewReader("new")})
	assert.ErrorIs(t, err, ErrInternal)

	file, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "old.txt", file.Name)
}

func TestUpdate_OldBlobRemovalFailureIsOnlyLogged(t *testing.T) {
	f := newFileFixture(t)
	ctx := context.Background()
	id := f.upload(t, "old.txt", "old content")
	f.blobs.FailRemove = true

	err := f.svc.Update(ctx, id, Upload{Name: "new.txt", Content: strings.NewReader("new")})
	require.NoError(t, err)

	file, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new.txt", file.Name)

	assert.True(t, hasWarning(f.hook, "replaced blob"))
}

func TestStoredName(t *testing.T) {
	f := newFileFixture(t)
	f.svc.now = func() time.Time { return time.UnixMilli(1700000000123) }

	for original, wantExt := range map[string]string{
		"photo.JPG":                        ".jpg",
		"archive.tar.gz":                   ".gz",
		"README":                           "",
		"weird.averyveryverylongextension": "",
	} {
		name := f.svc.StoredName(original)
		assert.True(t, strings.HasPrefix(name, "file-1700000000123-"), name)
		assert.True(t, strings.HasSuffix(name, wantExt), name)
		if wantExt == "" {
			assert.Regexp(t, `^file-1700000000123-[0-9a-f-]{36}$`, name)
		}
	}

	assert.NotEqual(t, f.svc.StoredName("a.txt"), f.svc.StoredName("a.txt"))
}
