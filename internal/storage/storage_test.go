package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	storage_go "github.com/supabase-community/storage-go"
)

func TestNewKeyLayout(t *testing.T) {
	now := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	k := NewKey(now, ".XLSX")
	assert.Regexp(t, regexp.MustCompile(`^bankstatements/2024/03/09/[0-9a-f-]{36}\.xlsx$`), k)
	assert.NotEqual(t, k, NewKey(now, ".xlsx"))
	assert.Regexp(t, `\.csv$`, NewKey(now, "csv"))
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	key := "bankstatements/2024/03/09/a.csv"
	require.NoError(t, l.Put(ctx, key, "text/csv", []byte("a,b\n1,2\n")))
	got, err := l.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(got))

	require.NoError(t, l.Delete(ctx, key))
	_, err = l.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, l.Delete(ctx, key), "deleting a missing key is not an error")
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, l.Put(context.Background(), "../../etc/passwd", "", []byte("x")))
}

type fakeS3 struct {
	objects map[string][]byte
	putType string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = b
	f.putType = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Backend(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	s := &S3{client: fake, bucket: "stmts"}

	require.NoError(t, s.Put(ctx, "k.pdf", "", []byte("%PDF")))
	assert.Equal(t, "application/octet-stream", fake.putType)
	got, err := s.Get(ctx, "k.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(got))

	require.NoError(t, s.Delete(ctx, "k.pdf"))
	_, err = s.Get(ctx, "k.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeSupabase struct {
	uploaded map[string][]byte
	failGet  bool
}

func (f *fakeSupabase) UploadFile(_ string, path string, data io.Reader, _ ...storage_go.FileOptions) (storage_go.FileUploadResponse, error) {
	b, _ := io.ReadAll(data)
	f.uploaded[path] = b
	return storage_go.FileUploadResponse{}, nil
}

func (f *fakeSupabase) DownloadFile(_ string, path string, _ ...storage_go.UrlOptions) ([]byte, error) {
	if f.failGet {
		return nil, errors.New("503")
	}
	return f.uploaded[path], nil
}

func (f *fakeSupabase) RemoveFile(_ string, paths []string) ([]storage_go.FileUploadResponse, error) {
	for _, p := range paths {
		delete(f.uploaded, p)
	}
	return nil, nil
}

func TestSupabaseBackend(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSupabase{uploaded: map[string][]byte{}}
	s := &Supabase{client: fake, bucket: "stmts"}

	require.NoError(t, s.Put(ctx, "k.png", "image/png", []byte{0x89, 'P'}))
	got, err := s.Get(ctx, "k.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P'}, got)
	require.NoError(t, s.Delete(ctx, "k.png"))
	assert.Empty(t, fake.uploaded)

	fake.failGet = true
	_, err = s.Get(ctx, "k.png")
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.Put(cancelled, "x", "", nil), context.Canceled)
}
