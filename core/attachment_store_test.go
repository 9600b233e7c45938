package core

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttachmentKey(t *testing.T) {
	k := newAttachmentKey("Boarding Pass.PDF")
	assert.True(t, strings.HasPrefix(k, "FILE_"))
	assert.True(t, strings.HasSuffix(k, ".pdf"))
	assert.True(t, ValidAttachmentKey(k), k)

	k = newAttachmentKey("evil.p/h../p")
	assert.True(t, ValidAttachmentKey(k), k)
	assert.NotContains(t, k, "/")

	k = newAttachmentKey("noext")
	assert.True(t, ValidAttachmentKey(k), k)
}

func TestValidAttachmentKey_RejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "../etc/passwd", "FILE_../../x", "file_0123", "FILE_0123456789abcdef0123456789abcdef/.."} {
		assert.False(t, ValidAttachmentKey(key), key)
	}
}

func TestLocalAttachmentStore_SaveOpen(t *testing.T) {
	store, err := NewLocalAttachmentStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key, err := store.Save(ctx, "receipt.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	_, err = store.Open(ctx, "FILE_00000000000000000000000000000000.png")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Open(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, key), "deleting twice is fine")
	assert.ErrorIs(t, store.Delete(ctx, "../../etc/passwd"), ErrNotFound)
}

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3AttachmentStore_SaveOpen(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	store := &S3AttachmentStore{client: fake, bucket: "attachments"}
	ctx := context.Background()

	key, err := store.Save(ctx, "notice.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", fake.types[key])

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "hello", string(data))

	_, err = store.Open(ctx, "FILE_00000000000000000000000000000000.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, key))
	assert.NotContains(t, fake.objects, key)
}

func TestNewAttachmentStore_UnknownBackend(t *testing.T) {
	_, err := NewAttachmentStore(context.Background(), Config{AttachmentBackend: "ftp"})
	assert.Error(t, err)
}
