package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ctxkit/internal/config"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

type mockS3Client struct {
	mock.Mock
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())

	require.NoError(t, store.Save(ctx, "abc.sql", strings.NewReader("select 1"), 8))
	rc, err := store.Open(ctx, "abc.sql")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "select 1", string(data))

	require.NoError(t, store.Delete(ctx, "abc.sql"))
	require.NoError(t, store.Delete(ctx, "abc.sql"))
	_, err = store.Open(ctx, "abc.sql")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	require.ErrorIs(t, store.Save(ctx, "../x", strings.NewReader(""), 0), appErr.ErrInvalid)
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{}})
	require.Error(t, err)
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3Client)
	store := NewS3(client, "bucket", "/packs/")

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "bucket" && *in.Key == "packs/a1" && *in.ContentLength == 3
	})).Return(&s3.PutObjectOutput{}, nil).Once()
	require.NoError(t, store.Save(ctx, "a1", strings.NewReader("abc"), 3))

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Key == "packs/a1"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("abc"))}, nil).Once()
	rc, err := store.Open(ctx, "a1")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	require.Equal(t, "abc", string(data))

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Key == "packs/missing"
	})).Return(nil, &types.NoSuchKey{}).Once()
	_, err = store.Open(ctx, "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	client.On("DeleteObject", mock.Anything, mock.Anything).Return(&s3.DeleteObjectOutput{}, nil).Once()
	require.NoError(t, store.Delete(ctx, "a1"))
	client.AssertExpectations(t)
}
