package objstore

import (
	"context"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// bucketStore adapts a gocloud bucket to Store.
type bucketStore struct {
	bk *blob.Bucket
}

func openFile(c Config) (Store, error) {
	bk, err := fileblob.OpenBucket(c.BaseDir, nil)
	if err != nil {
		return nil, err
	}
	return &bucketStore{bk: bk}, nil
}

func openS3(ctx context.Context, c Config) (Store, error) {
	bk, err := blob.OpenBucket(ctx, buildS3URL(c))
	if err != nil {
		return nil, err
	}
	return &bucketStore{bk: bk}, nil
}

func (s *bucketStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	key = sanitizeKey(key)
	w, err := s.bk.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *bucketStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.bk.Exists(ctx, sanitizeKey(key))
}

func (s *bucketStore) Open(ctx context.Context, key string) (io.ReadCloser, Attributes, error) {
	key = sanitizeKey(key)
	r, err := s.bk.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, Attributes{}, ErrNotExist
		}
		return nil, Attributes{}, err
	}
	return r, Attributes{ContentType: r.ContentType(), Size: r.Size()}, nil
}

func (s *bucketStore) Delete(ctx context.Context, key string) error {
	key = sanitizeKey(key)
	err := s.bk.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}
