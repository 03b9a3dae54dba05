package storage

import (
	"context"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/oksasatya/driver-desk/pkg/helpers"
)

// GCSImageStore keeps avatars in a Cloud Storage bucket under Prefix.
type GCSImageStore struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

func NewGCSImageStore(client *storage.Client, bucket string) *GCSImageStore {
	return &GCSImageStore{Client: client, Bucket: bucket, Prefix: "img/users"}
}

func (s *GCSImageStore) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	return helpers.UploadObject(ctx, s.Client, s.Bucket, path.Join(s.Prefix, name), contentType, r)
}

// Remove deletes an object this store produced; foreign URLs are ignored.
func (s *GCSImageStore) Remove(ctx context.Context, url string) error {
	obj, ok := helpers.ObjectPathFromURL(s.Bucket, url)
	if !ok {
		return nil
	}
	return helpers.DeleteObject(ctx, s.Client, s.Bucket, obj)
}
