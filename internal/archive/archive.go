// Package archive keeps repository exports in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	prefix    = "exports"
	keyLayout = "20060102T150405Z"
)

var (
	ErrNotFound    = errors.New("archive not found")
	ErrInvalidName = errors.New("invalid archive name")
)

// Entry describes a stored export.
type Entry struct {
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Object is one listed bucket object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Bucket is the subset of object storage the archive needs.
type Bucket interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// Archive stores repository exports under exports/<projectId>/<timestamp>.json.
type Archive struct {
	bucket Bucket
}

func New(bucket Bucket) *Archive {
	return &Archive{bucket: bucket}
}

// NewMinio connects to the bucket and creates it when missing.
func NewMinio(ctx context.Context, cfg Config) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return New(&minioBucket{client: client, name: cfg.Bucket}), nil
}

func projectPrefix(projectID string) string {
	return path.Join(prefix, projectID) + "/"
}

// Save uploads one export taken at the given time.
func (a *Archive) Save(ctx context.Context, projectID string, payload []byte, at time.Time) (Entry, error) {
	if projectID == "" || strings.ContainsAny(projectID, "/\\") {
		return Entry{}, fmt.Errorf("%w: project %q", ErrInvalidName, projectID)
	}
	name := at.UTC().Format(keyLayout) + ".json"
	key := projectPrefix(projectID) + name
	if err := a.bucket.Put(ctx, key, payload, "application/json"); err != nil {
		return Entry{}, fmt.Errorf("upload archive: %w", err)
	}
	return Entry{Name: name, Key: key, Size: int64(len(payload)), CreatedAt: at.UTC()}, nil
}

// List returns the project's archives, newest first.
func (a *Archive) List(ctx context.Context, projectID string) ([]Entry, error) {
	objects, err := a.bucket.List(ctx, projectPrefix(projectID))
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		created, err := time.Parse(keyLayout, strings.TrimSuffix(name, ".json"))
		if err != nil {
			created = obj.LastModified
		}
		entries = append(entries, Entry{Name: name, Key: obj.Key, Size: obj.Size, CreatedAt: created})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	return entries, nil
}

// Get downloads one archive by the name List reported.
func (a *Archive) Get(ctx context.Context, projectID, name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	data, err := a.bucket.Get(ctx, projectPrefix(projectID)+name)
	if err != nil {
		return nil, fmt.Errorf("download archive: %w", err)
	}
	return data, nil
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b *minioBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.name, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (b *minioBucket) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	for obj := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, Object{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

func (b *minioBucket) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}
