package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObjects struct {
	objects  map[string][]byte
	failPuts int
	puts     int
	pageSize int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, pageSize: 1000}
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts++
	if f.failPuts > 0 {
		f.failPuts--
		// consume the body so a retry has to rewind it
		_, _ = io.ReadAll(in.Body)
		return nil, errors.New("slow down")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeObjects) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := min(start+f.pageSize, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func TestSnapshotBucket_UploadDownload(t *testing.T) {
	ctx := context.Background()
	api := newFakeObjects()
	b := newBucket(api, "aai")

	key, err := b.Upload(ctx, "/var/snapshots/preMigration.202603040506.graphson", bytes.NewReader([]byte(`{"id":"1"}`)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if key != "snapshots/preMigration.202603040506.graphson" {
		t.Fatalf("key = %q", key)
	}

	for _, ref := range []string{key, "preMigration.202603040506.graphson"} {
		r, err := b.Download(ctx, ref)
		if err != nil {
			t.Fatalf("download %s: %v", ref, err)
		}
		data, _ := io.ReadAll(r)
		_ = r.Close()
		if string(data) != `{"id":"1"}` {
			t.Fatalf("download %s = %q", ref, data)
		}
	}

	if _, err := b.Download(ctx, "snapshots/missing"); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestSnapshotBucket_UploadRetries(t *testing.T) {
	api := newFakeObjects()
	api.failPuts = 2
	b := newBucket(api, "aai", WithRetries(3))

	body := bytes.NewReader([]byte("graph"))
	key, err := b.Upload(context.Background(), "dataSnapshot.graphSON.202603040506", body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if api.puts != 3 {
		t.Fatalf("puts = %d, want 3", api.puts)
	}
	if string(api.objects[key]) != "graph" {
		t.Fatalf("stored %q, body was not rewound", api.objects[key])
	}

	api.failPuts = 5
	if _, err := newBucket(api, "aai", WithRetries(2)).Upload(context.Background(), "x.graphson", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestSnapshotBucket_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	api := newFakeObjects()
	api.pageSize = 2
	api.objects["backups/a.graphson"] = nil
	api.objects["backups/b.graphson"] = nil
	api.objects["backups/c.graphson"] = nil
	api.objects["other/d.graphson"] = nil

	b := newBucket(api, "aai", WithPrefix("backups"))
	keys, err := b.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"backups/a.graphson", "backups/b.graphson", "backups/c.graphson"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("keys = %v, want %v", keys, want)
	}

	if err := b.Delete(ctx, "backups/b.graphson"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	keys, _ = b.List(ctx)
	if len(keys) != 2 {
		t.Fatalf("keys after delete = %v", keys)
	}
}

func TestSnapshotBucket_DownloadLinkNeedsClient(t *testing.T) {
	b := newBucket(newFakeObjects(), "aai")
	if _, err := b.DownloadLink(context.Background(), "snapshots/x", "https://s3.example.com"); err == nil {
		t.Fatal("expected error without client")
	}
}
