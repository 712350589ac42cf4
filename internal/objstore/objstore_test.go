package objstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

type fakeObjectAPI struct {
	putObject    func(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	removeObject func(ctx context.Context, bucket, name string, opts minio.RemoveObjectOptions) error
}

func (f *fakeObjectAPI) PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return f.putObject(ctx, bucket, name, r, size, opts)
}

func (f *fakeObjectAPI) RemoveObject(ctx context.Context, bucket, name string, opts minio.RemoveObjectOptions) error {
	return f.removeObject(ctx, bucket, name, opts)
}

func TestPutStreamsAndReturnsURL(t *testing.T) {
	var storedName string
	fake := &fakeObjectAPI{
		putObject: func(_ context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
			if bucket != "covers" {
				t.Errorf("bucket = %q", bucket)
			}
			if opts.ContentType != "image/png" {
				t.Errorf("content type = %q", opts.ContentType)
			}
			storedName = name
			body, err := io.ReadAll(r)
			if err != nil {
				return minio.UploadInfo{}, err
			}
			if string(body) != "png bytes" {
				t.Errorf("body = %q", body)
			}
			return minio.UploadInfo{Bucket: bucket, Key: name, Size: size}, nil
		},
	}
	store := &Store{client: fake, cfg: Config{Endpoint: "minio.local:9000", Bucket: "covers"}}

	upload := store.Put(context.Background(), "cover.PNG", "image/png", strings.NewReader("png bytes"), 9)
	url, err := upload.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !strings.HasSuffix(storedName, ".png") {
		t.Errorf("object key %q should keep the lowered extension", storedName)
	}
	if url != "http://minio.local:9000/covers/"+storedName {
		t.Errorf("url = %q", url)
	}
}

func TestPutReportsProgress(t *testing.T) {
	fake := &fakeObjectAPI{
		putObject: func(_ context.Context, _, name string, r io.Reader, size int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
			if _, err := io.Copy(io.Discard, r); err != nil {
				return minio.UploadInfo{}, err
			}
			return minio.UploadInfo{Key: name, Size: size}, nil
		},
	}
	store := &Store{client: fake, cfg: Config{Endpoint: "minio.local:9000", Bucket: "covers"}}

	body := strings.Repeat("x", 1024)
	upload := store.Put(context.Background(), "cover.jpg", "image/jpeg", strings.NewReader(body), int64(len(body)))
	if _, err := upload.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	var last Progress
	for p := range upload.Progress {
		if p.Transferred < last.Transferred {
			t.Errorf("progress went backwards: %v after %v", p, last)
		}
		last = p
	}
	if last.Transferred != int64(len(body)) || last.Total != int64(len(body)) {
		t.Errorf("final progress = %+v, want full transfer", last)
	}
}

func TestPutSurfacesUploadError(t *testing.T) {
	fake := &fakeObjectAPI{
		putObject: func(context.Context, string, string, io.Reader, int64, minio.PutObjectOptions) (minio.UploadInfo, error) {
			return minio.UploadInfo{}, errors.New("connection reset")
		},
	}
	store := &Store{client: fake, cfg: Config{Endpoint: "minio.local:9000", Bucket: "covers"}}

	upload := store.Put(context.Background(), "cover.jpg", "image/jpeg", strings.NewReader("x"), 1)
	if _, err := upload.Wait(context.Background()); err == nil {
		t.Fatal("upload error was swallowed")
	}
}

func TestObjectURLPublicOverride(t *testing.T) {
	store := &Store{cfg: Config{
		Endpoint:  "minio.local:9000",
		Bucket:    "covers",
		UseSSL:    true,
		PublicURL: "https://cdn.example/covers/",
	}}
	if got := store.ObjectURL("abc.png"); got != "https://cdn.example/covers/abc.png" {
		t.Errorf("url = %q", got)
	}

	store.cfg.PublicURL = ""
	if got := store.ObjectURL("abc.png"); got != "https://minio.local:9000/covers/abc.png" {
		t.Errorf("derived url = %q", got)
	}
}
