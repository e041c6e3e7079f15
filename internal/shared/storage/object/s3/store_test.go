package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"narrate-backend/internal/shared/storage/object"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "user/track.mp3", want: "user/track.mp3"},
		{name: "simple prefix", prefix: "root", key: "user/track.mp3", want: "root/user/track.mp3"},
		{name: "prefix trailing slash", prefix: "root/", key: "user/track.mp3", want: "root/user/track.mp3"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/user/track.mp3", want: "root/user/track.mp3"},
		{name: "nested prefix", prefix: "root/sub", key: "user/track.mp3", want: "root/sub/user/track.mp3"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  map[string][]byte
	getKeys []string
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if f.bodies == nil {
		f.bodies = map[string][]byte{}
	}
	f.bodies[aws.ToString(params.Key)] = data
	f.puts = append(f.puts, params)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)
	f.getKeys = append(f.getKeys, key)
	if _, ok := f.bodies[key]; !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.bodies[key]))}, nil
}

func TestSaveWithKeyUsesPrefixAndKMS(t *testing.T) {
	fake := &fakeS3{}
	store := newWithClient(fake, "bucket", "/narrate/", "kms-123")

	n, err := store.SaveWithKey(context.Background(), "audio/u/job.mp3", "audio/mpeg", bytes.NewReader([]byte("ID3abc")))
	if err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 bytes counted, got %d", n)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("expected one put, got %d", len(fake.puts))
	}
	put := fake.puts[0]
	if got := aws.ToString(put.Key); got != "narrate/audio/u/job.mp3" {
		t.Fatalf("unexpected key %q", got)
	}
	if put.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms || aws.ToString(put.SSEKMSKeyId) != "kms-123" {
		t.Fatalf("expected kms encryption, got %v", put.ServerSideEncryption)
	}
	if aws.ToString(put.ContentType) != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", aws.ToString(put.ContentType))
	}
}

func TestSaveSniffsAndRoundTrips(t *testing.T) {
	fake := &fakeS3{}
	store := newWithClient(fake, "bucket", "", "")
	ctx := context.Background()

	key, size, mimeType, err := store.Save(ctx, "user-1", "notes.txt", strings.NewReader("plain words here"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if size != int64(len("plain words here")) {
		t.Fatalf("unexpected size %d", size)
	}
	if !strings.HasPrefix(mimeType, "text/plain") {
		t.Fatalf("unexpected mime %s", mimeType)
	}
	if fake.puts[0].ServerSideEncryption != s3types.ServerSideEncryptionAes256 {
		t.Fatalf("expected AES256 default encryption")
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "plain words here" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestOpenMissingKeyIsNotFound(t *testing.T) {
	store := newWithClient(&fakeS3{}, "bucket", "narrate", "")
	_, err := store.Open(context.Background(), "audio/u/missing.mp3")
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
