package images

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	putFails int // fail this many puts before succeeding
	getErr   error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putFails > 0 {
		m.putFails--
		return nil, errors.New("connection reset")
	}
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	if input.ContentType != nil {
		m.types[*input.Key] = *input.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	ct := m.types[*input.Key]
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(string(data))),
		ContentType: &ct,
	}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func newTestStore(mock *mockS3Client) *Store {
	return &Store{
		cfg:    Config{Bucket: "test"},
		client: mock,
		logger: slog.Default(),
	}
}

func TestUploadAndGet(t *testing.T) {
	mock := newMockS3()
	st := newTestStore(mock)

	key, err := st.Upload(context.Background(), "latte.jpg", []byte("image-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(key, "menu/") || !strings.HasSuffix(key, ".jpg") {
		t.Errorf("key = %q, want menu/<uuid>.jpg", key)
	}

	body, contentType, err := st.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "image-bytes" {
		t.Errorf("body = %q", data)
	}
	if contentType != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", contentType)
	}
}

func TestUploadRejectsUnknownType(t *testing.T) {
	st := newTestStore(newMockS3())

	if _, err := st.Upload(context.Background(), "menu.pdf", []byte("x")); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestUploadRetriesTransientFailure(t *testing.T) {
	mock := newMockS3()
	mock.putFails = 2
	st := newTestStore(mock)

	key, err := st.Upload(context.Background(), "mocha.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("upload should survive transient failures: %v", err)
	}
	if _, ok := mock.objects[key]; !ok {
		t.Error("object missing after retried upload")
	}
}

func TestUploadGivesUpEventually(t *testing.T) {
	mock := newMockS3()
	mock.putFails = 10
	st := newTestStore(mock)

	if _, err := st.Upload(context.Background(), "flat-white.png", []byte("x")); err == nil {
		t.Fatal("expected failure after retry budget exhausted")
	}
}

func TestNotConfigured(t *testing.T) {
	st := NewStore(Config{}, slog.Default())

	if st.Configured() {
		t.Fatal("empty config must leave the store disabled")
	}
	if _, err := st.Upload(context.Background(), "a.jpg", []byte("x")); err == nil {
		t.Error("upload should fail when not configured")
	}
	if _, _, err := st.Get(context.Background(), "menu/a.jpg"); err == nil {
		t.Error("get should fail when not configured")
	}
	if err := st.Delete(context.Background(), "menu/a.jpg"); err != nil {
		t.Errorf("delete is a no-op when not configured, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	mock := newMockS3()
	st := newTestStore(mock)

	key, err := st.Upload(context.Background(), "cappuccino.webp", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Delete(context.Background(), key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := st.Get(context.Background(), key); err == nil {
		t.Error("object should be gone after delete")
	}
}
