package icestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// --- Mock GCS Client Components ---

// storedObject is what a committed mock write leaves behind.
type storedObject struct {
	data        []byte
	contentType string
}

// mockGCSWriter buffers writes and commits them to its bucket on Close,
// mirroring the all-or-nothing semantics of a real GCS upload.
type mockGCSWriter struct {
	bucket      *mockGCSBucketHandle
	name        string
	buf         bytes.Buffer
	contentType string
	closed      bool
}

func (m *mockGCSWriter) Write(p []byte) (n int, err error) {
	if m.closed {
		return 0, errors.New("write on closed writer")
	}
	if m.bucket.writeErr != nil {
		return 0, m.bucket.writeErr
	}
	return m.buf.Write(p)
}

func (m *mockGCSWriter) Close() error {
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	if m.bucket.closeErr != nil {
		return m.bucket.closeErr
	}
	m.bucket.commit(m.name, storedObject{data: append([]byte(nil), m.buf.Bytes()...), contentType: m.contentType})
	return nil
}

func (m *mockGCSWriter) SetContentType(contentType string) { m.contentType = contentType }

// mockGCSObjectHandle is a mock GCSObjectHandle.
type mockGCSObjectHandle struct {
	bucket *mockGCSBucketHandle
	name   string
}

func (m *mockGCSObjectHandle) NewWriter(ctx context.Context) GCSWriter {
	m.bucket.Lock()
	m.bucket.writers++
	m.bucket.Unlock()
	return &mockGCSWriter{bucket: m.bucket, name: m.name}
}

func (m *mockGCSObjectHandle) NewReader(ctx context.Context) (io.ReadCloser, error) {
	m.bucket.Lock()
	defer m.bucket.Unlock()
	obj, ok := m.bucket.objects[m.name]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// mockGCSBucketHandle is a mock GCSBucketHandle that stores committed objects in a map.
type mockGCSBucketHandle struct {
	sync.Mutex
	name     string
	objects  map[string]storedObject
	writers  int
	writeErr error
	closeErr error
}

func (m *mockGCSBucketHandle) Object(name string) GCSObjectHandle {
	return &mockGCSObjectHandle{bucket: m, name: name}
}

func (m *mockGCSBucketHandle) commit(name string, obj storedObject) {
	m.Lock()
	defer m.Unlock()
	if m.objects == nil {
		m.objects = make(map[string]storedObject)
	}
	m.objects[name] = obj
}

// mockGCSClient is a mock GCSClient.
type mockGCSClient struct {
	bucket        *mockGCSBucketHandle
	requestedName string
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{
		bucket: &mockGCSBucketHandle{},
	}
}

func (m *mockGCSClient) Bucket(name string) GCSBucketHandle {
	m.requestedName = name
	m.bucket.name = name
	return m.bucket
}
