package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		url     string
		bucket  string
		key     string
		wantErr bool
	}{
		{"s3://traces/run1/train-gate.xtr", "traces", "run1/train-gate.xtr", false},
		{"s3://b/k", "b", "k", false},
		{"s3://bucket", "", "", true},
		{"s3://bucket/", "", "", true},
		{"s3:///key", "", "", true},
		{"/local/path.xtr", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			bucket, key, err := ParseURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("s3://b/k"))
	assert.False(t, IsURL("S3://b/k"))
	assert.False(t, IsURL("model.if"))
}

// fakeS3 stores PUT bodies and serves them back on GET, path-style.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
			return
		}
		io.WriteString(w, body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig("us-east-1")
	cfg.Endpoint = srv.URL
	cfg.UsePathStyle = true
	cfg.AccessKeyID = "test"
	cfg.SecretAccessKey = "test"

	c, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	return c, fake
}

func TestClient_CreateAndOpen(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	w, err := c.Create(ctx, "s3://events/run1/out.tsv", "text/tab-separated-values", map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	_, err = io.WriteString(w, "30:P.A\t30\n")
	require.NoError(t, err)

	// Nothing is uploaded before Close.
	assert.Empty(t, fake.objects)
	require.NoError(t, w.Close())
	assert.Equal(t, "30:P.A\t30\n", fake.objects["/events/run1/out.tsv"])
	assert.Equal(t, "text/tab-separated-values", fake.types["/events/run1/out.tsv"])

	_, err = w.Write([]byte("late"))
	assert.Error(t, err)

	r, err := c.Open(ctx, "s3://events/run1/out.tsv")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "30:P.A\t30\n", string(data))
}

func TestClient_OpenMissing(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Open(context.Background(), "s3://events/none.xtr")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "events/none.xtr"))
}

func TestClient_BadURL(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Open(context.Background(), "s3://bucket-only")
	assert.Error(t, err)
	_, err = c.Create(context.Background(), "local.tsv", "", nil)
	assert.Error(t, err)
}
