package testutil

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sadbox/boltbot/pkg/s3client"
)

// FakeS3 serves GetObject and PutObject for path-style requests from
// memory. Objects is keyed by "/<bucket>/<key>".
type FakeS3 struct {
	Mu      sync.Mutex
	Objects map[string][]byte
	puts    int
}

func NewFakeS3() *FakeS3 {
	return &FakeS3{Objects: make(map[string][]byte)}
}

func (f *FakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.Mu.Lock()
	defer f.Mu.Unlock()

	key := r.URL.Path

	switch r.Method {
	case http.MethodGet:
		data, ok := f.Objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>Not found</Message></Error>`)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(data)

	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.Objects[key] = data
		f.puts++
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Object returns the stored body for a bucket-relative key.
func (f *FakeS3) Object(key string) ([]byte, bool) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	data, ok := f.Objects["/test-bucket/"+key]
	return data, ok
}

// PutCount reports how many uploads the server received.
func (f *FakeS3) PutCount() int {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	return f.puts
}

// NewS3 starts a FakeS3 server that is closed when the test ends.
func NewS3(t *testing.T) (*FakeS3, *httptest.Server) {
	t.Helper()
	fake := NewFakeS3()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return fake, server
}

// NewTestS3Client returns a client for server with an empty upload cache.
func NewTestS3Client(t *testing.T, server *httptest.Server) *s3client.Client {
	t.Helper()
	endpoint := server.URL

	uploaded, err := lru.New[string, [sha256.Size]byte](500)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: &endpoint,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
		UsePathStyle: true,
	})

	return s3client.NewDirect(client, "test-bucket", endpoint, uploaded, DiscardLogger())
}

func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
