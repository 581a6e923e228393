package objectstore

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

	"github.com/mpataki/hypcmp/internal/models"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Region:    "us-east-1",
		Bucket:    "bench",
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"scheme":     func(c *Config) { c.Endpoint = "http://localhost:9000" },
		"endpoint":   func(c *Config) { c.Endpoint = " " },
		"access key": func(c *Config) { c.AccessKey = "" },
		"secret key": func(c *Config) { c.SecretKey = "" },
		"bucket":     func(c *Config) { c.Bucket = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfigFromPublish(t *testing.T) {
	t.Setenv(EnvAccessKey, "key")
	t.Setenv(EnvSecretKey, "secret")

	cfg, err := ConfigFromPublish(&models.Publish{Endpoint: "s3.local:9000", Bucket: "bench", Prefix: "/nightly/"})
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.AccessKey)
	assert.Equal(t, defaultRegion, cfg.Region)
	assert.Equal(t, "nightly/abc.json", cfg.ObjectKey("abc"))

	t.Setenv(EnvSecretKey, "")
	_, err = ConfigFromPublish(&models.Publish{Endpoint: "s3.local:9000", Bucket: "bench"})
	assert.ErrorContains(t, err, EnvSecretKey)
}

func TestObjectKey_NoPrefix(t *testing.T) {
	assert.Equal(t, "abc.json", Config{}.ObjectKey("abc"))
}

// fakeS3 answers just enough of the S3 API for bucket checks and uploads.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	requests []string
	objects  map[string]string
	types    map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := strings.Trim(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(p, "/")
	f.requests = append(f.requests, r.Method+" "+p)

	switch {
	case r.Method == http.MethodHead && key == "":
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && key == "":
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[p] = string(body)
		f.types[p] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestPublisher_Publish(t *testing.T) {
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p, err := NewPublisher(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "key",
		SecretKey: "secret",
		Region:    "us-east-1",
		Bucket:    "bench",
		Prefix:    "reports",
	})
	require.NoError(t, err)

	loc, err := p.Publish(context.Background(), "s-1", []byte(`{"entries":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://bench/reports/s-1.json", loc)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.buckets["bench"], "bucket created")
	assert.Equal(t, `{"entries":[]}`, fake.objects["bench/reports/s-1.json"])
	assert.Equal(t, "application/json", fake.types["bench/reports/s-1.json"])
}
