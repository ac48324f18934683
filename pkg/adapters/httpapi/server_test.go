package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/adapters/osfilesystem"
	"github.com/user/framegrab/pkg/framegrab"
	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/orchestrator"
	"github.com/user/framegrab/pkg/pipeline"
)

type fakeExtractor struct {
	targets []pipeline.Target
	data    []byte
	path    string
	result  pipeline.Result
	err     error
}

func (f *fakeExtractor) ExtractFile(ctx context.Context, path string, targets []pipeline.Target) (pipeline.Result, error) {
	f.path = path
	f.targets = targets
	f.data, _ = os.ReadFile(path)
	return f.result, f.err
}

func upload(t *testing.T, video []byte, timestamps string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if video != nil {
		fw, err := mw.CreateFormFile("video", "clip.mp4")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(video)
	}
	if timestamps != "" {
		mw.WriteField("timestamps", timestamps)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/extract-screenshots", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newServer(x Extractor, opts Options) http.Handler {
	return New(x, logger.NewNoop(), opts).Handler()
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(&fakeExtractor{}, Options{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestExtractScreenshots(t *testing.T) {
	x := &fakeExtractor{
		result: pipeline.Result{Shots: []pipeline.Shot{
			{Image: []byte{1, 2, 3}},
			{},
		}},
	}
	rec := httptest.NewRecorder()
	newServer(x, Options{}).ServeHTTP(rec, upload(t, []byte("video-bytes"), "[1.5, 99]"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp screenshotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Screenshots) != 2 {
		t.Fatalf("expected 2 screenshots, got %d", len(resp.Screenshots))
	}
	if resp.Screenshots[0] != "data:image/jpeg;base64,AQID" {
		t.Errorf("unexpected data URI %q", resp.Screenshots[0])
	}
	if resp.Screenshots[1] != "" {
		t.Errorf("absent shot should be empty, got %q", resp.Screenshots[1])
	}

	if string(x.data) != "video-bytes" {
		t.Errorf("extractor saw %q", x.data)
	}
	if len(x.targets) != 2 || x.targets[0].Seconds != 1.5 || x.targets[1].ID != 1 {
		t.Errorf("unexpected targets %+v", x.targets)
	}
	if _, err := os.Stat(x.path); !os.IsNotExist(err) {
		t.Error("temp upload should be removed")
	}
}

func TestExtractScreenshots_Highlights(t *testing.T) {
	x := &fakeExtractor{result: pipeline.Result{Shots: make([]pipeline.Shot, 1)}}
	rec := httptest.NewRecorder()
	body := `[{"timestamp_seconds": 12.5, "title": "Goal", "description": "Top corner"}]`
	newServer(x, Options{}).ServeHTTP(rec, upload(t, []byte("v"), body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(x.targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(x.targets))
	}
	tg := x.targets[0]
	if tg.Seconds != 12.5 || tg.Label != "Goal" || tg.Payload != "Top corner" {
		t.Errorf("unexpected target %+v", tg)
	}
}

func TestExtractScreenshots_BadRequests(t *testing.T) {
	cases := []struct {
		name string
		req  *http.Request
	}{
		{"missing video", upload(t, nil, "[1]")},
		{"missing timestamps", upload(t, []byte("v"), "")},
		{"invalid timestamps", upload(t, []byte("v"), "[1,")},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/extract-screenshots", strings.NewReader("x"))},
	}
	for _, tc := range cases {
		x := &fakeExtractor{}
		rec := httptest.NewRecorder()
		newServer(x, Options{}).ServeHTTP(rec, tc.req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rec.Code)
		}
		if x.path != "" {
			t.Errorf("%s: extractor should not run", tc.name)
		}
	}
}

func TestExtractScreenshots_UploadLimit(t *testing.T) {
	x := &fakeExtractor{}
	rec := httptest.NewRecorder()
	newServer(x, Options{UploadLimit: 1024, MultipartMemory: 512}).
		ServeHTTP(rec, upload(t, bytes.Repeat([]byte{0}, 4096), "[1]"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestExtractScreenshots_Errors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("x: %w", orchestrator.ErrParse), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", orchestrator.ErrConfiguration), http.StatusUnprocessableEntity},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		newServer(&fakeExtractor{err: tc.err}, Options{}).ServeHTTP(rec, upload(t, []byte("v"), "[1]"))
		if rec.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	h := newServer(&fakeExtractor{}, Options{AllowedOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/extract-screenshots", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("expected allowed origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/extract-screenshots", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allowed origin %q", got)
	}
}

func TestExtractScreenshots_EndToEnd(t *testing.T) {
	fx := mocks.MustBuildMP4(mocks.MP4Options{Samples: 50, GOP: 10})
	x := framegrab.NewWithAdapters(framegrab.DefaultConfig(), framegrab.Adapters{
		FileSystem: osfilesystem.New(),
		Renderer:   &mocks.Renderer{},
		Decoders:   &mocks.DecoderFactory{},
		Logger:     logger.NewNoop(),
	})

	rec := httptest.NewRecorder()
	newServer(x, Options{TempDir: t.TempDir()}).ServeHTTP(rec, upload(t, fx.Data, "[0.4, 1.0, 30]"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp screenshotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Screenshots) != 3 {
		t.Fatalf("expected 3 screenshots, got %d", len(resp.Screenshots))
	}
	if !strings.HasPrefix(resp.Screenshots[0], "data:image/jpeg;base64,") || resp.Screenshots[1] == "" {
		t.Errorf("expected present shots, got %q", resp.Screenshots[:2])
	}
	if resp.Screenshots[2] != "" {
		t.Error("target past the end should be empty")
	}
}
