package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/visiondemo/pkg/detections"
	"github.com/cyclopcam/visiondemo/pkg/engine"
	"github.com/cyclopcam/visiondemo/pkg/errs"
	"github.com/cyclopcam/visiondemo/server/config"
	"github.com/stretchr/testify/require"
)

// fakeEngine stands in for the external inference program
type fakeEngine struct {
	lock         sync.Mutex
	classified   []string // base names of the images that were classified
	classifyErr  error
	detectFrames [][]detections.Object
}

func (f *fakeEngine) Classify(ctx context.Context, model *engine.Model, images []string, resultCount int) ([]engine.ImagePrediction, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.classifyErr != nil {
		return nil, f.classifyErr
	}
	out := []engine.ImagePrediction{}
	for _, img := range images {
		f.classified = append(f.classified, filepath.Base(img))
		out = append(out, engine.ImagePrediction{
			Image: filepath.Base(img),
			Predictions: []engine.Prediction{
				{Label: "golden_retriever", Probability: 87.65},
				{Label: "labrador_retriever", Probability: 5.01},
			},
		})
	}
	return out, nil
}

func (f *fakeEngine) DetectVideo(ctx context.Context, model *engine.Model, req engine.VideoRequest) (*engine.VideoResult, error) {
	out := req.Output + ".avi"
	if err := os.WriteFile(out, []byte("annotated"), 0644); err != nil {
		return nil, err
	}
	return &engine.VideoResult{
		OutputFile: out,
		Frames:     f.detectFrames,
	}, nil
}

type testServer struct {
	*Server
	engine     *fakeEngine
	transcoded []string
}

func newTestServer(t *testing.T, modify func(cfg *config.Config)) *testServer {
	root := t.TempDir()
	cfg := config.Default()
	cfg.ModelDir = filepath.Join(root, "models")
	cfg.StagingDir = filepath.Join(root, "staging")
	cfg.Upload.RequestsPerMinute = 0
	for _, m := range []*engine.Model{
		engine.FindModel(engine.TaskClassification, "ResNet50"),
		engine.FindModel(engine.TaskVideoDetection, "YOLOv3"),
	} {
		require.NoError(t, os.MkdirAll(filepath.Dir(m.WeightsPath(cfg.ModelDir)), 0755))
		require.NoError(t, os.WriteFile(m.WeightsPath(cfg.ModelDir), []byte("weights"), 0644))
	}
	if modify != nil {
		modify(&cfg)
	}

	// 5 seconds at 20 fps: a dog in every frame, and a cat in every second frame
	frames := make([][]detections.Object, 100)
	for i := range frames {
		frames[i] = append(frames[i], detections.Object{Name: "dog", PercentageProbability: 90})
		if i%2 == 0 {
			frames[i] = append(frames[i], detections.Object{Name: "cat", PercentageProbability: 60})
		}
	}
	fake := &fakeEngine{detectFrames: frames}
	ts := &testServer{engine: fake}

	writeFile := func(ctx context.Context, src, dst string) error {
		return os.WriteFile(dst, []byte("converted from "+filepath.Base(src)), 0644)
	}
	srv, err := NewServer(logs.NewTestingLog(t), &cfg, &Backends{
		Classifier: fake,
		Detector:   fake,
		MakeGIF:    writeFile,
		Transcode: func(ctx context.Context, src, dst string) error {
			ts.transcoded = append(ts.transcoded, filepath.Base(dst))
			return writeFile(ctx, src, dst)
		},
		Duration: func(ctx context.Context, filename string) (time.Duration, error) {
			return 5 * time.Second, nil
		},
	})
	require.NoError(t, err)
	ts.Server = srv
	return ts
}

type upload struct {
	field    string
	filename string
	content  string
}

func postForm(t *testing.T, h http.Handler, path string, values map[string]string, files []upload) *httptest.ResponseRecorder {
	body := bytes.Buffer{}
	mw := multipart.NewWriter(&body)
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest("POST", path, &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

var reAreaID = regexp.MustCompile(`/files/([0-9a-f-]{36})/`)

func areaID(t *testing.T, body string) string {
	m := reAreaID.FindStringSubmatch(body)
	require.NotNil(t, m, "no area link in response")
	return m[1]
}

func TestImagePrediction(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.Handler()

	w := get(h, "/image-prediction.html")
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "ResNet50")
	require.Contains(t, w.Body.String(), "InceptionV3 (not installed)")

	w = postForm(t, h, "/image-prediction.html", map[string]string{"algorithm": "ResNet50"}, []upload{
		{"images", "b.png", "png"},
		{"images", "a.jpg", "jpg"},
		{"images", "notes.txt", "ignored"},
	})
	require.Equal(t, 200, w.Code, w.Body.String())
	body := w.Body.String()
	require.Contains(t, body, "Predictions by ResNet50")
	require.Contains(t, body, "golden_retriever")
	require.Contains(t, body, "87.65")
	// jpg before png, and the text file is ignored
	require.Equal(t, []string{"a.jpg", "b.png"}, ts.engine.classified)

	id := areaID(t, body)
	w = get(h, "/files/"+id+"/a.jpg")
	require.Equal(t, 200, w.Code)
	require.Equal(t, "jpg", w.Body.String())
}

func TestImagePredictionArrayField(t *testing.T) {
	ts := newTestServer(t, nil)
	w := postForm(t, ts.Handler(), "/image-prediction.html", map[string]string{"algorithm": "ResNet50"}, []upload{
		{"images[]", "x.jpeg", "jpeg"},
	})
	require.Equal(t, 200, w.Code)
	require.Equal(t, []string{"x.jpeg"}, ts.engine.classified)
}

func TestImagePredictionRejected(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.Handler()

	// no files
	w := postForm(t, h, "/image-prediction.html", map[string]string{"algorithm": "ResNet50"}, nil)
	require.Equal(t, 400, w.Code)
	require.Contains(t, w.Body.String(), "No file uploaded")
	require.Contains(t, w.Body.String(), "<form")

	// only non-image files
	w = postForm(t, h, "/image-prediction.html", map[string]string{"algorithm": "ResNet50"}, []upload{{"images", "notes.txt", "x"}})
	require.Equal(t, 400, w.Code)

	// unknown algorithm
	w = postForm(t, h, "/image-prediction.html", map[string]string{"algorithm": "AlexNet"}, []upload{{"images", "a.jpg", "x"}})
	require.Equal(t, 400, w.Code)
	require.Contains(t, w.Body.String(), "Invalid configuration")

	// weights not installed
	w = postForm(t, h, "/image-prediction.html", map[string]string{"algorithm": "InceptionV3"}, []upload{{"images", "a.jpg", "x"}})
	require.Equal(t, 400, w.Code)
	require.Contains(t, w.Body.String(), "not installed")

	require.Empty(t, ts.engine.classified)
}

func TestImagePredictionEngineFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.engine.classifyErr = fmt.Errorf("%w: python3: exit status 1", errs.ErrInferenceFailure)
	w := postForm(t, ts.Handler(), "/image-prediction.html", map[string]string{"algorithm": "ResNet50"}, []upload{{"images", "a.jpg", "x"}})
	require.Equal(t, 500, w.Code)
	require.Contains(t, w.Body.String(), "Inference failed")
}

func TestVideoDetection(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.Handler()

	w := get(h, "/video-object-detection.html")
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "TinyYOLOv3")

	w = postForm(t, h, "/video-object-detection.html", map[string]string{"model": "YOLOv3"}, []upload{
		{"video", "street.mp4", "mp4 bytes"},
	})
	require.Equal(t, 200, w.Code, w.Body.String())
	body := w.Body.String()
	id := areaID(t, body)
	require.Contains(t, body, "street.mp4 with YOLOv3")
	require.Contains(t, body, "100 frames")
	require.Contains(t, body, "00:00:04.950000")
	require.Contains(t, body, "objects_detected_street.csv")
	require.Contains(t, body, "street_detected.gif")
	require.Contains(t, body, "summary_plot_second.png")
	require.NotContains(t, body, "summary_plot_minute.png")
	require.Contains(t, body, "Total Number of Unique Objects In This Video")

	// The .avi from the engine was converted for the browser
	require.Equal(t, []string{"street_detected.mp4"}, ts.transcoded)

	dir := filepath.Join(ts.cfg.StagingDir, id)
	for _, fn := range []string{"street.mp4", "street_detected.avi", "street_detected.mp4", "street_detected.gif", "objects_detected_street.csv", "summary_plot_frame.png", "summary_plot_second.png", "summary_plot_full.png"} {
		_, err := os.Stat(filepath.Join(dir, fn))
		require.NoError(t, err, fn)
	}
	for _, fn := range []string{"summary_plot_minute.png", "summary_plot_hour.png"} {
		_, err := os.Stat(filepath.Join(dir, fn))
		require.True(t, errors.Is(err, os.ErrNotExist), fn)
	}

	w = get(h, "/files/"+id+"/objects_detected_street.csv?download=1")
	require.Equal(t, 200, w.Code)
	require.True(t, strings.HasPrefix(w.Body.String(), "frames,objects,probability\n00:00:00.000000,dog,0.9\n00:00:00.000000,cat,0.6\n00:00:00.050000,dog,0.9\n"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "objects_detected_street.csv")

	w = get(h, "/files/"+id+"/summary_plot_full.png")
	require.Equal(t, 200, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestVideoDetectionRejected(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.Handler()

	w := postForm(t, h, "/video-object-detection.html", map[string]string{"model": "YOLOv3"}, nil)
	require.Equal(t, 400, w.Code)
	require.Contains(t, w.Body.String(), "No file uploaded")

	w = postForm(t, h, "/video-object-detection.html", map[string]string{"model": "ResNet50"}, []upload{{"video", "a.mp4", "x"}})
	require.Equal(t, 400, w.Code)

	w = postForm(t, h, "/video-object-detection.html", map[string]string{"model": "RetinaNet"}, []upload{{"video", "a.mp4", "x"}})
	require.Equal(t, 400, w.Code)
	require.Contains(t, w.Body.String(), "not installed")
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Upload.RequestsPerMinute = 2
	})
	h := ts.Handler()
	for i := 0; i < 2; i++ {
		w := postForm(t, h, "/image-prediction.html", map[string]string{"algorithm": "ResNet50"}, []upload{{"images", "a.jpg", "x"}})
		require.Equal(t, 200, w.Code)
	}
	w := postForm(t, h, "/image-prediction.html", map[string]string{"algorithm": "ResNet50"}, []upload{{"images", "a.jpg", "x"}})
	require.Equal(t, 429, w.Code)

	// GET is not limited
	require.Equal(t, 200, get(h, "/image-prediction.html").Code)
}

func TestStagedFiles(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.Handler()
	require.Equal(t, 404, get(h, "/files/not-an-area/a.jpg").Code)
	require.Equal(t, 404, get(h, "/files/00000000-0000-0000-0000-000000000000/a.jpg").Code)

	area, err := ts.staging.NewArea()
	require.NoError(t, err)
	require.Equal(t, 404, get(h, "/files/"+area.ID+"/missing.jpg").Code)
	require.Equal(t, 404, get(h, "/files/"+area.ID+"/..").Code)
}

func TestMiscRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.Handler()

	w := get(h, "/api/ping")
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), `"time":`)

	w = get(h, "/api/models")
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), `{"name":"ResNet50","installed":true}`)
	require.Contains(t, w.Body.String(), `{"name":"RetinaNet","installed":false}`)

	w = get(h, "/")
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "Vision Demo")

	// The home page also answers a POST
	r := httptest.NewRequest("POST", "/", strings.NewReader("x=1"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "Vision Demo")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("DELETE", "/", nil))
	require.Equal(t, 405, w.Code)

	w = get(h, "/style.css")
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "#7289da")

	w = get(h, "/metrics")
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "visiondemo_")
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Upload.MaxSize = "2 KB"
	})
	big := strings.Repeat("x", 8*1024)
	for _, path := range []string{"/image-prediction.html", "/video-object-detection.html"} {
		w := postForm(t, ts.Handler(), path, map[string]string{"algorithm": "ResNet50", "model": "YOLOv3"}, []upload{
			{"images", "big.jpg", big},
			{"video", "big.mp4", big},
		})
		require.Equal(t, 413, w.Code, path)
		require.Contains(t, w.Body.String(), "Upload is larger than 2 KB", path)
	}
	require.Empty(t, ts.engine.classified)

	// A body under the limit goes through
	w := postForm(t, ts.Handler(), "/image-prediction.html", map[string]string{"algorithm": "ResNet50"}, []upload{{"images", "small.jpg", "x"}})
	require.Equal(t, 200, w.Code)
}

func TestShutdownTwice(t *testing.T) {
	ts := newTestServer(t, nil)
	// As ListenForKillSignals would, but without the goroutine that outlives the test
	ts.signalIn = make(chan os.Signal, 1)
	ts.Shutdown()
	ts.Shutdown()
	select {
	case err := <-ts.ShutdownComplete:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not complete")
	}
	select {
	case <-ts.ShutdownComplete:
		t.Fatal("ShutdownComplete received a second value")
	default:
	}
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ModelDir = t.TempDir()
	cfg.StagingDir = t.TempDir()
	cfg.Video.FramesPerSecond = 0
	_, err := NewServer(logs.NewTestingLog(t), &cfg, nil)
	require.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
}
