package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/visiondemo/pkg/detections"
	"github.com/cyclopcam/visiondemo/pkg/engine"
	"github.com/cyclopcam/visiondemo/pkg/errs"
	"github.com/cyclopcam/visiondemo/pkg/kibi"
	"github.com/cyclopcam/visiondemo/pkg/report"
	"github.com/cyclopcam/visiondemo/pkg/videox"
	"github.com/cyclopcam/visiondemo/pkg/www"
	"github.com/cyclopcam/visiondemo/server/staging"
	"github.com/julienschmidt/httprouter"
)

type videoDetectionPage struct {
	Error  string
	Models []ModelChoice

	// Results. Everything below is empty until a video has been processed.
	Model           string
	AreaID          string
	VideoName       string        // Uploaded video
	VideoDuration   time.Duration // Zero if ffprobe could not tell us
	OutputVideoName string        // Annotated video, as produced by the engine
	PlayableVideo   string        // Annotated video that a browser can play (may equal OutputVideoName)
	GIFName         string        // Animated preview of the annotated video
	CSVName         string        // Detection table
	NumFrames       int           // Frames processed by the engine
	TableDuration   string        // Timestamp of the last frame, HH:MM:SS.ffffff
	Totals          []detections.SummaryEntry
	Charts          []report.Chart
}

func (s *Server) videoDetectionPage(selected string) *videoDetectionPage {
	names, installed := s.catalog.Names(engine.TaskVideoDetection)
	return &videoDetectionPage{
		Models: s.modelChoices(names, installed, selected),
	}
}

func (s *Server) httpVideoDetection(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if r.Method == "GET" {
		s.render(w, http.StatusOK, pageVideoDetection, s.videoDetectionPage(""))
		return
	}
	outcome := outcomeError
	defer func() { countRequest(pageVideoDetection, outcome) }()

	www.ParseMultipartForm(w, r, s.cfg.MaxUploadBytes(), maxUploadMemory)
	modelName := r.FormValue("model")
	page := s.videoDetectionPage(modelName)

	reject := func(err error) {
		outcome = outcomeRejected
		s.Log.Infof("Video detection rejected: %v", err)
		page.Error = err.Error()
		s.render(w, http.StatusBadRequest, pageVideoDetection, page)
	}

	uploads := formFiles(r, "video")
	if len(uploads) == 0 {
		reject(fmt.Errorf("%w: choose a video", errs.ErrMissingUpload))
		return
	}
	model, err := s.catalog.Lookup(engine.TaskVideoDetection, modelName)
	if err != nil {
		reject(err)
		return
	}

	area, err := s.staging.NewArea()
	www.Check(err)
	videoName, err := saveUpload(area, uploads[0])
	if errs.IsUserError(err) {
		reject(err)
		return
	}
	www.Check(err)

	s.Log.Infof("Detecting objects in %v (%v) with %v", videoName, kibi.FormatBytes(uploads[0].Size), model.Name)
	ctx := r.Context()
	base, _ := staging.SplitBasename(videoName)
	fps := s.cfg.Video.FramesPerSecond
	result, err := s.backends.Detector.DetectVideo(ctx, model, engine.VideoRequest{
		Input:          area.Path(videoName),
		Output:         area.Path(base + "_detected"),
		FrameRate:      fps,
		MinProbability: s.cfg.Video.MinimumPercentageProbability,
	})
	www.Check(err)

	// The annotated video must be inside the area, otherwise we can't serve it
	outputName := filepath.Base(result.OutputFile)
	if st, err := os.Stat(area.Path(outputName)); err != nil || st.IsDir() {
		www.Check(fmt.Errorf("%w: annotated video '%v' was not written to the scratch area", errs.ErrInferenceFailure, result.OutputFile))
	}

	// Everything below consumes the complete detection result
	table, err := result.Table(fps)
	www.Check(err)
	rep, err := report.Write(s.Log, table, area.Dir, base, s.chartStyle)
	www.Check(err)
	for _, c := range rep.Charts {
		chartsRendered.WithLabelValues(c.Granularity.String()).Inc()
	}

	playable := outputName
	if !s.cfg.Video.DisableTranscode && videox.NeedsBrowserTranscode(outputName) {
		playable = base + "_detected.mp4"
		if playable == outputName {
			playable = base + "_detected_browser.mp4"
		}
		www.Check(s.backends.Transcode(ctx, area.Path(outputName), area.Path(playable)))
	}

	gifName := base + "_detected.gif"
	www.Check(s.backends.MakeGIF(ctx, area.Path(outputName), area.Path(gifName)))

	duration, err := s.backends.Duration(ctx, area.Path(videoName))
	if err != nil {
		// Only used for display, so not worth failing the request
		s.Log.Warnf("Unable to read duration of %v: %v", videoName, err)
		duration = 0
	}

	page.Model = model.Name
	page.AreaID = area.ID
	page.VideoName = videoName
	page.VideoDuration = duration.Round(time.Millisecond)
	page.OutputVideoName = outputName
	page.PlayableVideo = playable
	page.GIFName = gifName
	page.CSVName = rep.CSVFile
	page.NumFrames = table.NumFrames
	page.TableDuration = detections.FormatTimestamp(table.Duration())
	page.Totals = rep.Totals.Entries
	page.Charts = rep.Charts
	outcome = outcomeOK
	s.render(w, http.StatusOK, pageVideoDetection, page)
}

// httpStagedFile serves an artifact from a scratch area.
// Add ?download=1 to receive it as an attachment.
func (s *Server) httpStagedFile(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	area, err := s.staging.OpenArea(params.ByName("area"))
	if err != nil {
		www.PanicNotFound()
	}
	name := params.ByName("name")
	if clean, err := staging.SanitizeFilename(name); err != nil || clean != name {
		www.PanicNotFound()
	}
	fn := area.Path(name)
	if st, err := os.Stat(fn); errors.Is(err, os.ErrNotExist) || (err == nil && st.IsDir()) {
		www.PanicNotFound()
	} else {
		www.Check(err)
	}
	if r.URL.Query().Get("download") == "1" {
		www.SendFileDownload(w, r, fn, name)
	} else {
		www.SendFile(w, r, fn)
	}
}
