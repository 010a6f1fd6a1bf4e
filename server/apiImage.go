package server

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/cyclopcam/visiondemo/pkg/engine"
	"github.com/cyclopcam/visiondemo/pkg/errs"
	"github.com/cyclopcam/visiondemo/pkg/kibi"
	"github.com/cyclopcam/visiondemo/pkg/www"
	"github.com/cyclopcam/visiondemo/server/staging"
	"github.com/julienschmidt/httprouter"
)

// Uploaded images with these extensions are classified. Anything else is ignored.
var imageExtensions = []string{"jpg", "jpeg", "png"}

type imagePredictionPage struct {
	Error       string
	Algorithms  []ModelChoice
	Algorithm   string // Algorithm that produced Predictions
	AreaID      string
	Predictions []engine.ImagePrediction
}

func (s *Server) imagePredictionPage(selected string) *imagePredictionPage {
	names, installed := s.catalog.Names(engine.TaskClassification)
	return &imagePredictionPage{
		Algorithms: s.modelChoices(names, installed, selected),
	}
}

func (s *Server) httpImagePrediction(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if r.Method == "GET" {
		s.render(w, http.StatusOK, pageImagePrediction, s.imagePredictionPage(""))
		return
	}
	outcome := outcomeError
	defer func() { countRequest(pageImagePrediction, outcome) }()

	www.ParseMultipartForm(w, r, s.cfg.MaxUploadBytes(), maxUploadMemory)
	algorithm := r.FormValue("algorithm")
	page := s.imagePredictionPage(algorithm)

	reject := func(err error) {
		outcome = outcomeRejected
		s.Log.Infof("Image prediction rejected: %v", err)
		page.Error = err.Error()
		s.render(w, http.StatusBadRequest, pageImagePrediction, page)
	}

	uploads := formFiles(r, "images", "images[]")
	if len(uploads) == 0 {
		reject(fmt.Errorf("%w: choose one or more images", errs.ErrMissingUpload))
		return
	}
	model, err := s.catalog.Lookup(engine.TaskClassification, algorithm)
	if err != nil {
		reject(err)
		return
	}

	area, err := s.staging.NewArea()
	www.Check(err)
	totalSize := int64(0)
	for _, fh := range uploads {
		totalSize += fh.Size
		if _, err := saveUpload(area, fh); err != nil {
			if errs.IsUserError(err) {
				reject(err)
				return
			}
			www.Check(err)
		}
	}

	images, err := area.Files(imageExtensions...)
	www.Check(err)
	if len(images) == 0 {
		reject(fmt.Errorf("%w: no .jpg, .jpeg, or .png images were uploaded", errs.ErrMissingUpload))
		return
	}
	paths := make([]string, len(images))
	for i, name := range images {
		paths[i] = area.Path(name)
	}

	s.Log.Infof("Classifying %v images (%v) with %v", len(images), kibi.FormatBytes(totalSize), model.Name)
	predictions, err := s.backends.Classifier.Classify(r.Context(), model, paths, s.cfg.Image.ResultCount)
	www.Check(err)
	imagesClassified.Add(float64(len(predictions)))

	page.Algorithm = model.Name
	page.AreaID = area.ID
	page.Predictions = predictions
	outcome = outcomeOK
	s.render(w, http.StatusOK, pageImagePrediction, page)
}

// formFiles returns the uploaded files of the first key that has any.
// Empty file inputs are submitted by browsers as a part with no filename, and are skipped.
func formFiles(r *http.Request, keys ...string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	for _, key := range keys {
		files := []*multipart.FileHeader{}
		for _, fh := range r.MultipartForm.File[key] {
			if fh.Filename != "" {
				files = append(files, fh)
			}
		}
		if len(files) != 0 {
			return files
		}
	}
	return nil
}

// saveUpload copies an uploaded file into the area, and returns its sanitized name
func saveUpload(area *staging.Area, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("%w: failed to open upload %v: %v", errs.ErrStagingFailure, fh.Filename, err)
	}
	defer f.Close()
	return area.Save(fh.Filename, f)
}
