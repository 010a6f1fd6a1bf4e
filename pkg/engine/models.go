package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/visiondemo/pkg/errs"
)

// Task is the kind of work that a model does
type Task int

const (
	TaskClassification Task = iota // Top-N labels for a whole image
	TaskVideoDetection             // Objects in every frame of a video
)

func (t Task) String() string {
	switch t {
	case TaskClassification:
		return "classification"
	case TaskVideoDetection:
		return "detection"
	}
	return fmt.Sprintf("Task(%d)", int(t))
}

// Subdirectory of the model directory that holds the weights of each task
func (t Task) Subdir() string {
	switch t {
	case TaskClassification:
		return "image-prediction-models"
	case TaskVideoDetection:
		return "video-object-detection-models"
	}
	return ""
}

// Model is a pretrained network that the engine knows how to load
type Model struct {
	Name        string // Shown to the user, and passed to the engine as --model-type (eg "ResNet50")
	Task        Task
	WeightsFile string // File name inside Task.Subdir()
}

// ImageModels are the choices for the image prediction page
var ImageModels = []Model{
	{Name: "ResNet50", Task: TaskClassification, WeightsFile: "resnet50-19c8e357.pth"},
	{Name: "MobileNetV2", Task: TaskClassification, WeightsFile: "mobilenet_v2-b0353104.pth"},
	{Name: "InceptionV3", Task: TaskClassification, WeightsFile: "inception_v3_google-1a9a5a14.pth"},
	{Name: "DenseNet121", Task: TaskClassification, WeightsFile: "densenet121-a639ec97.pth"},
}

// VideoModels are the choices for the video object detection page
var VideoModels = []Model{
	{Name: "RetinaNet", Task: TaskVideoDetection, WeightsFile: "retinanet_resnet50_fpn_coco-eeacb38b.pth"},
	{Name: "YOLOv3", Task: TaskVideoDetection, WeightsFile: "yolov3.pt"},
	{Name: "TinyYOLOv3", Task: TaskVideoDetection, WeightsFile: "tiny-yolov3.pt"},
}

// WeightsPath returns the full path of the model's weights
func (m *Model) WeightsPath(modelDir string) string {
	return filepath.Join(modelDir, m.Task.Subdir(), m.WeightsFile)
}

// Catalog is the set of models whose weights were found on disk
type Catalog struct {
	Dir       string
	available map[string]*Model // key is Task.String() + "/" + Name
	missing   []string
}

// NewCatalog checks modelDir for the weights of every known model.
// Models without weights are remembered as missing, and cannot be selected.
func NewCatalog(modelDir string) *Catalog {
	c := &Catalog{
		Dir:       modelDir,
		available: map[string]*Model{},
	}
	for _, list := range [][]Model{ImageModels, VideoModels} {
		for i := range list {
			m := &list[i]
			if st, err := os.Stat(m.WeightsPath(modelDir)); err == nil && !st.IsDir() {
				c.available[catalogKey(m.Task, m.Name)] = m
			} else {
				c.missing = append(c.missing, m.WeightsPath(modelDir))
			}
		}
	}
	return c
}

func catalogKey(task Task, name string) string {
	return task.String() + "/" + name
}

// Missing returns the weights files that were not found
func (c *Catalog) Missing() []string {
	return c.missing
}

// Names returns the names of the models of the given task, and whether each one is installed
func (c *Catalog) Names(task Task) (names []string, installed []bool) {
	list := ImageModels
	if task == TaskVideoDetection {
		list = VideoModels
	}
	for _, m := range list {
		names = append(names, m.Name)
		installed = append(installed, c.available[catalogKey(task, m.Name)] != nil)
	}
	return
}

// Lookup returns the model with the given name.
// Unknown names, and models whose weights are not installed, are configuration errors.
func (c *Catalog) Lookup(task Task, name string) (*Model, error) {
	if m := c.available[catalogKey(task, name)]; m != nil {
		return m, nil
	}
	if FindModel(task, name) != nil {
		return nil, fmt.Errorf("%w: weights for %v are not installed in %v", errs.ErrInvalidConfiguration, name, c.Dir)
	}
	return nil, fmt.Errorf("%w: unknown %v model '%v'", errs.ErrInvalidConfiguration, task, name)
}

// FindModel returns the built-in model definition, regardless of whether it is installed.
// Returns nil if there is no such model.
func FindModel(task Task, name string) *Model {
	list := ImageModels
	if task == TaskVideoDetection {
		list = VideoModels
	}
	for i := range list {
		if list[i].Name == name {
			return &list[i]
		}
	}
	return nil
}
