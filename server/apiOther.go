package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/visiondemo/pkg/engine"
	"github.com/cyclopcam/visiondemo/pkg/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	ping := &pingJSON{
		Time: time.Now().Unix(),
	}
	www.SendJSON(w, ping)
}

func (s *Server) httpModels(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type modelJSON struct {
		Name      string `json:"name"`
		Installed bool   `json:"installed"`
	}
	list := func(task engine.Task) []modelJSON {
		names, installed := s.catalog.Names(task)
		out := make([]modelJSON, len(names))
		for i := range names {
			out[i] = modelJSON{names[i], installed[i]}
		}
		return out
	}
	www.SendJSON(w, map[string][]modelJSON{
		"image": list(engine.TaskClassification),
		"video": list(engine.TaskVideoDetection),
	})
}
