package httpapi

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

// indexPage renders the "/" status page: an endpoint list plus an <img>
// pulling the live MJPEG stream, matching the small HTML page the original
// server serves from its root route.
var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<ul>
<li><a href="/mjpg">/mjpg</a> — live MJPEG stream</li>
<li><a href="/full_res">/full_res</a> — single full-resolution JPEG</li>
<li><a href="/metrics">/metrics</a> — Prometheus metrics</li>
<li>/events — websocket status feed</li>
</ul>
<img src="/mjpg" alt="live stream">
</body>
</html>
`))

type indexData struct {
	Title string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, indexData{Title: "mjpgd — " + s.cameraPath}); err != nil {
		s.log.Warn("render index page", zap.Error(err))
	}
}
