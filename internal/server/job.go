package server

import (
	"github.com/000Volk000/TubeTap"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusComplete    Status = "download_complete"
	StatusError       Status = "error"
)

// Job is one download submitted over HTTP. Its JSON form is also the payload of every progress event.
type Job struct {
	ID       string  `json:"id" diff:"id"`
	URL      string  `json:"url" diff:"url"`
	VideoID  string  `json:"video_id,omitempty" diff:"video_id"`
	Kind     string  `json:"kind" diff:"kind"`
	Quality  string  `json:"quality" diff:"quality"`
	Status   Status  `json:"status" diff:"status"`
	Progress float64 `json:"progress" diff:"progress"`
	Message  string  `json:"message,omitempty" diff:"message"`
	// FilePath is the escaped file name to fetch from /files/ once the job is complete.
	FilePath string `json:"file_path,omitempty" diff:"file_path"`

	request tubetap.DownloadRequest `diff:"-"`
}

type downloadRequestBody struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

type errorBody struct {
	Error string `json:"error"`
}
