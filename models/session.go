package models

import (
	"errors"
	"fmt"
)

var (
	ErrNoImageSelected    = errors.New("no image selected")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
)

// SessionState is the complete record behind the detector screen. An empty
// string means the field is absent.
type SessionState struct {
	SelectedImage  string `json:"selected_image,omitempty"`
	AnalysisResult string `json:"analysis_result,omitempty"`
	IsAnalyzing    bool   `json:"is_analyzing"`
}

type Phase string

const (
	PhaseEmpty     Phase = "empty"
	PhaseSelected  Phase = "selected"
	PhaseAnalyzing Phase = "analyzing"
	PhaseResulted  Phase = "resulted"
)

func (s SessionState) Phase() Phase {
	switch {
	case s.IsAnalyzing:
		return PhaseAnalyzing
	case s.AnalysisResult != "":
		return PhaseResulted
	case s.SelectedImage != "":
		return PhaseSelected
	default:
		return PhaseEmpty
	}
}

// CanAnalyze reports whether the analyze action should be offered.
func (s SessionState) CanAnalyze() bool {
	return s.SelectedImage != "" && !s.IsAnalyzing
}

// CanReset reports whether the reset action should be offered.
func (s SessionState) CanReset() bool {
	return s.SelectedImage != "" || s.AnalysisResult != ""
}

type Event interface {
	isEvent()
}

type ImageAcquired struct {
	URI string
}

type AnalysisStarted struct{}

// AnalysisFinished carries the image the request was made for so a late
// result never lands on a newer selection.
type AnalysisFinished struct {
	Image string
	Text  string
}

type ResetRequested struct{}

func (ImageAcquired) isEvent()    {}
func (AnalysisStarted) isEvent()  {}
func (AnalysisFinished) isEvent() {}
func (ResetRequested) isEvent()   {}

// Apply returns the state that follows s after ev. It never mutates s.
func Apply(s SessionState, ev Event) (SessionState, error) {
	switch e := ev.(type) {
	case ImageAcquired:
		if e.URI == "" {
			return s, errors.New("acquired image has no uri")
		}
		s.SelectedImage = e.URI
		s.AnalysisResult = ""
		return s, nil
	case AnalysisStarted:
		if s.SelectedImage == "" {
			return s, ErrNoImageSelected
		}
		if s.IsAnalyzing {
			return s, ErrAnalysisInProgress
		}
		s.IsAnalyzing = true
		return s, nil
	case AnalysisFinished:
		s.IsAnalyzing = false
		if s.SelectedImage != "" && s.SelectedImage == e.Image {
			s.AnalysisResult = e.Text
		}
		return s, nil
	case ResetRequested:
		return SessionState{}, nil
	default:
		return s, fmt.Errorf("unknown event %T", ev)
	}
}
