package models

type AcquireMode string

const (
	AcquireModeGallery AcquireMode = "gallery"
	AcquireModeCamera  AcquireMode = "camera"
)

type AspectRatio struct {
	Width  int
	Height int
}

// AcquireOptions mirror the picker options. Quality is in the 0..1 range.
type AcquireOptions struct {
	AllowEditing bool
	Aspect       AspectRatio
	Quality      float64
}

// DefaultAcquireOptions are fixed by the controller and not user configurable.
var DefaultAcquireOptions = AcquireOptions{
	AllowEditing: true,
	Aspect:       AspectRatio{Width: 4, Height: 3},
	Quality:      1,
}

type AcquireResult struct {
	Canceled bool
	URI      string
}

type InferenceRequest struct {
	Instruction string
	ImageBase64 string
	MimeType    string
}
