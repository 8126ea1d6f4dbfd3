// Package extractor talks to the external feature-extraction service that
// turns face images into embedding vectors. The core never does image
// analysis itself; it sends image bytes out and gets vectors and bounding
// boxes back.
package extractor

import (
	"context"
	"errors"
)

// ErrNoFace means the extractor could not locate or encode a face in the
// image. Callers abort the operation without partial state changes.
var ErrNoFace = errors.New("no encodable face in image")

// Face is one detected face: its embedding, pixel bounding box and the
// detector's confidence.
type Face struct {
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// Client produces embeddings from face images.
type Client interface {
	// DetectFaces locates and encodes every face in the image. An image
	// without faces yields an empty slice, not an error.
	DetectFaces(ctx context.Context, imageData []byte) ([]Face, error)
	// EncodeFace encodes the most prominent face in the image, or ErrNoFace
	// when there is none.
	EncodeFace(ctx context.Context, imageData []byte) ([]float32, error)
}
