package extractor

import "context"

// Mock is a canned extractor for tests.
type Mock struct {
	Faces []Face
	Err   error
}

// DetectFaces returns the canned faces.
func (m *Mock) DetectFaces(ctx context.Context, imageData []byte) ([]Face, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Faces, nil
}

// EncodeFace returns the first canned face's embedding, or ErrNoFace.
func (m *Mock) EncodeFace(ctx context.Context, imageData []byte) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Faces) == 0 || len(m.Faces[0].Embedding) == 0 {
		return nil, ErrNoFace
	}
	return m.Faces[0].Embedding, nil
}
