//go:build !cgo

package pipeline

import "image"

func (p *Pipeline) segment(image.Image) ([]Candidate, error) {
	return nil, ErrNoOpenCV
}
