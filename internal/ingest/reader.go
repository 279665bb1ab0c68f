// Package ingest reads discriminated slices from a JSON-lines stream. Each
// line carries one slice header, the points of every component and,
// optionally, the slice's amplitude spectrum per component.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/spectral-tracks/internal/multislice"
	"github.com/banshee-data/spectral-tracks/internal/spectral"
)

// maxLineSize bounds a single slice line; full spectra are large.
const maxLineSize = 64 * 1024 * 1024

// MaxComponents bounds the component (channel) index a slice may use.
const MaxComponents = 64

// Slice is one decoded time slice.
type Slice struct {
	Header   spectral.SliceHeader
	Points   *spectral.PointSet
	Spectrum multislice.Spectrum
}

type wirePoint struct {
	Bin                   uint    `json:"bin"`
	Amplitude             float64 `json:"amplitude"`
	LocalMean             float64 `json:"local_mean"`
	LocalVariance         float64 `json:"local_variance"`
	Threshold             float64 `json:"threshold,omitempty"`
	NeighborhoodAmplitude float64 `json:"neighborhood_amplitude"`
}

type wireComponent struct {
	Component uint        `json:"component"`
	Points    []wirePoint `json:"points"`
}

type wireSlice struct {
	Header     spectral.SliceHeader `json:"header"`
	Components []wireComponent      `json:"components"`
	Spectra    [][]float64          `json:"spectra,omitempty"`
}

// Reader decodes slices line by line.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{sc: sc}
}

// Line returns the number of the last line read.
func (r *Reader) Line() int { return r.line }

// Next returns the next slice, or io.EOF once the stream is exhausted.
// Blank lines are skipped.
func (r *Reader) Next() (Slice, error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimSpace(r.sc.Text())
		if text == "" {
			continue
		}
		var ws wireSlice
		if err := json.Unmarshal([]byte(text), &ws); err != nil {
			return Slice{}, fmt.Errorf("line %d: failed to parse slice: %w", r.line, err)
		}
		s, err := ws.decode()
		if err != nil {
			return Slice{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return s, nil
	}
	if err := r.sc.Err(); err != nil {
		return Slice{}, fmt.Errorf("line %d: failed to read slice: %w", r.line+1, err)
	}
	return Slice{}, io.EOF
}

// ReadAll decodes every remaining slice.
func (r *Reader) ReadAll() ([]Slice, error) {
	var out []Slice
	for {
		s, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}

func (ws wireSlice) decode() (Slice, error) {
	if ws.Header.SliceLength < 0 {
		return Slice{}, fmt.Errorf("negative slice length %v: %w", ws.Header.SliceLength, spectral.ErrDegenerateInput)
	}
	n := len(ws.Spectra)
	if n > MaxComponents {
		return Slice{}, fmt.Errorf("%d spectra exceed %d components: %w", n, MaxComponents, spectral.ErrDegenerateInput)
	}
	for _, c := range ws.Components {
		if c.Component >= MaxComponents {
			return Slice{}, fmt.Errorf("component %d exceeds limit of %d: %w", c.Component, MaxComponents, spectral.ErrDegenerateInput)
		}
		if int(c.Component)+1 > n {
			n = int(c.Component) + 1
		}
	}
	ps := spectral.NewPointSet(n)
	for _, c := range ws.Components {
		for _, p := range c.Points {
			if _, dup := ps.Component(c.Component)[p.Bin]; dup {
				return Slice{}, fmt.Errorf("component %d: duplicate bin %d: %w", c.Component, p.Bin, spectral.ErrDegenerateInput)
			}
			ps.Add(c.Component, spectral.DiscriminatedPoint{
				BinIndex:              p.Bin,
				Amplitude:             p.Amplitude,
				LocalMean:             p.LocalMean,
				LocalVariance:         p.LocalVariance,
				Threshold:             p.Threshold,
				NeighborhoodAmplitude: p.NeighborhoodAmplitude,
			})
		}
	}
	var spec multislice.Spectrum
	if len(ws.Spectra) > 0 {
		spec = multislice.Spectrum(ws.Spectra)
	}
	return Slice{Header: ws.Header, Points: ps, Spectrum: spec}, nil
}

// Writer encodes slices in the format Reader accepts.
type Writer struct {
	enc *json.Encoder
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write encodes s as one line. Components are written in ascending order
// and points in ascending bin order.
func (w *Writer) Write(s Slice) error {
	ws := wireSlice{Header: s.Header, Spectra: [][]float64(s.Spectrum)}
	for c := 0; c < s.Points.NComponents(); c++ {
		pts := s.Points.Sorted(uint(c))
		if len(pts) == 0 {
			continue
		}
		wc := wireComponent{Component: uint(c), Points: make([]wirePoint, len(pts))}
		for i, p := range pts {
			wc.Points[i] = wirePoint{
				Bin:                   p.BinIndex,
				Amplitude:             p.Amplitude,
				LocalMean:             p.LocalMean,
				LocalVariance:         p.LocalVariance,
				Threshold:             p.Threshold,
				NeighborhoodAmplitude: p.NeighborhoodAmplitude,
			}
		}
		ws.Components = append(ws.Components, wc)
	}
	if err := w.enc.Encode(ws); err != nil {
		return fmt.Errorf("failed to encode slice %d: %w", s.Header.SliceNumber, err)
	}
	return nil
}
