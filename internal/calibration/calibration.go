// Package calibration reads and writes camera-intrinsics prior files: a JSON
// document listing, per image name, whichever calibration values are known.
//
//	{"priors": [
//	  {"CameraIntrinsicsPrior": {"image_name": "a.jpg", "width": 640, "height": 480,
//	    "camera_intrinsics_type": "PINHOLE", "focal_length": 800}}
//	]}
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/banshee-data/sfm/internal/sfm"
)

// ErrNoPriors is returned when writing an empty prior set.
var ErrNoPriors = errors.New("no camera intrinsics priors to write")

type file struct {
	Priors []entry `json:"priors"`
}

type entry struct {
	Prior priorJSON `json:"CameraIntrinsicsPrior"`
}

type priorJSON struct {
	ImageName  string `json:"image_name"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	CameraType string `json:"camera_intrinsics_type,omitempty"`

	FocalLength          *float64  `json:"focal_length,omitempty"`
	PrincipalPoint       []float64 `json:"principal_point,omitempty"`
	AspectRatio          *float64  `json:"aspect_ratio,omitempty"`
	Skew                 *float64  `json:"skew,omitempty"`
	RadialDistortion     []float64 `json:"radial_distortion_coeffs,omitempty"`
	TangentialDistortion []float64 `json:"tangential_distortion_coeffs,omitempty"`
	Position             []float64 `json:"position,omitempty"`
	Orientation          []float64 `json:"orientation,omitempty"`
	Latitude             *float64  `json:"latitude,omitempty"`
	Longitude            *float64  `json:"longitude,omitempty"`
	Altitude             *float64  `json:"altitude,omitempty"`
}

// ReadCalibration loads the priors file at path, keyed by image name.
func ReadCalibration(path string) (map[string]sfm.CameraIntrinsicsPrior, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calibration %s: %w", path, err)
	}
	defer f.Close()
	priors, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read calibration %s: %w", path, err)
	}
	return priors, nil
}

// Decode parses a priors document.
func Decode(r io.Reader) (map[string]sfm.CameraIntrinsicsPrior, error) {
	var doc file
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode priors: %w", err)
	}
	out := make(map[string]sfm.CameraIntrinsicsPrior, len(doc.Priors))
	for i, e := range doc.Priors {
		if e.Prior.ImageName == "" {
			return nil, fmt.Errorf("prior %d has no image_name", i)
		}
		p, err := e.Prior.toPrior()
		if err != nil {
			return nil, fmt.Errorf("prior for %s: %w", e.Prior.ImageName, err)
		}
		out[e.Prior.ImageName] = p
	}
	return out, nil
}

// WriteCalibration writes priors to path, ordered by image name.
func WriteCalibration(path string, priors map[string]sfm.CameraIntrinsicsPrior) error {
	if len(priors) == 0 {
		return ErrNoPriors
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create calibration %s: %w", path, err)
	}
	if err := Encode(f, priors); err != nil {
		f.Close()
		return fmt.Errorf("write calibration %s: %w", path, err)
	}
	return f.Close()
}

// Encode writes a priors document.
func Encode(w io.Writer, priors map[string]sfm.CameraIntrinsicsPrior) error {
	doc := file{Priors: make([]entry, 0, len(priors))}
	for _, name := range slices.Sorted(maps.Keys(priors)) {
		doc.Priors = append(doc.Priors, entry{Prior: fromPrior(name, priors[name])})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (p priorJSON) toPrior() (sfm.CameraIntrinsicsPrior, error) {
	out := sfm.CameraIntrinsicsPrior{
		ImageWidth:  p.Width,
		ImageHeight: p.Height,
		CameraModel: p.CameraType,
	}
	if out.CameraModel == "" {
		out.CameraModel = sfm.DefaultCameraModel
	}
	setScalar(&out.FocalLength, p.FocalLength)
	setScalar(&out.AspectRatio, p.AspectRatio)
	setScalar(&out.Skew, p.Skew)
	setScalar(&out.Latitude, p.Latitude)
	setScalar(&out.Longitude, p.Longitude)
	setScalar(&out.Altitude, p.Altitude)

	var err error
	if out.PrincipalPoint, err = setArray[[2]float64]("principal_point", p.PrincipalPoint, true); err != nil {
		return out, err
	}
	if out.RadialDistortion, err = setArray[[4]float64]("radial_distortion_coeffs", p.RadialDistortion, false); err != nil {
		return out, err
	}
	if out.TangentialDistortion, err = setArray[[2]float64]("tangential_distortion_coeffs", p.TangentialDistortion, false); err != nil {
		return out, err
	}
	if out.Position, err = setArray[[3]float64]("position", p.Position, true); err != nil {
		return out, err
	}
	if out.Orientation, err = setArray[[3]float64]("orientation", p.Orientation, true); err != nil {
		return out, err
	}

	// Files often omit the image size when the principal point is centred.
	if out.PrincipalPoint.IsSet {
		if out.ImageWidth == 0 {
			out.ImageWidth = int(2 * out.PrincipalPoint.Value[0])
		}
		if out.ImageHeight == 0 {
			out.ImageHeight = int(2 * out.PrincipalPoint.Value[1])
		}
	}
	return out, nil
}

func setScalar(dst *sfm.Prior[float64], v *float64) {
	if v != nil {
		*dst = sfm.Set(*v)
	}
}

// setArray copies vals into a fixed-size prior. Distortion coefficients may
// be truncated and are zero padded; other arrays must be complete.
func setArray[A [2]float64 | [3]float64 | [4]float64](field string, vals []float64, exact bool) (sfm.Prior[A], error) {
	var out sfm.Prior[A]
	if vals == nil {
		return out, nil
	}
	var arr A
	n := len(arr)
	if len(vals) > n || (exact && len(vals) != n) {
		return out, fmt.Errorf("%s: expected %d values, got %d", field, n, len(vals))
	}
	for i, v := range vals {
		arr[i] = v
	}
	return sfm.Set(arr), nil
}

func fromPrior(name string, p sfm.CameraIntrinsicsPrior) priorJSON {
	out := priorJSON{
		ImageName:  name,
		Width:      p.ImageWidth,
		Height:     p.ImageHeight,
		CameraType: p.CameraModel,
	}
	if out.CameraType == "" {
		out.CameraType = sfm.DefaultCameraModel
	}
	out.FocalLength = scalar(p.FocalLength)
	out.AspectRatio = scalar(p.AspectRatio)
	out.Skew = scalar(p.Skew)
	out.Latitude = scalar(p.Latitude)
	out.Longitude = scalar(p.Longitude)
	out.Altitude = scalar(p.Altitude)
	if p.PrincipalPoint.IsSet {
		out.PrincipalPoint = p.PrincipalPoint.Value[:]
	}
	if p.RadialDistortion.IsSet {
		out.RadialDistortion = p.RadialDistortion.Value[:]
	}
	if p.TangentialDistortion.IsSet {
		out.TangentialDistortion = p.TangentialDistortion.Value[:]
	}
	if p.Position.IsSet {
		out.Position = p.Position.Value[:]
	}
	if p.Orientation.IsSet {
		out.Orientation = p.Orientation.Value[:]
	}
	return out
}

func scalar(p sfm.Prior[float64]) *float64 {
	if !p.IsSet {
		return nil
	}
	v := p.Value
	return &v
}
