// Package scenario loads the scripted world the simulator plays back: the
// product catalog, seeded customers, which face the camera "sees" and the
// detections reported while a customer is shopping.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Harshitk-cp/smartcart/libs/validate"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

// DefaultMinConfidence drops detections the real detector would not report.
const DefaultMinConfidence = 0.85

var ErrDuplicateProduct = errors.New("duplicate product")

// Product is a catalog entry and the detector class that maps to it.
type Product struct {
	ID        string  `yaml:"id" validate:"required"`
	Name      string  `yaml:"name" validate:"required"`
	Price     float64 `yaml:"price" validate:"gte=0"`
	ClassName string  `yaml:"class_name" validate:"required"`
}

// Customer is a registered customer present at startup.
type Customer struct {
	Name     string `yaml:"name" validate:"required,max=64"`
	Phone    string `yaml:"phone" validate:"required,phone"`
	Birthday string `yaml:"birthday" validate:"omitempty,datetime=2006-01-02"`
}

// Face decides what face recognition reports for a session that is not
// logged in. After AfterFrames processed frames the face of the customer
// with Phone is recognised; an empty Phone means an unknown face.
type Face struct {
	AfterFrames int    `yaml:"after_frames" validate:"gte=0"`
	Phone       string `yaml:"phone"`
}

// Box is one scripted detection.
type Box struct {
	Class      string     `yaml:"class" validate:"required"`
	BBox       [4]float64 `yaml:"bbox"`
	Confidence float64    `yaml:"confidence" validate:"gte=0,lte=1"`
}

// Step is what the detector reports for one processed frame.
type Step struct {
	Detections []Box `yaml:"detections" validate:"dive"`
}

// Scenario is the scripted world.
type Scenario struct {
	Catalog       []Product  `yaml:"catalog" validate:"dive"`
	Customers     []Customer `yaml:"customers" validate:"dive"`
	Face          Face       `yaml:"face"`
	MinConfidence float64    `yaml:"min_confidence" validate:"gte=0,lte=1"`
	Script        []Step     `yaml:"script" validate:"dive"`

	products map[string]Product
}

// Default is a small store with one scripted pick-up.
func Default() *Scenario {
	s := &Scenario{
		Catalog: []Product{
			{ID: "p-cola", Name: "Cola", Price: 25, ClassName: "cola"},
			{ID: "p-chips", Name: "Potato Chips", Price: 35, ClassName: "chips"},
			{ID: "p-water", Name: "Mineral Water", Price: 15, ClassName: "water"},
		},
		Face:          Face{AfterFrames: 2},
		MinConfidence: DefaultMinConfidence,
		Script: []Step{
			{},
			{Detections: []Box{{Class: "cola", BBox: [4]float64{120, 80, 260, 400}, Confidence: 0.93}}},
			{},
			{},
		},
	}
	s.index()
	return s
}

// Load reads a scenario file. An empty path yields Default.
func Load(path string) (*Scenario, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	s := &Scenario{MinConfidence: DefaultMinConfidence}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	seen := make(map[string]bool, len(s.Catalog))
	for _, p := range s.Catalog {
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProduct, p.ID)
		}
		seen[p.ID] = true
	}
	s.index()
	return s, nil
}

func (s *Scenario) index() {
	s.products = make(map[string]Product, len(s.Catalog))
	for _, p := range s.Catalog {
		s.products[p.ClassName] = p
	}
}

// Product returns the catalog entry a detector class maps to.
func (s *Scenario) Product(class string) (wire.Product, bool) {
	p, ok := s.products[class]
	if !ok {
		return wire.Product{}, false
	}
	return wire.Product{ID: p.ID, Name: p.Name, Price: p.Price}, true
}

// Products returns the catalog in wire form.
func (s *Scenario) Products() []wire.Product {
	out := make([]wire.Product, len(s.Catalog))
	for i, p := range s.Catalog {
		out[i] = wire.Product{ID: p.ID, Name: p.Name, Price: p.Price}
	}
	return out
}

// Detections returns the detections of script step n, cycling through the
// script. Boxes below MinConfidence are dropped; the rest carry their
// catalog product when the class is known.
func (s *Scenario) Detections(n int) []wire.Detection {
	if len(s.Script) == 0 {
		return nil
	}
	step := s.Script[n%len(s.Script)]

	var out []wire.Detection
	for _, b := range step.Detections {
		if b.Confidence < s.MinConfidence {
			continue
		}
		d := wire.Detection{BBox: b.BBox, ClassName: b.Class}
		conf := b.Confidence
		d.Confidence = &conf
		if p, ok := s.Product(b.Class); ok {
			d.Product = &p
		}
		out = append(out, d)
	}
	return out
}
