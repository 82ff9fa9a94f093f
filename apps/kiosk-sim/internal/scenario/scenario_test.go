package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `
catalog:
  - id: p1
    name: Cola
    price: 25
    class_name: cola
  - id: p2
    name: Chips
    price: 35.5
    class_name: chips
customers:
  - name: Ann
    phone: "+886 912-345-678"
face:
  after_frames: 1
  phone: "+886 912-345-678"
script:
  - detections:
      - class: cola
        bbox: [1, 2, 3, 4]
        confidence: 0.9
      - class: chips
        bbox: [5, 6, 7, 8]
        confidence: 0.5
      - class: mystery
        bbox: [0, 0, 10, 10]
        confidence: 0.99
  - detections: []
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Len(t, s.Catalog, 2)
	assert.Equal(t, DefaultMinConfidence, s.MinConfidence)
	assert.Equal(t, 1, s.Face.AfterFrames)

	p, ok := s.Product("chips")
	require.True(t, ok)
	assert.Equal(t, "Chips", p.Name)
	assert.Equal(t, 35.5, p.Price)
}

func TestDetectionsFilterAndCycle(t *testing.T) {
	s, err := Parse([]byte(doc))
	require.NoError(t, err)

	dets := s.Detections(0)
	require.Len(t, dets, 2)
	assert.Equal(t, "cola", dets[0].ClassName)
	require.NotNil(t, dets[0].Product)
	assert.Equal(t, "p1", dets[0].Product.ID)
	assert.Equal(t, 0.9, *dets[0].Confidence)

	assert.Equal(t, "mystery", dets[1].ClassName)
	assert.Nil(t, dets[1].Product)

	assert.Empty(t, s.Detections(1))
	assert.Len(t, s.Detections(2), 2)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"malformed":         "catalog: [",
		"bad phone":         "customers:\n  - name: Bo\n    phone: nope\n",
		"missing class":     "script:\n  - detections:\n      - bbox: [0,0,1,1]\n        confidence: 0.9\n",
		"duplicate product": "catalog:\n  - {id: a, name: A, class_name: x}\n  - {id: a, name: B, class_name: y}\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Products())

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	s, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Customers, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario")
}
