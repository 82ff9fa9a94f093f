package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeStampsType(t *testing.T) {
	raw, err := Encode(CartRemove{Index: 2})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "cart_remove", got["type"])
	assert.EqualValues(t, 2, got["index"])
}

func TestEncodePing(t *testing.T) {
	raw, err := Encode(Ping{Timestamp: "2026-01-01T00:00:00Z"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","timestamp":"2026-01-01T00:00:00Z"}`, string(raw))
}

func TestCartUpdateAddedProduct(t *testing.T) {
	var u CartUpdate
	require.NoError(t, json.Unmarshal([]byte(`{
		"type":"cart_updated",
		"cart":{"items":[{"product_id":"p1","name":"Cola","unit_price":3.5,"quantity":2,"subtotal":7}],"total_quantity":2,"total_amount":7},
		"added_product":"Cola"}`), &u))
	assert.Equal(t, "Cola", u.AddedProduct)
	assert.Equal(t, 2, u.Cart.TotalQuantity)
	require.Len(t, u.Cart.Items, 1)
	assert.Equal(t, "p1", u.Cart.Items[0].ProductID)
}

func TestPeekType(t *testing.T) {
	typ, err := PeekType([]byte(`{"type":"detections","detections":[]}`))
	require.NoError(t, err)
	assert.Equal(t, TypeDetections, typ)

	_, err = PeekType([]byte(`{"detections":[]}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = PeekType([]byte(`not json`))
	assert.Error(t, err)
}

func TestDetectionOptionalFields(t *testing.T) {
	var d Detections
	require.NoError(t, json.Unmarshal([]byte(`{
		"type":"detections",
		"detections":[
			{"bbox":[1,2,30,40],"class_name":"cola","confidence":0.91,"product":{"id":"p1","name":"Cola","price":3.5}},
			{"bbox":[5,5,10,10]}
		]}`), &d))

	require.Len(t, d.Detections, 2)
	assert.Equal(t, [4]float64{1, 2, 30, 40}, d.Detections[0].BBox)
	require.NotNil(t, d.Detections[0].Confidence)
	assert.InDelta(t, 0.91, *d.Detections[0].Confidence, 1e-9)
	assert.Nil(t, d.Detections[1].Product)
	assert.Nil(t, d.Detections[1].Confidence)
}

func TestResponseReason(t *testing.T) {
	assert.Equal(t, "m", Response{Message: "m", Error: "e"}.Reason())
	assert.Equal(t, "e", Response{Error: "e", Detail: "d"}.Reason())
	assert.Equal(t, "d", Response{Detail: "d"}.Reason())
}
