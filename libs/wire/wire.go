// Package wire defines the JSON messages exchanged over the kiosk session
// channel. Every message is an object carrying a "type" discriminator.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type is the value of a message's "type" field.
type Type string

// Inbound message types (server to kiosk).
const (
	TypeUserInfo        Type = "user_info"
	TypeUserLogin       Type = "user_login"
	TypeFaceDetected    Type = "face_detected"
	TypeFaceStatus      Type = "face_status"
	TypeCartUpdate      Type = "cart_update"
	TypeCartUpdated     Type = "cart_updated"
	TypeProductAdded    Type = "product_added"
	TypeDetections      Type = "detections"
	TypeProductDetected Type = "product_detected"
	TypeError           Type = "error"
	TypePong            Type = "pong"
)

// Outbound message types (kiosk to server).
const (
	TypeFrame      Type = "frame"
	TypePing       Type = "ping"
	TypeCartRemove Type = "cart_remove"
)

// ActionRegisterPrompt is the face_detected action asking the user to register.
const ActionRegisterPrompt = "register_prompt"

// TimeLayout is used for every timestamp on the wire.
const TimeLayout = time.RFC3339Nano

var ErrMissingType = errors.New("message has no type")

// Envelope is the common header of every message.
type Envelope struct {
	Type Type `json:"type"`
}

// PeekType returns the discriminator of a raw message without decoding the rest.
func PeekType(raw []byte) (Type, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return "", ErrMissingType
	}
	return env.Type, nil
}

// Marshal encodes v and stamps the given type on it.
func Marshal(t Type, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("message %s is not an object: %w", t, err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	tag, _ := json.Marshal(t)
	fields["type"] = tag
	return json.Marshal(fields)
}

// User is the public profile of a kiosk customer.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Birthday  string `json:"birthday,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	LastVisit string `json:"last_visit,omitempty"`
}

// Product is a catalog entry attached to a detection.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Detection is one bounding box reported by the perception backend.
// BBox holds x1, y1, x2, y2 in frame pixel coordinates.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	ClassName  string     `json:"class_name,omitempty"`
	Product    *Product   `json:"product,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// CartItem is one cart line.
type CartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

// Cart is the full cart as pushed by the server.
type Cart struct {
	Items         []CartItem `json:"items"`
	TotalQuantity int        `json:"total_quantity"`
	TotalAmount   float64    `json:"total_amount"`
}

// Inbound payloads.

type UserInfo struct {
	User      *User `json:"user"`
	IsNewUser bool  `json:"is_new_user"`
}

type UserLogin struct {
	User  *User       `json:"user"`
	IsNew bool        `json:"is_new"`
	BBox  *[4]float64 `json:"bbox,omitempty"`
}

type FaceDetected struct {
	Action string      `json:"action"`
	BBox   *[4]float64 `json:"bbox,omitempty"`
}

type FaceStatus struct {
	Detected bool `json:"detected"`
}

type CartUpdate struct {
	Cart         Cart   `json:"cart"`
	AddedProduct string `json:"added_product,omitempty"`
}

type ProductAdded struct {
	Product    Product  `json:"product"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type Detections struct {
	Detections []Detection `json:"detections"`
	Timestamp  string      `json:"timestamp,omitempty"`
}

type ProductDetected struct {
	Product    Product  `json:"product"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}

type Pong struct {
	Timestamp string `json:"timestamp,omitempty"`
}

// Outbound payloads.

type Frame struct {
	Frame     string `json:"frame"`
	Timestamp string `json:"timestamp"`
}

type Ping struct {
	Timestamp string `json:"timestamp"`
}

type CartRemove struct {
	Index int `json:"index"`
}

// Outbound is a message the kiosk may put on the channel.
type Outbound interface {
	MessageType() Type
}

func (Frame) MessageType() Type      { return TypeFrame }
func (Ping) MessageType() Type       { return TypePing }
func (CartRemove) MessageType() Type { return TypeCartRemove }

// Encode serialises an outbound message with its type tag.
func Encode(m Outbound) ([]byte, error) {
	return Marshal(m.MessageType(), m)
}
