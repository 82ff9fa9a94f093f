package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Harshitk-cp/smartcart/libs/wire"
)

func TestRegisterRequest(t *testing.T) {
	ok := wire.RegisterRequest{SessionID: "session_1", Name: "Ann", Phone: "+86 138-0000-0000"}
	assert.NoError(t, Struct(ok))

	bad := ok
	bad.Phone = "call me"
	assert.Error(t, Struct(bad))

	bad = ok
	bad.Name = ""
	assert.Error(t, Struct(bad))
}

func TestFaceRegisterBirthday(t *testing.T) {
	req := wire.FaceRegisterRequest{Name: "Ann", Phone: "5551234", Image: "x", SessionID: "s"}
	assert.NoError(t, Struct(req))

	req.Birthday = "1990-02-30"
	assert.Error(t, Struct(req))

	req.Birthday = "1990-02-28"
	assert.NoError(t, Struct(req))
}

func TestVarTags(t *testing.T) {
	assert.NoError(t, Var("https://kiosk.example.com", "httpurl"))
	assert.Error(t, Var("ftp://kiosk.example.com", "httpurl"))
	assert.Error(t, Var("http://", "httpurl"))

	assert.NoError(t, Var("session_1234-abc", "sessionid"))
	assert.Error(t, Var("bad/id", "sessionid"))
}
