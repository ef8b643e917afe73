package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestL2HeadersAt(t *testing.T) {
	secret := base64.URLEncoding.EncodeToString([]byte("super-secret-key"))
	creds := APICreds{Key: "key-1", Secret: secret, Passphrase: "pass"}

	h := creds.L2HeadersAt("0xabc", "POST", "/orders", `[{"a":1}]`, 1758560400)

	mac := hmac.New(sha256.New, []byte("super-secret-key"))
	mac.Write([]byte(`1758560400POST/orders[{"a":1}]`))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, "0xabc", h["POLY_ADDRESS"])
	assert.Equal(t, "key-1", h["POLY_API_KEY"])
	assert.Equal(t, "1758560400", h["POLY_TIMESTAMP"])
	assert.Equal(t, "pass", h["POLY_PASSPHRASE"])
	assert.Equal(t, want, h["POLY_SIGNATURE"])
}

func TestDecodeSecret_AcceptsStdEncoding(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0xfe, 0x01}
	assert.Equal(t, raw, decodeSecret(base64.StdEncoding.EncodeToString(raw)))
	assert.Equal(t, raw, decodeSecret(base64.URLEncoding.EncodeToString(raw)))
	assert.Equal(t, []byte("%%%"), decodeSecret("%%%"))
}

func TestAPICreds_ValidAndString(t *testing.T) {
	assert.False(t, APICreds{Key: "k"}.Valid())
	c := APICreds{Key: "abcdefgh", Secret: "secretvalue", Passphrase: "p"}
	assert.True(t, c.Valid())
	assert.Equal(t, "APICreds{key=abcd****, secret=secr****}", c.String())
}
