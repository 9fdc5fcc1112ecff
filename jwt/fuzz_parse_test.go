package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

// FuzzParse exercises the envelope parser with arbitrary token strings.
// Goal: no panics; invalid inputs must be rejected with errors.
func FuzzParse(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "fuzz-test",
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		f.Fatal(err)
	}

	valid, err := mgr.Sign(EnvelopeClaims{AccessToken: "a", RefreshToken: "r", Expiry: 1})
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.e30.")
	if len(valid) > 20 {
		f.Add(valid[:len(valid)-10])
	}

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := mgr.Parse(token)
		if err != nil {
			return
		}
		if claims == nil {
			t.Fatal("nil claims without error")
		}
	})
}
