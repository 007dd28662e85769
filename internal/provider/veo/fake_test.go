package veo

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const testClientEmail = "veo@test-project.iam.gserviceaccount.com"

func newServiceAccountJSON(key *rsa.PrivateKey) string {
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	data, err := json.Marshal(serviceAccount{
		Type:         "service_account",
		ProjectID:    "test-project",
		PrivateKeyID: "key-1",
		PrivateKey:   string(keyPEM),
		ClientEmail:  testClientEmail,
		TokenURI:     "https://oauth2.googleapis.com/token",
	})
	Expect(err).To(BeNil())
	return string(data)
}

func newTestKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).To(BeNil())
	return key
}

// fakeGoogle serves the OAuth token endpoint and delegates everything else.
type fakeGoogle struct {
	*httptest.Server
	key         *rsa.PrivateKey
	tokenCalls  atomic.Int32
	expiresIn   int
	handler     http.HandlerFunc
	lastSubject string
}

func newFakeGoogle(key *rsa.PrivateKey) *fakeGoogle {
	f := &fakeGoogle{key: key, expiresIn: 3600}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer GinkgoRecover()
		if r.URL.Path == "/token" {
			f.serveToken(w, r)
			return
		}
		Expect(r.Header.Get("Authorization")).To(Equal("Bearer access-token"))
		f.handler(w, r)
	}))
	return f
}

func (f *fakeGoogle) serveToken(w http.ResponseWriter, r *http.Request) {
	f.tokenCalls.Add(1)

	Expect(r.ParseForm()).To(Succeed())
	Expect(r.PostForm.Get("grant_type")).To(Equal(jwtBearerGrant))

	token, err := jwt.Parse(r.PostForm.Get("assertion"), func(t *jwt.Token) (any, error) {
		return &f.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithAudience(f.URL+"/token"))
	Expect(err).To(BeNil())
	Expect(token.Header["kid"]).To(Equal("key-1"))

	claims := token.Claims.(jwt.MapClaims)
	f.lastSubject, _ = claims["iss"].(string)
	Expect(claims["scope"]).To(Equal(cloudPlatformScope))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "access-token",
		"expires_in":   f.expiresIn,
		"token_type":   "Bearer",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

