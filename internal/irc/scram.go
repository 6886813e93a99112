package irc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/emersion/go-sasl"
	"golang.org/x/crypto/pbkdf2"
)

// scramClient implements SCRAM-SHA-256 and SCRAM-SHA-512 (RFC 5802, RFC 7677)
// without channel binding.
type scramClient struct {
	mechanism string
	hash      func() hash.Hash
	username  string
	password  string

	clientNonce     string
	clientFirstBare string
	serverSignature []byte
	step            int
}

var _ sasl.Client = (*scramClient)(nil)

func newSCRAMClient(mechanism, username, password string) (*scramClient, error) {
	var h func() hash.Hash
	switch mechanism {
	case "SCRAM-SHA-256":
		h = sha256.New
	case "SCRAM-SHA-512":
		h = sha512.New
	default:
		return nil, fmt.Errorf("unsupported SCRAM mechanism %q", mechanism)
	}

	nonce, err := generateClientNonce()
	if err != nil {
		return nil, err
	}
	return &scramClient{
		mechanism:   mechanism,
		hash:        h,
		username:    username,
		password:    password,
		clientNonce: nonce,
	}, nil
}

func (c *scramClient) Start() (string, []byte, error) {
	c.clientFirstBare = "n=" + escapeSCRAMName(c.username) + ",r=" + c.clientNonce
	c.step = 0
	// No channel binding, no authorization identity
	return c.mechanism, []byte("n,," + c.clientFirstBare), nil
}

func (c *scramClient) Next(challenge []byte) ([]byte, error) {
	switch c.step {
	case 0:
		c.step++
		return c.clientFinal(string(challenge))
	case 1:
		c.step++
		return nil, c.verifyServerFinal(string(challenge))
	default:
		return nil, errors.New("unexpected SCRAM challenge")
	}
}

func (c *scramClient) clientFinal(serverFirst string) ([]byte, error) {
	params := parseSCRAMParams(serverFirst)

	serverNonce, ok := params["r"]
	if !ok || !strings.HasPrefix(serverNonce, c.clientNonce) {
		return nil, errors.New("invalid server nonce")
	}
	salt, err := base64.StdEncoding.DecodeString(params["s"])
	if err != nil || len(salt) == 0 {
		return nil, errors.New("invalid salt")
	}
	iterations, err := strconv.Atoi(params["i"])
	if err != nil || iterations <= 0 {
		return nil, errors.New("invalid iteration count")
	}

	salted := pbkdf2.Key([]byte(c.password), salt, iterations, c.hash().Size(), c.hash)
	clientKey := computeHMAC(salted, "Client Key", c.hash)
	storedKey := computeHash(clientKey, c.hash)
	serverKey := computeHMAC(salted, "Server Key", c.hash)

	withoutProof := "c=" + base64.StdEncoding.EncodeToString([]byte("n,,")) + ",r=" + serverNonce
	authMessage := c.clientFirstBare + "," + serverFirst + "," + withoutProof

	proof := xorBytes(clientKey, computeHMAC(storedKey, authMessage, c.hash))
	c.serverSignature = computeHMAC(serverKey, authMessage, c.hash)

	return []byte(withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)), nil
}

func (c *scramClient) verifyServerFinal(serverFinal string) error {
	params := parseSCRAMParams(serverFinal)
	if e, ok := params["e"]; ok {
		return fmt.Errorf("server rejected authentication: %s", e)
	}
	signature, err := base64.StdEncoding.DecodeString(params["v"])
	if err != nil || !hmac.Equal(signature, c.serverSignature) {
		return errors.New("server signature mismatch")
	}
	return nil
}

func generateClientNonce() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

func escapeSCRAMName(name string) string {
	return strings.NewReplacer("=", "=3D", ",", "=2C").Replace(name)
}

func parseSCRAMParams(message string) map[string]string {
	params := make(map[string]string)
	for _, part := range strings.Split(message, ",") {
		if len(part) >= 2 && part[1] == '=' {
			params[part[:1]] = part[2:]
		}
	}
	return params
}

func computeHMAC(key []byte, data string, h func() hash.Hash) []byte {
	mac := hmac.New(h, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func computeHash(data []byte, h func() hash.Hash) []byte {
	hasher := h()
	hasher.Write(data)
	return hasher.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	result := make([]byte, len(a))
	for i := range a {
		result[i] = a[i] ^ b[i]
	}
	return result
}
