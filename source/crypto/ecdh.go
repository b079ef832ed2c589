package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v3"

	"bedrockd/source/errs"
)

// KeyAgreement is the server side of spec 4.4's ECDH handshake: a
// freshly generated P-384 keypair plus the salt/secret derivation it
// performs once the client's session public key is known.
type KeyAgreement struct {
	ephemeral *ecdsa.PrivateKey
}

func NewKeyAgreement() (*KeyAgreement, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "crypto: ecdsa keygen failed", err)
	}
	return &KeyAgreement{ephemeral: priv}, nil
}

// Derive computes the shared secret with the client's session public
// key and folds a fresh random salt into it via SHA-256, yielding a
// 256-bit AES key and a 16-byte IV (spec 4.4).
func (k *KeyAgreement) Derive(clientKey *ecdsa.PublicKey) (key [32]byte, iv [16]byte, salt []byte, err error) {
	serverECDH, err := k.ephemeral.ECDH()
	if err != nil {
		return key, iv, nil, errs.Wrap(errs.Fatal, "crypto: ephemeral key not ecdh-capable", err)
	}
	clientECDH, err := ecdsaPublicToECDH(clientKey)
	if err != nil {
		return key, iv, nil, err
	}
	secret, err := serverECDH.ECDH(clientECDH)
	if err != nil {
		return key, iv, nil, errs.Wrap(errs.Unauthenticated, "crypto: ecdh agreement failed", err)
	}

	salt = make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return key, iv, nil, errs.Wrap(errs.Fatal, "crypto: rng failure", err)
	}

	digest := sha256.Sum256(append(append([]byte{}, salt...), secret...))
	copy(key[:], digest[:32])
	copy(iv[:], digest[:16])
	return key, iv, salt, nil
}

func ecdsaPublicToECDH(pub *ecdsa.PublicKey) (*ecdh.PublicKey, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errs.Wrap(errs.Unauthenticated, "crypto: cannot marshal client key", err)
	}
	generic, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errs.Wrap(errs.Unauthenticated, "crypto: cannot reparse client key", err)
	}
	asEC, ok := generic.(*ecdsa.PublicKey)
	if !ok {
		return nil, errs.New(errs.Unauthenticated, "crypto: client key is not ECDSA")
	}
	return asEC.ECDH()
}

// ServerHandshakeJWT builds the ServerToClientHandshake payload: a JWT
// signed by the server's ephemeral key, header carrying the server's
// public key (X5U), payload carrying the salt the client needs to
// derive the same AES key/IV.
func (k *KeyAgreement) ServerHandshakeJWT(salt []byte) (string, error) {
	x5u, err := EncodeSPKI(&k.ephemeral.PublicKey)
	if err != nil {
		return "", err
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES384, Key: k.ephemeral}, &jose.SignerOptions{
		ExtraHeaders: map[jose.HeaderKey]interface{}{"x5u": x5u},
	})
	if err != nil {
		return "", errs.Wrap(errs.Fatal, "crypto: signer construction failed", err)
	}

	payload := fmt.Sprintf(`{"salt":%q,"exp":%d,"nbf":%d}`,
		base64.RawStdEncoding.EncodeToString(salt),
		time.Now().Add(time.Hour).Unix(),
		time.Now().Add(-time.Minute).Unix(),
	)
	obj, err := signer.Sign([]byte(payload))
	if err != nil {
		return "", errs.Wrap(errs.Fatal, "crypto: jwt signing failed", err)
	}
	return obj.CompactSerialize()
}
