// Package crypto implements the Bedrock login handshake of spec
// section 4.4: the JWT identity-chain validator, the P-384 ECDH key
// agreement, and the per-direction AES-CTR stream cipher with its
// checksum trailer.
package crypto

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/google/uuid"

	"bedrockd/source/errs"
)

// MojangRootPublicKey is the well-known root public key every
// third-party Bedrock server ships. ValidateIdentityChain requires
// token 2 to carry it as its identityPublicKey, so token 3 is verified
// against it, i.e. must have been signed by Mojang's session service.
const MojangRootPublicKey = "MHYwEAYHKoZIzj0CAQYFK4EEACIDYgAECRXueJeTDqNRRgJi/vlRufByu/2G0i2Ebt6YMar5QX/R0DIIyrJMcUpruK4QveTfJSTp3Shlq4Gk34cD/4GUWwkv0DVuzeuB+tXDFdfnzDKLf4EaWc6Chbnon3OKu+iE"

// IdentityClaims is the subset of the chain's final token payload the
// Bedrock session cares about (spec 3, "Bedrock session holds: peer
// identity").
type IdentityClaims struct {
	XUID        string
	DisplayName string
	Identity    string // UUID string form
	PublicKey   *ecdsa.PublicKey
}

// ValidateIdentityChain implements spec 4.4's three-token chain:
// self-signed token 1 bootstraps its own verification key, token 2
// must be Mojang-issued and carry the well-known Mojang key, token 3
// (also Mojang-issued) carries the player's extraData and session
// public key.
func ValidateIdentityChain(tokens []string) (*IdentityClaims, error) {
	if len(tokens) != 3 {
		return nil, errs.New(errs.Unauthenticated, "login: identity chain must have exactly 3 tokens")
	}

	key1, err := selfSignedKey(tokens[0])
	if err != nil {
		return nil, err
	}
	payload1, err := verifyES384(tokens[0], key1)
	if err != nil {
		return nil, err
	}
	key2, err := publicKeyFromClaim(payload1, "identityPublicKey")
	if err != nil {
		return nil, err
	}

	payload2, err := verifyES384(tokens[1], key2)
	if err != nil {
		return nil, err
	}
	if issuer(payload2) != "Mojang" {
		return nil, errs.New(errs.Unauthenticated, "login: token 2 not issued by Mojang")
	}
	mojangKeyInToken, err := stringClaim(payload2, "identityPublicKey")
	if err != nil {
		return nil, err
	}
	if mojangKeyInToken != MojangRootPublicKey {
		return nil, errs.New(errs.Unauthenticated, "login: token 2 identityPublicKey is not the Mojang root key")
	}
	key3, err := publicKeyFromClaim(payload2, "identityPublicKey")
	if err != nil {
		return nil, err
	}

	payload3, err := verifyES384(tokens[2], key3)
	if err != nil {
		return nil, err
	}
	if issuer(payload3) != "Mojang" {
		return nil, errs.New(errs.Unauthenticated, "login: token 3 not issued by Mojang")
	}

	extra, ok := payload3["extraData"].(map[string]interface{})
	if !ok {
		return nil, errs.New(errs.Unauthenticated, "login: token 3 missing extraData")
	}
	sessionKey, err := publicKeyFromClaim(payload3, "identityPublicKey")
	if err != nil {
		return nil, err
	}

	identity := fmt.Sprint(extra["identity"])
	if _, err := uuid.Parse(identity); err != nil {
		return nil, errs.Wrap(errs.Unauthenticated, "login: extraData.identity is not a uuid", err)
	}

	return &IdentityClaims{
		XUID:        fmt.Sprint(extra["XUID"]),
		DisplayName: fmt.Sprint(extra["displayName"]),
		Identity:    identity,
		PublicKey:   sessionKey,
	}, nil
}

// ValidateUserDataToken verifies the single user-data JWT (device
// info, skin) against the identity chain's final public key, with no
// issuer check (spec 4.4).
func ValidateUserDataToken(token string, identityKey *ecdsa.PublicKey) (map[string]interface{}, error) {
	return verifyES384(token, identityKey)
}

// selfSignedKey recovers the public key embedded in a JWT's header
// X5U field (a base64-encoded SubjectPublicKeyInfo), used to verify
// the first, self-signed token of the identity chain.
func selfSignedKey(token string) (*ecdsa.PublicKey, error) {
	sig, err := jose.ParseSigned(token)
	if err != nil {
		return nil, errs.Wrap(errs.Unauthenticated, "login: malformed jwt", err)
	}
	if len(sig.Signatures) == 0 {
		return nil, errs.New(errs.Unauthenticated, "login: jwt has no signatures")
	}
	x5u, ok := sig.Signatures[0].Header.ExtraHeaders[jose.HeaderKey("x5u")].(string)
	if !ok || x5u == "" {
		return nil, errs.New(errs.Unauthenticated, "login: jwt header missing x5u")
	}
	return decodeSPKI(x5u)
}

func decodeSPKI(b64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, errs.Wrap(errs.Unauthenticated, "login: bad x5u base64", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errs.Wrap(errs.Unauthenticated, "login: bad spki", err)
	}
	ecKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errs.New(errs.Unauthenticated, "login: spki is not an ECDSA key")
	}
	return ecKey, nil
}

func publicKeyFromClaim(payload map[string]interface{}, field string) (*ecdsa.PublicKey, error) {
	s, err := stringClaim(payload, field)
	if err != nil {
		return nil, err
	}
	return decodeSPKI(s)
}

func stringClaim(payload map[string]interface{}, field string) (string, error) {
	v, ok := payload[field]
	if !ok {
		return "", errs.New(errs.Unauthenticated, fmt.Sprintf("login: jwt payload missing %q", field))
	}
	s, ok := v.(string)
	if !ok {
		return "", errs.New(errs.Unauthenticated, fmt.Sprintf("login: jwt payload field %q is not a string", field))
	}
	return s, nil
}

func issuer(payload map[string]interface{}) string {
	s, _ := payload["iss"].(string)
	return s
}

// verifyES384 checks the token's ES384 signature against key and
// validates exp/nbf, returning the decoded claim map.
func verifyES384(token string, key *ecdsa.PublicKey) (map[string]interface{}, error) {
	sig, err := jose.ParseSigned(token)
	if err != nil {
		return nil, errs.Wrap(errs.Unauthenticated, "login: malformed jwt", err)
	}
	if len(sig.Signatures) != 1 || sig.Signatures[0].Header.Algorithm != string(jose.ES384) {
		return nil, errs.New(errs.Unauthenticated, "login: jwt is not a single ES384 signature")
	}
	raw, err := sig.Verify(key)
	if err != nil {
		return nil, errs.Wrap(errs.Unauthenticated, "login: jwt signature invalid", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.Unauthenticated, "login: jwt payload is not json", err)
	}

	now := time.Now()
	if exp, ok := numClaim(payload, "exp"); ok && now.After(time.Unix(exp, 0)) {
		return nil, errs.New(errs.Unauthenticated, "login: jwt expired")
	}
	if nbf, ok := numClaim(payload, "nbf"); ok && now.Before(time.Unix(nbf, 0)) {
		return nil, errs.New(errs.Unauthenticated, "login: jwt not yet valid")
	}
	return payload, nil
}

func numClaim(payload map[string]interface{}, field string) (int64, bool) {
	v, ok := payload[field]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// EncodeSPKI base64-encodes an ECDSA public key as a
// SubjectPublicKeyInfo, the form the X5U header and identityPublicKey
// claims carry on the wire.
func EncodeSPKI(key *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
