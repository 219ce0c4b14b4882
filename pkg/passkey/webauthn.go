package passkey

import (
	"bytes"
	"context"
	"crypto/elliptic"
	"encoding/asn1"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// ErrNoAuthenticator is returned when signing without a platform authenticator.
var ErrNoAuthenticator = errors.New("no authenticator available")

// Assertion is a WebAuthn authenticator response.
type Assertion struct {
	AuthenticatorData []byte
	ClientDataJSON    []byte
	Signature         []byte // ASN.1 DER (r, s)
}

// Assertor asks a platform authenticator to sign challenge with the
// credential rawID. Implementations block until the user responds.
type Assertor interface {
	GetAssertion(ctx context.Context, rawID string, challenge []byte) (*Assertion, error)
}

// Verifiers packs the P-256 precompile and fallback verifier the way the
// signer factory expects: uint176(precompile << 160 | fallback).
func Verifiers(precompile uint16, fallback common.Address) *big.Int {
	v := new(big.Int).Lsh(big.NewInt(int64(precompile)), 160)
	return v.Or(v, new(big.Int).SetBytes(fallback.Bytes()))
}

const signerFactoryABIJSON = `[
	{"inputs":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"},{"name":"verifiers","type":"uint176"}],"name":"getSigner","outputs":[{"name":"signer","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"},{"name":"verifiers","type":"uint176"}],"name":"createSigner","outputs":[{"name":"signer","type":"address"}],"stateMutability":"nonpayable","type":"function"}
]`

var signerFactoryABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(signerFactoryABIJSON))
	if err != nil {
		panic("passkey: invalid ABI: " + err.Error())
	}
	return parsed
}()

var webAuthnSignatureArgs = func() abi.Arguments {
	bytesT, _ := abi.NewType("bytes", "", nil)
	stringT, _ := abi.NewType("string", "", nil)
	pairT, _ := abi.NewType("uint256[2]", "", nil)
	return abi.Arguments{{Type: bytesT}, {Type: stringT}, {Type: pairT}}
}()

var clientDataFieldsRe = regexp.MustCompile(`^\{"type":"webauthn\.get","challenge":"([A-Za-z0-9\-_]{43})",(.*)\}$`)

var p256HalfN = new(big.Int).Rsh(elliptic.P256().Params().N, 1)

// WebAuthnSigner is a Safe owner backed by a passkey. Its address is the
// SafeWebAuthnSignerProxy for the credential's public key.
type WebAuthnSigner struct {
	cred      domain.Credential
	x, y      *big.Int
	factory   common.Address
	verifiers *big.Int
	address   common.Address
	assertor  Assertor
}

// NewWebAuthnSigner resolves the signer proxy address for cred.
func NewWebAuthnSigner(ctx context.Context, caller ethereum.ContractCaller, factory common.Address, verifiers *big.Int, cred domain.Credential, assertor Assertor) (*WebAuthnSigner, error) {
	x, err := parseCoordinate(cred.Coordinates.X)
	if err != nil {
		return nil, fmt.Errorf("invalid x coordinate: %w", err)
	}
	y, err := parseCoordinate(cred.Coordinates.Y)
	if err != nil {
		return nil, fmt.Errorf("invalid y coordinate: %w", err)
	}

	data, err := signerFactoryABI.Pack("getSigner", x, y, verifiers)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getSigner call: %w", err)
	}
	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getSigner: %w", err)
	}
	var address common.Address
	if err := signerFactoryABI.UnpackIntoInterface(&address, "getSigner", result); err != nil {
		return nil, fmt.Errorf("failed to unpack getSigner result: %w", err)
	}

	return &WebAuthnSigner{
		cred:      cred,
		x:         x,
		y:         y,
		factory:   factory,
		verifiers: verifiers,
		address:   address,
		assertor:  assertor,
	}, nil
}

// Address returns the signer proxy address.
func (s *WebAuthnSigner) Address() common.Address {
	return s.address
}

// Credential returns the backing credential.
func (s *WebAuthnSigner) Credential() domain.Credential {
	return s.cred
}

// SetupCall deploys the signer proxy as part of Safe setup.
func (s *WebAuthnSigner) SetupCall() (*domain.Call, error) {
	data, err := signerFactoryABI.Pack("createSigner", s.x, s.y, s.verifiers)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createSigner: %w", err)
	}
	return &domain.Call{To: s.factory, Value: new(big.Int), Data: data}, nil
}

// Sign asks the authenticator to sign digest and returns a Safe contract
// signature for the signer proxy.
func (s *WebAuthnSigner) Sign(ctx context.Context, digest common.Hash) ([]byte, error) {
	if s.assertor == nil {
		return nil, ErrNoAuthenticator
	}

	assertion, err := s.assertor.GetAssertion(ctx, s.cred.RawID, digest.Bytes())
	if err != nil {
		return nil, fmt.Errorf("authenticator assertion failed: %w", err)
	}

	challenge, fields, err := ClientDataFields(assertion.ClientDataJSON)
	if err != nil {
		return nil, err
	}
	if challenge != base64.RawURLEncoding.EncodeToString(digest.Bytes()) {
		return nil, fmt.Errorf("assertion challenge does not match operation hash")
	}

	r, sv, err := parseDERSignature(assertion.Signature)
	if err != nil {
		return nil, err
	}

	encoded, err := webAuthnSignatureArgs.Pack(assertion.AuthenticatorData, fields, [2]*big.Int{r, sv})
	if err != nil {
		return nil, fmt.Errorf("failed to encode webauthn signature: %w", err)
	}
	return contractSignature(s.address, encoded), nil
}

// DummySignature is shaped like a real assertion for gas estimation.
func (s *WebAuthnSigner) DummySignature() []byte {
	authData := append(bytes.Repeat([]byte{0xfe}, 32), 0x04, 0xfe, 0xfe, 0xfe, 0xfe)
	fields := `"origin":"https://safe.global","crossOrigin":false`
	maxWord := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	encoded, err := webAuthnSignatureArgs.Pack(authData, fields, [2]*big.Int{maxWord, maxWord})
	if err != nil {
		panic("passkey: dummy signature: " + err.Error())
	}
	return contractSignature(s.address, encoded)
}

// ClientDataFields splits a webauthn.get clientDataJSON into its challenge
// and the fields that follow it, as the on-chain verifier reconstructs them.
func ClientDataFields(clientDataJSON []byte) (challenge, fields string, err error) {
	m := clientDataFieldsRe.FindSubmatch(clientDataJSON)
	if m == nil {
		return "", "", fmt.Errorf("client data JSON has an unexpected layout")
	}
	return string(m[1]), string(m[2]), nil
}

// contractSignature wraps data as a Safe EIP-1271 signature for owner:
// r = owner, s = offset of the dynamic part (65), v = 0, then len ++ data.
func contractSignature(owner common.Address, data []byte) []byte {
	out := make([]byte, 0, 65+32+len(data))
	out = append(out, common.LeftPadBytes(owner.Bytes(), 32)...)
	out = append(out, common.LeftPadBytes(big.NewInt(65).Bytes(), 32)...)
	out = append(out, 0)
	out = append(out, common.LeftPadBytes(big.NewInt(int64(len(data))).Bytes(), 32)...)
	return append(out, data...)
}

func parseDERSignature(der []byte) (*big.Int, *big.Int, error) {
	var sig struct {
		R, S *big.Int
	}
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid DER signature: %w", err)
	}
	if len(rest) != 0 {
		return nil, nil, fmt.Errorf("trailing bytes after DER signature")
	}
	if sig.S.Cmp(p256HalfN) > 0 {
		sig.S = new(big.Int).Sub(elliptic.P256().Params().N, sig.S)
	}
	return sig.R, sig.S, nil
}

func parseCoordinate(v string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimPrefix(v, "0x"), 16)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("%q is not a hex integer", v)
	}
	return n, nil
}
