// Package eip2335 implements the EIP-2335 keystore decryption pipeline:
// parameter extraction, KDF execution, checksum verification, and
// AES-128-CTR decryption, in that order, with every failure mode
// collapsing to one of the taxonomy's sentinel errors.
package eip2335

import (
	"encoding/json"
	"runtime"

	"github.com/Bidon15/bls-remote-signer/internal/config"
	"github.com/Bidon15/bls-remote-signer/internal/hexcodec"
	"github.com/Bidon15/bls-remote-signer/internal/primitives"
	"github.com/Bidon15/bls-remote-signer/internal/signerrors"
)

// EncryptedKeystore mirrors the EIP-2335 version 4 JSON shape. Only the
// crypto sub-object matters to decryption; path/pubkey/uuid/
// version/description are accepted but ignored, matching real keystore
// files that carry metadata this pipeline has no use for.
type EncryptedKeystore struct {
	Crypto struct {
		KDF struct {
			Function string          `json:"function"`
			Params   json.RawMessage `json:"params"`
			Message  string          `json:"message"`
		} `json:"kdf"`
		Checksum struct {
			Function string          `json:"function"`
			Params   json.RawMessage `json:"params"`
			Message  string          `json:"message"`
		} `json:"checksum"`
		Cipher struct {
			Function string `json:"function"`
			Params   struct {
				IV string `json:"iv"`
			} `json:"params"`
			Message string `json:"message"`
		} `json:"cipher"`
	} `json:"crypto"`
}

type scryptParams struct {
	DKLen int    `json:"dklen"`
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	Salt  string `json:"salt"`
}

type pbkdf2Params struct {
	DKLen int    `json:"dklen"`
	C     int    `json:"c"`
	PRF   string `json:"prf"`
	Salt  string `json:"salt"`
}

// Parse decodes raw EIP-2335 JSON into an EncryptedKeystore. Any decode
// failure collapses to ErrBadJSONFormat.
func Parse(raw []byte) (EncryptedKeystore, error) {
	var ks EncryptedKeystore
	if err := json.Unmarshal(raw, &ks); err != nil {
		return EncryptedKeystore{}, signerrors.Wrap("eip2335.Parse", signerrors.ErrBadJSONFormat)
	}
	return ks, nil
}

// Decrypt runs the full EIP-2335 pipeline: KDF, checksum verification,
// AES-128-CTR decryption. Once the key is derived, it is zeroized on every
// exit path, success or failure. password is neither copied nor modified
// here; zeroizing it is the caller's job.
func Decrypt(cfg config.Config, ks EncryptedKeystore, password []byte) (secret [32]byte, err error) {
	cipherMessage, err := hexcodec.Decode(ks.Crypto.Cipher.Message)
	if err != nil || len(cipherMessage) != 32 {
		return secret, signerrors.Wrap("eip2335.Decrypt", signerrors.ErrBadJSONFormat)
	}
	if ks.Crypto.Cipher.Function != "aes-128-ctr" {
		return secret, signerrors.Wrap("eip2335.Decrypt", signerrors.ErrBadJSONFormat)
	}
	iv, err := hexcodec.Decode(ks.Crypto.Cipher.Params.IV)
	if err != nil || len(iv) != 16 {
		return secret, signerrors.Wrap("eip2335.Decrypt", signerrors.ErrBadJSONFormat)
	}
	wantChecksum, err := hexcodec.Decode(ks.Crypto.Checksum.Message)
	if err != nil || len(wantChecksum) != 32 {
		return secret, signerrors.Wrap("eip2335.Decrypt", signerrors.ErrBadJSONFormat)
	}

	dk, err := deriveKey(cfg, ks, password)
	if err != nil {
		return secret, err
	}
	defer secureZero(dk)

	preimage := append(append([]byte(nil), dk[16:32]...), cipherMessage...)
	gotChecksum := primitives.SHA256(preimage)
	secureZero(preimage)
	if !hexcodec.ConstantTimeEqual(gotChecksum[:], wantChecksum) {
		return secret, signerrors.Wrap("eip2335.Decrypt", signerrors.ErrBadPassword)
	}

	plain, err := primitives.AES128CTR(dk[0:16], iv, cipherMessage)
	if err != nil {
		return secret, signerrors.Wrap("eip2335.Decrypt", signerrors.ErrInternal)
	}
	copy(secret[:], plain)
	return secret, nil
}

// deriveKey selects and runs the configured KDF against password,
// returning the 32-byte derived key.
func deriveKey(cfg config.Config, ks EncryptedKeystore, password []byte) (dk []byte, err error) {
	switch ks.Crypto.KDF.Function {
	case "pbkdf2":
		var p pbkdf2Params
		if jsonErr := json.Unmarshal(ks.Crypto.KDF.Params, &p); jsonErr != nil {
			return nil, signerrors.Wrap("eip2335.deriveKey", signerrors.ErrBadJSONFormat)
		}
		if p.DKLen != 32 || p.C <= 0 || p.PRF != "hmac-sha256" {
			return nil, signerrors.Wrap("eip2335.deriveKey", signerrors.ErrBadJSONFormat)
		}
		salt, decErr := hexcodec.Decode(p.Salt)
		if decErr != nil || len(salt) == 0 {
			return nil, signerrors.Wrap("eip2335.deriveKey", signerrors.ErrBadJSONFormat)
		}
		return primitives.PBKDF2HMACSHA256(password, salt, p.C, 32), nil
	case "scrypt":
		var p scryptParams
		if jsonErr := json.Unmarshal(ks.Crypto.KDF.Params, &p); jsonErr != nil {
			return nil, signerrors.Wrap("eip2335.deriveKey", signerrors.ErrBadJSONFormat)
		}
		if p.DKLen != 32 || p.N <= 1 || p.R <= 0 || p.P <= 0 || !isPowerOfTwo(p.N) {
			return nil, signerrors.Wrap("eip2335.deriveKey", signerrors.ErrBadJSONFormat)
		}
		if exceedsCeiling(p.N, p.R, p.P, cfg.ScryptMemoryCeiling) {
			return nil, signerrors.Wrap("eip2335.deriveKey", signerrors.ErrKdfTooExpensive)
		}
		salt, decErr := hexcodec.Decode(p.Salt)
		if decErr != nil || len(salt) == 0 {
			return nil, signerrors.Wrap("eip2335.deriveKey", signerrors.ErrBadJSONFormat)
		}
		dk, scryptErr := primitives.Scrypt(password, salt, p.N, p.R, p.P, 32)
		if scryptErr != nil {
			return nil, signerrors.Wrap("eip2335.deriveKey", signerrors.ErrInternal)
		}
		return dk, nil
	default:
		return nil, signerrors.Wrap("eip2335.deriveKey", signerrors.ErrBadJSONFormat)
	}
}

// isPowerOfTwo reports whether n is a power of two and at least 2, per
// scrypt's cost-parameter requirement.
func isPowerOfTwo(n int) bool {
	return n >= 2 && n&(n-1) == 0
}

// exceedsCeiling enforces a configured memory ceiling on scrypt's cost
// parameters, expressed in bytes as scrypt's working set roughly scales
// with n*r*p*128.
func exceedsCeiling(n, r, p int, ceiling int64) bool {
	cost := int64(n) * int64(r) * int64(p) * 128
	return cost > ceiling
}

func secureZero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
