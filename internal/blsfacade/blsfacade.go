// Package blsfacade wraps the BLS12-381 primitives (keygen, sk->pk in
// G1, sign in G2) behind a small interface, treating the raw curve
// arithmetic as an assumed-correct upstream library, not part of this
// core.
package blsfacade

import (
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
)

// dst is the Eth2 domain separation tag for min-pubkey-size BLS
// signatures, matching the convention consensus clients expect when they
// verify a signature produced by this signer.
const dst = "BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_"

// SecretKey is a BLS12-381 Fr scalar.
type SecretKey = blst.SecretKey

// KeygenFromIKM derives a secret key from input keying material and an
// optional info string. ikm must be at least 32 bytes; this is enforced
// by the underlying library, not re-checked here.
func KeygenFromIKM(ikm, info []byte) (*SecretKey, error) {
	sk := blst.KeyGen(ikm, info)
	if sk == nil {
		return nil, fmt.Errorf("blsfacade: keygen failed")
	}
	return sk, nil
}

// SecretFromBytes reconstructs a secret key from its 32-byte scalar
// encoding, used on the EIP-2335 import path where the scalar comes from
// the KDF/cipher pipeline rather than fresh IKM.
func SecretFromBytes(b [32]byte) (*SecretKey, error) {
	sk := new(SecretKey).Deserialize(b[:])
	if sk == nil {
		return nil, fmt.Errorf("blsfacade: invalid secret key encoding")
	}
	return sk, nil
}

// SecretBytes returns the 32-byte scalar encoding of sk, used for
// duplicate detection in the keystore.
func SecretBytes(sk *SecretKey) [32]byte {
	var out [32]byte
	copy(out[:], sk.Serialize())
	return out
}

// PublicKey derives the G1-compressed public key (48 bytes) for sk.
func PublicKey(sk *SecretKey) [48]byte {
	var out [48]byte
	pk := new(blst.P1Affine).From(sk)
	copy(out[:], pk.Compress())
	return out
}

// Sign produces a G2-compressed signature (96 bytes) over signingRoot,
// using the Eth2 domain separation tag so consensus clients verify it
// correctly.
func Sign(sk *SecretKey, signingRoot [32]byte) [96]byte {
	var out [96]byte
	sig := new(blst.P2Affine).Sign(sk, signingRoot[:], []byte(dst))
	copy(out[:], sig.Compress())
	return out
}

// Verify checks that sig is a valid signature by pk over signingRoot.
// Used only by tests; the request path never verifies its own output.
func Verify(pk [48]byte, signingRoot [32]byte, sig [96]byte) bool {
	pkAffine := new(blst.P1Affine).Uncompress(pk[:])
	if pkAffine == nil {
		return false
	}
	sigAffine := new(blst.P2Affine).Uncompress(sig[:])
	if sigAffine == nil {
		return false
	}
	return sigAffine.Verify(true, pkAffine, true, signingRoot[:], []byte(dst))
}
