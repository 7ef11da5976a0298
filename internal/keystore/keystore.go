// Package keystore implements the in-memory vault of BLS key pairs. It
// holds no lock: the core serves one request at a time with no
// concurrent clients, so callers are responsible for serializing access.
package keystore

import (
	"runtime"

	"github.com/Bidon15/bls-remote-signer/internal/blsfacade"
	"github.com/Bidon15/bls-remote-signer/internal/config"
	"github.com/Bidon15/bls-remote-signer/internal/hexcodec"
	"github.com/Bidon15/bls-remote-signer/internal/primitives"
	"github.com/Bidon15/bls-remote-signer/internal/signerrors"
)

// BlsKeyPair is a stored secret scalar and its derived G1-compressed public key.
type BlsKeyPair struct {
	secret [32]byte
	public [48]byte
}

// PublicKeyHex returns the 96-char lowercase hex public key, no "0x" prefix.
func (kp *BlsKeyPair) PublicKeyHex() string {
	return hexcodec.Encode(kp.public[:])
}

// Keystore is an ordered, capacity-bounded collection of BlsKeyPair.
// Indices are stable for the process lifetime; the zero value is not
// ready for use, call New instead.
type Keystore struct {
	cfg     config.Config
	entries []*BlsKeyPair
}

// New creates an empty keystore bounded by cfg.MaxKeys.
func New(cfg config.Config) *Keystore {
	cfg = cfg.WithDefaults()
	return &Keystore{
		cfg:     cfg,
		entries: make([]*BlsKeyPair, 0, cfg.MaxKeys),
	}
}

// Size returns the current number of stored key pairs.
func (k *Keystore) Size() int {
	return len(k.entries)
}

// InsertGenerated obtains 32 bytes of randomness from rng, conditions them
// into IKM via SHA-256, derives a fresh BLS key pair from (ikm, info), and
// appends it. The insertion is atomic: the whole key pair is built before
// any mutation, so a keygen failure never leaves a partial entry.
func (k *Keystore) InsertGenerated(rng primitives.RNG, info []byte) (int, error) {
	if len(k.entries) >= k.cfg.MaxKeys {
		return -1, signerrors.Wrap("keystore.InsertGenerated", signerrors.ErrFull)
	}

	seed := make([]byte, 32)
	if err := rng.Fill(seed); err != nil {
		return -1, signerrors.Wrap("keystore.InsertGenerated", signerrors.ErrRNG)
	}
	ikm := primitives.SHA256(seed)

	sk, err := blsfacade.KeygenFromIKM(ikm[:], info)
	if err != nil {
		return -1, signerrors.Wrap("keystore.InsertGenerated", signerrors.ErrInternal)
	}

	kp := &BlsKeyPair{
		secret: blsfacade.SecretBytes(sk),
		public: blsfacade.PublicKey(sk),
	}
	k.entries = append(k.entries, kp)
	return len(k.entries) - 1, nil
}

// InsertFromSecret stores a key pair derived from an already-known secret
// scalar, used by the EIP-2335 import pipeline. Rejects exact duplicates
// by comparing the 32-byte scalar, and rejects insertion past capacity.
func (k *Keystore) InsertFromSecret(sk [32]byte) (int, error) {
	if len(k.entries) >= k.cfg.MaxKeys {
		return -1, signerrors.Wrap("keystore.InsertFromSecret", signerrors.ErrFull)
	}
	for _, existing := range k.entries {
		if hexcodec.ConstantTimeEqual(existing.secret[:], sk[:]) {
			return -1, signerrors.Wrap("keystore.InsertFromSecret", signerrors.ErrDuplicateSecret)
		}
	}

	secretKey, err := blsfacade.SecretFromBytes(sk)
	if err != nil {
		return -1, signerrors.Wrap("keystore.InsertFromSecret", signerrors.ErrInternal)
	}

	kp := &BlsKeyPair{
		secret: sk,
		public: blsfacade.PublicKey(secretKey),
	}
	k.entries = append(k.entries, kp)
	return len(k.entries) - 1, nil
}

// ImportSecrets inserts a batch of secret scalars atomically: either every
// secret lands in the keystore, or none do. It stages the inserts against
// a scratch copy of the current entries and only commits the copy back if
// the whole batch succeeds, so a duplicate or capacity failure partway
// through the batch never leaves a partial mutation behind.
func (k *Keystore) ImportSecrets(secrets [][32]byte) error {
	staged := &Keystore{cfg: k.cfg, entries: append([]*BlsKeyPair(nil), k.entries...)}
	for _, sk := range secrets {
		if _, err := staged.InsertFromSecret(sk); err != nil {
			return err
		}
	}
	k.entries = staged.entries
	return nil
}

// LookupByPublicKeyHex returns the index of the key pair whose public key
// matches pkHex (96 lowercase hex chars, no "0x" prefix), or ErrNotFound.
func (k *Keystore) LookupByPublicKeyHex(pkHex string) (int, error) {
	want, err := hexcodec.Decode(pkHex)
	if err != nil || len(want) != 48 {
		return -1, signerrors.Wrap("keystore.LookupByPublicKeyHex", signerrors.ErrNotFound)
	}
	for i, kp := range k.entries {
		if hexcodec.ConstantTimeEqual(kp.public[:], want) {
			return i, nil
		}
	}
	return -1, signerrors.Wrap("keystore.LookupByPublicKeyHex", signerrors.ErrNotFound)
}

// Sign produces a 96-byte compressed G2 signature over signingRoot using
// the secret key at index.
func (k *Keystore) Sign(index int, signingRoot [32]byte) ([96]byte, error) {
	if index < 0 || index >= len(k.entries) {
		return [96]byte{}, signerrors.Wrap("keystore.Sign", signerrors.ErrNotFound)
	}
	sk, err := blsfacade.SecretFromBytes(k.entries[index].secret)
	if err != nil {
		return [96]byte{}, signerrors.Wrap("keystore.Sign", signerrors.ErrInternal)
	}
	return blsfacade.Sign(sk, signingRoot), nil
}

// PublicKeys returns every stored public key as a "0x"-prefixed hex
// string, in insertion order. Shared by the ListKeys handler and the
// post-Import response body so both render identically.
func (k *Keystore) PublicKeys() []string {
	out := make([]string, len(k.entries))
	for i, kp := range k.entries {
		out[i] = "0x" + kp.PublicKeyHex()
	}
	return out
}

// Reset zeroizes all secret material and empties the keystore.
func (k *Keystore) Reset() {
	for _, kp := range k.entries {
		secureZero(kp.secret[:])
	}
	k.entries = k.entries[:0]
}

// secureZero overwrites b with zeros. runtime.KeepAlive prevents the
// compiler from eliding the write as dead code.
func secureZero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
