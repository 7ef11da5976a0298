// Package httpsign implements the endpoint handlers and response
// composer: upcheck, list keys, sign, import, and the canonical HTTP/1.1
// response writer that derives Content-Length from the rendered body
// rather than a formula.
package httpsign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/Bidon15/bls-remote-signer/internal/config"
	"github.com/Bidon15/bls-remote-signer/internal/eip2335"
	"github.com/Bidon15/bls-remote-signer/internal/hexcodec"
	"github.com/Bidon15/bls-remote-signer/internal/httpsign/parse"
	"github.com/Bidon15/bls-remote-signer/internal/keystore"
	"github.com/Bidon15/bls-remote-signer/internal/primitives"
	"github.com/Bidon15/bls-remote-signer/internal/signerrors"
)

// ContentType is the small, closed set of content types this core emits.
type ContentType int

const (
	ContentTypeJSON ContentType = iota
	ContentTypeText
)

func (c ContentType) header() string {
	if c == ContentTypeText {
		return "text/plain"
	}
	return "application/json"
}

// Compose renders a full HTTP/1.1 response: status line, Content-Type,
// Content-Length computed from the actual body length, a blank line, and
// the body. It never chunks and never writes into a fixed-size buffer
// that could silently truncate.
func Compose(statusCode int, ct ContentType, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(statusLine(statusCode))
	buf.WriteString("Content-Type: " + ct.header() + "\r\n")
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

func statusLine(code int) string {
	switch code {
	case 200:
		return "HTTP/1.1 200 OK\r\n"
	case 400:
		return "HTTP/1.1 400 Bad Request\r\n"
	case 404:
		return "HTTP/1.1 404 Not Found\r\n"
	default:
		return fmt.Sprintf("HTTP/1.1 %d \r\n", code)
	}
}

// Deps bundles the process-wide collaborators a Dispatch call needs. The
// keystore carries no lock of its own (see package keystore's doc
// comment); Dispatch is what the caller must serialize.
type Deps struct {
	Keystore *keystore.Keystore
	RNG      primitives.RNG
	Config   config.Config
}

// Dispatch routes a successfully parsed request to its handler and
// renders the response. buf must be the same buffer req was parsed from.
func Dispatch(req parse.Request, buf []byte, deps Deps) []byte {
	switch req.Endpoint {
	case parse.EndpointUpcheck:
		return handleUpcheck()
	case parse.EndpointListKeys:
		return handleListKeys(deps.Keystore)
	case parse.EndpointSign:
		return handleSign(req, buf, deps)
	case parse.EndpointImport:
		return handleImport(req, buf, deps)
	default:
		return Compose(400, ContentTypeJSON, nil)
	}
}

func handleUpcheck() []byte {
	return Compose(200, ContentTypeText, nil)
}

func handleListKeys(ks *keystore.Keystore) []byte {
	return Compose(200, ContentTypeJSON, formatListKeysBody(ks.PublicKeys()))
}

// formatListKeysBody renders the exact "[\n\"0x...\",\n...\n]" shape,
// with a comma only between entries. Shared by ListKeys and the
// post-Import response, which render identically on success.
func formatListKeysBody(pubkeys []string) []byte {
	if len(pubkeys) == 0 {
		return []byte("[\n]")
	}
	var b bytes.Buffer
	b.WriteString("[\n")
	for i, pk := range pubkeys {
		b.WriteByte('"')
		b.WriteString(pk)
		b.WriteByte('"')
		if i != len(pubkeys)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteByte(']')
	return b.Bytes()
}

type signRequestBody struct {
	SigningRoot string `json:"signingRoot"`
}

func handleSign(req parse.Request, buf []byte, deps Deps) []byte {
	idx, err := deps.Keystore.LookupByPublicKeyHex(req.SignPKHex)
	if err != nil {
		return Compose(signerrors.StatusFor(err), ContentTypeJSON, nil)
	}

	var body signRequestBody
	if jsonErr := json.Unmarshal(req.Body(buf), &body); jsonErr != nil {
		return Compose(400, ContentTypeJSON, nil)
	}
	rootHex := body.SigningRoot
	if len(rootHex) == 66 && rootHex[0:2] == "0x" {
		rootHex = rootHex[2:]
	}
	rootBytes, decErr := hexcodec.Decode(rootHex)
	if decErr != nil || len(rootBytes) != 32 {
		return Compose(400, ContentTypeJSON, nil)
	}
	var root [32]byte
	copy(root[:], rootBytes)

	sig, signErr := deps.Keystore.Sign(idx, root)
	if signErr != nil {
		return Compose(signerrors.StatusFor(signErr), ContentTypeJSON, nil)
	}
	sigHex := "0x" + hexcodec.Encode(sig[:])

	if req.Accept == parse.ApplicationJSON {
		return Compose(200, ContentTypeJSON, []byte(`{"signature": "`+sigHex+`"}`))
	}
	return Compose(200, ContentTypeText, []byte(sigHex))
}

type importRequestBody struct {
	Keystores []json.RawMessage `json:"keystores"`
	Passwords []string          `json:"passwords"`
}

// handleImport runs the EIP-2335 decryption pipeline over every
// (keystore, password) pair before mutating the store at all: every
// secret must decrypt before any is inserted, and keystore.ImportSecrets
// itself stages the batch so a capacity or duplicate failure mid-batch
// leaves the store untouched.
func handleImport(req parse.Request, buf []byte, deps Deps) []byte {
	var body importRequestBody
	if err := json.Unmarshal(req.Body(buf), &body); err != nil {
		return Compose(400, ContentTypeJSON, nil)
	}
	if len(body.Keystores) != len(body.Passwords) {
		return Compose(400, ContentTypeJSON, nil)
	}
	if len(body.Keystores) > deps.Config.WithDefaults().MaxKeys-deps.Keystore.Size() {
		return Compose(400, ContentTypeJSON, nil)
	}

	secrets := make([][32]byte, 0, len(body.Keystores))
	defer func() {
		for i := range secrets {
			secureZero(secrets[i][:])
		}
	}()

	for i := range body.Keystores {
		parsed, err := eip2335.Parse(body.Keystores[i])
		if err != nil {
			return Compose(signerrors.StatusFor(err), ContentTypeJSON, nil)
		}
		password := []byte(body.Passwords[i])
		secret, err := eip2335.Decrypt(deps.Config, parsed, password)
		secureZero(password)
		if err != nil {
			// Collapsed on purpose: the import pipeline must not leak which
			// step failed, and StatusFor maps every pipeline error to 400.
			return Compose(signerrors.StatusFor(err), ContentTypeJSON, nil)
		}
		secrets = append(secrets, secret)
	}

	if err := deps.Keystore.ImportSecrets(secrets); err != nil {
		return Compose(signerrors.StatusFor(err), ContentTypeJSON, nil)
	}
	return Compose(200, ContentTypeJSON, formatListKeysBody(deps.Keystore.PublicKeys()))
}

func secureZero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
