package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/bls-remote-signer/internal/config"
)

func TestParseUpcheck(t *testing.T) {
	buf := []byte("GET /upcheck HTTP/1.1\r\nHost: x\r\n\r\n")
	req, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, MethodGET, req.Method)
	assert.Equal(t, EndpointUpcheck, req.Endpoint)
}

func TestParseListKeysEmptyAccept(t *testing.T) {
	buf := []byte("GET /api/v1/eth2/publicKeys HTTP/1.1\r\n\r\n")
	req, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, EndpointListKeys, req.Endpoint)
	assert.Equal(t, TextPlain, req.Accept)
}

func TestParseSignPath(t *testing.T) {
	pk := ""
	for i := 0; i < 96; i++ {
		pk += "0"
	}
	body := `{"signingRoot":"0x00"}`
	buf := []byte("POST /api/v1/eth2/sign/0x" + pk + " HTTP/1.1\r\nAccept: application/json\r\nContent-Length: " +
		itoa(len(body)) + "\r\n\r\n" + body)

	req, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, EndpointSign, req.Endpoint)
	assert.Equal(t, pk, req.SignPKHex)
	assert.Equal(t, ApplicationJSON, req.Accept)
	assert.Equal(t, body, string(req.Body(buf)))
}

func TestParseImportPath(t *testing.T) {
	body := `{"keystores":[],"passwords":[]}`
	buf := []byte("POST /eth/v1/keystores HTTP/1.1\r\nContent-Length: " + itoa(len(body)) + "\r\n\r\n" + body)

	req, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, EndpointImport, req.Endpoint)
}

func TestParseUnrecognizedPath(t *testing.T) {
	buf := []byte("GET /nope HTTP/1.1\r\n\r\n")
	req, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, EndpointUnrecognized, req.Endpoint)
}

func TestParseUnsupportedMethod(t *testing.T) {
	buf := []byte("PUT /upcheck HTTP/1.1\r\n\r\n")
	_, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	assert.Equal(t, Invalid, status)
}

func TestParseHeaderBlockNeverTerminatedSmallBuffer(t *testing.T) {
	buf := []byte("GET /upcheck HTTP/1.1\r\nHost: x")
	_, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	assert.Equal(t, Incomplete, status)
}

func TestParseHeaderBlockNeverTerminatedLargeBuffer(t *testing.T) {
	buf := make([]byte, 0, headerStallThreshold+10)
	buf = append(buf, []byte("GET /upcheck HTTP/1.1\r\n")...)
	for len(buf) < headerStallThreshold+1 {
		buf = append(buf, 'a')
	}
	_, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	assert.Equal(t, Invalid, status)
}

func TestParseTrailingBytesAfterBodyIsInvalid(t *testing.T) {
	body := `{"a":1}`
	buf := []byte("POST /eth/v1/keystores HTTP/1.1\r\nContent-Length: " + itoa(len(body)) + "\r\n\r\n" + body + "XTRA")
	_, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	assert.Equal(t, Invalid, status)
}

// TestParseOneByteAtATime feeds a valid POST one byte at a time and
// checks it yields Incomplete until the final byte, then Complete, with
// one extra trailing byte flipping the result to Invalid.
func TestParseOneByteAtATime(t *testing.T) {
	body := `{"keystores":[],"passwords":[]}`
	full := []byte("POST /eth/v1/keystores HTTP/1.1\r\nContent-Length: " + itoa(len(body)) + "\r\n\r\n" + body)

	for n := 1; n < len(full); n++ {
		_, status, err := Parse(full[:n], config.Default())
		require.NoError(t, err)
		assert.Equal(t, Incomplete, status, "prefix length %d should be Incomplete", n)
	}

	_, status, err := Parse(full, config.Default())
	require.NoError(t, err)
	assert.Equal(t, Complete, status)

	withExtra := append(append([]byte(nil), full...), 'Z')
	_, status, err = Parse(withExtra, config.Default())
	require.NoError(t, err)
	assert.Equal(t, Invalid, status)
}

func TestParseCaseInsensitiveHeaderName(t *testing.T) {
	body := `{}`
	buf := []byte("POST /eth/v1/keystores HTTP/1.1\r\nCONTENT-LENGTH: " + itoa(len(body)) + "\r\naccept: APPLICATION/JSON\r\n\r\n" + body)
	req, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, ApplicationJSON, req.Accept)
}

func TestParsePathIsCaseSensitive(t *testing.T) {
	buf := []byte("GET /Upcheck HTTP/1.1\r\n\r\n")
	req, status, err := Parse(buf, config.Default())
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, EndpointUnrecognized, req.Endpoint)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
