package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, looksLikeHTML("<html><body>hi</body></html>"))
	assert.True(t, looksLikeHTML("  <!DOCTYPE html>\n<html>"))
	assert.False(t, looksLikeHTML("plain text body"))
}

func TestLooksLikeMIMEMessage(t *testing.T) {
	assert.True(t, looksLikeMIMEMessage("MIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=x\r\n\r\nbody"))
	assert.False(t, looksLikeMIMEMessage("just a plain body with no headers"))
}

func TestChooseEncodingASCII(t *testing.T) {
	charset, encoding, encoded := chooseEncoding("hello world")
	assert.Equal(t, "us-ascii", charset)
	assert.Equal(t, "7bit", encoding)
	assert.Equal(t, "hello world", string(encoded))
}

func TestChooseEncodingLatin1(t *testing.T) {
	charset, encoding, raw := chooseEncoding("café")
	assert.Equal(t, "iso-8859-1", charset)
	assert.Equal(t, "quoted-printable", encoding)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xE9}, raw, "body is converted to single-byte latin-1")
}

func TestChooseEncodingUTF8(t *testing.T) {
	charset, encoding, raw := chooseEncoding("emoji \U0001F600")
	assert.Equal(t, "utf-8", charset)
	assert.Equal(t, "base64", encoding)
	assert.Equal(t, "emoji \U0001F600", string(raw), "body stays raw utf-8; the writer applies base64")
}

func TestComposeMessagePassesThroughPrebuiltMIME(t *testing.T) {
	raw := "MIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=x\r\n\r\n--x--"
	msg, err := composeMessage("from@x.com", "to@x.com", "subj", raw)
	require.NoError(t, err)
	assert.Equal(t, raw, string(msg))
}

func TestComposeMessagePlainBody(t *testing.T) {
	msg, err := composeMessage("from@x.com", "to@x.com", "subj", "hello body")
	require.NoError(t, err)
	out := string(msg)
	assert.True(t, strings.Contains(out, "Subject: subj"))
	assert.True(t, strings.Contains(out, "From: <from@x.com>") || strings.Contains(out, "from@x.com"))
}

func TestLatin1BytesRoundTrip(t *testing.T) {
	raw := latin1Bytes("naïve café")
	assert.Len(t, raw, 10, "one byte per rune")
}
