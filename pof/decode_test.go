package pof

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_HeaderOnlyMessage(t *testing.T) {
	hdr := Header{Version: Version, Type: TypeFeaturesRequest, Length: HeaderLen, XID: 42}

	msg, err := Decode(hdr, nil)
	require.NoError(t, err)

	got, ok := msg.(*Header)
	require.True(t, ok)
	require.Equal(t, hdr, *got)
}

func TestDecode_EchoRoundTrip(t *testing.T) {
	req := NewEchoRequest(7, []byte("ping"))
	var buf bytes.Buffer
	_, err := req.WriteTo(&buf)
	require.NoError(t, err)

	body := buf.Bytes()[HeaderLen:]
	msg, err := Decode(req.Header, body)
	require.NoError(t, err)

	echo, ok := msg.(*Echo)
	require.True(t, ok)
	require.Equal(t, []byte("ping"), echo.Data)
	require.Equal(t, TypeEchoRequest, echo.Header.Type)
}

func TestDecode_UnknownType(t *testing.T) {
	hdr := Header{Version: Version, Type: Type(250), Length: HeaderLen}
	_, err := Decode(hdr, nil)
	require.Error(t, err)

	var unknown UnknownMessageTypeError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, Type(250), unknown.Type)
}
