package pof

import (
	"testing"

	"github.com/USTC-INFINITELAB/pctrl/internal/codectest"
	"github.com/stretchr/testify/require"
)

func TestHeader_WireForm(t *testing.T) {
	codectest.Run(t, []codectest.Case{
		{
			RW:    &Header{Version: Version, Type: TypeHello, Length: 8, XID: 1},
			Bytes: []byte{0x04, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x01},
		},
		{
			RW:    &Header{Version: Version, Type: TypeFeaturesRequest, Length: 8, XID: 0xdeadbeef},
			Bytes: []byte{0x04, 0x05, 0x00, 0x08, 0xde, 0xad, 0xbe, 0xef},
		},
	})
}

func TestHeader_Valid(t *testing.T) {
	require.True(t, Header{Version: Version, Type: TypeFeaturesReply}.Valid())
	require.False(t, Header{Version: 0x01, Type: TypeFeaturesReply}.Valid())
	require.True(t, Header{Version: 0x01, Type: TypeHello}.Valid(), "HELLO is exempt from version checking")
}

func TestType_String(t *testing.T) {
	require.Equal(t, "FEATURES_REPLY", TypeFeaturesReply.String())
	require.Equal(t, "Type(200)", Type(200).String())
}
