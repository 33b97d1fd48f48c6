package pof

import (
	"bytes"
	"testing"

	"github.com/USTC-INFINITELAB/pctrl/internal/codectest"
	"github.com/stretchr/testify/require"
)

func TestField_WireForm(t *testing.T) {
	codectest.Run(t, []codectest.Case{
		{
			RW:    &Field{Name: "eth_dst", FieldID: 3, OffsetInBits: 0, LengthInBits: 48},
			Bytes: []byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x30, 0x00, 0x00},
		},
		{
			RW:    &Field{FieldID: MetadataFieldID, OffsetInBits: 16, LengthInBits: 32},
			Bytes: []byte{0xff, 0xff, 0x00, 0x10, 0x00, 0x20, 0x00, 0x00},
		},
	})
}

func TestField_IsMetadata(t *testing.T) {
	require.True(t, Field{FieldID: MetadataFieldID}.IsMetadata())
	require.False(t, Field{FieldID: 3}.IsMetadata())
}

func TestField_NameNeverOnWire(t *testing.T) {
	f := Field{Name: "eth_dst", FieldID: 3, OffsetInBits: 0, LengthInBits: 48}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	var decoded Field
	_, err = decoded.ReadFrom(&buf)
	require.NoError(t, err)
	require.Empty(t, decoded.Name, "ReadFrom never populates Name; it only ever exists controller-side")
	require.Equal(t, f.FieldID, decoded.FieldID)
}
