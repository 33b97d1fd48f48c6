package pmdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddProtocol_FieldOffsetsMustBeMonotone(t *testing.T) {
	d := New()

	proto, err := d.AddProtocol("ethernet", []FieldSpec{
		{Name: "dst_mac", Offset: 0, Length: 48},
		{Name: "src_mac", Offset: 48, Length: 48},
		{Name: "ethertype", Offset: 96, Length: 16},
	})
	require.NoError(t, err)
	require.Equal(t, uint16(112), proto.TotalLength)
	require.Len(t, proto.Fields, 3)

	_, err = d.AddProtocol("bad", []FieldSpec{
		{Name: "a", Offset: 10, Length: 8},
		{Name: "b", Offset: 4, Length: 8}, // precedes end of a (18)
	})
	require.Error(t, err)
}

func TestAddProtocol_DuplicateNameRejected(t *testing.T) {
	d := New()
	_, err := d.AddProtocol("ipv4", nil)
	require.NoError(t, err)

	_, err = d.AddProtocol("ipv4", nil)
	require.Error(t, err)
}

func TestDeleteProtocol_CascadesFields(t *testing.T) {
	d := New()
	proto, err := d.AddProtocol("arp", []FieldSpec{{Name: "opcode", Offset: 0, Length: 16}})
	require.NoError(t, err)

	fieldID := proto.Fields[0].FieldID
	_, ok := d.Field(fieldID)
	require.True(t, ok)

	require.NoError(t, d.DeleteProtocol(proto.ID))

	_, ok = d.Field(fieldID)
	require.False(t, ok, "field must be gone once its owning protocol is deleted")

	_, ok = d.Protocol(proto.ID)
	require.False(t, ok)
}

func TestMetadataField_OffsetMustNotOverlap(t *testing.T) {
	d := New()

	_, err := d.AddMetadataField("tunnel_id", 0, 32)
	require.NoError(t, err)

	_, err = d.AddMetadataField("vlan", 16, 12) // overlaps [0,32)
	require.Error(t, err)

	_, err = d.AddMetadataField("vlan", 32, 12)
	require.NoError(t, err)

	require.Len(t, d.MetadataFields(), 2)
}

func TestFieldsByName_IncludesMetadata(t *testing.T) {
	d := New()
	_, err := d.AddProtocol("custom", []FieldSpec{{Name: "tag", Offset: 0, Length: 8}})
	require.NoError(t, err)
	_, err = d.AddMetadataField("tag", 0, 8)
	require.NoError(t, err)

	matches := d.FieldsByName("tag")
	require.Len(t, matches, 2)
}
