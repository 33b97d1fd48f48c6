package pof

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// Every fixed-size message in the catalogue must pack to exactly its
// documented byte length, whatever its field values; the padded-slot
// rule makes the wire size a constant per type.
func TestMessages_FixedWireLengths(t *testing.T) {
	hello := NewHello(1)
	errMsg := NewError(2, 2, 0, 0x84045E6E, 0, "flow mod failed: table full")
	features := FeaturesReply{
		Header:     Header{Version: Version, Type: TypeFeaturesReply, Length: FeaturesReplyLen, XID: 3},
		DeviceID:   0x84045E6E,
		PortNum:    2,
		TableNum:   12,
		VendorName: "ustc",
		DeviceName: "pofswitch",
	}
	cfg := GetConfigReply{Header: Header{Version: Version, Type: TypeGetConfigReply, Length: GetConfigReplyLen, XID: 4}, MissSendLen: 128}
	setCfg := NewSetConfig(5, 0, 128)
	report := ResourceReport{
		Header:     Header{Version: Version, Type: TypeResourceReport, Length: ResourceReportLen, XID: 6},
		CounterNum: 512,
		MeterNum:   256,
		GroupNum:   64,
		Tables: [NumTableTypes]TableResource{
			{TableType: TableTypeMM, TableNum: 4, KeySizeBits: 320, TotalSize: 128},
			{TableType: TableTypeLPM, TableNum: 2, KeySizeBits: 160, TotalSize: 64},
			{TableType: TableTypeEM, TableNum: 2, KeySizeBits: 160, TotalSize: 64},
			{TableType: TableTypeLinear, TableNum: 2, TotalSize: 32},
		},
	}
	table := NewTableMod(7, FlowTable{
		TableType:      TableTypeMM,
		KeyLength:      48,
		TableSize:      32,
		Name:           FirstEntryTableName,
		MatchFieldList: []Field{{FieldID: 0, LengthInBits: 48}},
	})
	mx, err := NewMatchX(Field{FieldID: 0, LengthInBits: 48}, "0026b954ee0f", "ffffffffffff")
	require.NoError(t, err)
	flow := NewFlowMod(8, FlowEntry{
		TableType:    TableTypeMM,
		MatchXList:   MatchXList{mx},
		Instructions: InstructionList{NewInsApplyActions(NewActionOutput(2))},
	})
	port := NewPortMod(9, PortReasonModify, PhyPort{PortID: 2, DeviceID: 0x84045E6E, Name: "eth2", OFEnable: 1})
	status := PortStatus{Header: Header{Version: Version, Type: TypePortStatus, Length: PortStatusLen, XID: 10}, Reason: PortReasonAdd, Port: PhyPort{PortID: 1}}
	removed := FlowRemoved{Header: Header{Version: Version, Type: TypeFlowRemoved, Length: FlowRemovedLen, XID: 11}, Match: mx, Reason: 1}
	group := NewGroupMod(12, GroupModAdd, 1, ActionList{NewActionOutput(2)})
	meter := NewMeterMod(13, MeterModAdd, 0, 1, 1000)
	counter := NewCounterMod(14, CounterModAdd, 1)
	counterReq := NewCounterRequest(15, 1)
	counterReply := CounterReply{Header: Header{Version: Version, Type: TypeCounterReply, Length: CounterRequestReplyLen, XID: 15}, CounterID: 1, PacketCount: 7, ByteCount: 420}
	packetOut := NewPacketOut(16, 0xffffffff, 1, ActionList{NewActionOutput(2)}, []byte{0xde, 0xad})
	barrier := NewBarrierRequest(17)

	tests := []struct {
		msg  Message
		size int
	}{
		{&hello, HelloLen},
		{&errMsg, ErrorLen},
		{&features, FeaturesReplyLen},
		{&cfg, GetConfigReplyLen},
		{&setCfg, SetConfigLen},
		{&report, ResourceReportLen},
		{&table, TableModLen},
		{&flow, FlowEntryLen},
		{&port, PortModLen},
		{&status, PortStatusLen},
		{&removed, FlowRemovedLen},
		{&group, GroupModLen},
		{&meter, MeterModLen},
		{&counter, CounterModLen},
		{&counterReq, CounterRequestReplyLen},
		{&counterReply, CounterRequestReplyLen},
		{&packetOut, PacketOutLen},
		{&barrier, BarrierLen},
	}

	for _, tc := range tests {
		var buf bytes.Buffer
		n, err := tc.msg.WriteTo(&buf)
		require.NoError(t, err)
		require.EqualValues(t, tc.size, n, "%T", tc.msg)
		require.Len(t, buf.Bytes(), tc.size, "%T", tc.msg)
	}
}

func TestFeaturesReply_RoundTrip(t *testing.T) {
	in := FeaturesReply{
		Header:     Header{Version: Version, Type: TypeFeaturesReply, Length: FeaturesReplyLen, XID: 21},
		DeviceID:   0x84045E6E,
		PortNum:    2,
		TableNum:   12,
		VendorName: "ustc",
		DeviceName: "pofswitch",
		BoardName:  "b0",
	}
	var buf bytes.Buffer
	_, err := in.WriteTo(&buf)
	require.NoError(t, err)

	var out FeaturesReply
	n, err := out.ReadFrom(&buf)
	require.NoError(t, err)
	require.EqualValues(t, FeaturesReplyLen, n)
	require.Equal(t, in, out)
}

func TestResourceReport_RoundTrip(t *testing.T) {
	in := ResourceReport{
		Header:     Header{Version: Version, Type: TypeResourceReport, Length: ResourceReportLen, XID: 22},
		CounterNum: 512,
		MeterNum:   256,
		GroupNum:   64,
		Tables: [NumTableTypes]TableResource{
			{TableType: TableTypeMM, TableNum: 4, KeySizeBits: 320, TotalSize: 128},
			{TableType: TableTypeLPM, TableNum: 2, KeySizeBits: 160, TotalSize: 64},
			{TableType: TableTypeEM, TableNum: 2, KeySizeBits: 160, TotalSize: 64},
			{TableType: TableTypeLinear, TableNum: 2, TotalSize: 32},
		},
	}
	var buf bytes.Buffer
	_, err := in.WriteTo(&buf)
	require.NoError(t, err)

	var out ResourceReport
	n, err := out.ReadFrom(&buf)
	require.NoError(t, err)
	require.EqualValues(t, ResourceReportLen, n)
	require.Equal(t, in, out)
}

func TestFlowMod_RoundTrip(t *testing.T) {
	mx, err := NewMatchX(Field{FieldID: 0, LengthInBits: 48}, "0026b954ee0f", "ffffffffffff")
	require.NoError(t, err)
	in := NewFlowMod(23, FlowEntry{
		Command:      FlowEntryAdd,
		LocalTableID: 0,
		TableType:    TableTypeMM,
		CounterID:    1,
		Priority:     8,
		Index:        0,
		MatchXList:   MatchXList{mx},
		Instructions: InstructionList{NewInsApplyActions(NewActionOutput(2))},
	})
	var buf bytes.Buffer
	_, err = in.WriteTo(&buf)
	require.NoError(t, err)
	require.Len(t, buf.Bytes(), FlowEntryLen)

	var out FlowMod
	n, err := out.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.EqualValues(t, FlowEntryLen, n)
	require.Equal(t, in.Header, out.Header)
	require.Equal(t, FlowEntryAdd, out.Entry.Command)
	require.Len(t, out.Entry.MatchXList, 1)
	require.Equal(t, mx.Value, out.Entry.MatchXList[0].Value)
	require.Len(t, out.Entry.Instructions, 1)
}

func TestEcho_ReplyEchoesUnchanged(t *testing.T) {
	req := NewEchoRequest(31, []byte("keepalive"))
	reply := req.Reply()
	require.Equal(t, TypeEchoReply, reply.Header.Type)
	require.Equal(t, req.Header.XID, reply.Header.XID)
	require.Equal(t, req.Data, reply.Data)
}

func TestErrorMsg_Describe(t *testing.T) {
	e := NewError(32, 2, 0, 1, 0, "")
	require.Equal(t, "flow mod failed: table full", e.Describe())

	unknown := NewError(33, 99, 99, 1, 0, "")
	require.Equal(t, "error: unknown type/code", unknown.Describe())
}
