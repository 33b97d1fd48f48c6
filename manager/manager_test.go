package manager

import (
	"bytes"
	"net"
	"testing"

	"github.com/USTC-INFINITELAB/pctrl/conn"
	"github.com/USTC-INFINITELAB/pctrl/eventbus"
	"github.com/USTC-INFINITELAB/pctrl/pmdb"
	"github.com/USTC-INFINITELAB/pctrl/pof"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testDeviceID uint32 = 0x84045E6E

// fakeConns resolves every lookup to the one pipe-backed connection,
// standing in for ctrl.Listener's registry.
type fakeConns struct {
	c *conn.Conn
}

func (f fakeConns) Conn(deviceID uint32) (*conn.Conn, bool) {
	if deviceID != testDeviceID {
		return nil, false
	}
	return f.c, true
}

func newTestManager(t *testing.T) (*Manager, *conn.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	bus := eventbus.New(zerolog.Nop())
	c := conn.New(server, bus.NewScope(), zerolog.Nop())

	db := pmdb.New()
	sw := db.AddSwitch(testDeviceID)
	sw.InstallResourceReport(pof.ResourceReport{
		CounterNum: 16,
		MeterNum:   4,
		GroupNum:   4,
		Tables: [pof.NumTableTypes]pof.TableResource{
			{TableType: pof.TableTypeMM, TableNum: 4, TotalSize: 4},
			{TableType: pof.TableTypeLPM, TableNum: 2, TotalSize: 2},
			{TableType: pof.TableTypeEM, TableNum: 2, TotalSize: 2},
			{TableType: pof.TableTypeLinear, TableNum: 2, TotalSize: 2},
		},
	})

	return New(db, fakeConns{c: c}, zerolog.Nop()), c
}

// drainOne pops the single queued outbound chunk and fails on any
// other queue depth.
func drainOne(t *testing.T, c *conn.Conn) []byte {
	t.Helper()
	chunks := c.DrainOutbound()
	require.Len(t, chunks, 1)
	return chunks[0]
}

func headerOf(t *testing.T, chunk []byte) pof.Header {
	t.Helper()
	var hdr pof.Header
	_, err := hdr.ReadFrom(bytes.NewReader(chunk))
	require.NoError(t, err)
	return hdr
}

func dmacField() pof.Field {
	return pof.Field{Name: "DMAC", FieldID: 0, OffsetInBits: 0, LengthInBits: 48}
}

func firstEntryTable() pof.FlowTable {
	return pof.FlowTable{
		TableType:      pof.TableTypeMM,
		KeyLength:      48,
		TableSize:      32,
		Name:           pof.FirstEntryTableName,
		MatchFieldList: []pof.Field{dmacField()},
	}
}

func dmacEntry(t *testing.T) pof.FlowEntry {
	t.Helper()
	mx, err := pof.NewMatchX(dmacField(), "0026b954ee0f", "ffffffffffff")
	require.NoError(t, err)
	return pof.FlowEntry{
		TableType:    pof.TableTypeMM,
		MatchXList:   pof.MatchXList{mx},
		Instructions: pof.InstructionList{pof.NewInsApplyActions(pof.NewActionOutput(2))},
	}
}

func TestManager_AddFlowTableEmitsTableMod(t *testing.T) {
	m, c := newTestManager(t)

	global, err := m.AddFlowTable(testDeviceID, firstEntryTable())
	require.NoError(t, err)
	require.Equal(t, uint32(0), global)

	chunk := drainOne(t, c)
	require.Len(t, chunk, pof.TableModLen)

	var mod pof.TableMod
	_, err = mod.ReadFrom(bytes.NewReader(chunk))
	require.NoError(t, err)
	require.Equal(t, pof.TypeTableMod, mod.Header.Type)
	require.Equal(t, pof.FlowTableAdd, mod.Table.Command)
	require.Equal(t, pof.TableTypeMM, mod.Table.TableType)
	require.Equal(t, pof.FirstEntryTableName, mod.Table.Name)
}

func TestManager_AddFlowEntryEmitsFlowMod(t *testing.T) {
	m, c := newTestManager(t)

	global, err := m.AddFlowTable(testDeviceID, firstEntryTable())
	require.NoError(t, err)
	c.DrainOutbound()

	entryID, err := m.AddFlowEntry(testDeviceID, global, dmacEntry(t), true)
	require.NoError(t, err)
	require.Equal(t, uint32(0), entryID)

	chunk := drainOne(t, c)
	require.Len(t, chunk, pof.FlowEntryLen)

	var mod pof.FlowMod
	_, err = mod.ReadFrom(bytes.NewReader(chunk))
	require.NoError(t, err)
	require.Equal(t, pof.TypeFlowMod, mod.Header.Type)
	require.Equal(t, pof.FlowEntryAdd, mod.Entry.Command)
	require.Len(t, mod.Entry.MatchXList, 1)
}

func TestManager_AddFlowEntryRejectsWrongKeyLength(t *testing.T) {
	m, c := newTestManager(t)

	global, err := m.AddFlowTable(testDeviceID, firstEntryTable())
	require.NoError(t, err)
	c.DrainOutbound()

	short := dmacEntry(t)
	short.MatchXList[0].Field.LengthInBits = 32
	_, err = m.AddFlowEntry(testDeviceID, global, short, false)
	require.Error(t, err)
	require.Empty(t, c.DrainOutbound(), "a rejected entry must not reach the wire")
}

func TestManager_CascadingDeleteOrdersEntriesBeforeTable(t *testing.T) {
	m, c := newTestManager(t)

	global, err := m.AddFlowTable(testDeviceID, firstEntryTable())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := m.AddFlowEntry(testDeviceID, global, dmacEntry(t), false)
		require.NoError(t, err)
	}
	c.DrainOutbound()

	require.NoError(t, m.DelFlowTableAndAllSubEntries(testDeviceID, global))

	chunks := c.DrainOutbound()
	require.Len(t, chunks, 4)
	for i := 0; i < 3; i++ {
		hdr := headerOf(t, chunks[i])
		require.Equal(t, pof.TypeFlowMod, hdr.Type, "entry deletes must precede the table delete")

		var mod pof.FlowMod
		_, err := mod.ReadFrom(bytes.NewReader(chunks[i]))
		require.NoError(t, err)
		require.Equal(t, pof.FlowEntryDelete, mod.Entry.Command)
	}
	require.Equal(t, pof.TypeTableMod, headerOf(t, chunks[3]).Type)

	_, ok := m.GetFlowTable(testDeviceID, global)
	require.False(t, ok)

	// The freed id is reused: the next add gets global id 0 back.
	again, err := m.AddFlowTable(testDeviceID, firstEntryTable())
	require.NoError(t, err)
	require.Equal(t, global, again)
}

func TestManager_SetPortOfEnable(t *testing.T) {
	m, c := newTestManager(t)

	sw, ok := m.DB.Switch(testDeviceID)
	require.True(t, ok)
	sw.PutPort(pof.PhyPort{PortID: 2, DeviceID: testDeviceID, Name: "eth2"})

	require.NoError(t, m.SetPortOfEnable(testDeviceID, 2, true))

	port, ok := m.GetPortStatus(testDeviceID, 2)
	require.True(t, ok)
	require.Equal(t, uint8(1), port.OFEnable)

	chunk := drainOne(t, c)
	require.Len(t, chunk, pof.PortModLen)

	var mod pof.PortMod
	_, err := mod.ReadFrom(bytes.NewReader(chunk))
	require.NoError(t, err)
	require.Equal(t, pof.PortReasonModify, mod.Reason)
	require.Equal(t, uint8(1), mod.Port.OFEnable)
}

func TestManager_UnknownDeviceDoesNotEmit(t *testing.T) {
	m, c := newTestManager(t)

	_, err := m.AddFlowTable(99, firstEntryTable())
	require.Error(t, err)
	require.Error(t, m.SetPortOfEnable(99, 1, true))
	_, err = m.AddMeterEntry(99, 100)
	require.Error(t, err)
	require.Empty(t, c.DrainOutbound())
}

func TestManager_MeterLifecycle(t *testing.T) {
	m, c := newTestManager(t)

	id, err := m.AddMeterEntry(testDeviceID, 1000)
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)

	chunk := drainOne(t, c)
	require.Len(t, chunk, pof.MeterModLen)
	var mod pof.MeterMod
	_, err = mod.ReadFrom(bytes.NewReader(chunk))
	require.NoError(t, err)
	require.Equal(t, pof.MeterModAdd, mod.Command)
	require.Equal(t, uint32(1000), mod.Rate)

	require.NoError(t, m.ModifyMeter(testDeviceID, id, 2000))
	c.DrainOutbound()

	require.Error(t, m.ModifyMeter(testDeviceID, 7, 500), "unknown meter id must be rejected")

	require.NoError(t, m.FreeMeter(testDeviceID, id))
	c.DrainOutbound()

	// Freed id is handed out again, smallest-first.
	again, err := m.AddMeterEntry(testDeviceID, 300)
	require.NoError(t, err)
	require.Equal(t, id, again)
}

func TestManager_GroupLifecycle(t *testing.T) {
	m, c := newTestManager(t)

	id, err := m.AddGroupEntry(testDeviceID, pof.NewActionOutput(1))
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)

	chunk := drainOne(t, c)
	require.Len(t, chunk, pof.GroupModLen)
	var mod pof.GroupMod
	_, err = mod.ReadFrom(bytes.NewReader(chunk))
	require.NoError(t, err)
	require.Equal(t, pof.GroupModAdd, mod.Command)
	require.Len(t, mod.Actions, 1)

	require.NoError(t, m.ModifyGroupEntry(testDeviceID, id, pof.NewActionDrop(0)))
	require.NoError(t, m.FreeGroupEntry(testDeviceID, id))
}

func TestManager_CounterOps(t *testing.T) {
	m, c := newTestManager(t)

	id, err := m.AllocateCounter(testDeviceID)
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)
	require.Len(t, drainOne(t, c), pof.CounterModLen)

	require.NoError(t, m.ResetCounter(testDeviceID, id))
	require.NoError(t, m.FreeCounter(testDeviceID, id))
	require.NoError(t, m.QueryCounterValue(testDeviceID, id))
}

func TestManager_NewMatchXResolvesField(t *testing.T) {
	m, _ := newTestManager(t)

	proto, err := m.AddProtocol("eth", []pmdb.FieldSpec{
		{Name: "DMAC", Offset: 0, Length: 48},
		{Name: "SMAC", Offset: 48, Length: 48},
	})
	require.NoError(t, err)

	mx, err := m.NewMatchX(proto.Fields[0].FieldID, "0026b954ee0f", "ffffffffffff")
	require.NoError(t, err)
	require.Equal(t, uint16(48), mx.Field.LengthInBits)
	require.Equal(t, byte(0x00), mx.Value[0])
	require.Equal(t, byte(0x26), mx.Value[1])

	_, err = m.NewMatchX(42, "00", "ff")
	require.Error(t, err, "unknown field id must be rejected")

	byName, err := m.NewMatchXByName("SMAC", "0011223344ff", "ffffffffffff")
	require.NoError(t, err)
	require.Equal(t, proto.Fields[1].FieldID, byName.Field.FieldID)
}

func TestManager_NewInsGotoTableCopiesMatchList(t *testing.T) {
	m, c := newTestManager(t)

	global, err := m.AddFlowTable(testDeviceID, firstEntryTable())
	require.NoError(t, err)
	c.DrainOutbound()

	ins, err := m.NewInsGotoTable(testDeviceID, global, 14)
	require.NoError(t, err)
	require.Equal(t, uint8(global), ins.NextTableID)
	require.Equal(t, uint16(14), ins.PacketOffset)
	require.Equal(t, dmacField(), ins.Fields[0])
	require.Zero(t, ins.Fields[1].LengthInBits)

	_, err = m.NewInsGotoTable(testDeviceID, 3, 0)
	require.Error(t, err, "goto to an uninstalled table must be rejected")
}

func TestManager_SendPacketOut(t *testing.T) {
	m, c := newTestManager(t)

	data := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, m.SendPacketOut(testDeviceID, 0xffffffff, 1, data, pof.NewActionOutput(2)))

	chunk := drainOne(t, c)
	require.Len(t, chunk, pof.PacketOutLen)

	var po pof.PacketOut
	_, err := po.ReadFrom(bytes.NewReader(chunk))
	require.NoError(t, err)
	require.Equal(t, data, po.Data)
	require.Equal(t, uint8(1), po.ActionNum)
}
