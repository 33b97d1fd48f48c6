package pmdb

import (
	"testing"

	"github.com/USTC-INFINITELAB/pctrl/pof"
	"github.com/stretchr/testify/require"
)

func sampleResourceReport() pof.ResourceReport {
	return pof.ResourceReport{
		CounterNum: 4,
		MeterNum:   4,
		GroupNum:   4,
		Tables: [pof.NumTableTypes]pof.TableResource{
			{TableType: pof.TableTypeMM, TotalSize: 16},
			{TableType: pof.TableTypeLPM, TotalSize: 8},
			{TableType: pof.TableTypeEM, TotalSize: 8},
			{TableType: pof.TableTypeLinear, TotalSize: 4},
		},
	}
}

func TestSwitchState_TableIDBasesFromResourceReport(t *testing.T) {
	s := newSwitchState(1)
	s.InstallResourceReport(sampleResourceReport())

	base, ok := s.TableBase(pof.TableTypeMM)
	require.True(t, ok)
	require.Equal(t, uint32(0), base)

	base, ok = s.TableBase(pof.TableTypeLPM)
	require.True(t, ok)
	require.Equal(t, uint32(16), base)

	base, ok = s.TableBase(pof.TableTypeEM)
	require.True(t, ok)
	require.Equal(t, uint32(24), base)

	base, ok = s.TableBase(pof.TableTypeLinear)
	require.True(t, ok)
	require.Equal(t, uint32(32), base)
}

func TestSwitchState_FirstTableMustBeMMFirstEntryTable(t *testing.T) {
	s := newSwitchState(1)
	s.InstallResourceReport(sampleResourceReport())

	key := []pof.Field{{Name: "f", LengthInBits: 8}}

	_, err := s.AddFlowTable(pof.FlowTable{TableType: pof.TableTypeMM, TableSize: 4, Name: "NotFirst", KeyLength: 8, MatchFieldList: key})
	require.Error(t, err)

	_, err = s.AddFlowTable(pof.FlowTable{TableType: pof.TableTypeLPM, TableSize: 4, Name: pof.FirstEntryTableName, KeyLength: 8, MatchFieldList: key})
	require.Error(t, err)

	id, err := s.AddFlowTable(pof.FlowTable{TableType: pof.TableTypeMM, TableSize: 4, Name: pof.FirstEntryTableName, KeyLength: 8, MatchFieldList: key})
	require.NoError(t, err)
	require.Equal(t, uint32(0), id)
}

func TestSwitchState_LinearTableMustHaveEmptyMatchList(t *testing.T) {
	s := newSwitchState(1)
	s.InstallResourceReport(sampleResourceReport())
	_, err := s.AddFlowTable(pof.FlowTable{
		TableType: pof.TableTypeMM, TableSize: 4, Name: pof.FirstEntryTableName,
		KeyLength:      8,
		MatchFieldList: []pof.Field{{Name: "f", LengthInBits: 8}},
	})
	require.NoError(t, err)

	_, err = s.AddFlowTable(pof.FlowTable{
		TableType: pof.TableTypeLinear, TableSize: 4, Name: "L1",
		MatchFieldList: []pof.Field{{Name: "f", LengthInBits: 8}},
	})
	require.Error(t, err, "LINEAR tables must not declare match fields")

	_, err = s.AddFlowTable(pof.FlowTable{TableType: pof.TableTypeLinear, TableSize: 4, Name: "L2"})
	require.NoError(t, err)

	_, err = s.AddFlowTable(pof.FlowTable{
		TableType: pof.TableTypeEM, TableSize: 4, Name: "E1",
	})
	require.Error(t, err, "non-LINEAR tables must declare at least one match field")
}

func TestSwitchState_DeleteFlowTableRequiresEmpty(t *testing.T) {
	s := newSwitchState(1)
	s.InstallResourceReport(sampleResourceReport())
	global, err := s.AddFlowTable(pof.FlowTable{
		TableType: pof.TableTypeMM, TableSize: 4, Name: pof.FirstEntryTableName,
		KeyLength:      8,
		MatchFieldList: []pof.Field{{Name: "f", LengthInBits: 8}},
	})
	require.NoError(t, err)

	matchList := pof.MatchXList{{Field: pof.Field{Name: "f", LengthInBits: 8}}}
	_, err = s.AddFlowEntry(global, pof.FlowEntry{MatchXList: matchList}, false)
	require.NoError(t, err)

	err = s.DeleteFlowTable(global)
	require.Error(t, err, "must refuse to delete a table with entries")

	entries := s.GetFlowEntriesMap(global)
	for id := range entries {
		require.NoError(t, s.DeleteFlowEntry(global, id))
	}
	require.NoError(t, s.DeleteFlowTable(global))
}

func TestSwitchState_AddFlowEntryKeyLengthMismatch(t *testing.T) {
	s := newSwitchState(1)
	s.InstallResourceReport(sampleResourceReport())
	global, err := s.AddFlowTable(pof.FlowTable{
		TableType: pof.TableTypeMM, TableSize: 4, Name: pof.FirstEntryTableName,
		KeyLength:      16,
		MatchFieldList: []pof.Field{{Name: "f", LengthInBits: 16}},
	})
	require.NoError(t, err)

	badList := pof.MatchXList{{Field: pof.Field{Name: "f", LengthInBits: 8}}}
	_, err = s.AddFlowEntry(global, pof.FlowEntry{MatchXList: badList}, false)
	require.Error(t, err)
}

func TestSwitchState_AddFlowEntryAllocatesCounter(t *testing.T) {
	s := newSwitchState(1)
	s.InstallResourceReport(sampleResourceReport())
	global, err := s.AddFlowTable(pof.FlowTable{
		TableType: pof.TableTypeMM, TableSize: 4, Name: pof.FirstEntryTableName,
		KeyLength:      8,
		MatchFieldList: []pof.Field{{Name: "f", LengthInBits: 8}},
	})
	require.NoError(t, err)

	matchList := pof.MatchXList{{Field: pof.Field{Name: "f", LengthInBits: 8}}}
	entryID, err := s.AddFlowEntry(global, pof.FlowEntry{MatchXList: matchList}, true)
	require.NoError(t, err)

	entry, ok := s.GetFlowEntry(global, entryID)
	require.True(t, ok)
	require.NotZero(t, entry.CounterID)

	require.NoError(t, s.DeleteFlowEntry(global, entryID))
}

func TestSwitchState_CounterPoolBoundedByResourceReport(t *testing.T) {
	s := newSwitchState(1)
	s.InstallResourceReport(sampleResourceReport())

	for i := 0; i < 4; i++ {
		_, err := s.AllocCounter()
		require.NoError(t, err)
	}
	_, err := s.AllocCounter()
	require.Error(t, err, "counter pool must respect the declared capacity")
}

func TestSwitchState_ParseGlobalAndSmallTableID(t *testing.T) {
	s := newSwitchState(1)
	s.InstallResourceReport(sampleResourceReport())
	global, err := s.AddFlowTable(pof.FlowTable{
		TableType: pof.TableTypeLPM, TableSize: 4, Name: pof.FirstEntryTableName,
	})
	require.Error(t, err, "non-MM first table still rejected even once resource bases exist")

	_, err = s.AddFlowTable(pof.FlowTable{TableType: pof.TableTypeMM, TableSize: 4, Name: pof.FirstEntryTableName,
		MatchFieldList: []pof.Field{{Name: "f", LengthInBits: 8}}})
	require.NoError(t, err)

	global, err = s.ParseToGlobalTableID(pof.TableTypeLPM, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(16+2), global)

	mmGlobal, err := s.ParseToGlobalTableID(pof.TableTypeMM, 0)
	require.NoError(t, err)
	tt, local, err := s.ParseToSmallTableID(mmGlobal)
	require.NoError(t, err)
	require.Equal(t, pof.TableTypeMM, tt)
	require.Equal(t, uint8(0), local)
}
