package pmdb

import (
	"sort"
	"sync"

	"github.com/USTC-INFINITELAB/pctrl/pof"
)

// tableTypeOrder fixes the order in which table types stack their
// global-id ranges: each type's base is the summed capacity of the
// types before it.
var tableTypeOrder = [...]pof.TableType{pof.TableTypeMM, pof.TableTypeLPM, pof.TableTypeEM, pof.TableTypeLinear}

// flowEntryDB holds the entries of a single FlowTable plus the id
// allocator that hands out entry indexes within it.
type flowEntryDB struct {
	entries map[uint32]pof.FlowEntry
	ids     *IdAllocator
}

func newFlowEntryDB() *flowEntryDB {
	return &flowEntryDB{entries: make(map[uint32]pof.FlowEntry), ids: NewIdAllocator(0)}
}

// SwitchState is the per-device slice of the database: ports, flow
// tables, and the counter/meter/group pools, all gated behind mu so a
// goroutine-per-connection implementation still serializes mutation
// through a single owner.
type SwitchState struct {
	DeviceID uint32

	mu sync.Mutex

	features   map[uint8]pof.FeaturesReply
	ports      map[uint32]pof.PhyPort
	portByName map[string]uint32

	tableResources map[uint8]pof.ResourceReport

	tableBase map[pof.TableType]uint32 // first global id for this type
	tableNext map[pof.TableType]uint32 // next id if free list empty
	tableFree map[pof.TableType][]uint32
	tableCap  map[pof.TableType]uint32 // declared capacity (0 = unbounded/unknown)

	tables   map[uint32]pof.FlowTable
	entryDBs map[uint32]*flowEntryDB

	counters *IdAllocator
	meters   *IdAllocator
	groups   *IdAllocator

	counterValues map[uint32]pof.CounterReply
	meterValues   map[uint32]pof.MeterMod
	groupValues   map[uint32]pof.GroupMod

	firstTableAdded bool
}

func newSwitchState(deviceID uint32) *SwitchState {
	return &SwitchState{
		DeviceID:       deviceID,
		features:       make(map[uint8]pof.FeaturesReply),
		ports:          make(map[uint32]pof.PhyPort),
		portByName:     make(map[string]uint32),
		tableResources: make(map[uint8]pof.ResourceReport),
		tableBase:      make(map[pof.TableType]uint32),
		tableNext:      make(map[pof.TableType]uint32),
		tableFree:      make(map[pof.TableType][]uint32),
		tableCap:       make(map[pof.TableType]uint32),
		tables:         make(map[uint32]pof.FlowTable),
		entryDBs:       make(map[uint32]*flowEntryDB),
		counters:       NewIdAllocator(1),
		meters:         NewIdAllocator(1),
		groups:         NewIdAllocator(1),
		counterValues:  make(map[uint32]pof.CounterReply),
		meterValues:    make(map[uint32]pof.MeterMod),
		groupValues:    make(map[uint32]pof.GroupMod),
	}
}

// SetFeatures installs a FEATURES_REPLY snapshot for a slot.
func (s *SwitchState) SetFeatures(slot uint8, f pof.FeaturesReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features[slot] = f
}

// Features returns the most recently installed FeaturesReply for a
// slot.
func (s *SwitchState) Features(slot uint8) (pof.FeaturesReply, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.features[slot]
	return f, ok
}

// PutPort installs or updates a cached port.
func (s *SwitchState) PutPort(p pof.PhyPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports[p.PortID] = p
	s.portByName[p.Name] = p.PortID
}

// DeletePort removes a cached port.
func (s *SwitchState) DeletePort(portID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.ports[portID]; ok {
		delete(s.portByName, p.Name)
	}
	delete(s.ports, portID)
}

// Port returns a cached port by id.
func (s *SwitchState) Port(portID uint32) (pof.PhyPort, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ports[portID]
	return p, ok
}

// PortByName looks a port id up by its name's secondary index.
func (s *SwitchState) PortByName(name string) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.portByName[name]
	return id, ok
}

// PortCount reports how many ports are currently cached.
func (s *SwitchState) PortCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ports)
}

// InstallResourceReport records a RESOURCE_REPORT and, the first time
// it is seen, computes each table type's global-id base by summing
// declared capacities in tableTypeOrder.
func (s *SwitchState) InstallResourceReport(rr pof.ResourceReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tableResources[rr.SlotID] = rr
	s.counters.SetMax(rr.CounterNum)
	s.meters.SetMax(rr.MeterNum)
	s.groups.SetMax(rr.GroupNum)

	if len(s.tableBase) > 0 {
		return // bases already computed from an earlier report
	}

	capByType := make(map[pof.TableType]uint32)
	for _, tr := range rr.Tables {
		capByType[tr.TableType] = tr.TotalSize
	}

	var base uint32
	for _, tt := range tableTypeOrder {
		s.tableBase[tt] = base
		s.tableNext[tt] = base
		s.tableCap[tt] = capByType[tt]
		base += capByType[tt]
	}
}

// TableBase returns the global-id base for a table type, and whether
// resource bases have been computed yet.
func (s *SwitchState) TableBase(tt pof.TableType) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.tableBase[tt]
	return b, ok
}

// ParseToGlobalTableID translates (table_type, local_id) into the
// switch-wide global id.
func (s *SwitchState) ParseToGlobalTableID(tt pof.TableType, local uint8) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base, ok := s.tableBase[tt]
	if !ok {
		return 0, errInvalid("ParseToGlobalTableID", "no resource bases installed yet")
	}
	return base + uint32(local), nil
}

// ParseToSmallTableID translates a global id back into its
// switch-facing local id, using the table's own recorded type.
func (s *SwitchState) ParseToSmallTableID(global uint32) (tt pof.TableType, local uint8, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[global]
	if !ok {
		return 0, 0, errNotFound("ParseToSmallTableID", "table %d not found", global)
	}
	base := s.tableBase[t.TableType]
	return t.TableType, uint8(global - base), nil
}

// allocTableID returns a fresh global id for tt: smallest free id for
// that type, else the type's own running counter. Free lists are kept
// per type, never shared.
func (s *SwitchState) allocTableID(tt pof.TableType) (uint32, error) {
	if _, ok := s.tableBase[tt]; !ok {
		return 0, errInvalid("AddFlowTable", "resource bases not installed for this switch yet")
	}
	if free := s.tableFree[tt]; len(free) > 0 {
		id := free[0]
		s.tableFree[tt] = free[1:]
		return id, nil
	}
	id := s.tableNext[tt]
	if cap := s.tableCap[tt]; cap > 0 && id >= s.tableBase[tt]+cap {
		return 0, errExhausted("AddFlowTable", "table type %s exhausted its %d-entry capacity", tt, cap)
	}
	s.tableNext[tt] = id + 1
	return id, nil
}

func (s *SwitchState) freeTableID(tt pof.TableType, id uint32) {
	free := append(s.tableFree[tt], id)
	sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })
	s.tableFree[tt] = free
}

// AddFlowTable validates and installs a new FlowTable, returning its
// global id.
func (s *SwitchState) AddFlowTable(t pof.FlowTable) (uint32, error) {
	const op = "AddFlowTable"
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.TableType.Valid() {
		return 0, errInvalid(op, "table type %d is not one of MM/LPM/EM/LINEAR", uint8(t.TableType))
	}
	if t.TableSize == 0 {
		return 0, errInvalid(op, "table size must be > 0")
	}
	isLinear := t.TableType == pof.TableTypeLinear
	if isLinear != (len(t.MatchFieldList) == 0) {
		return 0, errInvalid(op, "LINEAR tables must have an empty match field list, and only LINEAR tables may")
	}
	if !s.firstTableAdded {
		if t.TableType != pof.TableTypeMM || t.Name != pof.FirstEntryTableName {
			return 0, errInvalid(op, "first table added to a switch must be MM and named %q", pof.FirstEntryTableName)
		}
	}

	global, err := s.allocTableID(t.TableType)
	if err != nil {
		return 0, err
	}

	s.tables[global] = t
	s.entryDBs[global] = newFlowEntryDB()
	s.firstTableAdded = true
	return global, nil
}

// GetFlowTable returns the FlowTable installed under global id.
func (s *SwitchState) GetFlowTable(global uint32) (pof.FlowTable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[global]
	return t, ok
}

// GetFlowEntriesMap returns a snapshot of a table's entries, or nil if
// the table does not exist.
func (s *SwitchState) GetFlowEntriesMap(global uint32) map[uint32]pof.FlowEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.entryDBs[global]
	if !ok {
		return nil
	}
	out := make(map[uint32]pof.FlowEntry, len(db.entries))
	for k, v := range db.entries {
		out[k] = v
	}
	return out
}

// DeleteFlowTable removes an empty table and returns the id to its
// type's free list; refuses if entries remain.
func (s *SwitchState) DeleteFlowTable(global uint32) error {
	const op = "DeleteFlowTable"
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[global]
	if !ok {
		return errNotFound(op, "table %d not found", global)
	}
	db := s.entryDBs[global]
	if db != nil && len(db.entries) > 0 {
		return errConflict(op, "table %d still has %d entries", global, len(db.entries))
	}

	delete(s.tables, global)
	delete(s.entryDBs, global)
	s.freeTableID(t.TableType, global)
	return nil
}

// keyLengthBits sums the matchx list's lengths.
func keyLengthBits(list pof.MatchXList) uint16 {
	var n uint16
	for _, m := range list {
		n += m.Field.LengthInBits
	}
	return n
}

// AddFlowEntry validates the key-length invariant, allocates an entry
// id (free-list first) and, if CounterEnable, a counter id, then
// installs the entry.
func (s *SwitchState) AddFlowEntry(global uint32, entry pof.FlowEntry, counterEnable bool) (uint32, error) {
	const op = "AddFlowEntry"
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[global]
	if !ok {
		return 0, errNotFound(op, "table %d not found", global)
	}
	db := s.entryDBs[global]

	if keyLengthBits(entry.MatchXList) != table.KeyLength {
		return 0, errInvalid(op, "matchx key length %d bits != table key length %d bits", keyLengthBits(entry.MatchXList), table.KeyLength)
	}

	id, ok := db.ids.Alloc()
	if !ok {
		return 0, errExhausted(op, "table %d entry ids exhausted", global)
	}

	if counterEnable {
		cid, ok := s.counters.Alloc()
		if !ok {
			db.ids.Remove(id)
			return 0, errExhausted(op, "counter ids exhausted")
		}
		entry.CounterID = cid
	}

	entry.Index = id
	db.entries[id] = entry
	return id, nil
}

// ModifyFlowEntry replaces an existing entry's body in place,
// adjusting counter allocation if CounterEnable toggled.
func (s *SwitchState) ModifyFlowEntry(global, entryID uint32, entry pof.FlowEntry, counterEnable bool) error {
	const op = "ModifyFlowEntry"
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[global]
	if !ok {
		return errNotFound(op, "table %d not found", global)
	}
	db := s.entryDBs[global]
	old, ok := db.entries[entryID]
	if !ok {
		return errNotFound(op, "entry %d not found in table %d", entryID, global)
	}
	if keyLengthBits(entry.MatchXList) != table.KeyLength {
		return errInvalid(op, "matchx key length %d bits != table key length %d bits", keyLengthBits(entry.MatchXList), table.KeyLength)
	}

	hadCounter := old.CounterID != 0
	switch {
	case counterEnable && !hadCounter:
		cid, ok := s.counters.Alloc()
		if !ok {
			return errExhausted(op, "counter ids exhausted")
		}
		entry.CounterID = cid
	case counterEnable && hadCounter:
		entry.CounterID = old.CounterID
	case !counterEnable && hadCounter:
		s.counters.Remove(old.CounterID)
		entry.CounterID = 0
	}

	entry.Index = entryID
	db.entries[entryID] = entry
	return nil
}

// DeleteFlowEntry removes an entry and frees both its id and, if
// allocated, its counter id.
func (s *SwitchState) DeleteFlowEntry(global, entryID uint32) error {
	const op = "DeleteFlowEntry"
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.entryDBs[global]
	if !ok {
		return errNotFound(op, "table %d not found", global)
	}
	entry, ok := db.entries[entryID]
	if !ok {
		return errNotFound(op, "entry %d not found in table %d", entryID, global)
	}

	delete(db.entries, entryID)
	db.ids.Remove(entryID)
	if entry.CounterID != 0 {
		s.counters.Remove(entry.CounterID)
	}
	return nil
}

// GetFlowEntry returns a single entry from a table.
func (s *SwitchState) GetFlowEntry(global, entryID uint32) (pof.FlowEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.entryDBs[global]
	if !ok {
		return pof.FlowEntry{}, false
	}
	e, ok := db.entries[entryID]
	return e, ok
}

// AllFlowTables returns a snapshot of every global id currently
// installed.
func (s *SwitchState) AllFlowTables() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint32, 0, len(s.tables))
	for id := range s.tables {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllocCounter, AllocMeter, AllocGroup allocate from the respective id
// pools, bounded by the switch's declared resource capacity.
func (s *SwitchState) AllocCounter() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.counters.Alloc()
	if !ok {
		return 0, errExhausted("AllocCounter", "counter ids exhausted")
	}
	return id, nil
}

func (s *SwitchState) FreeCounter(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Remove(id)
	delete(s.counterValues, id)
}

func (s *SwitchState) SetCounterValue(id uint32, v pof.CounterReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterValues[id] = v
}

func (s *SwitchState) CounterValue(id uint32) (pof.CounterReply, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.counterValues[id]
	return v, ok
}

func (s *SwitchState) AllocMeter() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.meters.Alloc()
	if !ok {
		return 0, errExhausted("AllocMeter", "meter ids exhausted")
	}
	return id, nil
}

func (s *SwitchState) FreeMeter(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meters.Remove(id)
	delete(s.meterValues, id)
}

func (s *SwitchState) SetMeterValue(id uint32, v pof.MeterMod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meterValues[id] = v
}

func (s *SwitchState) MeterValue(id uint32) (pof.MeterMod, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.meterValues[id]
	return v, ok
}

func (s *SwitchState) AllocGroup() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.groups.Alloc()
	if !ok {
		return 0, errExhausted("AllocGroup", "group ids exhausted")
	}
	return id, nil
}

func (s *SwitchState) FreeGroup(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups.Remove(id)
	delete(s.groupValues, id)
}

func (s *SwitchState) SetGroupValue(id uint32, v pof.GroupMod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupValues[id] = v
}

func (s *SwitchState) GroupValue(id uint32) (pof.GroupMod, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.groupValues[id]
	return v, ok
}
