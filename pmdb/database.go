package pmdb

import (
	"sort"
	"sync"

	"github.com/USTC-INFINITELAB/pctrl/pof"
)

// Database is the top-level PM database facade: the process-wide
// protocol/field/metadata pools plus one SwitchState per connected
// device. It is the single type callers outside this package
// should construct.
type Database struct {
	mu sync.Mutex

	protocols *protocolPool
	fields    *fieldPool
	metadata  *metadataPool

	switches map[uint32]*SwitchState
}

// New returns an empty Database.
func New() *Database {
	fields := newFieldPool()
	return &Database{
		protocols: newProtocolPool(fields),
		fields:    fields,
		metadata:  newMetadataPool(),
		switches:  make(map[uint32]*SwitchState),
	}
}

// AddProtocol registers a new Protocol.
func (d *Database) AddProtocol(name string, fieldSpecs []FieldSpec) (*Protocol, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.protocols.AddProtocol(name, fieldSpecs)
}

// DeleteProtocol removes a Protocol and cascades to its Fields.
func (d *Database) DeleteProtocol(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.protocols.DeleteProtocol(id)
}

// Protocol looks a protocol up by id.
func (d *Database) Protocol(id int) (*Protocol, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.protocols.GetByID(id)
}

// ProtocolByName looks a protocol up by name.
func (d *Database) ProtocolByName(name string) (*Protocol, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.protocols.GetByName(name)
}

// NewField allocates a standalone Field in the process-wide pool, not
// owned by any protocol, ids monotone from 0.
func (d *Database) NewField(name string, offset, length uint16) pof.Field {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fields.newField(name, offset, length, 0)
}

// DeleteField removes a field from the pool. A field still owned by a
// protocol must go through DeleteProtocol instead.
func (d *Database) DeleteField(id int16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.fields.records[id]
	if !ok {
		return errNotFound("DeleteField", "field %d not found", id)
	}
	if r.protocolID != 0 {
		return errConflict("DeleteField", "field %d belongs to protocol %d", id, r.protocolID)
	}
	d.fields.delete(id)
	return nil
}

// Field looks up a single field by its wire id. Metadata fields (id
// pof.MetadataFieldID) are never found here; use FieldsByName or
// Metadata for those.
func (d *Database) Field(id int16) (pof.Field, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fields.byID(id)
}

// FieldsByName returns every field matching name, across both
// protocol fields and metadata fields.
func (d *Database) FieldsByName(name string) []pof.Field {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.fields.byName(name)
	for _, f := range d.metadata.fields {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// AddMetadataField appends a new metadata field.
func (d *Database) AddMetadataField(name string, offset, length uint16) (pof.Field, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metadata.NewMetadataField(name, offset, length)
}

// MetadataFields returns every metadata field, in declaration order.
func (d *Database) MetadataFields() []pof.Field {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metadata.All()
}

// AddSwitch registers a newly connected device, returning its fresh
// SwitchState. Re-adding an already-known device id replaces its
// state, mirroring a reconnect after DOWN.
func (d *Database) AddSwitch(deviceID uint32) *SwitchState {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := newSwitchState(deviceID)
	d.switches[deviceID] = s
	return s
}

// RemoveSwitch drops all state for a device once its connection goes
// DOWN.
func (d *Database) RemoveSwitch(deviceID uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.switches, deviceID)
}

// Switch returns the SwitchState for a connected device.
func (d *Database) Switch(deviceID uint32) (*SwitchState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.switches[deviceID]
	return s, ok
}

// Switches returns every currently known device id, sorted.
func (d *Database) Switches() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint32, 0, len(d.switches))
	for id := range d.switches {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// requireSwitch is a helper shorthand for the common "look up or
// NotFound" pattern the table/entry/resource mutators all need.
func (d *Database) requireSwitch(op string, deviceID uint32) (*SwitchState, error) {
	d.mu.Lock()
	s, ok := d.switches[deviceID]
	d.mu.Unlock()
	if !ok {
		return nil, errNotFound(op, "switch %d not connected", deviceID)
	}
	return s, nil
}

// AddFlowTable validates and installs t on deviceID, returning the
// table's new global id.
func (d *Database) AddFlowTable(deviceID uint32, t pof.FlowTable) (uint32, error) {
	s, err := d.requireSwitch("AddFlowTable", deviceID)
	if err != nil {
		return 0, err
	}
	return s.AddFlowTable(t)
}

// DeleteFlowTable removes an empty table; a non-cascading delete
// requires the entry map to already be empty.
func (d *Database) DeleteFlowTable(deviceID, globalTableID uint32) error {
	s, err := d.requireSwitch("DeleteFlowTable", deviceID)
	if err != nil {
		return err
	}
	return s.DeleteFlowTable(globalTableID)
}

// AddFlowEntry installs entry into a table, allocating a counter id
// too when counterEnable is set.
func (d *Database) AddFlowEntry(deviceID, globalTableID uint32, entry pof.FlowEntry, counterEnable bool) (uint32, error) {
	s, err := d.requireSwitch("AddFlowEntry", deviceID)
	if err != nil {
		return 0, err
	}
	return s.AddFlowEntry(globalTableID, entry, counterEnable)
}

// ModifyFlowEntry replaces an existing entry's body.
func (d *Database) ModifyFlowEntry(deviceID, globalTableID, entryID uint32, entry pof.FlowEntry, counterEnable bool) error {
	s, err := d.requireSwitch("ModifyFlowEntry", deviceID)
	if err != nil {
		return err
	}
	return s.ModifyFlowEntry(globalTableID, entryID, entry, counterEnable)
}

// DeleteFlowEntry removes an entry, freeing its id and any counter it
// held.
func (d *Database) DeleteFlowEntry(deviceID, globalTableID, entryID uint32) error {
	s, err := d.requireSwitch("DeleteFlowEntry", deviceID)
	if err != nil {
		return err
	}
	return s.DeleteFlowEntry(globalTableID, entryID)
}

// ParseToGlobalTableID translates (table_type, local_id) to a
// switch-wide global id.
func (d *Database) ParseToGlobalTableID(deviceID uint32, tt pof.TableType, local uint8) (uint32, error) {
	s, err := d.requireSwitch("ParseToGlobalTableID", deviceID)
	if err != nil {
		return 0, err
	}
	return s.ParseToGlobalTableID(tt, local)
}

// ParseToSmallTableID translates a global id back to its
// switch-facing (table_type, local_id) pair.
func (d *Database) ParseToSmallTableID(deviceID, global uint32) (pof.TableType, uint8, error) {
	s, err := d.requireSwitch("ParseToSmallTableID", deviceID)
	if err != nil {
		return 0, 0, err
	}
	return s.ParseToSmallTableID(global)
}
