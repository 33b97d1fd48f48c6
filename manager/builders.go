package manager

import (
	"fmt"

	"github.com/USTC-INFINITELAB/pctrl/pmdb"
	"github.com/USTC-INFINITELAB/pctrl/pof"
)

// The pure record constructors (pof.NewActionOutput,
// pof.NewInsApplyActions, ...) need no controller state and live in
// the pof package. The builders here are the ones that do: they
// resolve field ids and table ids through the database before
// assembling the record.

// NewMatchX resolves fieldID through the field pool and builds a MatchX
// from hex-encoded value/mask strings, zero-padded to the 16-byte wire
// slot.
func (m *Manager) NewMatchX(fieldID int16, valueHex, maskHex string) (pof.MatchX, error) {
	f, ok := m.DB.Field(fieldID)
	if !ok {
		m.Log.Warn().Int16("field_id", fieldID).Msg("manager: new_matchx: unknown field")
		return pof.MatchX{}, fmt.Errorf("manager: field %d not found", fieldID)
	}
	return pof.NewMatchX(f, valueHex, maskHex)
}

// NewMatchXByName resolves a field by name instead; it errors when the
// name is ambiguous across protocols.
func (m *Manager) NewMatchXByName(fieldName, valueHex, maskHex string) (pof.MatchX, error) {
	fields := m.DB.FieldsByName(fieldName)
	switch len(fields) {
	case 0:
		return pof.MatchX{}, fmt.Errorf("manager: field %q not found", fieldName)
	case 1:
		return pof.NewMatchX(fields[0], valueHex, maskHex)
	default:
		return pof.MatchX{}, fmt.Errorf("manager: field name %q is ambiguous (%d matches)", fieldName, len(fields))
	}
}

// NewInsGotoTable builds a GOTO_TABLE instruction pointing at an
// installed table, copying the destination's own match field list so
// the switch knows how to form the next lookup key.
func (m *Manager) NewInsGotoTable(deviceID, nextGlobalTableID uint32, packetOffset uint16) (*pof.InstructionGotoTable, error) {
	sw, err := m.requireSwitch("new_ins_goto_table", deviceID)
	if err != nil {
		return nil, err
	}
	next, ok := sw.GetFlowTable(nextGlobalTableID)
	if !ok {
		m.Log.Warn().Uint32("device_id", deviceID).Uint32("global_table_id", nextGlobalTableID).Msg("manager: new_ins_goto_table: unknown table")
		return nil, fmt.Errorf("manager: table %d not found", nextGlobalTableID)
	}
	return pof.NewInsGotoTable(uint8(nextGlobalTableID), packetOffset, next.MatchFieldList...), nil
}

// SendPacketOut pushes a controller-crafted packet out through the
// given actions.
func (m *Manager) SendPacketOut(deviceID, bufferID, inPort uint32, data []byte, actions...pof.Action) error {
	if len(data) > pof.PacketOutDataLen {
		return fmt.Errorf("manager: packet data %d bytes exceeds the %d-byte slot", len(data), pof.PacketOutDataLen)
	}
	po := pof.NewPacketOut(m.nextXID(deviceID), bufferID, inPort, actions, data)
	return m.send(deviceID, &po, "send_packet_out")
}

// AddProtocol registers a named protocol and its ordered field list,
// database only; protocols are controller-side vocabulary and never
// leave the process as a message of their own.
func (m *Manager) AddProtocol(name string, fieldSpecs []pmdb.FieldSpec) (*pmdb.Protocol, error) {
	proto, err := m.DB.AddProtocol(name, fieldSpecs)
	if err != nil {
		m.Log.Warn().Err(err).Str("name", name).Msg("manager: add_protocol rejected")
		return nil, err
	}
	m.Log.Info().Str("name", name).Int("protocol_id", proto.ID).Int("fields", len(proto.Fields)).Msg("manager: added protocol")
	return proto, nil
}

// DelProtocol removes a protocol, cascading to its fields.
func (m *Manager) DelProtocol(id int) error {
	if err := m.DB.DeleteProtocol(id); err != nil {
		m.Log.Warn().Err(err).Int("protocol_id", id).Msg("manager: del_protocol rejected")
		return err
	}
	m.Log.Info().Int("protocol_id", id).Msg("manager: deleted protocol")
	return nil
}

// NewField allocates a standalone field descriptor.
func (m *Manager) NewField(name string, offset, length uint16) pof.Field {
	f := m.DB.NewField(name, offset, length)
	m.Log.Info().Str("name", name).Int16("field_id", f.FieldID).Msg("manager: new field")
	return f
}

// DeleteField removes a standalone field descriptor.
func (m *Manager) DeleteField(id int16) error {
	if err := m.DB.DeleteField(id); err != nil {
		m.Log.Warn().Err(err).Int16("field_id", id).Msg("manager: delete_field rejected")
		return err
	}
	m.Log.Info().Int16("field_id", id).Msg("manager: deleted field")
	return nil
}

// NewMetadataField appends a field to the process-wide metadata
// layout; offsets must not overlap the fields already there.
func (m *Manager) NewMetadataField(name string, offset, length uint16) (pof.Field, error) {
	f, err := m.DB.AddMetadataField(name, offset, length)
	if err != nil {
		m.Log.Warn().Err(err).Str("name", name).Msg("manager: new_metadata_field rejected")
		return pof.Field{}, err
	}
	m.Log.Info().Str("name", name).Uint16("offset", offset).Uint16("length", length).Msg("manager: new metadata field")
	return f, nil
}

// GetPortStatus returns the cached PhyPort for a port id.
func (m *Manager) GetPortStatus(deviceID, portID uint32) (pof.PhyPort, bool) {
	sw, err := m.requireSwitch("get_port_status", deviceID)
	if err != nil {
		return pof.PhyPort{}, false
	}
	return sw.Port(portID)
}

// GetPortIDByName resolves a cached port through the name index.
func (m *Manager) GetPortIDByName(deviceID uint32, name string) (uint32, bool) {
	sw, err := m.requireSwitch("get_port_id_by_name", deviceID)
	if err != nil {
		return 0, false
	}
	return sw.PortByName(name)
}

// GetFlowTable returns the cached FlowTable for a global id.
func (m *Manager) GetFlowTable(deviceID, globalTableID uint32) (pof.FlowTable, bool) {
	sw, err := m.requireSwitch("get_flow_table", deviceID)
	if err != nil {
		return pof.FlowTable{}, false
	}
	return sw.GetFlowTable(globalTableID)
}

// GetFlowEntry returns the cached FlowEntry for an entry id.
func (m *Manager) GetFlowEntry(deviceID, globalTableID, entryID uint32) (pof.FlowEntry, bool) {
	sw, err := m.requireSwitch("get_flow_entry", deviceID)
	if err != nil {
		return pof.FlowEntry{}, false
	}
	return sw.GetFlowEntry(globalTableID, entryID)
}
