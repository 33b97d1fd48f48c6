// Package manager is the high-level controller API: every mutating
// call validates, mutates the database, looks the result back up,
// packages it into the right wire message with the correct command
// byte, sends it, and logs one line.
package manager

import (
	"fmt"

	"github.com/USTC-INFINITELAB/pctrl/conn"
	"github.com/USTC-INFINITELAB/pctrl/pmdb"
	"github.com/USTC-INFINITELAB/pctrl/pof"
	"github.com/rs/zerolog"
)

// connLookup resolves a device id to its live connection. ctrl.Listener
// satisfies this; keeping it as an interface lets manager avoid
// importing ctrl and keeps the connection registry a single owner:
// switch state never holds a live connection, it is looked up on
// demand.
type connLookup interface {
	Conn(deviceID uint32) (*conn.Conn, bool)
}

// Manager composes a Database with a connection registry and a
// logger. It is the only type application code needs to call to
// mutate a switch's tables, entries, ports, counters, meters, or
// groups.
type Manager struct {
	DB    *pmdb.Database
	Conns connLookup
	Log   zerolog.Logger
}

// New returns a Manager over db, resolving connections through conns.
func New(db *pmdb.Database, conns connLookup, log zerolog.Logger) *Manager {
	return &Manager{DB: db, Conns: conns, Log: log.With().Str("component", "manager").Logger()}
}

// requireSwitch resolves a device id to its database state. An
// unknown device logs and returns an error the caller hands back as
// its own failure value; nothing panics over a stale device id.
func (m *Manager) requireSwitch(op string, deviceID uint32) (*pmdb.SwitchState, error) {
	sw, ok := m.DB.Switch(deviceID)
	if !ok {
		m.Log.Warn().Uint32("device_id", deviceID).Str("op", op).Msg("manager: unknown device")
		return nil, fmt.Errorf("manager: device %d not connected", deviceID)
	}
	return sw, nil
}

func (m *Manager) send(deviceID uint32, msg pof.Message, verb string) error {
	c, ok := m.Conns.Conn(deviceID)
	if !ok {
		m.Log.Warn().Uint32("device_id", deviceID).Str("op", verb).Msg("manager: device not connected")
		return fmt.Errorf("manager: device %d not connected", deviceID)
	}
	if err := c.SendMessage(msg); err != nil {
		m.Log.Error().Err(err).Uint32("device_id", deviceID).Str("op", verb).Msg("manager: send failed")
		return err
	}
	return nil
}

// AddFlowTable mutates the database then emits a TABLE_MOD(ADD).
func (m *Manager) AddFlowTable(deviceID uint32, table pof.FlowTable) (uint32, error) {
	table.Command = pof.FlowTableAdd
	global, err := m.DB.AddFlowTable(deviceID, table)
	if err != nil {
		m.Log.Warn().Err(err).Uint32("device_id", deviceID).Msg("manager: add_flow_table rejected")
		return 0, err
	}

	sw, _ := m.DB.Switch(deviceID)
	table.TableType, table.LocalTableID = tableAddressOf(sw, global)

	xid := m.nextXID(deviceID)
	mod := pof.NewTableMod(xid, table)
	if err := m.send(deviceID, &mod, "add_flow_table"); err != nil {
		return global, err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("global_table_id", global).Str("name", table.Name).Msg("manager: added flow table")
	return global, nil
}

// DelEmptyFlowTable sets command=DELETE and emits TABLE_MOD, refusing
// if the table still has entries.
func (m *Manager) DelEmptyFlowTable(deviceID, globalTableID uint32) error {
	sw, err := m.requireSwitch("del_empty_flow_table", deviceID)
	if err != nil {
		return err
	}
	table, ok := sw.GetFlowTable(globalTableID)
	if !ok {
		return fmt.Errorf("manager: table %d not found", globalTableID)
	}
	// Resolve the wire address while the table still exists; the
	// translation has nothing to look up once the delete lands.
	table.TableType, table.LocalTableID = tableAddressOf(sw, globalTableID)

	if err := m.DB.DeleteFlowTable(deviceID, globalTableID); err != nil {
		m.Log.Warn().Err(err).Uint32("device_id", deviceID).Uint32("global_table_id", globalTableID).Msg("manager: del_empty_flow_table rejected")
		return err
	}

	table.Command = pof.FlowTableDelete
	xid := m.nextXID(deviceID)
	mod := pof.NewTableMod(xid, table)
	if err := m.send(deviceID, &mod, "del_empty_flow_table"); err != nil {
		return err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("global_table_id", globalTableID).Msg("manager: deleted flow table")
	return nil
}

// DelFlowTableAndAllSubEntries emits a FLOW_MOD(DELETE) for every
// entry still in the table, then deletes the now-empty table.
func (m *Manager) DelFlowTableAndAllSubEntries(deviceID, globalTableID uint32) error {
	sw, err := m.requireSwitch("del_flow_table_and_all_sub_entries", deviceID)
	if err != nil {
		return err
	}
	for id := range sw.GetFlowEntriesMap(globalTableID) {
		if err := m.DeleteFlowEntry(deviceID, globalTableID, id); err != nil {
			return err
		}
	}
	return m.DelEmptyFlowTable(deviceID, globalTableID)
}

// DelAllFlowTables applies DelFlowTableAndAllSubEntries to every table
// the switch currently has.
func (m *Manager) DelAllFlowTables(deviceID uint32) error {
	sw, err := m.requireSwitch("del_all_flow_tables", deviceID)
	if err != nil {
		return err
	}
	for _, global := range sw.AllFlowTables() {
		if err := m.DelFlowTableAndAllSubEntries(deviceID, global); err != nil {
			return err
		}
	}
	return nil
}

// AddFlowEntry mutates the database before the FLOW_MOD leaves the
// process, so a subsequent query observes the new state even if the
// message is still queued.
func (m *Manager) AddFlowEntry(deviceID, globalTableID uint32, entry pof.FlowEntry, counterEnable bool) (uint32, error) {
	entryID, err := m.DB.AddFlowEntry(deviceID, globalTableID, entry, counterEnable)
	if err != nil {
		m.Log.Warn().Err(err).Uint32("device_id", deviceID).Uint32("global_table_id", globalTableID).Msg("manager: add_flow_entry rejected")
		return 0, err
	}

	sw, _ := m.DB.Switch(deviceID)
	stored, _ := sw.GetFlowEntry(globalTableID, entryID)
	stored.Command = pof.FlowEntryAdd
	stored.TableType, stored.LocalTableID = tableAddressOf(sw, globalTableID)

	xid := m.nextXID(deviceID)
	mod := pof.NewFlowMod(xid, stored)
	if err := m.send(deviceID, &mod, "add_flow_entry"); err != nil {
		return entryID, err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("global_table_id", globalTableID).Uint32("entry_id", entryID).Msg("manager: added flow entry")
	return entryID, nil
}

// ModifyFlowEntry mirrors AddFlowEntry for FlowEntryModify.
func (m *Manager) ModifyFlowEntry(deviceID, globalTableID, entryID uint32, entry pof.FlowEntry, counterEnable bool) error {
	if err := m.DB.ModifyFlowEntry(deviceID, globalTableID, entryID, entry, counterEnable); err != nil {
		m.Log.Warn().Err(err).Uint32("device_id", deviceID).Uint32("entry_id", entryID).Msg("manager: modify_flow_entry rejected")
		return err
	}

	sw, _ := m.DB.Switch(deviceID)
	stored, _ := sw.GetFlowEntry(globalTableID, entryID)
	stored.Command = pof.FlowEntryModify
	stored.TableType, stored.LocalTableID = tableAddressOf(sw, globalTableID)

	xid := m.nextXID(deviceID)
	mod := pof.NewFlowMod(xid, stored)
	if err := m.send(deviceID, &mod, "modify_flow_entry"); err != nil {
		return err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("entry_id", entryID).Msg("manager: modified flow entry")
	return nil
}

// DeleteFlowEntry mirrors AddFlowEntry for FlowEntryDelete: the
// entry is captured before the database forgets it so the emitted
// FLOW_MOD still carries its match fields.
func (m *Manager) DeleteFlowEntry(deviceID, globalTableID, entryID uint32) error {
	sw, err := m.requireSwitch("delete_flow_entry", deviceID)
	if err != nil {
		return err
	}
	stored, ok := sw.GetFlowEntry(globalTableID, entryID)
	if !ok {
		return fmt.Errorf("manager: entry %d not found", entryID)
	}

	if err := m.DB.DeleteFlowEntry(deviceID, globalTableID, entryID); err != nil {
		m.Log.Warn().Err(err).Uint32("device_id", deviceID).Uint32("entry_id", entryID).Msg("manager: delete_flow_entry rejected")
		return err
	}

	stored.Command = pof.FlowEntryDelete
	stored.TableType, stored.LocalTableID = tableAddressOf(sw, globalTableID)
	xid := m.nextXID(deviceID)
	mod := pof.NewFlowMod(xid, stored)
	if err := m.send(deviceID, &mod, "delete_flow_entry"); err != nil {
		return err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("entry_id", entryID).Msg("manager: deleted flow entry")
	return nil
}

// SetPortOfEnable mutates port.OFEnable in the cached PhyPort and
// emits PORT_MOD(MODIFY) carrying the mutated port.
func (m *Manager) SetPortOfEnable(deviceID, portID uint32, on bool) error {
	sw, err := m.requireSwitch("set_port_of_enable", deviceID)
	if err != nil {
		return err
	}
	port, ok := sw.Port(portID)
	if !ok {
		return fmt.Errorf("manager: port %d not found", portID)
	}

	if on {
		port.OFEnable = 1
	} else {
		port.OFEnable = 0
	}
	sw.PutPort(port)

	xid := m.nextXID(deviceID)
	pm := pof.NewPortMod(xid, pof.PortModModify, port)
	if err := m.send(deviceID, &pm, "set_port_of_enable"); err != nil {
		return err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("port_id", portID).Bool("enable", on).Msg("manager: set port enable")
	return nil
}

// QueryCounterValue sends a COUNTER_REQUEST; the eventual
// COUNTER_REPLY surfaces through the event bus, not awaited inline.
func (m *Manager) QueryCounterValue(deviceID, counterID uint32) error {
	xid := m.nextXID(deviceID)
	req := pof.NewCounterRequest(xid, counterID)
	return m.send(deviceID, &req, "query_counter_value")
}

func (m *Manager) nextXID(deviceID uint32) uint32 {
	if c, ok := m.Conns.Conn(deviceID); ok {
		return c.NextXID()
	}
	return 0
}

// tableAddressOf resolves a global table id into the (type, local id)
// pair the wire message carries.
func tableAddressOf(sw *pmdb.SwitchState, global uint32) (pof.TableType, uint8) {
	tt, local, err := sw.ParseToSmallTableID(global)
	if err != nil {
		return 0, 0
	}
	return tt, local
}
