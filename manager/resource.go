package manager

import (
	"fmt"

	"github.com/USTC-INFINITELAB/pctrl/pof"
)

// Counter, meter, and group handles are allocated controller-side from
// the pools the switch declared in its RESOURCE_REPORT; every
// allocation or release is mirrored to the switch with the matching
// *_MOD message, database first.

// AllocateCounter reserves a counter id on the switch and announces it
// with a COUNTER_MOD(ADD).
func (m *Manager) AllocateCounter(deviceID uint32) (uint32, error) {
	sw, err := m.requireSwitch("allocate_counter", deviceID)
	if err != nil {
		return 0, err
	}
	id, err := sw.AllocCounter()
	if err != nil {
		m.Log.Warn().Err(err).Uint32("device_id", deviceID).Msg("manager: allocate_counter rejected")
		return 0, err
	}

	mod := pof.NewCounterMod(m.nextXID(deviceID), pof.CounterModAdd, id)
	if err := m.send(deviceID, &mod, "allocate_counter"); err != nil {
		return id, err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("counter_id", id).Msg("manager: allocated counter")
	return id, nil
}

// FreeCounter returns a counter id to the pool and emits a
// COUNTER_MOD(DELETE).
func (m *Manager) FreeCounter(deviceID, counterID uint32) error {
	sw, err := m.requireSwitch("free_counter", deviceID)
	if err != nil {
		return err
	}
	sw.FreeCounter(counterID)

	mod := pof.NewCounterMod(m.nextXID(deviceID), pof.CounterModDelete, counterID)
	if err := m.send(deviceID, &mod, "free_counter"); err != nil {
		return err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("counter_id", counterID).Msg("manager: freed counter")
	return nil
}

// ResetCounter zeroes a counter on the switch with a
// COUNTER_MOD(CLEAR); the id stays allocated.
func (m *Manager) ResetCounter(deviceID, counterID uint32) error {
	if _, err := m.requireSwitch("reset_counter", deviceID); err != nil {
		return err
	}
	mod := pof.NewCounterMod(m.nextXID(deviceID), pof.CounterModClear, counterID)
	if err := m.send(deviceID, &mod, "reset_counter"); err != nil {
		return err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("counter_id", counterID).Msg("manager: reset counter")
	return nil
}

// AddMeterEntry reserves a meter id, records the rate it was created
// with, and installs it with a METER_MOD(ADD).
func (m *Manager) AddMeterEntry(deviceID, rate uint32) (uint32, error) {
	sw, err := m.requireSwitch("add_meter_entry", deviceID)
	if err != nil {
		return 0, err
	}
	id, err := sw.AllocMeter()
	if err != nil {
		m.Log.Warn().Err(err).Uint32("device_id", deviceID).Msg("manager: add_meter_entry rejected")
		return 0, err
	}

	mod := pof.NewMeterMod(m.nextXID(deviceID), pof.MeterModAdd, 0, id, rate)
	sw.SetMeterValue(id, mod)
	if err := m.send(deviceID, &mod, "add_meter_entry"); err != nil {
		return id, err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("meter_id", id).Uint32("rate", rate).Msg("manager: added meter")
	return id, nil
}

// ModifyMeter updates an existing meter's rate with a
// METER_MOD(MODIFY).
func (m *Manager) ModifyMeter(deviceID, meterID, rate uint32) error {
	sw, err := m.requireSwitch("modify_meter", deviceID)
	if err != nil {
		return err
	}
	if _, ok := sw.MeterValue(meterID); !ok {
		m.Log.Warn().Uint32("device_id", deviceID).Uint32("meter_id", meterID).Msg("manager: modify_meter: meter not found")
		return fmt.Errorf("manager: meter %d not found", meterID)
	}

	mod := pof.NewMeterMod(m.nextXID(deviceID), pof.MeterModModify, 0, meterID, rate)
	sw.SetMeterValue(meterID, mod)
	if err := m.send(deviceID, &mod, "modify_meter"); err != nil {
		return err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("meter_id", meterID).Uint32("rate", rate).Msg("manager: modified meter")
	return nil
}

// FreeMeter releases a meter id and removes it from the switch with a
// METER_MOD(DELETE).
func (m *Manager) FreeMeter(deviceID, meterID uint32) error {
	sw, err := m.requireSwitch("free_meter", deviceID)
	if err != nil {
		return err
	}
	sw.FreeMeter(meterID)

	mod := pof.NewMeterMod(m.nextXID(deviceID), pof.MeterModDelete, 0, meterID, 0)
	if err := m.send(deviceID, &mod, "free_meter"); err != nil {
		return err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("meter_id", meterID).Msg("manager: freed meter")
	return nil
}

// AddGroupEntry reserves a group id, records its action bucket, and
// installs it with a GROUP_MOD(ADD).
func (m *Manager) AddGroupEntry(deviceID uint32, actions...pof.Action) (uint32, error) {
	sw, err := m.requireSwitch("add_group_entry", deviceID)
	if err != nil {
		return 0, err
	}
	id, err := sw.AllocGroup()
	if err != nil {
		m.Log.Warn().Err(err).Uint32("device_id", deviceID).Msg("manager: add_group_entry rejected")
		return 0, err
	}

	mod := pof.NewGroupMod(m.nextXID(deviceID), pof.GroupModAdd, id, actions)
	sw.SetGroupValue(id, mod)
	if err := m.send(deviceID, &mod, "add_group_entry"); err != nil {
		return id, err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("group_id", id).Int("actions", len(actions)).Msg("manager: added group")
	return id, nil
}

// ModifyGroupEntry replaces an existing group's action bucket with a
// GROUP_MOD(MODIFY).
func (m *Manager) ModifyGroupEntry(deviceID, groupID uint32, actions...pof.Action) error {
	sw, err := m.requireSwitch("modify_group_entry", deviceID)
	if err != nil {
		return err
	}
	if _, ok := sw.GroupValue(groupID); !ok {
		m.Log.Warn().Uint32("device_id", deviceID).Uint32("group_id", groupID).Msg("manager: modify_group_entry: group not found")
		return fmt.Errorf("manager: group %d not found", groupID)
	}

	mod := pof.NewGroupMod(m.nextXID(deviceID), pof.GroupModModify, groupID, actions)
	sw.SetGroupValue(groupID, mod)
	if err := m.send(deviceID, &mod, "modify_group_entry"); err != nil {
		return err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("group_id", groupID).Int("actions", len(actions)).Msg("manager: modified group")
	return nil
}

// FreeGroupEntry releases a group id and removes it from the switch
// with a GROUP_MOD(DELETE).
func (m *Manager) FreeGroupEntry(deviceID, groupID uint32) error {
	sw, err := m.requireSwitch("free_group_entry", deviceID)
	if err != nil {
		return err
	}
	sw.FreeGroup(groupID)

	mod := pof.NewGroupMod(m.nextXID(deviceID), pof.GroupModDelete, groupID, nil)
	if err := m.send(deviceID, &mod, "free_group_entry"); err != nil {
		return err
	}
	m.Log.Info().Uint32("device_id", deviceID).Uint32("group_id", groupID).Msg("manager: freed group")
	return nil
}
