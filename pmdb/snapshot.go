package pmdb

import (
	"fmt"
	"os"
	"sort"

	"github.com/USTC-INFINITELAB/pctrl/pof"
	"gopkg.in/yaml.v3"
)

// Snapshot is a structured, YAML-serializable dump of protocols,
// metadata fields, and per-switch flow tables/entries. Live connection
// state is deliberately excluded: a snapshot only seeds a fresh
// Database before any connection is admitted, it never resumes an
// in-flight session.
type Snapshot struct {
	Protocols []protocolSnapshot `yaml:"protocols"`
	Metadata  []fieldSnapshot    `yaml:"metadata"`
	Switches  []switchSnapshot   `yaml:"switches"`
}

type protocolSnapshot struct {
	Name   string          `yaml:"name"`
	Fields []fieldSnapshot `yaml:"fields"`
}

type fieldSnapshot struct {
	Name   string `yaml:"name"`
	Offset uint16 `yaml:"offset"`
	Length uint16 `yaml:"length"`
}

type switchSnapshot struct {
	DeviceID uint32              `yaml:"device_id"`
	Tables   []flowTableSnapshot `yaml:"tables"`
}

type flowTableSnapshot struct {
	GlobalID  uint32              `yaml:"global_id"`
	Type      string              `yaml:"type"`
	Name      string              `yaml:"name"`
	KeyLength uint16              `yaml:"key_length"`
	TableSize uint32              `yaml:"table_size"`
	MatchKeys []fieldSnapshot     `yaml:"match_keys"`
	Entries   []flowEntrySnapshot `yaml:"entries"`
}

type flowEntrySnapshot struct {
	Index    uint32 `yaml:"index"`
	Priority uint16 `yaml:"priority"`
	Cookie   uint64 `yaml:"cookie"`
}

var snapshotTableType = map[string]pof.TableType{
	"MM":     pof.TableTypeMM,
	"LPM":    pof.TableTypeLPM,
	"EM":     pof.TableTypeEM,
	"LINEAR": pof.TableTypeLinear,
}

// Snapshot builds a Snapshot of d's protocols, metadata, and every
// switch's flow tables and entries. It does not include live
// connection state.
func (d *Database) Snapshot() Snapshot {
	d.mu.Lock()
	protoIDs := make([]int, 0, len(d.protocols.byID))
	for id := range d.protocols.byID {
		protoIDs = append(protoIDs, id)
	}
	d.mu.Unlock()

	var snap Snapshot
	for _, id := range sortedInts(protoIDs) {
		proto, ok := d.Protocol(id)
		if !ok {
			continue
		}
		ps := protocolSnapshot{Name: proto.Name}
		for _, f := range proto.Fields {
			ps.Fields = append(ps.Fields, fieldSnapshot{Name: f.Name, Offset: f.OffsetInBits, Length: f.LengthInBits})
		}
		snap.Protocols = append(snap.Protocols, ps)
	}

	for _, f := range d.MetadataFields() {
		snap.Metadata = append(snap.Metadata, fieldSnapshot{Name: f.Name, Offset: f.OffsetInBits, Length: f.LengthInBits})
	}

	for _, deviceID := range d.Switches() {
		s, ok := d.Switch(deviceID)
		if !ok {
			continue
		}
		ss := switchSnapshot{DeviceID: deviceID}
		for _, global := range s.AllFlowTables() {
			t, ok := s.GetFlowTable(global)
			if !ok {
				continue
			}
			ts := flowTableSnapshot{
				GlobalID:  global,
				Type:      t.TableType.String(),
				Name:      t.Name,
				KeyLength: t.KeyLength,
				TableSize: t.TableSize,
			}
			for _, f := range t.MatchFieldList {
				ts.MatchKeys = append(ts.MatchKeys, fieldSnapshot{Name: f.Name, Offset: f.OffsetInBits, Length: f.LengthInBits})
			}
			entries := s.GetFlowEntriesMap(global)
			ids := entryIDs(entries)
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			for _, entryID := range ids {
				e := entries[entryID]
				ts.Entries = append(ts.Entries, flowEntrySnapshot{Index: e.Index, Priority: e.Priority, Cookie: e.Cookie})
			}
			ss.Tables = append(ss.Tables, ts)
		}
		snap.Switches = append(snap.Switches, ss)
	}

	return snap
}

// SaveSnapshot writes d's Snapshot to path as YAML.
func (d *Database) SaveSnapshot(path string) error {
	b, err := yaml.Marshal(d.Snapshot())
	if err != nil {
		return fmt.Errorf("pmdb: marshal snapshot: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadSnapshot reads a YAML snapshot from path and rebuilds a fresh
// Database from it, seeding protocols, metadata, switches, and their
// flow tables. Entries are NOT replayed: a snapshot records entry
// identity and metadata for inspection, not the exact match/action
// bytes needed to safely reinstall a live entry.
func LoadSnapshot(path string) (*Database, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pmdb: read snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("pmdb: unmarshal snapshot: %w", err)
	}

	d := New()
	for _, ps := range snap.Protocols {
		specs := make([]FieldSpec, len(ps.Fields))
		for i, f := range ps.Fields {
			specs[i] = FieldSpec{Name: f.Name, Offset: f.Offset, Length: f.Length}
		}
		if _, err := d.AddProtocol(ps.Name, specs); err != nil {
			return nil, fmt.Errorf("pmdb: restore protocol %q: %w", ps.Name, err)
		}
	}
	for _, f := range snap.Metadata {
		if _, err := d.AddMetadataField(f.Name, f.Offset, f.Length); err != nil {
			return nil, fmt.Errorf("pmdb: restore metadata field %q: %w", f.Name, err)
		}
	}

	for _, ss := range snap.Switches {
		sw := d.AddSwitch(ss.DeviceID)
		for _, ts := range ss.Tables {
			tt, ok := snapshotTableType[ts.Type]
			if !ok {
				return nil, fmt.Errorf("pmdb: restore switch %d: unknown table type %q", ss.DeviceID, ts.Type)
			}
			matchFields := make([]pof.Field, len(ts.MatchKeys))
			for i, f := range ts.MatchKeys {
				matchFields[i] = pof.Field{Name: f.Name, OffsetInBits: f.Offset, LengthInBits: f.Length}
			}
			table := pof.FlowTable{
				TableType:      tt,
				Name:           ts.Name,
				KeyLength:      ts.KeyLength,
				TableSize:      ts.TableSize,
				MatchFieldList: matchFields,
			}
			// InstallResourceReport has not run for a restored switch, so
			// tables are seeded directly rather than through AddFlowTable's
			// resource-base validation.
			sw.tables[ts.GlobalID] = table
			sw.entryDBs[ts.GlobalID] = newFlowEntryDB()
			sw.firstTableAdded = true
		}
	}

	return d, nil
}

func sortedInts(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}

func entryIDs(m map[uint32]pof.FlowEntry) []uint32 {
	out := make([]uint32, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
