package pmdb

import "github.com/USTC-INFINITELAB/pctrl/pof"

// fieldRecord is a Field together with the protocol (if any) that owns
// it, so DeleteProtocol can cascade.
type fieldRecord struct {
	field      pof.Field
	protocolID int // 0 when not owned by any protocol (a standalone NewField field)
}

// Protocol is a named, ordered collection of Fields whose offsets must
// be non-decreasing.
type Protocol struct {
	Name        string
	ID          int
	TotalLength uint16
	Fields      []pof.Field
}

// fieldPool owns the process-wide monotone field-id space shared by
// every protocol's fields plus the standalone ones, ids monotone
// from 0.
type fieldPool struct {
	nextID  int16
	records map[int16]*fieldRecord
}

func newFieldPool() *fieldPool {
	return &fieldPool{records: make(map[int16]*fieldRecord)}
}

func (p *fieldPool) newField(name string, offset, length uint16, protocolID int) pof.Field {
	id := p.nextID
	p.nextID++
	f := pof.Field{Name: name, FieldID: id, OffsetInBits: offset, LengthInBits: length}
	p.records[id] = &fieldRecord{field: f, protocolID: protocolID}
	return f
}

func (p *fieldPool) delete(id int16) {
	delete(p.records, id)
}

func (p *fieldPool) byID(id int16) (pof.Field, bool) {
	r, ok := p.records[id]
	if !ok {
		return pof.Field{}, false
	}
	return r.field, true
}

// byName returns every field whose Name matches; names are not
// unique across protocols, so this can return more than one.
func (p *fieldPool) byName(name string) []pof.Field {
	var out []pof.Field
	for _, r := range p.records {
		if r.field.Name == name {
			out = append(out, r.field)
		}
	}
	return out
}

// protocolFieldIDs returns the field ids owned by protocolID, used by
// DeleteProtocol to cascade.
func (p *fieldPool) protocolFieldIDs(protocolID int) []int16 {
	var out []int16
	for id, r := range p.records {
		if r.protocolID == protocolID {
			out = append(out, id)
		}
	}
	return out
}

// protocolPool owns the process-wide protocol namespace, ids monotone
// from 1.
type protocolPool struct {
	nextID    int
	byID      map[int]*Protocol
	byName    map[string]*Protocol
	fields    *fieldPool
}

func newProtocolPool(fields *fieldPool) *protocolPool {
	return &protocolPool{nextID: 1, byID: make(map[int]*Protocol), byName: make(map[string]*Protocol), fields: fields}
}

// AddProtocol validates field-offset monotonicity and registers a
// new Protocol, allocating field ids for each supplied (name, offset,
// length) tuple.
func (p *protocolPool) AddProtocol(name string, fieldSpecs []FieldSpec) (*Protocol, error) {
	const op = "AddProtocol"
	if name == "" {
		return nil, errInvalid(op, "protocol name must not be empty")
	}
	if _, dup := p.byName[name]; dup {
		return nil, errInvalid(op, "protocol %q already exists", name)
	}

	var end uint16
	for _, fs := range fieldSpecs {
		if fs.Offset < end {
			return nil, errInvalid(op, "field %q offset %d precedes end of previous field (%d)", fs.Name, fs.Offset, end)
		}
		end = fs.Offset + fs.Length
	}

	id := p.nextID
	p.nextID++

	proto := &Protocol{Name: name, ID: id}
	var total uint16
	for _, fs := range fieldSpecs {
		f := p.fields.newField(fs.Name, fs.Offset, fs.Length, id)
		proto.Fields = append(proto.Fields, f)
		total += fs.Length
	}
	proto.TotalLength = total

	p.byID[id] = proto
	p.byName[name] = proto
	return proto, nil
}

// FieldSpec is the caller-supplied description of one Field to add to
// a new Protocol.
type FieldSpec struct {
	Name   string
	Offset uint16
	Length uint16
}

// DeleteProtocol removes a protocol and cascades to delete its
// Fields.
func (p *protocolPool) DeleteProtocol(id int) error {
	proto, ok := p.byID[id]
	if !ok {
		return errNotFound("DeleteProtocol", "protocol %d not found", id)
	}
	for _, fid := range p.fields.protocolFieldIDs(id) {
		p.fields.delete(fid)
	}
	delete(p.byID, id)
	delete(p.byName, proto.Name)
	return nil
}

func (p *protocolPool) GetByID(id int) (*Protocol, bool) {
	proto, ok := p.byID[id]
	return proto, ok
}

func (p *protocolPool) GetByName(name string) (*Protocol, bool) {
	proto, ok := p.byName[name]
	return proto, ok
}

// metadataPool is the process-wide ordered metadata field list.
// Metadata fields always carry the sentinel FieldID -1 on the wire,
// so they are tracked by offset/name here rather than routed through
// fieldPool's monotone id space.
type metadataPool struct {
	fields []pof.Field
}

func newMetadataPool() *metadataPool {
	return &metadataPool{}
}

// NewMetadataField appends a new metadata Field, rejecting an offset
// that would overlap the last existing field.
func (m *metadataPool) NewMetadataField(name string, offset, length uint16) (pof.Field, error) {
	const op = "NewMetadataField"
	var end uint16
	if n := len(m.fields); n > 0 {
		last := m.fields[n-1]
		end = last.OffsetInBits + last.LengthInBits
	}
	if offset < end {
		return pof.Field{}, errInvalid(op, "offset %d overlaps existing metadata ending at %d", offset, end)
	}

	f := pof.Field{Name: name, FieldID: pof.MetadataFieldID, OffsetInBits: offset, LengthInBits: length}
	m.fields = append(m.fields, f)
	return f, nil
}

func (m *metadataPool) All() []pof.Field {
	out := make([]pof.Field, len(m.fields))
	copy(out, m.fields)
	return out
}
