package index

import (
	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/errors"
)

// NumericType selects the interpretation of a numeric doc-values column.
type NumericType byte

const (
	// NumericTypeLong stores values as signed 64-bit integers.
	NumericTypeLong NumericType = 0

	// NumericTypeDouble stores float64 values as their bit pattern.
	NumericTypeDouble NumericType = 1
)

// Flag bits of the FieldInfos record.
const (
	fieldFlagIndexed      = 1 << 0
	fieldFlagNorms        = 1 << 1
	fieldFlagPositions    = 1 << 2
	fieldFlagDocValues    = 1 << 3
	fieldFlagStoredFields = 1 << 4
)

// FieldInfo is the per-field schema record carried by each segment.
type FieldInfo struct {
	Name         string
	Number       int32
	Indexed      bool
	HasNorms     bool
	HasPositions bool
	HasDocValues bool
	HasStored    bool
	NumericType  NumericType
}

// FieldInfos is the ordered field schema of one segment.
type FieldInfos struct {
	byName   map[string]*FieldInfo
	byNumber map[int32]*FieldInfo
	ordered  []*FieldInfo
}

func NewFieldInfos(fields []*FieldInfo) *FieldInfos {
	fi := &FieldInfos{
		byName:   make(map[string]*FieldInfo, len(fields)),
		byNumber: make(map[int32]*FieldInfo, len(fields)),
		ordered:  fields,
	}
	for _, f := range fields {
		fi.byName[f.Name] = f
		fi.byNumber[f.Number] = f
	}
	return fi
}

// ByName returns the field info for name, or nil when the segment has no such
// field.
func (fi *FieldInfos) ByName(name string) *FieldInfo {
	if fi == nil {
		return nil
	}
	return fi.byName[name]
}

// ByNumber returns the field info for a field number, or nil.
func (fi *FieldInfos) ByNumber(number int32) *FieldInfo {
	if fi == nil {
		return nil
	}
	return fi.byNumber[number]
}

// All returns the fields in number order.
func (fi *FieldInfos) All() []*FieldInfo { return fi.ordered }

// Len returns the field count.
func (fi *FieldInfos) Len() int { return len(fi.ordered) }

func writeFieldInfos(out *store.IndexOutput, fi *FieldInfos) error {
	if err := out.WriteInt(int32(fi.Len())); err != nil {
		return err
	}
	for _, f := range fi.ordered {
		if err := out.WriteString(f.Name); err != nil {
			return err
		}
		if err := out.WriteInt(f.Number); err != nil {
			return err
		}
		var flags byte
		if f.Indexed {
			flags |= fieldFlagIndexed
		}
		if f.HasNorms {
			flags |= fieldFlagNorms
		}
		if f.HasPositions {
			flags |= fieldFlagPositions
		}
		if f.HasDocValues {
			flags |= fieldFlagDocValues
		}
		if f.HasStored {
			flags |= fieldFlagStoredFields
		}
		if err := out.WriteByte(flags); err != nil {
			return err
		}
		if err := out.WriteByte(byte(f.NumericType)); err != nil {
			return err
		}
	}
	return nil
}

func readFieldInfos(in store.IndexInput) (*FieldInfos, error) {
	count, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Negative field count in FieldInfos record").WithDetail("count", count)
	}
	fields := make([]*FieldInfo, 0, count)
	for i := int32(0); i < count; i++ {
		name, err := in.ReadString()
		if err != nil {
			return nil, err
		}
		number, err := in.ReadInt()
		if err != nil {
			return nil, err
		}
		flags, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		nt, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		fields = append(fields, &FieldInfo{
			Name:         name,
			Number:       number,
			Indexed:      flags&fieldFlagIndexed != 0,
			HasNorms:     flags&fieldFlagNorms != 0,
			HasPositions: flags&fieldFlagPositions != 0,
			HasDocValues: flags&fieldFlagDocValues != 0,
			HasStored:    flags&fieldFlagStoredFields != 0,
			NumericType:  NumericType(nt),
		})
	}
	return NewFieldInfos(fields), nil
}
