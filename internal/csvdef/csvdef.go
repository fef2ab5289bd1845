// Package csvdef builds a packet definition from a flat CSV schema, a
// fixed-structure alternative to XTCE documents. Each row declares one
// field of one packet; packets are matched by APID only.
package csvdef

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/medley56/space-packet-parser/internal/bitstream"
	"github.com/medley56/space-packet-parser/internal/telemetry"
	"github.com/medley56/space-packet-parser/internal/xtce"
)

// dtypePattern splits a data type string such as "U8", "I16", "F32" or
// "C64" into a kind letter and a width in bits.
var dtypePattern = regexp.MustCompile(`^([A-Za-z]+)([0-9]+)$`)

// Load reads a CSV packet definition. Required columns are
// Container (or Packet), ItemName (or Name), DataType (or Type), and
// APID. Each distinct container becomes a concrete sequence container
// inheriting the synthesized CCSDS header root, restricted to its APID.
func Load(r io.Reader, logger *logrus.Logger) (*xtce.Definition, error) {
	if logger == nil {
		logger = logrus.New()
	}
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV definition: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV definition requires a header row and at least one field row")
	}

	cols, err := columnIndexes(records[0])
	if err != nil {
		return nil, err
	}

	def := newHeaderDefinition()

	var order []string
	rowsByContainer := make(map[string][][]string)
	for i, rec := range records[1:] {
		if len(rec) <= cols.max() {
			return nil, fmt.Errorf("row %d has %d columns, expected at least %d", i+2, len(rec), cols.max()+1)
		}
		name := rec[cols.container]
		if _, seen := rowsByContainer[name]; !seen {
			order = append(order, name)
		}
		rowsByContainer[name] = append(rowsByContainer[name], rec)
	}

	for _, containerName := range order {
		rows := rowsByContainer[containerName]
		apid, err := strconv.ParseUint(rows[0][cols.apid], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("container %q has invalid APID %q", containerName, rows[0][cols.apid])
		}

		sc := &xtce.SequenceContainer{
			Name:              containerName,
			BaseContainerName: xtce.DefaultRootContainer,
			RestrictionCriteria: xtce.ComparisonList{
				&xtce.Comparison{
					ParameterRef:  "PKT_APID",
					Operator:      xtce.OpEq,
					Value:         strconv.FormatUint(apid, 10),
					UseCalibrated: false,
				},
			},
		}
		for _, row := range rows {
			itemName := row[cols.itemName]
			pt, err := parameterTypeFromString(row[cols.dataType], itemName+"_Type")
			if err != nil {
				return nil, fmt.Errorf("container %q field %q: %w", containerName, itemName, err)
			}
			if _, exists := def.Parameters[itemName]; exists {
				return nil, fmt.Errorf("duplicate field name %q", itemName)
			}
			def.ParameterTypes[pt.TypeName()] = pt
			p := &xtce.Parameter{Name: itemName, Type: pt}
			def.Parameters[itemName] = p
			sc.Entries = append(sc.Entries, xtce.Entry{Parameter: p})
		}
		def.Containers[containerName] = sc
		root := def.Containers[xtce.DefaultRootContainer]
		root.Inheritors = append(root.Inheritors, containerName)
	}

	if _, err := def.Validate(); err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"containers": len(def.Containers) - 1,
		"parameters": len(def.Parameters) - telemetry.HeaderFieldCount(),
	}).Debug("Loaded CSV definition")
	return def, nil
}

type columns struct {
	container int
	itemName  int
	dataType  int
	apid      int
}

func (c columns) max() int {
	m := c.container
	for _, v := range []int{c.itemName, c.dataType, c.apid} {
		if v > m {
			m = v
		}
	}
	return m
}

// columnIndexes accepts the column name variants seen in the wild:
// Packet/Container, Name/ItemName, Type/DataType.
func columnIndexes(header []string) (columns, error) {
	idx := map[string]int{}
	for i, name := range header {
		idx[name] = i
	}
	cols := columns{container: -1, itemName: -1, dataType: -1, apid: -1}
	for _, alias := range []string{"Container", "Packet"} {
		if i, ok := idx[alias]; ok {
			cols.container = i
			break
		}
	}
	for _, alias := range []string{"ItemName", "Name"} {
		if i, ok := idx[alias]; ok {
			cols.itemName = i
			break
		}
	}
	for _, alias := range []string{"DataType", "Type"} {
		if i, ok := idx[alias]; ok {
			cols.dataType = i
			break
		}
	}
	if i, ok := idx["APID"]; ok {
		cols.apid = i
	}
	switch {
	case cols.container < 0:
		return cols, fmt.Errorf("CSV definition requires a Container or Packet column")
	case cols.itemName < 0:
		return cols, fmt.Errorf("CSV definition requires an ItemName or Name column")
	case cols.dataType < 0:
		return cols, fmt.Errorf("CSV definition requires a DataType or Type column")
	case cols.apid < 0:
		return cols, fmt.Errorf("CSV definition requires an APID column")
	}
	return cols, nil
}

// parameterTypeFromString converts a data type string to a parameter
// type. The numeric suffix is a width in bits: U8, I16, D32 (discrete,
// decoded as unsigned), F32, C64 (character array).
func parameterTypeFromString(dtype, typeName string) (xtce.ParameterType, error) {
	m := dtypePattern.FindStringSubmatch(dtype)
	if m == nil {
		return nil, fmt.Errorf("unparseable data type %q", dtype)
	}
	bits, err := strconv.Atoi(m[2])
	if err != nil || bits <= 0 {
		return nil, fmt.Errorf("invalid width in data type %q", dtype)
	}

	switch m[1][0] {
	case 'U', 'D':
		return xtce.NewIntegerParameterType(typeName, "", &xtce.IntegerDataEncoding{
			SizeInBits: bits,
			Signedness: bitstream.Unsigned,
		}), nil
	case 'I':
		return xtce.NewIntegerParameterType(typeName, "", &xtce.IntegerDataEncoding{
			SizeInBits: bits,
			Signedness: bitstream.TwosComplement,
		}), nil
	case 'F':
		if bits != 16 && bits != 32 && bits != 64 {
			return nil, fmt.Errorf("float width must be 16, 32, or 64 bits in data type %q", dtype)
		}
		return xtce.NewFloatParameterType(typeName, "", &xtce.FloatDataEncoding{SizeInBits: bits}), nil
	case 'C':
		return xtce.NewStringParameterType(typeName, "", &xtce.StringDataEncoding{
			Charset:          bitstream.UTF8,
			FixedRawSizeBits: bits,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported data type %q", dtype)
	}
}

// newHeaderDefinition synthesizes the abstract CCSDS primary-header
// root container that every CSV-defined packet inherits.
func newHeaderDefinition() *xtce.Definition {
	def := &xtce.Definition{
		ParameterTypes:    make(map[string]xtce.ParameterType),
		Parameters:        make(map[string]*xtce.Parameter),
		Containers:        make(map[string]*xtce.SequenceContainer),
		RootContainerName: xtce.DefaultRootContainer,
	}
	root := &xtce.SequenceContainer{Name: xtce.DefaultRootContainer, Abstract: true}
	for _, f := range telemetry.HeaderFields {
		pt := xtce.NewIntegerParameterType(f.Name+"_Type", "", &xtce.IntegerDataEncoding{
			SizeInBits: f.NBits,
			Signedness: bitstream.Unsigned,
		})
		def.ParameterTypes[pt.TypeName()] = pt
		p := &xtce.Parameter{Name: f.Name, Type: pt}
		def.Parameters[f.Name] = p
		root.Entries = append(root.Entries, xtce.Entry{Parameter: p})
	}
	def.Containers[root.Name] = root
	return def
}
