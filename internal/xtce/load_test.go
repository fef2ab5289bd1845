package xtce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medley56/space-packet-parser/internal/telemetry"
)

func loadErr(t *testing.T, types, params, containers string) error {
	t.Helper()
	doc := `<xtce:SpaceSystem xmlns:xtce="http://www.omg.org/space/xtce" name="TEST">
  <xtce:TelemetryMetaData>
    <xtce:ParameterTypeSet>` + types + `</xtce:ParameterTypeSet>
    <xtce:ParameterSet>` + params + `</xtce:ParameterSet>
    <xtce:ContainerSet>` + containers + `</xtce:ContainerSet>
  </xtce:TelemetryMetaData>
</xtce:SpaceSystem>`
	_, err := LoadXTCE(strings.NewReader(doc), quietLogger())
	return err
}

func TestLoadIntrospectionIndexes(t *testing.T) {
	def := buildDefinition(t, headerTypesXML, headerParamsXML,
		`<xtce:SequenceContainer name="CCSDSPacket">
			<xtce:EntryList>`+headerEntriesXML+`</xtce:EntryList>
		</xtce:SequenceContainer>`)

	assert.Len(t, def.Parameters, 7)
	assert.GreaterOrEqual(t, len(def.ParameterTypes), 7)
	assert.Len(t, def.Containers, 1)

	c, ok := def.Container("CCSDSPacket")
	require.True(t, ok)
	assert.Len(t, c.Entries, 7)
	assert.False(t, c.Abstract)
}

func TestLoadUnresolvedReferences(t *testing.T) {
	tests := []struct {
		name       string
		types      string
		params     string
		containers string
	}{
		{
			name:       "unknown parameter type",
			params:     `<xtce:Parameter name="X" parameterTypeRef="NOPE_Type"/>`,
			containers: `<xtce:SequenceContainer name="CCSDSPacket"><xtce:EntryList/></xtce:SequenceContainer>`,
		},
		{
			name:       "unknown parameter in entry list",
			containers: `<xtce:SequenceContainer name="CCSDSPacket"><xtce:EntryList><xtce:ParameterRefEntry parameterRef="NOPE"/></xtce:EntryList></xtce:SequenceContainer>`,
		},
		{
			name: "unknown base container",
			containers: `<xtce:SequenceContainer name="CCSDSPacket">
				<xtce:BaseContainer containerRef="MISSING"/>
				<xtce:EntryList/>
			</xtce:SequenceContainer>`,
		},
		{
			name: "unknown container ref entry",
			containers: `<xtce:SequenceContainer name="CCSDSPacket">
				<xtce:EntryList><xtce:ContainerRefEntry containerRef="MISSING"/></xtce:EntryList>
			</xtce:SequenceContainer>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loadErr(t, tt.types, tt.params, tt.containers)
			var defErr *DefinitionError
			require.ErrorAs(t, err, &defErr)
		})
	}
}

func TestLoadCircularInheritance(t *testing.T) {
	err := loadErr(t, "", "",
		`<xtce:SequenceContainer name="A">
			<xtce:BaseContainer containerRef="B"/>
			<xtce:EntryList/>
		</xtce:SequenceContainer>
		<xtce:SequenceContainer name="B">
			<xtce:BaseContainer containerRef="A"/>
			<xtce:EntryList/>
		</xtce:SequenceContainer>`)
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Contains(t, defErr.Msg, "circular")
}

func TestLoadRejectsUnsupportedElements(t *testing.T) {
	// MathOperationCalibrator is explicitly unsupported.
	err := loadErr(t,
		`<xtce:IntegerParameterType name="T">
			<xtce:IntegerDataEncoding sizeInBits="8" encoding="unsigned">
				<xtce:DefaultCalibrator><xtce:MathOperationCalibrator/></xtce:DefaultCalibrator>
			</xtce:IntegerDataEncoding>
		</xtce:IntegerParameterType>`, "",
		`<xtce:SequenceContainer name="CCSDSPacket"><xtce:EntryList/></xtce:SequenceContainer>`)
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)

	// Spline orders above 1 are unsupported.
	err = loadErr(t,
		`<xtce:IntegerParameterType name="T">
			<xtce:IntegerDataEncoding sizeInBits="8" encoding="unsigned">
				<xtce:DefaultCalibrator>
					<xtce:SplineCalibrator order="2">
						<xtce:SplinePoint raw="0" calibrated="0"/>
						<xtce:SplinePoint raw="1" calibrated="1"/>
					</xtce:SplineCalibrator>
				</xtce:DefaultCalibrator>
			</xtce:IntegerDataEncoding>
		</xtce:IntegerParameterType>`, "",
		`<xtce:SequenceContainer name="CCSDSPacket"><xtce:EntryList/></xtce:SequenceContainer>`)
	require.ErrorAs(t, err, &defErr)
}

func TestLoadDefaultCalibratorApplied(t *testing.T) {
	def := buildDefinition(t,
		headerTypesXML+`
		<xtce:IntegerParameterType name="CAL_Type">
			<xtce:UnitSet><xtce:Unit>degC</xtce:Unit></xtce:UnitSet>
			<xtce:IntegerDataEncoding sizeInBits="8" encoding="unsigned">
				<xtce:DefaultCalibrator>
					<xtce:PolynomialCalibrator>
						<xtce:Term coefficient="1.0" exponent="0"/>
						<xtce:Term coefficient="2.0" exponent="1"/>
						<xtce:Term coefficient="0.5" exponent="2"/>
					</xtce:PolynomialCalibrator>
				</xtce:DefaultCalibrator>
			</xtce:IntegerDataEncoding>
		</xtce:IntegerParameterType>`,
		headerParamsXML+`<xtce:Parameter name="TEMP" parameterTypeRef="CAL_Type"/>`,
		`<xtce:SequenceContainer name="CCSDSPacket">
			<xtce:EntryList>`+headerEntriesXML+`<xtce:ParameterRefEntry parameterRef="TEMP"/></xtce:EntryList>
		</xtce:SequenceContainer>`)

	data, err := telemetry.MakePacket(telemetry.PacketFields{APID: 2}, []byte{10})
	require.NoError(t, err)
	pkt, err := NewParser(def, quietLogger()).Parse(data)
	require.NoError(t, err)

	temp, _ := pkt.Get("TEMP")
	assert.Equal(t, uint64(10), temp.Raw)
	assert.InDelta(t, 71.0, temp.Calibrated.(float64), 1e-9)
	assert.Equal(t, "degC", temp.Unit)
}

func TestLoadContextCalibrator(t *testing.T) {
	def := buildDefinition(t,
		headerTypesXML+`
		<xtce:IntegerParameterType name="CTX_Type">
			<xtce:IntegerDataEncoding sizeInBits="8" encoding="unsigned">
				<xtce:ContextCalibratorList>
					<xtce:ContextCalibrator>
						<xtce:ContextMatch>
							<xtce:Comparison parameterRef="PKT_APID" value="2" useCalibratedValue="false"/>
						</xtce:ContextMatch>
						<xtce:Calibrator>
							<xtce:PolynomialCalibrator><xtce:Term coefficient="10" exponent="1"/></xtce:PolynomialCalibrator>
						</xtce:Calibrator>
					</xtce:ContextCalibrator>
				</xtce:ContextCalibratorList>
			</xtce:IntegerDataEncoding>
		</xtce:IntegerParameterType>`,
		headerParamsXML+`<xtce:Parameter name="READING" parameterTypeRef="CTX_Type"/>`,
		`<xtce:SequenceContainer name="CCSDSPacket">
			<xtce:EntryList>`+headerEntriesXML+`<xtce:ParameterRefEntry parameterRef="READING"/></xtce:EntryList>
		</xtce:SequenceContainer>`)
	parser := NewParser(def, quietLogger())

	// Context matches: calibrated value present.
	data, err := telemetry.MakePacket(telemetry.PacketFields{APID: 2}, []byte{5})
	require.NoError(t, err)
	pkt, err := parser.Parse(data)
	require.NoError(t, err)
	v, _ := pkt.Get("READING")
	assert.Equal(t, 50.0, v.Calibrated)

	// No context matches and no default: raw only.
	data, err = telemetry.MakePacket(telemetry.PacketFields{APID: 3}, []byte{5})
	require.NoError(t, err)
	pkt, err = parser.Parse(data)
	require.NoError(t, err)
	v, _ = pkt.Get("READING")
	assert.Nil(t, v.Calibrated)
	assert.Equal(t, uint64(5), v.Raw)
}

func TestLoadSignedAndLSBFirstEncodings(t *testing.T) {
	def := buildDefinition(t,
		headerTypesXML+`
		<xtce:IntegerParameterType name="S8_Type">
			<xtce:IntegerDataEncoding sizeInBits="8" encoding="twosComplement"/>
		</xtce:IntegerParameterType>
		<xtce:IntegerParameterType name="LE16_Type">
			<xtce:IntegerDataEncoding sizeInBits="16" encoding="unsigned" byteOrder="leastSignificantByteFirst"/>
		</xtce:IntegerParameterType>
		<xtce:FloatParameterType name="F32_Type">
			<xtce:FloatDataEncoding sizeInBits="32" encoding="IEEE754"/>
		</xtce:FloatParameterType>`,
		headerParamsXML+`
		<xtce:Parameter name="SIGNED" parameterTypeRef="S8_Type"/>
		<xtce:Parameter name="LITTLE" parameterTypeRef="LE16_Type"/>
		<xtce:Parameter name="RATIO" parameterTypeRef="F32_Type"/>`,
		`<xtce:SequenceContainer name="CCSDSPacket">
			<xtce:EntryList>`+headerEntriesXML+`
				<xtce:ParameterRefEntry parameterRef="SIGNED"/>
				<xtce:ParameterRefEntry parameterRef="LITTLE"/>
				<xtce:ParameterRefEntry parameterRef="RATIO"/>
			</xtce:EntryList>
		</xtce:SequenceContainer>`)

	userData := []byte{0xFF, 0x34, 0x12, 0x3F, 0x80, 0x00, 0x00}
	data, err := telemetry.MakePacket(telemetry.PacketFields{APID: 4}, userData)
	require.NoError(t, err)
	pkt, err := NewParser(def, quietLogger()).Parse(data)
	require.NoError(t, err)

	signed, _ := pkt.Get("SIGNED")
	assert.Equal(t, int64(-1), signed.Raw)
	little, _ := pkt.Get("LITTLE")
	assert.Equal(t, uint64(0x1234), little.Raw)
	ratio, _ := pkt.Get("RATIO")
	assert.Equal(t, 1.0, ratio.Raw)
}

func TestLoadTimeParameterType(t *testing.T) {
	def := buildDefinition(t,
		headerTypesXML+`
		<xtce:AbsoluteTimeParameterType name="MET_Type">
			<xtce:Encoding units="seconds" scale="0.5" offset="10">
				<xtce:IntegerDataEncoding sizeInBits="32" encoding="unsigned"/>
			</xtce:Encoding>
			<xtce:ReferenceTime><xtce:Epoch>TAI</xtce:Epoch></xtce:ReferenceTime>
		</xtce:AbsoluteTimeParameterType>`,
		headerParamsXML+`<xtce:Parameter name="MET" parameterTypeRef="MET_Type"/>`,
		`<xtce:SequenceContainer name="CCSDSPacket">
			<xtce:EntryList>`+headerEntriesXML+`<xtce:ParameterRefEntry parameterRef="MET"/></xtce:EntryList>
		</xtce:SequenceContainer>`)

	pt, ok := def.ParameterTypes["MET_Type"].(*AbsoluteTimeParameterType)
	require.True(t, ok)
	assert.Equal(t, "TAI", pt.Epoch)
	assert.Equal(t, "seconds", pt.UnitName())

	data, err := telemetry.MakePacket(telemetry.PacketFields{APID: 6}, []byte{0x00, 0x00, 0x00, 100})
	require.NoError(t, err)
	pkt, err := NewParser(def, quietLogger()).Parse(data)
	require.NoError(t, err)

	met, _ := pkt.Get("MET")
	assert.Equal(t, uint64(100), met.Raw)
	assert.InDelta(t, 60.0, met.Calibrated.(float64), 1e-9) // 10 + 0.5·100
}

func TestLoadNamespaceAgnostic(t *testing.T) {
	// The same document without a namespace prefix loads identically.
	doc := `<SpaceSystem name="TEST">
  <TelemetryMetaData>
    <ParameterTypeSet>
      <IntegerParameterType name="U8_Type"><IntegerDataEncoding sizeInBits="8" encoding="unsigned"/></IntegerParameterType>
    </ParameterTypeSet>
    <ParameterSet><Parameter name="X" parameterTypeRef="U8_Type"/></ParameterSet>
    <ContainerSet>
      <SequenceContainer name="CCSDSPacket">
        <EntryList><ParameterRefEntry parameterRef="X"/></EntryList>
      </SequenceContainer>
    </ContainerSet>
  </TelemetryMetaData>
</SpaceSystem>`
	def, err := LoadXTCE(strings.NewReader(doc), quietLogger())
	require.NoError(t, err)
	assert.Len(t, def.Parameters, 1)
}

func TestLoadDuplicateNames(t *testing.T) {
	err := loadErr(t,
		`<xtce:IntegerParameterType name="T"><xtce:IntegerDataEncoding sizeInBits="8"/></xtce:IntegerParameterType>
		<xtce:IntegerParameterType name="T"><xtce:IntegerDataEncoding sizeInBits="8"/></xtce:IntegerParameterType>`,
		"",
		`<xtce:SequenceContainer name="CCSDSPacket"><xtce:EntryList/></xtce:SequenceContainer>`)
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Contains(t, defErr.Msg, "duplicate")
}
