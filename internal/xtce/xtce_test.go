package xtce

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// headerTypesXML declares integer types for the CCSDS primary header
// fields plus a few payload types shared across test fixtures.
const headerTypesXML = `
<xtce:IntegerParameterType name="U1_Type"><xtce:IntegerDataEncoding sizeInBits="1" encoding="unsigned"/></xtce:IntegerParameterType>
<xtce:IntegerParameterType name="U2_Type"><xtce:IntegerDataEncoding sizeInBits="2" encoding="unsigned"/></xtce:IntegerParameterType>
<xtce:IntegerParameterType name="U3_Type"><xtce:IntegerDataEncoding sizeInBits="3" encoding="unsigned"/></xtce:IntegerParameterType>
<xtce:IntegerParameterType name="U8_Type"><xtce:IntegerDataEncoding sizeInBits="8" encoding="unsigned"/></xtce:IntegerParameterType>
<xtce:IntegerParameterType name="U11_Type"><xtce:IntegerDataEncoding sizeInBits="11" encoding="unsigned"/></xtce:IntegerParameterType>
<xtce:IntegerParameterType name="U14_Type"><xtce:IntegerDataEncoding sizeInBits="14" encoding="unsigned"/></xtce:IntegerParameterType>
<xtce:IntegerParameterType name="U16_Type"><xtce:IntegerDataEncoding sizeInBits="16" encoding="unsigned"/></xtce:IntegerParameterType>
<xtce:IntegerParameterType name="U64_Type"><xtce:IntegerDataEncoding sizeInBits="64" encoding="unsigned"/></xtce:IntegerParameterType>
`

const headerParamsXML = `
<xtce:Parameter name="VERSION" parameterTypeRef="U3_Type"/>
<xtce:Parameter name="TYPE" parameterTypeRef="U1_Type"/>
<xtce:Parameter name="SEC_HDR_FLG" parameterTypeRef="U1_Type"/>
<xtce:Parameter name="PKT_APID" parameterTypeRef="U11_Type"/>
<xtce:Parameter name="SEQ_FLGS" parameterTypeRef="U2_Type"/>
<xtce:Parameter name="SRC_SEQ_CTR" parameterTypeRef="U14_Type"/>
<xtce:Parameter name="PKT_LEN" parameterTypeRef="U16_Type"/>
`

const headerEntriesXML = `
<xtce:ParameterRefEntry parameterRef="VERSION"/>
<xtce:ParameterRefEntry parameterRef="TYPE"/>
<xtce:ParameterRefEntry parameterRef="SEC_HDR_FLG"/>
<xtce:ParameterRefEntry parameterRef="PKT_APID"/>
<xtce:ParameterRefEntry parameterRef="SEQ_FLGS"/>
<xtce:ParameterRefEntry parameterRef="SRC_SEQ_CTR"/>
<xtce:ParameterRefEntry parameterRef="PKT_LEN"/>
`

// buildDefinition wraps type/parameter/container set fragments into a
// complete namespaced XTCE document and loads it.
func buildDefinition(t *testing.T, types, params, containers string) *Definition {
	t.Helper()
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<xtce:SpaceSystem xmlns:xtce="http://www.omg.org/space/xtce" name="TEST">
  <xtce:TelemetryMetaData>
    <xtce:ParameterTypeSet>` + types + `</xtce:ParameterTypeSet>
    <xtce:ParameterSet>` + params + `</xtce:ParameterSet>
    <xtce:ContainerSet>` + containers + `</xtce:ContainerSet>
  </xtce:TelemetryMetaData>
</xtce:SpaceSystem>`
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	def, err := LoadXTCE(strings.NewReader(doc), logger)
	require.NoError(t, err)
	return def
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}
