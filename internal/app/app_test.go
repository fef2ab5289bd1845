package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig tests the configuration struct and constants
func TestConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name: "Default configuration",
			config: Config{
				ReadTimeout: DefaultReadTimeout,
			},
		},
		{
			name: "Custom configuration",
			config: Config{
				DefinitionPath: "defs/telemetry.xml",
				InputPath:      "downlink.bin",
				OutputPath:     "out.ndjson",
				RootContainer:  "RootPacket",
				HeadersOnly:    true,
				YieldUnrecogn:  true,
				WordSizeBytes:  4,
				ReadTimeout:    2 * time.Second,
				Verbose:        true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewApplication(tt.config)
			require.NotNil(t, app)
			assert.Equal(t, tt.config, app.config)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `definition: defs/telemetry.xml
input: downlink.bin
root_container: RootPacket
yield_unrecognized: true
word_size_bytes: 4
header_name_map:
  PKT_APID: APPLICATION_ID
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var config Config
	require.NoError(t, config.LoadConfigFile(path))
	assert.Equal(t, "defs/telemetry.xml", config.DefinitionPath)
	assert.Equal(t, "downlink.bin", config.InputPath)
	assert.Equal(t, "RootPacket", config.RootContainer)
	assert.True(t, config.YieldUnrecogn)
	assert.Equal(t, 4, config.WordSizeBytes)
	assert.Equal(t, "APPLICATION_ID", config.HeaderNameMap["PKT_APID"])
}

func TestLoadConfigFileErrors(t *testing.T) {
	var config Config
	assert.Error(t, config.LoadConfigFile("/nonexistent/config.yaml"))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("definition: [unclosed"), 0o644))
	assert.Error(t, config.LoadConfigFile(path))
}

func TestLoadDefinitionFormatInference(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "defs.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Packet,ItemName,DataType,APID\nPKT,F,U8,1\n"), 0o644))

	app := NewApplication(Config{DefinitionPath: csvPath})
	def, err := app.loadDefinition()
	require.NoError(t, err)
	_, ok := def.Parameters["F"]
	assert.True(t, ok)

	xmlPath := filepath.Join(dir, "defs.xml")
	xml := `<SpaceSystem name="T"><TelemetryMetaData>
	<ParameterTypeSet><IntegerParameterType name="U8_Type"><IntegerDataEncoding sizeInBits="8" encoding="unsigned"/></IntegerParameterType></ParameterTypeSet>
	<ParameterSet><Parameter name="X" parameterTypeRef="U8_Type"/></ParameterSet>
	<ContainerSet><SequenceContainer name="CCSDSPacket"><EntryList><ParameterRefEntry parameterRef="X"/></EntryList></SequenceContainer></ContainerSet>
	</TelemetryMetaData></SpaceSystem>`
	require.NoError(t, os.WriteFile(xmlPath, []byte(xml), 0o644))

	app = NewApplication(Config{DefinitionPath: xmlPath})
	def, err = app.loadDefinition()
	require.NoError(t, err)
	_, ok = def.Parameters["X"]
	assert.True(t, ok)

	app = NewApplication(Config{DefinitionPath: xmlPath, DefinitionFormat: "bogus"})
	_, err = app.loadDefinition()
	assert.Error(t, err)

	app = NewApplication(Config{})
	_, err = app.loadDefinition()
	assert.Error(t, err)
}
