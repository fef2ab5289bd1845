package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/medley56/space-packet-parser/internal/app"
	"github.com/medley56/space-packet-parser/internal/csvdef"
	"github.com/medley56/space-packet-parser/internal/xtce"
)

func main() {
	var config app.Config
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "sppctl",
		Short: "CCSDS space packet stream parser",
		Long: `Decode streams of CCSDS space packets into structured parameter
values, guided by an XTCE or CSV packet definition.

Reads concatenated CCSDS packets from a file, stdin, or a TCP socket,
walks the definition's container inheritance tree per packet, and
emits one NDJSON record per decoded packet.

Example usage:
  sppctl parse --definition telemetry.xml --input downlink.bin
  sppctl parse --definition defs.csv --connect 127.0.0.1:9000 --yield-unrecognized`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return nil
			}
			// Flags are already parsed here; remember the ones given on
			// the command line and re-apply them over the file's values.
			explicit := map[string]string{}
			cmd.Flags().Visit(func(f *pflag.Flag) { explicit[f.Name] = f.Value.String() })
			if err := config.LoadConfigFile(configFile); err != nil {
				return err
			}
			for name, value := range explicit {
				if err := cmd.Flags().Set(name, value); err != nil {
					return err
				}
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&config.DefinitionPath, "definition", "D", "", "Packet definition file (XTCE XML or CSV)")
	rootCmd.PersistentFlags().StringVar(&config.DefinitionFormat, "format", "", "Definition format: xtce or csv (default: by extension)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&config.Verbose, "verbose", "v", false, "Verbose logging")

	parseCmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a packet stream into NDJSON records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.ShowVersion {
				app.ShowVersion()
				return nil
			}
			return app.NewApplication(config).Start()
		},
	}
	parseCmd.Flags().StringVarP(&config.InputPath, "input", "i", "", "Packet stream file (default stdin)")
	parseCmd.Flags().StringVar(&config.Connect, "connect", "", "Read the packet stream from a TCP address (host:port)")
	parseCmd.Flags().StringVarP(&config.OutputPath, "output", "o", "", "NDJSON output file (default stdout)")
	parseCmd.Flags().StringVarP(&config.LogFile, "log-file", "l", "", "Rotating log file (default stderr only)")
	parseCmd.Flags().StringVar(&config.RootContainer, "root-container", "", "Root sequence container name override")
	parseCmd.Flags().IntVar(&config.SkipHeaderBytes, "skip-secondary-header-bytes", 0, "Bytes to skip after the primary header")
	parseCmd.Flags().IntVar(&config.WordSizeBytes, "word-size-bytes", 0, "Pad binary fields to this word size")
	parseCmd.Flags().BoolVar(&config.HeadersOnly, "headers-only", false, "Emit only CCSDS primary header fields")
	parseCmd.Flags().BoolVar(&config.YieldUnrecogn, "yield-unrecognized", false, "Emit unrecognized packets as error records")
	parseCmd.Flags().BoolVar(&config.ShowProgress, "progress", false, "Track parse progress statistics")
	parseCmd.Flags().DurationVar(&config.ReadTimeout, "read-timeout", app.DefaultReadTimeout, "Socket read timeout")
	parseCmd.Flags().BoolVar(&config.ShowVersion, "version", false, "Show version information")

	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "List the containers and parameters of a definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return describe(config)
		},
	}

	rootCmd.AddCommand(parseCmd, describeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// describe prints the definition's introspection indexes.
func describe(config app.Config) error {
	if config.DefinitionPath == "" {
		return fmt.Errorf("a packet definition is required (--definition)")
	}
	f, err := os.Open(config.DefinitionPath)
	if err != nil {
		return err
	}
	defer f.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	format := strings.ToLower(config.DefinitionFormat)
	if format == "" && strings.EqualFold(filepath.Ext(config.DefinitionPath), ".csv") {
		format = "csv"
	}

	var def *xtce.Definition
	if format == "csv" {
		def, err = csvdef.Load(f, logger)
	} else {
		def, err = xtce.LoadXTCE(f, logger)
	}
	if err != nil {
		return err
	}

	var containers []string
	for name := range def.Containers {
		containers = append(containers, name)
	}
	sort.Strings(containers)
	fmt.Printf("Containers (%d):\n", len(containers))
	for _, name := range containers {
		c := def.Containers[name]
		marker := ""
		if c.Abstract {
			marker = " (abstract)"
		}
		base := ""
		if c.BaseContainerName != "" {
			base = " <- " + c.BaseContainerName
		}
		fmt.Printf("  %s%s%s: %d entries\n", name, marker, base, len(c.Entries))
	}

	var params []string
	for name := range def.Parameters {
		params = append(params, name)
	}
	sort.Strings(params)
	fmt.Printf("Parameters (%d):\n", len(params))
	for _, name := range params {
		fmt.Printf("  %s: %s\n", name, def.Parameters[name].Type.TypeName())
	}
	return nil
}
