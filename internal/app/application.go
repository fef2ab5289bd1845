package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/medley56/space-packet-parser/internal/csvdef"
	"github.com/medley56/space-packet-parser/internal/stream"
	"github.com/medley56/space-packet-parser/internal/telemetry"
	"github.com/medley56/space-packet-parser/internal/xtce"
)

// Application wires a packet definition, a byte source, and the stream
// generator into the NDJSON-emitting parse loop.
type Application struct {
	config Config
	logger *logrus.Logger
	def    *xtce.Definition
	source io.Reader
	closer []io.Closer
	out    io.Writer
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu  sync.Mutex
	packets  uint64
	bytes    uint64
	unrecogn uint64
}

// NewApplication creates a new application instance
func NewApplication(config Config) *Application {
	ctx, cancel := context.WithCancel(context.Background())

	logger := logrus.New()
	if config.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	if config.LogFile != "" {
		logger.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 5,
			Compress:   true,
		}))
	}

	return &Application{
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs the parse loop until the source drains or a shutdown
// signal arrives.
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("Starting CCSDS packet stream parser")

	if err := app.initializeComponents(); err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer app.shutdown()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		errChan <- app.run()
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.reportStatistics()
	}()

	select {
	case err := <-errChan:
		app.cancel()
		return err
	case <-sigChan:
		app.logger.Info("Received shutdown signal")
		app.cancel()
		return nil
	}
}

// initializeComponents loads the definition and opens source and sink.
func (app *Application) initializeComponents() error {
	if !app.config.HeadersOnly || app.config.DefinitionPath != "" {
		def, err := app.loadDefinition()
		if err != nil {
			return err
		}
		app.def = def
	}

	switch {
	case app.config.Connect != "":
		conn, err := net.Dial("tcp", app.config.Connect)
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", app.config.Connect, err)
		}
		app.source = conn
		app.closer = append(app.closer, conn)
		app.logger.WithField("address", app.config.Connect).Info("Reading packet stream from socket")
	default:
		if app.config.InputPath == "" || app.config.InputPath == "-" {
			app.source = os.Stdin
			app.logger.Info("Reading packet stream from stdin")
		} else {
			f, err := os.Open(app.config.InputPath)
			if err != nil {
				return fmt.Errorf("opening input: %w", err)
			}
			app.source = f
			app.closer = append(app.closer, f)
			app.logger.WithField("path", app.config.InputPath).Info("Reading packet stream from file")
		}
	}

	if app.config.OutputPath == "" || app.config.OutputPath == "-" {
		app.out = os.Stdout
	} else {
		f, err := os.Create(app.config.OutputPath)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		app.out = f
		app.closer = append(app.closer, f)
	}
	return nil
}

// loadDefinition reads the packet definition, inferring the format
// from the file extension unless configured explicitly.
func (app *Application) loadDefinition() (*xtce.Definition, error) {
	path := app.config.DefinitionPath
	if path == "" {
		return nil, errors.New("a packet definition is required (--definition)")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening definition: %w", err)
	}
	defer f.Close()

	format := strings.ToLower(app.config.DefinitionFormat)
	if format == "" {
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			format = "csv"
		} else {
			format = "xtce"
		}
	}
	switch format {
	case "xtce":
		return xtce.LoadXTCE(f, app.logger)
	case "csv":
		return csvdef.Load(f, app.logger)
	default:
		return nil, fmt.Errorf("unknown definition format %q (want xtce or csv)", format)
	}
}

// run drives the generator until EOF, cancellation, or a terminal error.
func (app *Application) run() error {
	cfg := stream.Config{
		RootContainerName:        app.config.RootContainer,
		YieldUnrecognizedErrors:  app.config.YieldUnrecogn,
		SkipSecondaryHeaderBytes: app.config.SkipHeaderBytes,
		HeaderNameMap:            app.config.HeaderNameMap,
		ParseHeadersOnly:         app.config.HeadersOnly,
		WordSizeBytes:            app.config.WordSizeBytes,
		ReadTimeout:              app.config.ReadTimeout,
		BufferReadSize:           DefaultBufferReadSize,
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if app.config.ShowProgress {
		cfg.Progress = app.recordProgress
	}

	gen, err := stream.New(app.def, app.source, cfg, app.logger)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(app.out)
	for {
		select {
		case <-app.ctx.Done():
			app.logger.Info("Parse loop cancelled")
			return nil
		default:
		}

		pkt, err := gen.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var unrec *xtce.UnrecognizedPacketError
		if errors.As(err, &unrec) {
			app.statsMu.Lock()
			app.unrecogn++
			app.statsMu.Unlock()
			if writeErr := enc.Encode(unrecognizedRecord(unrec)); writeErr != nil {
				return fmt.Errorf("writing output: %w", writeErr)
			}
			continue
		}
		if err != nil {
			return err
		}

		if err := enc.Encode(packetRecord(pkt)); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}
}

// packetRecord is one NDJSON line for a parsed packet.
func packetRecord(pkt *telemetry.Packet) map[string]any {
	rec := map[string]any{"packet": pkt}
	if len(pkt.Trailing) > 0 {
		rec["trailing_bytes"] = len(pkt.Trailing)
	}
	return rec
}

func unrecognizedRecord(unrec *xtce.UnrecognizedPacketError) map[string]any {
	return map[string]any{
		"error":     "unrecognized_packet",
		"container": unrec.Container,
		"reason":    unrec.Reason,
		"partial":   unrec.Partial,
	}
}

func (app *Application) recordProgress(p stream.Progress) {
	app.statsMu.Lock()
	app.packets = p.PacketsParsed
	app.bytes = p.BytesRead
	app.statsMu.Unlock()
}

// reportStatistics reports processing statistics periodically
func (app *Application) reportStatistics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.statsMu.Lock()
			packets, bytes, unrecogn := app.packets, app.bytes, app.unrecogn
			app.statsMu.Unlock()
			app.logger.WithFields(logrus.Fields{
				"packets_parsed": packets,
				"bytes_parsed":   bytes,
				"unrecognized":   unrecogn,
			}).Info("Packet stream statistics")
		}
	}
}

// shutdown closes sources and sinks and waits for goroutines.
func (app *Application) shutdown() {
	app.cancel()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		app.logger.Warn("Shutdown timeout, forcing exit")
	}

	for _, c := range app.closer {
		c.Close()
	}
	app.logger.Info("Shutdown completed")
}
