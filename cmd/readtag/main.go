// Copyright 2026 The go-classictag Authors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// readtag polls an SPI-attached PN532 for MIFARE Classic cards and
// prints the NDEF records it finds on them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	classictag "github.com/mifarelabs/go-classictag"
	"github.com/mifarelabs/go-classictag/pkg/ndef"
	"github.com/mifarelabs/go-classictag/transport/spi"
)

type config struct {
	port     string
	interval time.Duration
	once     bool
	dump     bool
	debug    bool
}

var (
	flagPort     string
	flagInterval time.Duration
	flagOnce     bool
	flagDump     bool
	flagDebug    bool
)

func init() {
	flag.StringVar(&flagPort, "port", "", "SPI port name (platform default if empty)")
	flag.DurationVar(&flagInterval, "interval", 500*time.Millisecond, "Polling interval between detection attempts")
	flag.BoolVar(&flagOnce, "once", false, "Exit after the first tag has been read")
	flag.BoolVar(&flagDump, "dump", false, "Print the full memory image of each tag")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func parseConfig() *config {
	cfg := &config{
		port:     flagPort,
		interval: flagInterval,
		once:     flagOnce,
		dump:     flagDump,
		debug:    flagDebug,
	}
	if cfg.debug {
		classictag.SetDebugEnabled(true)
	}
	return cfg
}

func connect(ctx context.Context, cfg *config) (*classictag.Device, error) {
	transport, err := spi.New(cfg.port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI transport: %w", err)
	}

	device, err := classictag.New(transport)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	if err := device.InitContext(ctx); err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("failed to initialize PN532: %w", err)
	}

	if cfg.debug {
		_, _ = fmt.Printf("PN532 firmware %s\n", device.FirmwareVersion())
	}
	return device, nil
}

// sortedRecordKeys orders "r0", "r1", ... by their numeric suffix.
func sortedRecordKeys(records map[string]*ndef.Record) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(strings.TrimPrefix(keys[i], "r"))
		b, _ := strconv.Atoi(strings.TrimPrefix(keys[j], "r"))
		return a < b
	})
	return keys
}

func run(ctx context.Context, cfg *config) error {
	device, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	tag := classictag.NewTag(device)
	_, _ = fmt.Println("Waiting for tags. Press Ctrl+C to stop...")

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	var lastUID string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		records, err := tag.DetectAndRead(ctx, cfg.interval)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Read failed: %v\n", err)
			lastUID = ""
			continue
		}
		if records == nil {
			// No tag in the field.
			lastUID = ""
			continue
		}

		uid := fmt.Sprintf("% X", tag.UID())
		if uid == lastUID {
			// Same tag still on the reader.
			continue
		}
		lastUID = uid

		_, _ = fmt.Println(tag.Summary())
		for _, key := range sortedRecordKeys(records) {
			rec := records[key]
			_, _ = fmt.Printf("  %s [%s] %s\n", key, rec.Kind, rec)
		}
		if cfg.dump {
			_, _ = fmt.Print(tag.DebugInfo())
		}

		if cfg.once {
			return nil
		}
	}
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
