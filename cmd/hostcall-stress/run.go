// Copyright 2026 The Hostcall Authors.
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

package main

import (
	"context"
	"flag"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"hostcall.dev/hostcall/pkg/hostcall"
)

// serviceVerify is the service the stress load dispatches to. The handler
// adds one to slot word 0 of every active lane, which lets producers verify
// every response end to end.
const serviceVerify = 2

// runCmd implements subcommands.Command for the "run" command.
type runCmd struct {
	configPath string
	packets    uint
	producers  int
	rounds     int
	lanes      uint
	debug      bool
}

// Name implements subcommands.Command.Name.
func (*runCmd) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*runCmd) Synopsis() string {
	return "drive a hostcall consumer with synthetic producers"
}

// Usage implements subcommands.Command.Usage.
func (*runCmd) Usage() string {
	return `run [--config <path>] [flags] - drive a hostcall consumer with synthetic producers
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "TOML file with buffer and load settings")
	f.UintVar(&r.packets, "packets", 0, "override buffer.packets")
	f.IntVar(&r.producers, "producers", 0, "override load.producers")
	f.IntVar(&r.rounds, "rounds", 0, "override load.rounds")
	f.UintVar(&r.lanes, "lanes", 0, "override load.lanes")
	f.BoolVar(&r.debug, "debug", false, "enable consumer trace logging")
}

// Execute implements subcommands.Command.Execute.
func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	cfg := defaultConfig()
	if r.configPath != "" {
		var err error
		if cfg, err = loadConfigFile(r.configPath); err != nil {
			logrus.Errorf("%v", err)
			return subcommands.ExitUsageError
		}
	}
	if r.packets != 0 {
		cfg.Buffer.Packets = uint32(r.packets)
	}
	if r.producers != 0 {
		cfg.Load.Producers = r.producers
	}
	if r.rounds != 0 {
		cfg.Load.Rounds = r.rounds
	}
	if r.lanes != 0 {
		cfg.Load.Lanes = r.lanes
	}
	if err := cfg.validate(); err != nil {
		logrus.Errorf("invalid configuration: %v", err)
		return subcommands.ExitUsageError
	}
	if r.debug {
		hostcall.EnableDebug()
	}

	if err := run(ctx, cfg); err != nil {
		logrus.Errorf("stress run failed: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func run(ctx context.Context, cfg config) error {
	if err := hostcall.RegisterService(serviceVerify, verifyHandler); err != nil {
		return fmt.Errorf("registering service %d: %w", serviceVerify, err)
	}

	mem, err := unix.Mmap(-1, 0, int(hostcall.BufferSize(cfg.Buffer.Packets)),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return fmt.Errorf("mapping buffer: %w", err)
	}
	defer unix.Munmap(mem)
	if err := hostcall.InitializeBuffer(unsafe.Pointer(&mem[0]), cfg.Buffer.Packets); err != nil {
		return fmt.Errorf("initializing buffer: %w", err)
	}
	b := hostcall.AsBuffer(unsafe.Pointer(&mem[0]))

	c, err := hostcall.CreateConsumer()
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}
	defer c.Destroy()
	if err := c.Launch(); err != nil {
		return fmt.Errorf("launching consumer: %w", err)
	}
	if err := c.RegisterBuffer(b); err != nil {
		return fmt.Errorf("registering buffer: %w", err)
	}

	logrus.Infof("stress: %d producers x %d rounds, %d lanes/packet, %d-packet buffer",
		cfg.Load.Producers, cfg.Load.Rounds, cfg.Load.Lanes, cfg.Buffer.Packets)

	timeout := time.Duration(cfg.Load.TimeoutMS) * time.Millisecond
	activemask := ^uint64(0) >> (64 - cfg.Load.Lanes)

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < cfg.Load.Producers; p++ {
		id := uint64(p + 1)
		g.Go(func() error {
			return produce(ctx, b, id, cfg.Load.Rounds, activemask, timeout)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	packets := cfg.Load.Producers * cfg.Load.Rounds
	logrus.Infof("stress: %d packets in %v (%.0f packets/s, %.0f lane calls/s)",
		packets, elapsed.Round(time.Millisecond),
		float64(packets)/elapsed.Seconds(),
		float64(packets)*float64(cfg.Load.Lanes)/elapsed.Seconds())
	return nil
}

func verifyHandler(service uint32, payload *[hostcall.NumSlots]uint64) int {
	payload[0]++
	return 0
}

// produce submits rounds packets the way a device wave would and verifies
// every response.
func produce(ctx context.Context, b *hostcall.BufferHeader, id uint64, rounds int, activemask uint64, timeout time.Duration) error {
	for ii := 0; ii != rounds; ii++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ptr := b.PopFree()
		hdr := b.Header(ptr)
		payload := b.Payload(ptr)
		for lane := uint(0); lane != 64; lane++ {
			if activemask&(uint64(1)<<lane) == 0 {
				continue
			}
			payload.Slots[lane][0] = id<<32 | uint64(ii)<<6 | uint64(lane)
		}
		hdr.Control = hostcall.SetReadyFlag(hdr.Control)
		hdr.Service = serviceVerify
		hdr.ActiveMask = activemask
		b.PushReady(ptr)
		b.RingDoorbell()

		if !waitReadyCleared(hdr, timeout) {
			return fmt.Errorf("producer %d round %d: packet not serviced within %v", id, ii, timeout)
		}
		for lane := uint(0); lane != 64; lane++ {
			if activemask&(uint64(1)<<lane) == 0 {
				continue
			}
			want := (id<<32 | uint64(ii)<<6 | uint64(lane)) + 1
			if got := payload.Slots[lane][0]; got != want {
				b.PushFree(ptr)
				return fmt.Errorf("producer %d round %d lane %d: got %#x, want %#x", id, ii, lane, got, want)
			}
		}
		b.PushFree(ptr)
	}
	return nil
}

func waitReadyCleared(hdr *hostcall.PacketHeader, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for hostcall.ReadyFlag(atomic.LoadUint32(&hdr.Control)) != 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Microsecond)
	}
	return true
}
