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

	"github.com/google/subcommands"

	"hostcall.dev/hostcall/pkg/hostcall"
)

// layoutCmd implements subcommands.Command for the "layout" command, which
// prints the buffer geometry a device-side allocator needs.
type layoutCmd struct {
	packets uint
}

// Name implements subcommands.Command.Name.
func (*layoutCmd) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*layoutCmd) Synopsis() string {
	return "print buffer size and alignment for a packet count"
}

// Usage implements subcommands.Command.Usage.
func (*layoutCmd) Usage() string {
	return `layout [--packets <n>] - print buffer size and alignment for a packet count
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *layoutCmd) SetFlags(f *flag.FlagSet) {
	f.UintVar(&l.packets, "packets", 16, "number of packets in the buffer")
}

// Execute implements subcommands.Command.Execute.
func (l *layoutCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if l.packets == 0 {
		fmt.Println("layout: --packets must be positive")
		return subcommands.ExitUsageError
	}
	n := uint32(l.packets)
	size := hostcall.BufferSize(n)
	perPacket := hostcall.BufferSize(n+1) - size
	fmt.Printf("packets:       %d\n", n)
	fmt.Printf("buffer size:   %d bytes\n", size)
	fmt.Printf("alignment:     %d bytes\n", hostcall.BufferAlignment())
	fmt.Printf("per packet:    %d bytes\n", perPacket)
	fmt.Printf("lanes/packet:  %d\n", hostcall.NumLanes)
	fmt.Printf("words/slot:    %d\n", hostcall.NumSlots)
	return subcommands.ExitSuccess
}
