// Command maestro-sim drives an in-process mesh of kernel.Kernel
// instances sharing one transport.Mesh, standing in for a real
// homogeneous 2-D array of tiles. It is the harness, not the kernel:
// every tile's ISR loop runs on its own goroutine, ticked forward by an
// external driver (real hardware would tick off a local timer
// interrupt; here each tile spins its own ISR loop against its own
// inbound channels).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/pucrs-maestro/maestro/cmn"
	"github.com/pucrs-maestro/maestro/cmn/nlog"
	"github.com/pucrs-maestro/maestro/debugsrv"
	"github.com/pucrs-maestro/maestro/kernel"
	"github.com/pucrs-maestro/maestro/transport"
	"github.com/pucrs-maestro/maestro/wire"
)

func main() {
	var (
		configPath     = pflag.StringP("config", "c", "", "YAML config file (see cmn.Config)")
		width          = pflag.Int("width", 2, "mesh width, in tiles")
		height         = pflag.Int("height", 2, "mesh height, in tiles")
		listen         = pflag.String("listen", "127.0.0.1:9700", "debugsrv HTTP introspection address")
		eventsListen   = pflag.String("events-listen", "127.0.0.1:9701", "debugsrv websocket event-stream address")
		debug          = pflag.Bool("debug", false, "enable panicking invariant assertions (cmn.Assert)")
		printDebugTok  = pflag.Bool("print-debug-token", false, "mint and print a debugsrv bearer token, then exit")
	)
	pflag.Parse()

	if *configPath != "" {
		if _, err := cmn.LoadConfig(*configPath); err != nil {
			nlog.Errorf("maestro-sim: %v", err)
			os.Exit(1)
		}
	}
	if *debug {
		cmn.EnableDebug()
	}

	if *printDebugTok {
		tok, err := debugsrv.IssueToken("operator")
		if err != nil {
			nlog.Errorf("maestro-sim: cannot mint debug token: %v", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	mesh := transport.NewMesh()
	tiles := make(map[wire.TileAddr]*kernel.Kernel, *width**height)
	for y := 0; y < *height; y++ {
		for x := 0; x < *width; x++ {
			addr := wire.NewTileAddr(uint8(x), uint8(y))
			tiles[addr] = kernel.NewKernel(addr, mesh, kernel.NewFIFOScheduler())
		}
	}
	nlog.Infof("maestro-sim: %dx%d mesh, %d tiles", *width, *height, len(tiles))

	srv := debugsrv.NewServer(tiles)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(*listen) })
	g.Go(func() error { return srv.ListenAndServeEvents(*eventsListen) })
	for addr, k := range tiles {
		addr, k := addr, k
		g.Go(func() error { return runTile(gctx, addr, k, srv) })
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		nlog.Infof("maestro-sim: shutting down")
		cancel()
	}()

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		nlog.Errorf("maestro-sim: %v", err)
		os.Exit(1)
	}
}

// runTile spins one tile's ISR loop until ctx is cancelled or the tile
// halts, publishing a coarse event to debugsrv on every halt.
func runTile(ctx context.Context, addr wire.TileAddr, k *kernel.Kernel, srv *debugsrv.Server) error {
	tile := addr.String()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if k.IsHalted() {
			return nil
		}
		task, ran := k.ISR(false)
		if !ran {
			continue
		}
		if k.IsHalted() {
			srv.Publish(debugsrv.Event{Tile: tile, Kind: "halted", Task: task.String()})
			return nil
		}
	}
}
