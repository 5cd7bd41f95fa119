// Package debugsrv is the read-only HTTP introspection surface
// cmd/maestro-sim exposes alongside a running mesh: per-tile task
// dumps, kernel queue depths, and a Prometheus-compatible metrics
// endpoint, gated by an optional bearer token. None of this is on the
// simulated NoC — it is an operator-facing side channel only, the way
// the teacher exposes a cluster's internal state over its own admin
// HTTP API without that traffic ever touching the data path.
package debugsrv

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"

	"github.com/pucrs-maestro/maestro/cmn/nlog"
	"github.com/pucrs-maestro/maestro/kernel"
	"github.com/pucrs-maestro/maestro/wire"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server answers introspection requests about a running mesh of tiles.
// It never mutates kernel state — every handler only reads.
type Server struct {
	tiles map[wire.TileAddr]*kernel.Kernel
	hub   *eventHub
}

// NewServer builds a debugsrv over the given tiles, keyed by address.
func NewServer(tiles map[wire.TileAddr]*kernel.Kernel) *Server {
	return &Server{tiles: tiles, hub: newEventHub()}
}

// ListenAndServe runs the fasthttp-backed introspection API on addr
// until the process exits. cmd/maestro-sim runs this in its errgroup;
// an error returned here cancels the group's context, which stops every
// tile loop.
func (s *Server) ListenAndServe(addr string) error {
	return fasthttp.ListenAndServe(addr, s.handle)
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if !authorize(ctx) {
		return
	}

	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")

	case path == "/tiles":
		s.writeJSON(ctx, s.tileList())

	case path == "/metrics":
		s.writeMetrics(ctx)

	default:
		addr, sub, ok := splitTilePath(path)
		if !ok {
			ctx.Error("not found", fasthttp.StatusNotFound)
			return
		}
		k, ok := s.tiles[addr]
		if !ok {
			ctx.Error("unknown tile", fasthttp.StatusNotFound)
			return
		}
		switch sub {
		case "tasks":
			s.writeJSON(ctx, tasksOf(k))
		case "metrics":
			s.writeGatherer(ctx, k)
		default:
			ctx.Error("not found", fasthttp.StatusNotFound)
		}
	}
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	enc := json.NewEncoder(ctx)
	if err := enc.Encode(v); err != nil {
		nlog.Errorf("debugsrv: encode: %v", err)
		ctx.Error("internal error", fasthttp.StatusInternalServerError)
	}
}

// writeMetrics aggregates every tile's private registry into one
// Prometheus text-format response, since each kernel.Kernel owns its
// own prometheus.Registry rather than registering globally.
func (s *Server) writeMetrics(ctx *fasthttp.RequestCtx) {
	ks := make([]*kernel.Kernel, 0, len(s.tiles))
	for _, k := range s.tiles {
		ks = append(ks, k)
	}
	s.writeGatherers(ctx, ks)
}

func (s *Server) writeGatherer(ctx *fasthttp.RequestCtx, k *kernel.Kernel) {
	s.writeGatherers(ctx, []*kernel.Kernel{k})
}

func (s *Server) writeGatherers(ctx *fasthttp.RequestCtx, ks []*kernel.Kernel) {
	ctx.SetContentType(string(expfmt.FmtText))
	enc := expfmt.NewEncoder(ctx, expfmt.FmtText)
	for _, k := range ks {
		families, err := k.Metrics.Gatherer().Gather()
		if err != nil {
			continue
		}
		for _, mf := range families {
			_ = enc.Encode(mf)
		}
	}
}

func (s *Server) tileList() []wire.TileAddr {
	out := make([]wire.TileAddr, 0, len(s.tiles))
	for addr := range s.tiles {
		out = append(out, addr)
	}
	return out
}

// taskSummary is the wire-shape of one /tiles/{addr}/tasks entry.
type taskSummary struct {
	Task      wire.TaskID `json:"task"`
	Released  bool        `json:"released"`
	WaitState int         `json:"wait_state"`
}

func tasksOf(k *kernel.Kernel) []taskSummary {
	all := k.Reg.All()
	out := make([]taskSummary, 0, len(all))
	for _, t := range all {
		out = append(out, taskSummary{Task: t.ID, Released: t.Released, WaitState: int(t.WaitState)})
	}
	return out
}

func splitTilePath(path string) (wire.TileAddr, string, bool) {
	const prefix = "/tiles/"
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return 0, "", false
	}
	rest := path[len(prefix):]
	slash := -1
	for i, c := range rest {
		if c == '/' {
			slash = i
			break
		}
	}
	if slash < 0 {
		return 0, "", false
	}
	var n uint16
	for _, c := range rest[:slash] {
		if c < '0' || c > '9' {
			return 0, "", false
		}
		n = n*10 + uint16(c-'0')
	}
	return wire.TileAddr(n), rest[slash+1:], true
}
