package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/mcp-file-server/internal/jsonrpc"
	"github.com/ggoodman/mcp-file-server/mcp"
	"github.com/ggoodman/mcp-file-server/mcpservice"
)

// handshake runs on the receive loop, so no later frame is read before the
// session is either Active or still Pending after a rejected attempt.
func (d *Dispatcher) handshake(ctx context.Context, req *jsonrpc.Request) {
	start := time.Now()

	var params mcp.InitializeRequest
	if raw := bytes.TrimSpace(req.Params); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &params); err != nil {
			d.replyError(ctx, req.ID, mcpservice.InvalidHandshake("invalid initialize params: %v", err))
			return
		}
	}
	if strings.TrimSpace(params.ClientInfo.Name) == "" || strings.TrimSpace(params.ClientInfo.Version) == "" {
		d.replyError(ctx, req.ID, mcpservice.InvalidHandshake("clientInfo.name and clientInfo.version are required"))
		return
	}

	version := d.srv.NegotiateProtocolVersion(params.ProtocolVersion)
	if !d.sess.activate(version, params.ClientInfo, params.Capabilities) {
		d.replyError(ctx, req.ID, mcpservice.InvalidHandshake("session already initialized"))
		return
	}
	ctx = d.requestContext(ctx, req)

	if version != params.ProtocolVersion {
		d.log.InfoContext(ctx, "engine.handshake.version_fallback",
			slog.String("requested", params.ProtocolVersion),
			slog.String("negotiated", version),
		)
	}

	if err := d.srv.ObserveHandshake(ctx, d.sess); err != nil {
		d.log.WarnContext(ctx, "engine.handshake.observer_fail", slog.String("err", err.Error()))
	}

	res := &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    d.srv.Capabilities(),
		ServerInfo:      d.srv.Info(),
		Instructions:    d.srv.Instructions(),
	}
	resp, err := jsonrpc.NewResultResponse(req.ID, res)
	if err != nil {
		d.replyError(ctx, req.ID, mcpservice.InternalError(err))
		return
	}
	if err := d.send(ctx, resp); err != nil {
		d.log.ErrorContext(ctx, "engine.handshake.send_fail", slog.String("err", err.Error()))
		return
	}
	d.log.InfoContext(ctx, "engine.handshake.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))

	d.startToolsForwarder(ctx)
}
