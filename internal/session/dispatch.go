package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Radix-Obsidian/Voco-ai/internal/protocol"
	"github.com/Radix-Obsidian/Voco-ai/internal/rpc"
	"github.com/Radix-Obsidian/Voco-ai/internal/tools"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

// dispatchBackground runs a local-RPC tool with the Instant-ACK pattern: a
// synthetic tool result closes the call pair immediately, the real request
// runs as a background job, and the completion lands in the transcript as a
// system message the model reads on the next user turn.
func (s *Session) dispatchBackground(ctx context.Context, call llm.ToolCall) {
	jobID := "job_" + shortID()

	s.state.Append(llm.Message{
		Role:       llm.RoleTool,
		ToolCallID: call.ID,
		Content: fmt.Sprintf("Action queued in background with Job ID: %s. "+
			"You may continue conversing with the user.", jobID),
	})
	s.sendJSON(ctx, protocol.NewBackgroundJobStart(jobID, call.Name))
	s.metrics.RecordToolCall(ctx, call.Name, "local_rpc", "queued")
	s.metrics.ActiveJobs.Add(ctx, 1)

	args, err := call.Args()
	if err != nil {
		// partitionCalls already validated; treat a surprise as an empty call.
		args = map[string]any{}
	}
	method, methodOK := tools.RPCMethod(call.Name)
	traceID := s.correlationID(ctx)

	s.pending.Register(call.ID)
	s.rpcCount++

	s.queue.Submit(s.bgCtx, jobID, call.Name, func(jctx context.Context) (string, error) {
		if !methodOK {
			s.pending.Cancel(call.ID)
			return "", fmt.Errorf("tool %s has no client method", call.Name)
		}
		req := protocol.NewRPCRequest(call.ID, method, args, traceID)
		if err := s.conn.SendJSON(jctx, req); err != nil {
			s.pending.Cancel(call.ID)
			return "", fmt.Errorf("send rpc request: %w", err)
		}
		res, err := s.pending.Await(jctx, call.ID, s.rpcTimeout)
		if errors.Is(err, rpc.ErrTimeout) {
			s.metrics.RPCTimeouts.Add(jctx, 1)
			return fmt.Sprintf("Tool %s timed out waiting for the client to respond.", call.Name), nil
		}
		if err != nil {
			return "", err
		}
		return res.ResultText(), nil
	}, s.onJobDone)
}

// onJobDone runs on the job goroutine; it hands the result to the session
// loop. Completions racing teardown are dropped, the queue already reported
// them as cancelled.
func (s *Session) onJobDone(jobID, toolName, result string) {
	select {
	case s.jobDone <- jobResult{jobID: jobID, tool: toolName, result: result}:
	case <-s.bgCtx.Done():
	}
}

// applyJobResult appends a completed background job to the transcript and
// notifies the client. Runs on the session loop. While the graph is suspended
// at a review node the result is deferred: resuming reloads the interrupt
// snapshot, so anything appended now would be lost and a fresh checkpoint
// would clobber the suspension.
func (s *Session) applyJobResult(ctx context.Context, d jobResult) {
	if s.awaitingReview {
		s.deferredJobs = append(s.deferredJobs, d)
		return
	}
	s.state.Append(llm.Message{
		Role: llm.RoleSystem,
		Content: fmt.Sprintf("[BACKGROUND JOB COMPLETE] Job %s (tool %s): %s",
			d.jobID, d.tool, protocol.Truncate(d.result, bgResultLimit)),
	})
	s.graph.Checkpoint(ctx, s.state)

	status := jobStatus(d.result)
	s.sendJSON(ctx, protocol.NewAsyncJobUpdate(d.jobID, d.tool, status, d.result))
	if status == "timeout" {
		env := protocol.NewError(protocol.ErrRPCTimeout,
			fmt.Sprintf("The %s action timed out waiting for the desktop client.", d.tool), s.id, true)
		env.Details = map[string]any{"job_id": d.jobID}
		s.sendJSON(ctx, env)
	}
	s.metrics.ActiveJobs.Add(ctx, -1)
	s.logger.Info("background job finished", "job_id", d.jobID, "tool", d.tool, "status", status)
}

func jobStatus(result string) string {
	lower := strings.ToLower(result)
	switch {
	case strings.Contains(lower, "was cancelled"):
		return "cancelled"
	case strings.Contains(lower, "timed out"):
		return "timeout"
	case strings.Contains(lower, "encountered an error"):
		return "error"
	default:
		return "completed"
	}
}

// executeInline runs a synchronous tool action and returns its paired tool
// result message.
func (s *Session) executeInline(ctx context.Context, call llm.ToolCall) llm.Message {
	args, err := call.Args()
	if err != nil {
		args = map[string]any{}
	}

	switch s.registry.Classify(call.Name) {
	case tools.ClassInlineScreen:
		return s.captureScreen(ctx, call, args)
	case tools.ClassInlineScan:
		return s.scanSecurity(ctx, call, args)
	case tools.ClassSandboxPreview:
		return s.renderSandbox(ctx, call, args)
	default:
		out := s.registry.Execute(ctx, call.Name, call.Arguments)
		status := "ok"
		if strings.HasPrefix(out, "Error executing tool") || strings.HasPrefix(out, "Tool returned an error") {
			status = "error"
		}
		s.metrics.RecordToolCall(ctx, call.Name, "remote_api", status)
		return llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: out}
	}
}

// captureScreen exchanges one screen_capture_request with the client and
// builds a multimodal tool result from the most recent frames.
func (s *Session) captureScreen(ctx context.Context, call llm.ToolCall, args map[string]any) llm.Message {
	id := "screen_" + shortID()
	s.sendJSON(ctx, protocol.ScreenCaptureRequest{Type: "screen_capture_request", ID: id})

	in, ok := s.waitFor(ctx, screenWait, protocol.KindScreenFrames)
	if !ok || len(in.ScreenFrames.Frames) == 0 {
		s.metrics.RecordToolCall(ctx, call.Name, "inline_screen", "timeout")
		return llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Content:    "Error executing tool analyze_screen: no screen frames were captured.",
		}
	}

	frames := in.ScreenFrames.Frames
	if len(frames) > screenFrameLimit {
		frames = frames[len(frames)-screenFrameLimit:]
	}
	mediaType := in.ScreenFrames.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}

	desc := fmt.Sprintf("Captured %d recent screen frames for analysis.", len(frames))
	if ud, _ := args["user_description"].(string); ud != "" {
		desc += " The user says: " + ud
	}

	parts := []llm.ContentPart{{Type: "text", Text: desc}}
	for _, f := range frames {
		parts = append(parts, llm.ContentPart{Type: "image", ImageB64: f, MediaType: mediaType})
	}

	s.metrics.RecordToolCall(ctx, call.Name, "inline_screen", "ok")
	return llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: desc, Parts: parts}
}

// scanSecurity exchanges one scan_security_request with the client.
func (s *Session) scanSecurity(ctx context.Context, call llm.ToolCall, args map[string]any) llm.Message {
	projectPath, _ := args["project_path"].(string)
	if projectPath == "" {
		projectPath = s.state.ProjectPath
	}

	id := "scan_" + shortID()
	s.sendJSON(ctx, protocol.ScanSecurityRequest{
		Type:        "scan_security_request",
		ID:          id,
		ProjectPath: projectPath,
	})

	in, ok := s.waitFor(ctx, scanWait, protocol.KindScanSecurityResult)
	if !ok {
		s.metrics.RecordToolCall(ctx, call.Name, "inline_scan", "timeout")
		return llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Content:    "Error executing tool scan_security: the client did not return scan results in time.",
		}
	}

	s.metrics.RecordToolCall(ctx, call.Name, "inline_scan", "ok")
	return llm.Message{
		Role:       llm.RoleTool,
		ToolCallID: call.ID,
		Content:    "Security scan findings:\n" + string(in.ScanResult.Findings),
	}
}

// renderSandbox stores HTML in the sandbox slot and notifies the client.
func (s *Session) renderSandbox(ctx context.Context, call llm.ToolCall, args map[string]any) llm.Message {
	html, _ := args["html_code"].(string)
	wasLive := s.sandbox.Live()
	s.sandbox.Set(html)

	var notice, content string
	if !wasLive || call.Name == tools.ToolCreateSandboxPreview {
		notice = "sandbox_live"
		content = fmt.Sprintf("MVP sandbox is live at %s. The user can see the rendered page in the preview panel.", s.sandboxURL)
	} else {
		notice = "sandbox_updated"
		content = "Sandbox preview updated. The user can see the changes instantly."
	}
	s.sendJSON(ctx, protocol.SandboxNotice{Type: notice, URL: s.sandboxURL})
	s.metrics.RecordToolCall(ctx, call.Name, "sandbox", "ok")

	return llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: content}
}
