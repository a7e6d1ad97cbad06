package session

import (
	"context"
	"time"

	"github.com/Radix-Obsidian/Voco-ai/internal/graph"
	"github.com/Radix-Obsidian/Voco-ai/internal/protocol"
	"github.com/Radix-Obsidian/Voco-ai/internal/rpc"
)

// collectDecisions handles one graph interrupt: it surfaces the pending
// proposals to the client, speaks the model's announcement, waits for the
// user's verdicts, executes the approved side effects over the client RPC
// channel, and resumes the graph.
//
// A wait that times out resumes with an empty decision list, which the review
// node treats as rejecting everything.
func (s *Session) collectDecisions(ctx context.Context, node graph.NodeID) (*graph.Result, error) {
	s.awaitingReview = true
	defer func() { s.awaitingReview = false }()

	var want protocol.Kind
	switch node {
	case graph.NodeProposalReview:
		want = protocol.KindProposalDecision
		for _, p := range s.state.PendingFileProposals {
			s.sendJSON(ctx, protocol.Proposal{
				Type:        "proposal",
				ProposalID:  p.ProposalID,
				Action:      p.Action,
				FilePath:    p.FilePath,
				Content:     p.Content,
				Diff:        p.Diff,
				Description: p.Description,
				ProjectRoot: p.ProjectRoot,
			})
		}
	case graph.NodeCommandReview:
		want = protocol.KindCommandDecision
		for _, c := range s.state.PendingCommandProposals {
			s.sendJSON(ctx, protocol.CommandProposal{
				Type:        "command_proposal",
				CommandID:   c.CommandID,
				Command:     c.Command,
				Description: c.Description,
				ProjectPath: c.ProjectPath,
			})
		}
	}

	// Announce the proposal out loud before waiting on the user.
	if err := s.speak(ctx); err != nil {
		return nil, err
	}

	var proposals, commands []graph.Decision
	if in, ok := s.nextDecision(ctx, want); ok {
		if node == graph.NodeProposalReview {
			proposals = s.settleFileDecisions(ctx, in.Decisions.Decisions)
		} else {
			commands = s.settleCommandDecisions(ctx, in.Decisions.Decisions)
		}
	} else {
		s.logger.Info("approval wait timed out, rejecting pending items", "node", node)
	}

	res, err := s.graph.Resume(ctx, proposals, commands)
	if err != nil {
		return nil, err
	}
	s.state = res.State

	s.awaitingReview = false
	for _, d := range s.deferredJobs {
		s.applyJobResult(ctx, d)
	}
	s.deferredJobs = nil
	return res, nil
}

// settleFileDecisions converts client verdicts into graph decisions, writing
// each approved new file through the client before the graph resumes.
func (s *Session) settleFileDecisions(ctx context.Context, verdicts []protocol.Decision) []graph.Decision {
	byID := make(map[string]graph.Proposal, len(s.state.PendingFileProposals))
	for _, p := range s.state.PendingFileProposals {
		byID[p.ProposalID] = p
	}

	decisions := make([]graph.Decision, 0, len(verdicts))
	for _, v := range verdicts {
		d := graph.Decision{ID: v.ProposalID, Approved: v.Status == protocol.DecisionApproved}

		p, known := byID[v.ProposalID]
		if d.Approved && known && p.Action == "create_file" {
			res, err := s.callInBand(ctx, "write_"+p.ProposalID, protocol.MethodWriteFile, map[string]any{
				"file_path":    p.FilePath,
				"content":      p.Content,
				"project_root": p.ProjectRoot,
			}, s.rpcTimeout)
			if err != nil {
				d.Output = "Error: the file could not be written: " + err.Error()
			} else if len(res.Error) > 0 {
				d.Output = res.ResultText()
			}
		}
		decisions = append(decisions, d)
	}
	return decisions
}

// settleCommandDecisions executes each approved command on the client and
// attaches the captured output to the decision.
func (s *Session) settleCommandDecisions(ctx context.Context, verdicts []protocol.Decision) []graph.Decision {
	byID := make(map[string]graph.CommandProposal, len(s.state.PendingCommandProposals))
	for _, c := range s.state.PendingCommandProposals {
		byID[c.CommandID] = c
	}

	decisions := make([]graph.Decision, 0, len(verdicts))
	for _, v := range verdicts {
		d := graph.Decision{ID: v.CommandID, Approved: v.Status == protocol.DecisionApproved}

		c, known := byID[v.CommandID]
		if d.Approved && known {
			res, err := s.callInBand(ctx, "exec_"+c.CommandID, protocol.MethodExecuteCommand, map[string]any{
				"command":      c.Command,
				"project_path": c.ProjectPath,
			}, s.rpcTimeout)
			if err != nil {
				d.Output = "Error: the command could not be executed: " + err.Error()
			} else {
				d.Output = res.ResultText()
			}
		}
		decisions = append(decisions, d)
	}
	return decisions
}

// callInBand sends one JSON-RPC request and waits for its direct reply on the
// session loop. Other frames arriving in the meantime are dispatched normally
// so nothing is lost.
func (s *Session) callInBand(ctx context.Context, id, method string, params map[string]any, timeout time.Duration) (*protocol.RPCResult, error) {
	req := protocol.NewRPCRequest(id, method, params, s.correlationID(ctx))
	if err := s.conn.SendJSON(ctx, req); err != nil {
		return nil, err
	}
	s.rpcCount++

	t0 := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case f, ok := <-s.inbox:
			if !ok {
				return nil, ErrConnectionClosed
			}
			if f.Binary {
				s.handleAudio(ctx, f.Data)
				continue
			}
			in, err := protocol.Parse(f.Data)
			if err != nil {
				s.logger.Warn("unparseable client frame dropped", "error", err)
				continue
			}
			if in.Kind == protocol.KindRPCResult && in.RPCResult.ID == id {
				s.metrics.RPCDuration.Record(ctx, time.Since(t0).Seconds())
				return in.RPCResult, nil
			}
			s.handleMessage(ctx, in)

		case d := <-s.jobDone:
			s.applyJobResult(ctx, d)

		case <-timer.C:
			s.metrics.RPCTimeouts.Add(ctx, 1)
			return nil, rpc.ErrTimeout

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// nextDecision returns the decision buffered during the announcement, or
// waits for one to arrive.
func (s *Session) nextDecision(ctx context.Context, want protocol.Kind) (*protocol.Inbound, bool) {
	if in := s.bufferedDecision; in != nil && in.Kind == want {
		s.bufferedDecision = nil
		return in, true
	}
	s.bufferedDecision = nil
	return s.waitFor(ctx, s.decisionWait, want)
}

// waitFor blocks until a frame of the wanted kind arrives or the timeout
// elapses. Frames of other kinds are dispatched through the normal handlers;
// turn starts are suppressed because the session is already mid-turn.
func (s *Session) waitFor(ctx context.Context, timeout time.Duration, want protocol.Kind) (*protocol.Inbound, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case f, ok := <-s.inbox:
			if !ok {
				return nil, false
			}
			if f.Binary {
				s.handleAudio(ctx, f.Data)
				continue
			}
			in, err := protocol.Parse(f.Data)
			if err != nil {
				s.logger.Warn("unparseable client frame dropped", "error", err)
				continue
			}
			if in.Kind == want {
				return in, true
			}
			s.handleMessage(ctx, in)

		case d := <-s.jobDone:
			s.applyJobResult(ctx, d)

		case <-timer.C:
			return nil, false

		case <-ctx.Done():
			return nil, false
		}
	}
}
