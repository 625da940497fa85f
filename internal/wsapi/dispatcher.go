package wsapi

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/nerrad567/gray-logic-access/internal/apierr"
)

// HandleRequest turns one raw frame into exactly one response. It never
// fails: every error is mapped onto a status. The response echoes the
// request's id and method; both are empty only when the frame could not
// be parsed.
func (s *Server) HandleRequest(ctx context.Context, session *APISession, raw []byte) ServerMessage {
	msg, err := ParseClientMessage(raw)
	if err != nil {
		return s.failure(ServerMessage{}, err)
	}
	resp := ServerMessage{ID: msg.ID, Method: msg.Method}

	if !session.allowRequest() {
		s.metrics.limited()
		return s.failure(resp, apierr.NewDomain("rate limit exceeded", nil))
	}

	content, err := s.execute(ctx, session, msg)
	if err != nil {
		return s.failure(resp, err)
	}

	resp.StatusCode = apierr.Success
	resp.Content = content
	return resp
}

type outcome struct {
	content json.RawMessage
	err     error
}

// execute runs the request in an execution slot, under the configured
// deadline. On expiry the handler is left to finish on its own; its unit
// of work is closed when it returns.
func (s *Server) execute(ctx context.Context, session *APISession, msg ClientMessage) (json.RawMessage, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	done := make(chan outcome, 1)
	go func() {
		defer s.slots.Release(1)
		content, err := s.run(ctx, session, msg)
		done <- outcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		return out.content, out.err
	case <-ctx.Done():
		s.metrics.abandon()
		s.logger.Warn("request abandoned",
			"conn", session.conn.ID(),
			"id", msg.ID,
			"method", msg.Method,
			"error", ctx.Err(),
		)
		return nil, ctx.Err()
	}
}

// run owns the request's unit of work and converts a handler panic into
// an error.
func (s *Server) run(ctx context.Context, session *APISession, msg ClientMessage) (content json.RawMessage, err error) {
	uow := s.db.NewUnitOfWork(s.identityMapSize)
	defer uow.Close()

	rc := &RequestContext{
		Session: session,
		UoW:     uow,
		Server:  s,
		log:     s.logger.Request(session.conn.ID(), msg.ID, msg.Method),
	}

	defer func() {
		if v := recover(); v != nil {
			rc.log.Error("handler panic",
				"panic", v,
				"stack", string(debug.Stack()),
			)
			content, err = nil, apierr.FromPanic(v)
		}
	}()

	result, err := s.dispatch(ctx, rc, msg)
	if err != nil {
		return nil, err
	}
	return result.encode()
}

// dispatch resolves, authorizes and invokes the handler for msg.
func (s *Server) dispatch(ctx context.Context, rc *RequestContext, msg ClientMessage) (Result, error) {
	h, ok := s.registry.Lookup(msg.Method)
	if !ok {
		return Result{}, apierr.NewInvalidCall(msg.Method)
	}

	if err := rc.Session.ensureValid(ctx, rc); err != nil {
		return Result{}, err
	}

	c := h.bind(rc)
	allowed, err := c.authorize(ctx, msg.Payload)
	if err != nil {
		return Result{}, err
	}
	if !allowed {
		return Result{}, apierr.NewPermissionDenied("")
	}
	return c.invoke(ctx, msg.Payload)
}

// failure fills resp from err.
func (s *Server) failure(resp ServerMessage, err error) ServerMessage {
	m := apierr.Map(err)

	switch {
	case m.Severe:
		s.logger.Error("request failed",
			"id", resp.ID,
			"method", resp.Method,
			"status", m.Status.String(),
			"error", err,
		)
	case m.Detail != nil:
		s.logger.Warn("request failed",
			"id", resp.ID,
			"method", resp.Method,
			"status", m.Status.String(),
			"error", m.Detail,
		)
	}

	resp.StatusCode = m.Status
	resp.StatusString = m.Message
	resp.Content = emptyContent
	if m.Content != nil {
		if data, err := json.Marshal(m.Content); err == nil {
			resp.Content = data
		}
	}
	return resp
}
