package runtime

import (
	"context"

	"github.com/warden-run/warden/internal/security"
	"github.com/warden-run/warden/internal/workspace"
)

// OpenSession creates a workspace session over the given base and audits it.
func (r *Runtime) OpenSession(ctx context.Context, base string) (*workspace.Session, error) {
	session, err := r.fs.CreateSession(ctx, base)
	if err != nil {
		return nil, err
	}
	r.auditEvent(security.AuditEvent{
		Type:      security.EventSessionCreate,
		SessionID: session.ID,
		Base:      base,
	})
	r.logger.Info("session opened", "session", session.ID, "base", base)
	return session, nil
}

// CommitSession folds the session delta into a new base and audits the
// outcome. On ErrConflictingBase the session stays open; the caller decides
// whether to inspect, retry against the new head, or discard.
func (r *Runtime) CommitSession(ctx context.Context, session *workspace.Session) (string, error) {
	ref, err := r.fs.Commit(ctx, session)
	if err != nil {
		r.auditEvent(security.AuditEvent{
			Type:      security.EventCommit,
			SessionID: session.ID,
			Base:      session.Base,
			Detail:    err.Error(),
		})
		return "", err
	}
	r.auditEvent(security.AuditEvent{
		Type:      security.EventCommit,
		SessionID: session.ID,
		Base:      session.Base,
		Detail:    "committed as " + ref,
	})
	r.logger.Info("session committed", "session", session.ID, "new_base", ref)
	return ref, nil
}

// DiscardSession drops the session delta and audits it.
func (r *Runtime) DiscardSession(ctx context.Context, session *workspace.Session) error {
	if err := r.fs.Discard(ctx, session); err != nil {
		return err
	}
	r.auditEvent(security.AuditEvent{
		Type:      security.EventDiscard,
		SessionID: session.ID,
		Base:      session.Base,
	})
	r.logger.Info("session discarded", "session", session.ID)
	return nil
}
