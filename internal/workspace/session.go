package workspace

import (
	"context"
	"errors"
	"sync"

	"github.com/domusnext/eval/internal/domain"
)

var (
	// ErrBusy is returned when a mutation is issued while another is in flight.
	ErrBusy = errors.New("another operation is in progress")

	ErrNoActiveVersion = errors.New("select a version before running cases")
	ErrEmptyScope      = errors.New("no cases available to run for the selected scope")
)

// Session pairs a Client with the State it keeps in sync. Every mutation
// refetches the whole tree on success.
type Session struct {
	client *Client

	mu    sync.Mutex
	state State
}

// NewSession creates a session with an empty state.
func NewSession(client *Client) *Session {
	return &Session{client: client, state: NewState()}
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a local action.
func (s *Session) Dispatch(action Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, action)
	return s.state
}

// Refresh refetches the tree.
func (s *Session) Refresh(ctx context.Context) error {
	tree, err := s.client.Tree(ctx)
	if err != nil {
		return err
	}
	s.Dispatch(TreeLoaded{Tree: tree})
	return nil
}

// mutate runs fn with the busy flag held, then refreshes the tree.
func (s *Session) mutate(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.state.Busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = Reduce(s.state, SetBusy{Busy: true})
	s.mu.Unlock()

	defer s.Dispatch(SetBusy{Busy: false})

	if err := fn(ctx); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// AddVersion creates a version and makes it active.
func (s *Session) AddVersion(ctx context.Context, in domain.VersionInput) (string, error) {
	var id string
	err := s.mutate(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.client.CreateVersion(ctx, in)
		return err
	})
	if err != nil {
		return "", err
	}
	s.Dispatch(SelectVersion{VersionID: id})
	return id, nil
}

// DuplicateVersion copies a version and makes the copy active.
func (s *Session) DuplicateVersion(ctx context.Context, versionID string) (string, error) {
	var id string
	err := s.mutate(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.client.DuplicateVersion(ctx, versionID)
		return err
	})
	if err != nil {
		return "", err
	}
	s.Dispatch(SelectVersion{VersionID: id})
	return id, nil
}

func (s *Session) UpdateVersion(ctx context.Context, versionID string, patch Patch) error {
	return s.mutate(ctx, func(ctx context.Context) error {
		return s.client.UpdateVersion(ctx, versionID, patch)
	})
}

// DeleteVersion deletes a version; the refresh picks the next active one.
func (s *Session) DeleteVersion(ctx context.Context, versionID string) error {
	return s.mutate(ctx, func(ctx context.Context) error {
		return s.client.DeleteVersion(ctx, versionID)
	})
}

// AddContext creates a context and selects it.
func (s *Session) AddContext(ctx context.Context, in domain.ContextInput) (string, error) {
	var id string
	err := s.mutate(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.client.CreateContext(ctx, in)
		return err
	})
	if err != nil {
		return "", err
	}
	s.Dispatch(SelectNode{Node: ContextNode(id)})
	return id, nil
}

func (s *Session) UpdateContext(ctx context.Context, contextID string, patch Patch) error {
	return s.mutate(ctx, func(ctx context.Context) error {
		return s.client.UpdateContext(ctx, contextID, patch)
	})
}

// DeleteContext deletes a context and selects the version.
func (s *Session) DeleteContext(ctx context.Context, contextID string) error {
	err := s.mutate(ctx, func(ctx context.Context) error {
		return s.client.DeleteContext(ctx, contextID)
	})
	if err != nil {
		return err
	}
	s.Dispatch(SelectNode{Node: VersionNode()})
	return nil
}

// AddCase creates a case and selects it.
func (s *Session) AddCase(ctx context.Context, in domain.CaseInput) (string, error) {
	var id string
	err := s.mutate(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.client.CreateCase(ctx, in)
		return err
	})
	if err != nil {
		return "", err
	}
	s.Dispatch(SelectNode{Node: CaseNode(in.ContextID, id)})
	return id, nil
}

func (s *Session) UpdateCase(ctx context.Context, caseID string, patch Patch) error {
	return s.mutate(ctx, func(ctx context.Context) error {
		return s.client.UpdateCase(ctx, caseID, patch)
	})
}

// DeleteCase deletes a case and selects its context.
func (s *Session) DeleteCase(ctx context.Context, contextID, caseID string) error {
	err := s.mutate(ctx, func(ctx context.Context) error {
		return s.client.DeleteCase(ctx, caseID)
	})
	if err != nil {
		return err
	}
	s.Dispatch(SelectNode{Node: ContextNode(contextID)})
	return nil
}

// Run queues a run for scope on the active version. Scopes that resolve to
// no cases are rejected locally.
func (s *Session) Run(ctx context.Context, scope RunScope) (*domain.RunTicket, error) {
	state := s.State()
	if state.ActiveVersion() == nil {
		return nil, ErrNoActiveVersion
	}
	if len(state.Targets(scope)) == 0 {
		return nil, ErrEmptyScope
	}

	var ticket *domain.RunTicket
	err := s.mutate(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.client.Run(ctx, state.RunRequest(scope))
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}
