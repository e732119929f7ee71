package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/threadline/internal/models"
	"github.com/lalith-99/threadline/internal/realtime"
	"github.com/lalith-99/threadline/internal/repository"
)

// memDB backs the in-memory repositories used by the handler tests.
type memDB struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	threads  map[uuid.UUID]*models.ChatThread
	projects map[uuid.UUID]*models.Project
	messages []models.ChatMessage
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[uuid.UUID]*models.User{},
		threads:  map[uuid.UUID]*models.ChatThread{},
		projects: map[uuid.UUID]*models.Project{},
	}
}

type memUsers struct{ db *memDB }

func (r memUsers) Create(_ context.Context, name, email, hash string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Email == email {
			return nil, repository.ErrConflict
		}
	}
	u := &models.User{ID: uuid.New(), Name: name, Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	r.db.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memUsers) UpdatePreferences(_ context.Context, id uuid.UUID, prefs models.UserPreferences) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, nil
	}
	u.Preferences = &prefs
	cp := *u
	return &cp, nil
}

type memThreads struct{ db *memDB }

func (r memThreads) Create(_ context.Context, t models.NewThread) (*models.ChatThread, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.threads[t.ID]; ok {
		return nil, repository.ErrConflict
	}
	if t.ProjectID != nil {
		if _, ok := r.db.projects[*t.ProjectID]; !ok {
			return nil, repository.ErrReferenceMissing
		}
	}
	th := &models.ChatThread{ID: t.ID, Title: t.Title, UserID: t.UserID, ProjectID: t.ProjectID, CreatedAt: time.Now()}
	r.db.threads[th.ID] = th
	cp := *th
	return &cp, nil
}

func (r memThreads) Upsert(ctx context.Context, t models.NewThread) (*models.ChatThread, error) {
	r.db.mu.Lock()
	if th, ok := r.db.threads[t.ID]; ok {
		if th.UserID != t.UserID {
			r.db.mu.Unlock()
			return nil, nil
		}
		th.Title = t.Title
		cp := *th
		r.db.mu.Unlock()
		return &cp, nil
	}
	r.db.mu.Unlock()
	return r.Create(ctx, t)
}

func (r memThreads) GetByID(_ context.Context, id uuid.UUID) (*models.ChatThread, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	th, ok := r.db.threads[id]
	if !ok {
		return nil, nil
	}
	cp := *th
	return &cp, nil
}

func (r memThreads) GetDetails(ctx context.Context, id uuid.UUID) (*models.ThreadDetails, error) {
	th, _ := r.GetByID(ctx, id)
	if th == nil {
		return nil, nil
	}
	msgs, _ := memMessages(r).ListByThread(ctx, id)
	d := &models.ThreadDetails{ChatThread: *th, Messages: msgs}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if th.ProjectID != nil {
		if p, ok := r.db.projects[*th.ProjectID]; ok {
			instr := p.Instructions
			d.Instructions = &instr
		}
	}
	if u, ok := r.db.users[th.UserID]; ok {
		d.UserPreferences = u.Preferences
	}
	return d, nil
}

func (r memThreads) GetInstructions(ctx context.Context, userID uuid.UUID, threadID *uuid.UUID) (*models.ThreadInstructions, error) {
	u, _ := memUsers(r).GetByID(ctx, userID)
	if u == nil {
		return nil, repository.ErrUserNotFound
	}
	out := &models.ThreadInstructions{UserPreferences: u.Preferences}
	if threadID == nil {
		return out, nil
	}
	th, _ := r.GetByID(ctx, *threadID)
	if th == nil {
		return out, nil
	}
	out.ThreadID = &th.ID
	out.ProjectID = th.ProjectID
	if th.ProjectID != nil {
		r.db.mu.Lock()
		if p, ok := r.db.projects[*th.ProjectID]; ok {
			instr := p.Instructions
			out.Instructions = &instr
		}
		r.db.mu.Unlock()
	}
	return out, nil
}

func (r memThreads) GetInstructionsByProject(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) (*models.ThreadInstructions, error) {
	u, _ := memUsers(r).GetByID(ctx, userID)
	if u == nil {
		return nil, repository.ErrUserNotFound
	}
	out := &models.ThreadInstructions{UserPreferences: u.Preferences, ProjectID: projectID}
	if projectID != nil {
		r.db.mu.Lock()
		if p, ok := r.db.projects[*projectID]; ok {
			instr := p.Instructions
			out.Instructions = &instr
		}
		r.db.mu.Unlock()
	}
	return out, nil
}

func (r memThreads) ListByUser(_ context.Context, userID uuid.UUID) ([]models.ThreadSummary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.ThreadSummary, 0)
	for _, th := range r.db.threads {
		if th.UserID != userID {
			continue
		}
		s := models.ThreadSummary{ChatThread: *th}
		for _, m := range r.db.messages {
			if m.ThreadID == th.ID && m.CreatedAt.UnixMilli() > s.LastMessageAt {
				s.LastMessageAt = m.CreatedAt.UnixMilli()
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt > out[j].LastMessageAt })
	return out, nil
}

func (r memThreads) Update(_ context.Context, id uuid.UUID, u models.ThreadUpdate) (*models.ChatThread, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	th, ok := r.db.threads[id]
	if !ok {
		return nil, nil
	}
	if u.Title != nil {
		th.Title = *u.Title
	}
	if u.DetachProject {
		th.ProjectID = nil
	} else if u.ProjectID != nil {
		th.ProjectID = u.ProjectID
	}
	cp := *th
	return &cp, nil
}

func (r memThreads) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.deleteThreadsLocked(func(th *models.ChatThread) bool { return th.ID == id })
	return nil
}

func (r memThreads) DeleteNonProject(_ context.Context, userID uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.deleteThreadsLocked(func(th *models.ChatThread) bool {
		return th.UserID == userID && th.ProjectID == nil
	}), nil
}

func (r memThreads) DeleteAll(_ context.Context, userID uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.deleteThreadsLocked(func(th *models.ChatThread) bool { return th.UserID == userID }), nil
}

func (db *memDB) deleteThreadsLocked(match func(*models.ChatThread) bool) int64 {
	var n int64
	for id, th := range db.threads {
		if !match(th) {
			continue
		}
		delete(db.threads, id)
		n++
		kept := db.messages[:0]
		for _, m := range db.messages {
			if m.ThreadID != id {
				kept = append(kept, m)
			}
		}
		db.messages = kept
	}
	return n
}

type memMessages struct{ db *memDB }

func (r memMessages) insertLocked(m models.ChatMessage) (*models.ChatMessage, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if _, ok := r.db.threads[m.ThreadID]; !ok {
		return nil, repository.ErrReferenceMissing
	}
	for _, existing := range r.db.messages {
		if existing.ID == m.ID {
			return nil, repository.ErrConflict
		}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	r.db.messages = append(r.db.messages, m)
	return &m, nil
}

func (r memMessages) Create(_ context.Context, m models.ChatMessage) (*models.ChatMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.insertLocked(m)
}

func (r memMessages) Upsert(_ context.Context, m models.ChatMessage) (*models.ChatMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	for i := range r.db.messages {
		existing := &r.db.messages[i]
		if existing.ID == m.ID {
			existing.Parts = m.Parts
			existing.Annotations = m.Annotations
			existing.Attachments = m.Attachments
			existing.Model = m.Model
			cp := *existing
			return &cp, nil
		}
	}
	return r.insertLocked(m)
}

func (r memMessages) CreateBatch(_ context.Context, msgs []models.ChatMessage) ([]models.ChatMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	snapshot := append([]models.ChatMessage(nil), r.db.messages...)
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		created, err := r.insertLocked(m)
		if err != nil {
			r.db.messages = snapshot
			return nil, err
		}
		out = append(out, *created)
	}
	return out, nil
}

func (r memMessages) ListByThread(_ context.Context, threadID uuid.UUID) ([]models.ChatMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.ChatMessage, 0)
	for _, m := range r.db.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memMessages) GetByID(_ context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.messages {
		if m.ID == id {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memMessages) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.messages[:0]
	for _, m := range r.db.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	r.db.messages = kept
	return nil
}

func (r memMessages) DeleteAtAndAfter(_ context.Context, id uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var target *models.ChatMessage
	for i := range r.db.messages {
		if r.db.messages[i].ID == id {
			target = &r.db.messages[i]
			break
		}
	}
	if target == nil {
		return 0, nil
	}
	threadID, at := target.ThreadID, target.CreatedAt

	var n int64
	kept := make([]models.ChatMessage, 0, len(r.db.messages))
	for _, m := range r.db.messages {
		if m.ThreadID == threadID && !m.CreatedAt.Before(at) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.db.messages = kept
	return n, nil
}

type memProjects struct{ db *memDB }

func (r memProjects) Create(_ context.Context, p models.NewProject) (*models.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	proj := &models.Project{ID: uuid.New(), Name: p.Name, UserID: p.UserID, Instructions: p.Instructions, CreatedAt: now, UpdatedAt: now}
	r.db.projects[proj.ID] = proj
	cp := *proj
	return &cp, nil
}

func (r memProjects) GetByID(_ context.Context, id uuid.UUID) (*models.ProjectWithThreads, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.projects[id]
	if !ok {
		return nil, nil
	}
	out := &models.ProjectWithThreads{Project: *p, Threads: []models.ChatThread{}}
	for _, th := range r.db.threads {
		if th.ProjectID != nil && *th.ProjectID == id {
			out.Threads = append(out.Threads, *th)
		}
	}
	return out, nil
}

func (r memProjects) ListByUser(_ context.Context, userID uuid.UUID) ([]models.ProjectSummary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.ProjectSummary, 0)
	for _, p := range r.db.projects {
		if p.UserID == userID {
			out = append(out, models.ProjectSummary{ID: p.ID, Name: p.Name, UserID: p.UserID, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt})
		}
	}
	return out, nil
}

func (r memProjects) Update(_ context.Context, id uuid.UUID, u models.ProjectUpdate) (*models.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.projects[id]
	if !ok {
		return nil, nil
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Instructions != nil {
		p.Instructions = *u.Instructions
	}
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (r memProjects) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.deleteThreadsLocked(func(th *models.ChatThread) bool {
		return th.ProjectID != nil && *th.ProjectID == id
	})
	delete(r.db.projects, id)
	return nil
}

// recorder captures published events in order.
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, e realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []realtime.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]realtime.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var (
	_ repository.UserRepository    = memUsers{}
	_ repository.ThreadRepository  = memThreads{}
	_ repository.MessageRepository = memMessages{}
	_ repository.ProjectRepository = memProjects{}
)
