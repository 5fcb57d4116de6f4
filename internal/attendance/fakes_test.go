package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"attendance-service/internal/user"
)

type recordKey struct {
	userID int
	date   string
}

// memStore enforces the (user_id, date) uniqueness the database provides.
type memStore struct {
	mu      sync.Mutex
	records map[int]*Record
	nextID  int
	users   *memDirectory

	// beforeCreate runs before each insert, outside the lock.
	beforeCreate func(rec *Record)
	// beforeUpdate runs before each update, outside the lock.
	beforeUpdate func(rec *Record)
	// forceConflicts makes the next N creates fail with ErrConflict.
	forceConflicts int
}

func newMemStore(users *memDirectory) *memStore {
	return &memStore{records: make(map[int]*Record), nextID: 1, users: users}
}

func (m *memStore) key(r *Record) recordKey {
	return recordKey{userID: r.UserID, date: r.Date.Format(DateLayout)}
}

func (m *memStore) insertLocked(rec *Record) error {
	for _, existing := range m.records {
		if m.key(existing) == m.key(rec) {
			return ErrConflict
		}
	}
	rec.ID = m.nextID
	m.nextID++
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	cp := *rec
	cp.User, cp.Marker = nil, nil
	m.records[rec.ID] = &cp
	return nil
}

// seed inserts a record directly, bypassing hooks.
func (m *memStore) seed(rec *Record) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertLocked(rec); err != nil {
		panic(err)
	}
	return rec
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memStore) FindByUserAndDate(_ context.Context, userID int, date time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := recordKey{userID: userID, date: date.Format(DateLayout)}
	for _, r := range m.records {
		if m.key(r) == want {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *memStore) GetByID(ctx context.Context, id int) (*Record, error) {
	m.mu.Lock()
	r, ok := m.records[id]
	var cp Record
	if ok {
		cp = *r
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrRecordNotFound
	}
	if owner, err := m.users.GetByID(ctx, cp.UserID); err == nil {
		cp.User = owner
	}
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, rec *Record) error {
	if m.beforeCreate != nil {
		m.beforeCreate(rec)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceConflicts > 0 {
		m.forceConflicts--
		return ErrConflict
	}
	return m.insertLocked(rec)
}

func (m *memStore) Update(_ context.Context, rec *Record) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate(rec)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[rec.ID]
	if !ok {
		return ErrRecordNotFound
	}
	existing.Status = rec.Status
	existing.Notes = rec.Notes
	existing.MarkedBy = rec.MarkedBy
	existing.UpdatedAt = time.Now()
	rec.UpdatedAt = existing.UpdatedAt
	return nil
}

func (m *memStore) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID, limit, offset int) ([]Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []Record
	for _, r := range m.records {
		if r.UserID == userID {
			all = append(all, *r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)
	if offset >= total {
		return []Record{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memStore) ListForUsersOnDate(_ context.Context, userIDs []int, date time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	day := date.Format(DateLayout)

	out := []Record{}
	for _, r := range m.records {
		if want[r.UserID] && r.Date.Format(DateLayout) == day {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memDirectory struct {
	users map[int]*user.User
}

func newMemDirectory(users ...*user.User) *memDirectory {
	d := &memDirectory{users: make(map[int]*user.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *memDirectory) GetByID(_ context.Context, id int) (*user.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *memDirectory) ListStudentsOfTeacher(_ context.Context, teacherID int) ([]user.User, error) {
	var out []user.User
	for _, u := range d.users {
		if u.IsStudent() && u.SupervisedBy(teacherID) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type sentMessage struct {
	key   string
	event Event
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (p *recordingPublisher) SendMessage(_ context.Context, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	ev, ok := value.(Event)
	if !ok {
		return errors.New("unexpected message type")
	}
	p.sent = append(p.sent, sentMessage{key: key, event: ev})
	return nil
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.sent))
	for i, m := range p.sent {
		out[i] = m.event.Type
	}
	return out
}
