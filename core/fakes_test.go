package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// In-memory repositories for handler and service tests.

type fakeLookupRepo struct {
	mu     sync.Mutex
	rows   map[string][]*LookupItem
	nextID int64
}

func newFakeLookupRepo() *fakeLookupRepo {
	return &fakeLookupRepo{rows: map[string][]*LookupItem{}}
}

func (f *fakeLookupRepo) List(_ context.Context, t LookupTable, search string, page, perPage int) ([]LookupItem, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []LookupItem
	for _, it := range f.rows[t.Kind] {
		if search == "" || strings.Contains(strings.ToLower(it.Code+" "+it.Name), strings.ToLower(search)) {
			all = append(all, *it)
		}
	}
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := min(start+perPage, len(all))
	return append([]LookupItem{}, all[start:end]...), len(all), nil
}

func (f *fakeLookupRepo) find(t LookupTable, id int64) (int, *LookupItem) {
	for i, it := range f.rows[t.Kind] {
		if it.ID == id {
			return i, it
		}
	}
	return -1, nil
}

func (f *fakeLookupRepo) Get(_ context.Context, t LookupTable, id int64) (*LookupItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, it := f.find(t, id)
	if it == nil {
		return nil, ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (f *fakeLookupRepo) FindByCode(_ context.Context, t LookupTable, code string) (*LookupItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.rows[t.Kind] {
		if strings.EqualFold(it.Code, code) {
			cp := *it
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeLookupRepo) duplicate(t LookupTable, code, name string, exclude int64) bool {
	for _, it := range f.rows[t.Kind] {
		if it.ID != exclude && (strings.EqualFold(it.Code, code) || strings.EqualFold(it.Name, name)) {
			return true
		}
	}
	return false
}

func (f *fakeLookupRepo) Create(_ context.Context, t LookupTable, code, name, actor string) (*LookupItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.duplicate(t, code, name, 0) {
		return nil, ErrDuplicate
	}
	f.nextID++
	it := &LookupItem{ID: f.nextID, Code: code, Name: name, CreateBy: actor, CreateDate: time.Now()}
	f.rows[t.Kind] = append(f.rows[t.Kind], it)
	cp := *it
	return &cp, nil
}

func (f *fakeLookupRepo) Update(_ context.Context, t LookupTable, id int64, code, name, _ string) (*LookupItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, it := f.find(t, id)
	if it == nil {
		return nil, ErrNotFound
	}
	if f.duplicate(t, code, name, id) {
		return nil, ErrDuplicate
	}
	it.Code, it.Name = code, name
	cp := *it
	return &cp, nil
}

func (f *fakeLookupRepo) Deactivate(_ context.Context, t LookupTable, id int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, _ := f.find(t, id)
	if i < 0 {
		return ErrNotFound
	}
	f.rows[t.Kind] = append(f.rows[t.Kind][:i], f.rows[t.Kind][i+1:]...)
	return nil
}

type fakeStaffRepo struct {
	mu    sync.Mutex
	users map[string]*StaffUserRecord
}

func newFakeStaffRepo() *fakeStaffRepo {
	return &fakeStaffRepo{users: map[string]*StaffUserRecord{}}
}

func (f *fakeStaffRepo) FindByUsername(_ context.Context, username string) (*StaffUserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStaffRepo) Create(_ context.Context, username, passwordHash, role, tokenKey string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return 0, ErrDuplicate
	}
	id := int64(len(f.users) + 1)
	f.users[username] = &StaffUserRecord{ID: id, Username: username, PasswordHash: passwordHash, Role: role, TokenKey: tokenKey, Active: true, CreatedAt: time.Now()}
	return id, nil
}

func (f *fakeStaffRepo) HasAdmin(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Role == "admin" {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStaffRepo) IsActive(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	return ok && u.Active, nil
}

func (f *fakeStaffRepo) List(_ context.Context, _, _ int) ([]StaffUserListItem, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []StaffUserListItem{}
	for _, u := range f.users {
		items = append(items, StaffUserListItem{ID: u.ID, Username: u.Username, Role: u.Role, Active: u.Active, CreatedAt: u.CreatedAt})
	}
	return items, len(items), nil
}

func (f *fakeStaffRepo) SetTokenKey(_ context.Context, username, tokenKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return ErrNotFound
	}
	u.TokenKey = tokenKey
	return nil
}

type fakeAirlineUserRepo struct {
	mu    sync.Mutex
	users map[string]*AirlineUserRecord
}

func newFakeAirlineUserRepo() *fakeAirlineUserRepo {
	return &fakeAirlineUserRepo{users: map[string]*AirlineUserRecord{}}
}

func (f *fakeAirlineUserRepo) FindByEmail(_ context.Context, email string) (*AirlineUserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeAirlineUserRepo) Create(_ context.Context, rec AirlineUserRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[rec.Email]; ok {
		return 0, ErrDuplicate
	}
	rec.ID = int64(len(f.users) + 1)
	if rec.StatusID == 0 {
		rec.StatusID = AirlineStatusEnabled
	}
	f.users[rec.Email] = &rec
	return rec.ID, nil
}

func (f *fakeAirlineUserRepo) SetTokenKey(_ context.Context, email, tokenKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return ErrNotFound
	}
	u.TokenKey = tokenKey
	return nil
}

type fakeTicketRepo struct {
	mu          sync.Mutex
	tickets     map[int64]*Ticket
	notes       map[int64][]TicketNote
	activeStaff map[string]bool
	categories  map[int64]bool // when set, the tcid values Create accepts
	calls       int
}

func newFakeTicketRepo(activeStaff ...string) *fakeTicketRepo {
	f := &fakeTicketRepo{tickets: map[int64]*Ticket{}, notes: map[int64][]TicketNote{}, activeStaff: map[string]bool{}}
	for _, s := range activeStaff {
		f.activeStaff[s] = true
	}
	return f
}

func (f *fakeTicketRepo) Create(_ context.Context, in TicketInput, actor string) (*Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.categories != nil && !f.categories[in.CategoryID] {
		return nil, ErrInvalidReference
	}
	id := int64(len(f.tickets) + 1)
	t := &Ticket{
		ID: id, Code: NewTicketCode(), Subject: in.Subject, Email: in.Email,
		CategoryID: in.CategoryID, PriorityID: in.PriorityID, Descriptions: in.Descriptions,
		Status: TicketOpen, CreateBy: actor, CreateDate: time.Now(), UpdateDate: time.Now(),
	}
	if in.AttachFile != "" {
		t.AttachFile = &in.AttachFile
	}
	f.tickets[id] = t
	cp := *t
	return &cp, nil
}

func (f *fakeTicketRepo) List(_ context.Context, fl TicketFilter, _, _ int) ([]Ticket, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	items := []Ticket{}
	for _, t := range f.tickets {
		if fl.Status != "" && t.Status != fl.Status {
			continue
		}
		items = append(items, *t)
	}
	return items, len(items), nil
}

func (f *fakeTicketRepo) Get(_ context.Context, id int64) (*Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	t, ok := f.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTicketRepo) open(id int64) (*Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status == TicketClosed {
		return nil, ErrTicketClosed
	}
	return t, nil
}

func (f *fakeTicketRepo) Reassign(_ context.Context, id int64, assignee, _ string) (*Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	t, err := f.open(id)
	if err != nil {
		return nil, err
	}
	if !f.activeStaff[assignee] {
		return nil, ErrInvalidAssignee
	}
	t.Assignee, t.Status = &assignee, TicketAssigned
	cp := *t
	return &cp, nil
}

func (f *fakeTicketRepo) Close(_ context.Context, id int64, reason, _ string) (*Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	t, err := f.open(id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	t.Status, t.CloseDate, t.CloseReason = TicketClosed, &now, &reason
	cp := *t
	return &cp, nil
}

func (f *fakeTicketRepo) ListNotes(_ context.Context, id int64) ([]TicketNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, ok := f.tickets[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]TicketNote{}, f.notes[id]...), nil
}

func (f *fakeTicketRepo) AddNote(_ context.Context, id int64, note, attachFile, actor string) (*TicketNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, err := f.open(id); err != nil {
		return nil, err
	}
	n := TicketNote{ID: int64(len(f.notes[id]) + 1), TicketID: id, Note: note, CreateBy: actor, CreateDate: time.Now()}
	if attachFile != "" {
		n.AttachFile = &attachFile
	}
	f.notes[id] = append(f.notes[id], n)
	return &n, nil
}

func (f *fakeTicketRepo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeAnnouncementRepo delivers announcements to the emails listed in recipients[id] on FanOut.
type fakeAnnouncementRepo struct {
	mu         sync.Mutex
	items      map[int64]*Announcement
	recipients map[int64][]string
	receipts   map[int64]map[string]*AnnouncementReceipt
	fanOutErr  error
	fanOuts    int
}

func newFakeAnnouncementRepo() *fakeAnnouncementRepo {
	return &fakeAnnouncementRepo{
		items:      map[int64]*Announcement{},
		recipients: map[int64][]string{},
		receipts:   map[int64]map[string]*AnnouncementReceipt{},
	}
}

func (f *fakeAnnouncementRepo) apply(a *Announcement, in AnnouncementInput) {
	in = in.normalized()
	a.Title, a.Reason, a.StatusID, a.AudienceID = in.Title, in.Reason, in.StatusID, in.AudienceID
	a.StartDate, a.EndDate, a.ScheduleDate = in.StartDate, in.EndDate, in.ScheduleDate
	a.CusID, a.GroupID, a.AttachFile = nil, nil, nil
	if in.CusID != "" {
		a.CusID = &in.CusID
	}
	if in.GroupID > 0 {
		a.GroupID = &in.GroupID
	}
	if in.AttachFile != "" {
		a.AttachFile = &in.AttachFile
	}
}

func (f *fakeAnnouncementRepo) Create(_ context.Context, in AnnouncementInput, actor string) (*Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &Announcement{ID: int64(len(f.items) + 1), Active: true, CreateBy: actor, CreateDate: time.Now()}
	f.apply(a, in)
	f.items[a.ID] = a
	cp := *a
	return &cp, nil
}

func (f *fakeAnnouncementRepo) List(_ context.Context, fl AnnouncementFilter, _, _ int) ([]Announcement, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []Announcement{}
	for _, a := range f.items {
		if a.Active && (fl.StatusID == 0 || a.StatusID == fl.StatusID) {
			items = append(items, *a)
		}
	}
	return items, len(items), nil
}

func (f *fakeAnnouncementRepo) Get(_ context.Context, id int64) (*Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAnnouncementRepo) Update(_ context.Context, id int64, in AnnouncementInput, _ string) (*Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || !a.Active {
		return nil, ErrNotFound
	}
	f.apply(a, in)
	cp := *a
	return &cp, nil
}

func (f *fakeAnnouncementRepo) SetStatus(_ context.Context, id, statusID int64, active bool, _ string) (*Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.StatusID, a.Active = statusID, active
	cp := *a
	return &cp, nil
}

func (f *fakeAnnouncementRepo) Deactivate(_ context.Context, id int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || !a.Active {
		return ErrNotFound
	}
	a.Active = false
	return nil
}

func (f *fakeAnnouncementRepo) Audience(_ context.Context, id int64) ([]AudienceMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return nil, ErrNotFound
	}
	members := []AudienceMember{}
	for email, rc := range f.receipts[id] {
		members = append(members, AudienceMember{Email: email, ReadStatus: rc.ReadStatus, ReadDate: rc.ReadDate})
	}
	return members, nil
}

func (f *fakeAnnouncementRepo) FanOut(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fanOuts++
	if f.fanOutErr != nil {
		return 0, f.fanOutErr
	}
	a, ok := f.items[id]
	if !ok {
		return 0, ErrNotFound
	}
	if !a.Active {
		return 0, nil
	}
	if f.receipts[id] == nil {
		f.receipts[id] = map[string]*AnnouncementReceipt{}
	}
	var created int64
	for _, email := range f.recipients[id] {
		if _, exists := f.receipts[id][email]; exists {
			continue
		}
		f.receipts[id][email] = &AnnouncementReceipt{ReadStatus: ReceiptNotRead}
		created++
	}
	return created, nil
}

func (f *fakeAnnouncementRepo) receipt(id int64, email string) (*AnnouncementReceipt, error) {
	a, ok := f.items[id]
	if !ok || !a.Active {
		return nil, ErrNotFound
	}
	rc, ok := f.receipts[id][email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rc
	out.Announcement = *a
	return &out, nil
}

func (f *fakeAnnouncementRepo) ListForUser(_ context.Context, email string, unreadOnly bool, _, _ int) ([]AnnouncementReceipt, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []AnnouncementReceipt{}
	for id := range f.items {
		rc, err := f.receipt(id, email)
		if err != nil || (unreadOnly && rc.ReadStatus != ReceiptNotRead) {
			continue
		}
		items = append(items, *rc)
	}
	return items, len(items), nil
}

func (f *fakeAnnouncementRepo) GetForUser(_ context.Context, id int64, email string) (*AnnouncementReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipt(id, email)
}

func (f *fakeAnnouncementRepo) MarkRead(_ context.Context, id int64, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.receipts[id][email]
	if !ok {
		return ErrNotFound
	}
	if rc.ReadDate == nil {
		now := time.Now()
		rc.ReadDate = &now
	}
	rc.ReadStatus = ReceiptRead
	return nil
}

func (f *fakeAnnouncementRepo) AttachmentVisibleTo(_ context.Context, key, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, a := range f.items {
		if a.Active && a.AttachFile != nil && *a.AttachFile == key {
			if _, ok := f.receipts[id][email]; ok {
				return true, nil
			}
		}
	}
	return false, nil
}

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (l *fakeAuditLog) Record(_ context.Context, e AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *fakeAuditLog) List(_ context.Context, _, _ int) ([]AuditEntry, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry{}, l.entries...), len(l.entries), nil
}

func (l *fakeAuditLog) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Action+" "+e.Entity)
	}
	return out
}

// failingQueue refuses every enqueue.
type failingQueue struct{}

var errQueueDown = errors.New("queue down")

func (failingQueue) Enqueue(context.Context, string, string) error { return errQueueDown }
func (failingQueue) Reserve(context.Context, string, string, time.Duration) (string, error) {
	return "", errQueueDown
}
func (failingQueue) Ack(context.Context, string, string) error { return errQueueDown }
func (failingQueue) RequeueExpired(context.Context, string, string, time.Time) ([]string, error) {
	return nil, errQueueDown
}
