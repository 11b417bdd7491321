// Package memory holds process-local repositories. They honor the same
// versioning and outbox contract as the postgres ones and back the
// in-memory server mode and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
)

// Store is shared by all repositories so that a mutation and its outbox
// event land under one lock.
type Store struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]model.Patient
	billing      map[uuid.UUID]model.BillingRecord
	appointments map[uuid.UUID]model.Appointment
	users        map[string]model.User
	outbox       []*model.OutboxEvent
}

func NewStore() *Store {
	return &Store{
		patients:     make(map[uuid.UUID]model.Patient),
		billing:      make(map[uuid.UUID]model.BillingRecord),
		appointments: make(map[uuid.UUID]model.Appointment),
		users:        make(map[string]model.User),
	}
}

// AddPatient registers a patient id so billing records can reference it.
func (s *Store) AddPatient(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.patients[id] = model.Patient{
		ID:          id,
		FullName:    "Patient " + id.String()[:8],
		DateOfBirth: "2020-01-01",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Events returns a snapshot of the outbox.
func (s *Store) Events() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, *e)
	}
	return out
}

func (s *Store) appendEvent(event *model.OutboxEvent) {
	if event == nil {
		return
	}
	e := *event
	s.outbox = append(s.outbox, &e)
}

type BillingRepository struct{ s *Store }

func NewBillingRepository(s *Store) *BillingRepository { return &BillingRepository{s: s} }

func (r *BillingRepository) Create(_ context.Context, record *model.BillingRecord, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	record.CreatedAt, record.UpdatedAt = now, now
	r.s.billing[record.ID] = *record
	r.s.appendEvent(event)
	return nil
}

func (r *BillingRepository) Get(_ context.Context, id uuid.UUID) (*model.BillingRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.billing[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (r *BillingRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.BillingRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	records := []*model.BillingRecord{}
	for _, rec := range r.s.billing {
		if rec.PatientID == patientID {
			rec := rec
			records = append(records, &rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (r *BillingRepository) Update(_ context.Context, record *model.BillingRecord, expectedVersion int64, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.billing[record.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	stored.Paid = record.Paid
	stored.PaidAmount = record.PaidAmount
	stored.UnpaidAmount = record.UnpaidAmount
	stored.PaymentMethod = record.PaymentMethod
	stored.Notes = record.Notes
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	r.s.billing[record.ID] = stored
	r.s.appendEvent(event)

	record.Version = stored.Version
	record.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *BillingRepository) Delete(_ context.Context, id uuid.UUID, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.billing[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.billing, id)
	r.s.appendEvent(event)
	return nil
}

func (r *BillingRepository) PatientExists(_ context.Context, patientID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.patients[patientID]
	return ok, nil
}

type AppointmentRepository struct{ s *Store }

func NewAppointmentRepository(s *Store) *AppointmentRepository { return &AppointmentRepository{s: s} }

func (r *AppointmentRepository) Create(_ context.Context, appointment *model.Appointment, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	appointment.CreatedAt, appointment.UpdatedAt = now, now
	r.s.appointments[appointment.ID] = *appointment
	r.s.appendEvent(event)
	return nil
}

func (r *AppointmentRepository) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	apt, ok := r.s.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &apt, nil
}

func (r *AppointmentRepository) List(_ context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if filters == nil {
		filters = &model.AppointmentFilters{}
	}
	search := strings.ToLower(filters.Search)

	out := []*model.Appointment{}
	for _, apt := range r.s.appointments {
		if filters.Status != "" && apt.Status != filters.Status {
			continue
		}
		if filters.Date != "" && apt.Date != filters.Date {
			continue
		}
		if search != "" && !matches(apt, search) {
			continue
		}
		apt := apt
		out = append(out, &apt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func matches(apt model.Appointment, search string) bool {
	if strings.Contains(strings.ToLower(apt.PatientName), search) {
		return true
	}
	return apt.Reason != nil && strings.Contains(strings.ToLower(*apt.Reason), search)
}

func (r *AppointmentRepository) UpdateStatus(_ context.Context, appointment *model.Appointment, expectedVersion int64, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.appointments[appointment.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	stored.Status = appointment.Status
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	r.s.appointments[appointment.ID] = stored
	r.s.appendEvent(event)

	appointment.Version = stored.Version
	appointment.UpdatedAt = stored.UpdatedAt
	return nil
}

type PatientRepository struct{ s *Store }

func NewPatientRepository(s *Store) *PatientRepository { return &PatientRepository{s: s} }

func (r *PatientRepository) Create(_ context.Context, patient *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	patient.CreatedAt, patient.UpdatedAt = now, now
	r.s.patients[patient.ID] = *patient
	return nil
}

func (r *PatientRepository) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *PatientRepository) List(_ context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if filters == nil {
		filters = &model.PatientFilters{}
	}
	search := strings.ToLower(filters.Search)

	out := []*model.Patient{}
	for _, p := range r.s.patients {
		if search != "" && !strings.Contains(strings.ToLower(p.FullName), search) &&
			(p.ParentName == nil || !strings.Contains(strings.ToLower(*p.ParentName), search)) {
			continue
		}
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

type UserRepository struct{ s *Store }

func NewUserRepository(s *Store) *UserRepository { return &UserRepository{s: s} }

func (r *UserRepository) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, ok := r.s.users[key]; ok {
		return repository.ErrDuplicateEmail
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[key] = *user
	return nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

type OutboxRepository struct{ s *Store }

func NewOutboxRepository(s *Store) *OutboxRepository { return &OutboxRepository{s: s} }

func (r *OutboxRepository) Create(_ context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.appendEvent(event)
	return nil
}

func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int, staleBefore time.Time) ([]*model.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	claimed := []*model.OutboxEvent{}
	for _, e := range r.s.outbox {
		if len(claimed) == limit {
			break
		}
		due := e.Status == model.OutboxStatusPending ||
			(e.Status == model.OutboxStatusRetry && (e.RetryAt == nil || !e.RetryAt.After(now))) ||
			(e.Status == model.OutboxStatusProcessing && e.UpdatedAt.Before(staleBefore))
		if !due {
			continue
		}
		e.Status = model.OutboxStatusProcessing
		e.UpdatedAt = now
		c := *e
		claimed = append(claimed, &c)
	}
	return claimed, nil
}

func (r *OutboxRepository) update(ctx context.Context, id uuid.UUID, fn func(*model.OutboxEvent)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.outbox {
		if e.ID == id {
			fn(e)
			e.UpdatedAt = time.Now()
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, func(e *model.OutboxEvent) {
		now := time.Now()
		e.Status = model.OutboxStatusProcessed
		e.ErrorMessage = nil
		e.ProcessedAt = &now
	})
}

func (r *OutboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return r.update(ctx, id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusRetry
		e.ErrorMessage = &errMsg
		e.RetryAt = &retryAt
		e.RetryCount++
	})
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.update(ctx, id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errMsg
		e.RetryCount++
	})
}

func (r *OutboxRepository) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.outbox[:0]
	var deleted int64
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.s.outbox = kept
	return deleted, nil
}

var (
	_ repository.BillingRepository     = (*BillingRepository)(nil)
	_ repository.AppointmentRepository = (*AppointmentRepository)(nil)
	_ repository.UserRepository        = (*UserRepository)(nil)
	_ repository.OutboxRepository      = (*OutboxRepository)(nil)
)
