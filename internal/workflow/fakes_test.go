package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pawnmarket-contract-engine/internal/accrual"
	"github.com/pawnmarket-contract-engine/internal/domain/action"
	"github.com/pawnmarket-contract-engine/internal/domain/audit"
	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/pawnmarket-contract-engine/internal/domain/notification"
	"github.com/pawnmarket-contract-engine/internal/domain/outbox"
	"github.com/pawnmarket-contract-engine/internal/domain/verification"
)

// memStore is an in-memory record store with the same conditional-write
// semantics as the PostgreSQL repositories. ExecuteTx restores a snapshot
// when the unit of work fails.
type memStore struct {
	mu        sync.Mutex
	contracts map[uuid.UUID]contract.Contract
	requests  map[uuid.UUID]action.Request
	outbox    []outbox.Message
	nextID    int64

	// beforeConditional runs before each conditional request write
	beforeConditional func(r *action.Request)
}

func newMemStore() *memStore {
	return &memStore{
		contracts: map[uuid.UUID]contract.Contract{},
		requests:  map[uuid.UUID]action.Request{},
	}
}

func (m *memStore) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	m.mu.Lock()
	contracts := make(map[uuid.UUID]contract.Contract, len(m.contracts))
	for k, v := range m.contracts {
		contracts[k] = v
	}
	requests := make(map[uuid.UUID]action.Request, len(m.requests))
	for k, v := range m.requests {
		requests[k] = v
	}
	outboxLen, nextID := len(m.outbox), m.nextID
	m.mu.Unlock()

	if err := fn(nil); err != nil {
		m.mu.Lock()
		m.contracts, m.requests = contracts, requests
		m.outbox, m.nextID = m.outbox[:outboxLen], nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) contract(id uuid.UUID) contract.Contract {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contracts[id]
}

func (m *memStore) request(id uuid.UUID) action.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id]
}

func (m *memStore) messages(kind outbox.Kind) []outbox.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []outbox.Message
	for _, msg := range m.outbox {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

type memContracts struct{ s *memStore }

func (r memContracts) Create(_ context.Context, c *contract.Contract) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.contracts[c.ID] = *c
	return nil
}

func (r memContracts) GetByID(_ context.Context, id uuid.UUID) (*contract.Contract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contracts[id]
	if !ok {
		return nil, contract.ErrContractNotFound{ID: id}
	}
	return &c, nil
}

func (r memContracts) LockForUpdate(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	return r.GetByID(ctx, id)
}

func (r memContracts) Update(_ context.Context, c *contract.Contract) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.contracts[c.ID]
	if !ok || stored.Version != c.Version-1 {
		return contract.ErrConcurrentModification{ID: c.ID}
	}
	r.s.contracts[c.ID] = *c
	return nil
}

func (r memContracts) ListActive(_ context.Context, after uuid.UUID, limit int) ([]*contract.Contract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*contract.Contract
	for _, c := range r.s.contracts {
		if c.Status == contract.StatusActive && c.ID.String() > after.String() {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memContracts) WithTx(pgx.Tx) contract.Repository { return r }

type memRequests struct{ s *memStore }

func (r memRequests) Create(_ context.Context, req *action.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.requests {
		if existing.ContractID == req.ContractID && !existing.IsTerminal() {
			return action.ErrOpenRequestExists
		}
	}
	r.s.requests[req.ID] = *req
	return nil
}

func (r memRequests) GetByID(_ context.Context, id uuid.UUID) (*action.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, action.ErrRequestNotFound{ID: id}
	}
	return &req, nil
}

func (r memRequests) ListByContract(_ context.Context, contractID uuid.UUID, limit, offset int) ([]*action.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*action.Request
	for _, req := range r.s.requests {
		if req.ContractID == contractID {
			req := req
			out = append(out, &req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []*action.Request{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memRequests) CountByContract(_ context.Context, contractID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, req := range r.s.requests {
		if req.ContractID == contractID {
			n++
		}
	}
	return n, nil
}

func (r memRequests) GetOpenByContract(_ context.Context, contractID uuid.UUID) (*action.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, req := range r.s.requests {
		if req.ContractID == contractID && !req.IsTerminal() {
			return &req, nil
		}
	}
	return nil, nil
}

func (r memRequests) UpdateConditional(_ context.Context, req *action.Request, from []action.Status) error {
	if hook := r.s.beforeConditional; hook != nil {
		hook(req)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.requests[req.ID]
	if !ok || stored.Version != req.Version-1 || stored.LedgerAppliedAt != nil {
		return action.ErrConcurrentModification{ID: req.ID}
	}
	allowed := false
	for _, s := range from {
		if stored.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return action.ErrConcurrentModification{ID: req.ID}
	}
	r.s.requests[req.ID] = *req
	return nil
}

func (r memRequests) WithTx(pgx.Tx) action.Repository { return r }

type memOutbox struct{ s *memStore }

func (r memOutbox) Create(_ context.Context, msg *outbox.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextID++
	msg.ID = r.s.nextID
	r.s.outbox = append(r.s.outbox, *msg)
	return nil
}

func (r memOutbox) ListPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*outbox.Message
	for _, msg := range r.s.outbox {
		if msg.Status == outbox.StatusPending && len(out) < limit {
			msg := msg
			out = append(out, &msg)
		}
	}
	return out, nil
}

func (r memOutbox) find(id int64) (*outbox.Message, error) {
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			return &r.s.outbox[i], nil
		}
	}
	return nil, outbox.ErrMessageNotFound{ID: id}
}

func (r memOutbox) MarkProcessed(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, err := r.find(id)
	if err != nil {
		return err
	}
	msg.Status = outbox.StatusProcessed
	return nil
}

func (r memOutbox) MarkFailed(_ context.Context, id int64, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, err := r.find(id)
	if err != nil {
		return err
	}
	msg.Status = outbox.StatusFailedToPublish
	msg.LastError = &reason
	return nil
}

func (r memOutbox) RecordFailure(_ context.Context, id int64, reason string, maxAttempts int) (outbox.Status, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, err := r.find(id)
	if err != nil {
		return "", err
	}
	return msg.RecordFailure(reason, maxAttempts, time.Now()), nil
}

func (r memOutbox) WithTx(pgx.Tx) outbox.Repository { return r }

type memVerifications struct {
	mu      sync.Mutex
	records []*verification.Record
	err     error
}

func (r *memVerifications) Insert(_ context.Context, rec *verification.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *memVerifications) ListByRequest(_ context.Context, requestID uuid.UUID) ([]*verification.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*verification.Record
	for _, rec := range r.records {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memAudits struct {
	entries []*audit.Entry
}

func (r *memAudits) Append(_ context.Context, e *audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *memAudits) ListByRequest(_ context.Context, requestID uuid.UUID, limit, offset int) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for _, e := range r.entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return []*audit.Entry{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memAudits) CountByRequest(_ context.Context, requestID uuid.UUID) (int64, error) {
	var n int64
	for _, e := range r.entries {
		if e.RequestID == requestID {
			n++
		}
	}
	return n, nil
}

// scriptedVerifier replays canned results in order.
type scriptedVerifier struct {
	mu      sync.Mutex
	results []verification.Result
	errs    []error
	calls   []string
}

func (v *scriptedVerifier) push(c verification.Classification, detected string) {
	res := verification.Result{Classification: c, Confidence: 0.9}
	if detected != "" {
		res.DetectedAmount = decimal.NewNullDecimal(decimal.RequireFromString(detected))
	}
	v.results = append(v.results, res)
	v.errs = append(v.errs, nil)
}

func (v *scriptedVerifier) fail(err error) {
	v.results = append(v.results, verification.Result{})
	v.errs = append(v.errs, err)
}

func (v *scriptedVerifier) Verify(_ context.Context, imageURL string, _ decimal.Decimal) (verification.Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, imageURL)
	if len(v.results) == 0 {
		return verification.Result{}, errors.New("no scripted result")
	}
	res, err := v.results[0], v.errs[0]
	v.results, v.errs = v.results[1:], v.errs[1:]
	return res, err
}

type harness struct {
	store         *memStore
	verifications *memVerifications
	audits        *memAudits
	verifier      *scriptedVerifier
	svc           *Service
	contract      *contract.Contract
	now           time.Time
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newHarness() *harness {
	store := newMemStore()
	h := &harness{
		store:         store,
		verifications: &memVerifications{},
		audits:        &memAudits{},
		verifier:      &scriptedVerifier{},
		now:           time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(Dependencies{
		DB:            store,
		Contracts:     memContracts{store},
		Requests:      memRequests{store},
		Outbox:        memOutbox{store},
		Verifications: h.verifications,
		Audits:        h.audits,
		Verifier:      h.verifier,
		Calendar:      accrual.NewCalendar(time.UTC, func() time.Time { return h.now }),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	h.contract = &contract.Contract{
		ID:                      uuid.New(),
		PawnerID:                uuid.New(),
		InvestorID:              uuid.New(),
		DropPointID:             uuid.New(),
		Status:                  contract.StatusActive,
		ItemEstimatedValue:      decimal.NewNullDecimal(dec("20000")),
		LoanPrincipalAmount:     dec("10000"),
		OriginalPrincipalAmount: decimal.NewNullDecimal(dec("10000")),
		CurrentPrincipalAmount:  dec("10000"),
		InterestRate:            dec("0.03"),
		PlatformFeeRate:         dec("0.01"),
		InterestAmount:          dec("300"),
		ContractStartDate:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ContractEndDate:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		ContractDurationDays:    30,
		Version:                 1,
	}
	_ = memContracts{store}.Create(context.Background(), h.contract)
	return h
}

func (h *harness) create(typ action.Type, amount string) *action.Request {
	amt := decimal.Zero
	if amount != "" {
		amt = dec(amount)
	}
	req, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		ContractID: h.contract.ID,
		PawnerID:   h.contract.PawnerID,
		ActionType: typ,
		Amount:     amt,
	})
	if err != nil {
		panic(err)
	}
	return req
}

func noticesOf(store *memStore, typ notification.Type) []notification.Message {
	var out []notification.Message
	for _, msg := range store.messages(outbox.KindNotification) {
		var n notification.Message
		if err := msg.Decode(&n); err == nil && n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}
