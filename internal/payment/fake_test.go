package payment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"brokerage_system/internal/db/dbtest"
	"brokerage_system/internal/domain"
	"brokerage_system/internal/events/eventstest"
	"brokerage_system/internal/ledger"
	"brokerage_system/internal/payment"
	"brokerage_system/internal/processor"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

type decimalT = decimal.Decimal

// fakeProcessor answers initiations with a scripted result and remembers
// what it issued so Get* calls can report it.
type fakeProcessor struct {
	mu        sync.Mutex
	seq       int
	next      func(ref string, amount decimal.Decimal, currency string) (*processor.Result, error)
	getErr    error
	issued    map[string]*processor.Result
	charges   int
	transfers int
}

func newFake() *fakeProcessor {
	return &fakeProcessor{issued: map[string]*processor.Result{}}
}

// answer makes every initiation report status with the requested amount
func (f *fakeProcessor) answer(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = func(ref string, amount decimal.Decimal, currency string) (*processor.Result, error) {
		return &processor.Result{Reference: ref, Status: status, Amount: amount, Currency: currency}, nil
	}
}

func (f *fakeProcessor) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = func(string, decimal.Decimal, string) (*processor.Result, error) { return nil, err }
}

// settle changes what Get* reports for an issued payment
func (f *fakeProcessor) settle(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued[id].Status = status
}

func (f *fakeProcessor) initiate(prefix, ref string, amount decimal.Decimal, currency string) (*processor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.next
	if next == nil {
		next = func(ref string, amount decimal.Decimal, currency string) (*processor.Result, error) {
			return &processor.Result{Reference: ref, Status: processor.StatusPending, Amount: amount, Currency: currency}, nil
		}
	}
	res, err := next(ref, amount, currency)
	if err != nil || res == nil {
		return res, err
	}
	if res.ID == "" {
		f.seq++
		res.ID = fmt.Sprintf("%s_%d", prefix, f.seq)
	}
	cp := *res
	f.issued[res.ID] = &cp
	return res, nil
}

func (f *fakeProcessor) get(id string) (*processor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	res, ok := f.issued[id]
	if !ok {
		return nil, &processor.RejectedError{StatusCode: 404, Message: "not found"}
	}
	cp := *res
	return &cp, nil
}

func (f *fakeProcessor) InitiateCharge(_ context.Context, req processor.ChargeRequest) (*processor.Result, error) {
	f.mu.Lock()
	f.charges++
	f.mu.Unlock()
	return f.initiate("ch", req.Reference, req.Amount, req.Currency)
}

func (f *fakeProcessor) GetCharge(_ context.Context, id string) (*processor.Result, error) {
	return f.get(id)
}

func (f *fakeProcessor) InitiateTransfer(_ context.Context, req processor.TransferRequest) (*processor.Result, error) {
	f.mu.Lock()
	f.transfers++
	f.mu.Unlock()
	return f.initiate("tr", req.Reference, req.Amount, req.Currency)
}

func (f *fakeProcessor) GetTransfer(_ context.Context, id string) (*processor.Result, error) {
	return f.get(id)
}

type env struct {
	db   *gorm.DB
	proc *fakeProcessor
	gw   *payment.Gateway
	rec  *eventstest.Recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb := dbtest.Open(t)
	proc := newFake()
	rec := &eventstest.Recorder{}
	return &env{
		db:   gdb,
		proc: proc,
		rec:  rec,
		gw: payment.NewGateway(payment.Config{
			DB:            gdb,
			Processor:     proc,
			WebhookSecret: webhookSecret,
			Events:        rec,
		}),
	}
}

func (e *env) user(t testing.TB, name string) domain.Actor {
	t.Helper()
	u := &domain.User{Username: name, Email: name + "@example.com", Password: "x", Role: domain.RoleCustomer}
	require.NoError(t, e.db.Create(u).Error)
	return domain.Actor{UserID: u.ID, Role: u.Role}
}

func (e *env) wallet(t testing.TB, a domain.Actor) *domain.Wallet {
	t.Helper()
	w, err := ledger.NewStore(e.db).GetWallet(context.Background(), a.UserID)
	require.NoError(t, err)
	return w
}

func (e *env) txn(t testing.TB, reference string) *domain.WalletTransaction {
	t.Helper()
	txn, err := ledger.NewStore(e.db).GetByReference(context.Background(), reference)
	require.NoError(t, err)
	return txn
}

// webhook builds a signed delivery
func webhook(t require.TestingT, event string, data processor.Result) ([]byte, string) {
	body, err := json.Marshal(processor.WebhookEvent{Event: event, Data: data})
	require.NoError(t, err)
	return body, processor.Sign(body, webhookSecret)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
