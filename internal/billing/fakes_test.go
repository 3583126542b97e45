package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"petcare/internal/types"
)

var errStore = errors.New("store unavailable")

// memStore is an in-memory implementation of every billing store. It keeps
// the same keys as the Postgres tables: subscribers by email, user
// subscriptions by user.
type memStore struct {
	mu sync.Mutex

	packages     map[string]types.Package
	prices       map[string]string
	subscribers  map[string]types.Subscriber
	userSubs     map[string]types.UserSubscription
	extraActive  map[string][]string
	logs         []types.PaymentLog
	verification map[string]types.VerificationStatus

	calls  []string
	writes int

	failUpsert       error
	failFindByUser   error
	failReplace      error
	failInsert       error
	failSubUpsert    error
	failFindSub      error
	failAppend       error
	failVerification error
	failPackage      error
	failActiveList   error
}

func newMemStore() *memStore {
	return &memStore{
		packages: map[string]types.Package{
			"p-pro":   {ID: "p-pro", Name: "Zawodowiec", Price: 9900},
			"p-basic": {ID: "p-basic", Name: "Podstawowy", Price: 2900},
			"p-free":  {ID: "p-free", Name: "Darmowy", Price: 0},
		},
		prices: map[string]string{
			"price_pro":   "p-pro",
			"price_basic": "p-basic",
		},
		subscribers:  map[string]types.Subscriber{},
		userSubs:     map[string]types.UserSubscription{},
		extraActive:  map[string][]string{},
		verification: map[string]types.VerificationStatus{},
	}
}

func (m *memStore) record(call string, write bool) {
	m.calls = append(m.calls, call)
	if write {
		m.writes++
	}
}

func (m *memStore) UpsertByEmail(_ context.Context, s *types.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpsertByEmail", true)
	if m.failSubUpsert != nil {
		return m.failSubUpsert
	}
	m.subscribers[s.Email] = *s
	return nil
}

func (m *memStore) FindBySubscriptionID(_ context.Context, id string) (*types.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindBySubscriptionID", false)
	if m.failFindSub != nil {
		return nil, m.failFindSub
	}
	for _, s := range m.subscribers {
		if s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateByEmail(_ context.Context, email string, u types.SubscriberUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpdateByEmail", true)
	s, ok := m.subscribers[email]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundSubscriber, "no subscriber", nil)
	}
	s.Subscribed = u.Subscribed
	s.SubscriptionEnd = u.SubscriptionEnd
	if u.Tier != nil {
		s.SubscriptionTier = u.Tier
	}
	m.subscribers[email] = s
	return nil
}

func (m *memStore) Upsert(_ context.Context, sub *types.UserSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Upsert", true)
	if m.failUpsert != nil {
		return m.failUpsert
	}
	m.userSubs[sub.UserID] = *sub
	return nil
}

func (m *memStore) FindByUser(_ context.Context, userID string) (*types.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindByUser", false)
	if m.failFindByUser != nil {
		return nil, m.failFindByUser
	}
	if us, ok := m.userSubs[userID]; ok {
		return &us, nil
	}
	return nil, nil
}

func (m *memStore) Replace(_ context.Context, sub *types.UserSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Replace", true)
	if m.failReplace != nil {
		return m.failReplace
	}
	m.userSubs[sub.UserID] = *sub
	return nil
}

func (m *memStore) Insert(_ context.Context, sub *types.UserSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Insert", true)
	if m.failInsert != nil {
		return m.failInsert
	}
	if _, exists := m.userSubs[sub.UserID]; exists {
		return errors.New("duplicate key value violates unique constraint")
	}
	m.userSubs[sub.UserID] = *sub
	return nil
}

func (m *memStore) ApplyLifecycle(_ context.Context, userID string, u types.UserSubscriptionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ApplyLifecycle", true)
	us, ok := m.userSubs[userID]
	if !ok {
		return nil
	}
	us.Status = u.Status
	us.EndDate = u.EndDate
	if u.PackageID != nil {
		us.PackageID = *u.PackageID
	}
	m.userSubs[userID] = us
	return nil
}

func (m *memStore) ListActivePackageNames(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListActivePackageNames", false)
	if m.failActiveList != nil {
		return nil, m.failActiveList
	}
	var names []string
	if us, ok := m.userSubs[userID]; ok && us.Status == types.SubscriptionActive {
		names = append(names, m.packages[us.PackageID].Name)
	}
	return append(names, m.extraActive[userID]...), nil
}

func (m *memStore) Append(_ context.Context, entry *types.PaymentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Append", true)
	if m.failAppend != nil {
		return m.failAppend
	}
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memStore) GetPackage(_ context.Context, id string) (*types.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetPackage", false)
	if m.failPackage != nil {
		return nil, m.failPackage
	}
	if p, ok := m.packages[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *memStore) PackageIDForPrice(_ context.Context, priceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PackageIDForPrice", false)
	return m.prices[priceID], nil
}

func (m *memStore) SetVerificationStatus(_ context.Context, userID string, status types.VerificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetVerificationStatus", true)
	if m.failVerification != nil {
		return m.failVerification
	}
	m.verification[userID] = status
	return nil
}

type fakeProvider struct {
	subs  map[string]types.ProviderSubscription
	err   error
	calls int
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*types.ProviderSubscription, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.subs[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe, "no such subscription", nil)
	}
	return &s, nil
}

type fakeNotifier struct {
	msgs []types.VerificationChangedMessage
	err  error
}

func (f *fakeNotifier) PublishVerificationChanged(_ context.Context, msg types.VerificationChangedMessage) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

type fakeMetrics struct {
	events       []string
	linkage      []string
	writeFails   []string
	secondary    []string
	verification []types.VerificationStatus
}

func (f *fakeMetrics) RecordWebhookEvent(_ context.Context, eventType, outcome string) {
	f.events = append(f.events, eventType+":"+outcome)
}

func (f *fakeMetrics) RecordMissingLinkage(_ context.Context, eventType, reason string) {
	f.linkage = append(f.linkage, eventType+":"+reason)
}

func (f *fakeMetrics) RecordWriteFailure(_ context.Context, entity string) {
	f.writeFails = append(f.writeFails, entity)
}

func (f *fakeMetrics) RecordSecondaryFailure(_ context.Context, effect string) {
	f.secondary = append(f.secondary, effect)
}

func (f *fakeMetrics) RecordVerificationChanged(_ context.Context, status types.VerificationStatus) {
	f.verification = append(f.verification, status)
}

type fakeAlerter struct {
	messages []string
	tags     []map[string]string
}

func (f *fakeAlerter) Alert(_ context.Context, message string, tags map[string]string) {
	f.messages = append(f.messages, message)
	f.tags = append(f.tags, tags)
}

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type harness struct {
	store    *memStore
	provider *fakeProvider
	notifier *fakeNotifier
	metrics  *fakeMetrics
	alerter  *fakeAlerter
	rec      *Reconciler
}

func newHarness() *harness {
	h := &harness{
		store:    newMemStore(),
		provider: &fakeProvider{subs: map[string]types.ProviderSubscription{}},
		notifier: &fakeNotifier{},
		metrics:  &fakeMetrics{},
		alerter:  &fakeAlerter{},
	}
	h.rec = NewReconciler(Deps{
		Subscribers:   h.store,
		Subscriptions: h.store,
		Payments:      h.store,
		Packages:      h.store,
		Verification:  h.store,
		Provider:      h.provider,
		Notifier:      h.notifier,
		Metrics:       h.metrics,
		Alerter:       h.alerter,
		Policy:        NewTierPolicy([]string{"Zawodowiec"}, "Darmowy"),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:           func() time.Time { return fixedNow },
	})
	return h
}
