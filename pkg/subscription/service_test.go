package subscription_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/subscription"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, req subscription.CheckoutRequest) (*subscription.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.CheckoutSession), args.Error(1)
}

func (m *mockProvider) RetrieveCheckoutSession(ctx context.Context, id string) (*subscription.SessionDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.SessionDetail), args.Error(1)
}

func (m *mockProvider) VerifyEvent(payload []byte, signature string) (*subscription.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Event), args.Error(1)
}

func (m *mockProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, uid string) (*subscription.UserRecord, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.UserRecord), args.Error(1)
}

func (m *mockStore) SaveSubscription(ctx context.Context, uid string, rec subscription.Record) error {
	args := m.Called(ctx, uid, rec)
	return args.Error(0)
}

func (m *mockStore) SaveProfile(ctx context.Context, user subscription.UserRecord) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func paidSession(id string, md map[string]string, lineItem string, periodEnd any) *subscription.SessionDetail {
	return &subscription.SessionDetail{
		ID:                  id,
		PaymentStatus:       subscription.PaymentStatusPaid,
		Metadata:            md,
		LineItemDescription: lineItem,
		CustomerEmail:       "user@example.com",
		AmountTotal:         1000,
		Currency:            "usd",
		Subscription: &subscription.SubscriptionDetail{
			ID:               "sub_1",
			Status:           subscription.SubscriptionStatusActive,
			CurrentPeriodEnd: periodEnd,
		},
	}
}

func TestServiceStartCheckout(t *testing.T) {
	t.Parallel()

	t.Run("creates session for paid plan", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req subscription.CheckoutRequest) bool {
			return req.UserID == "u1" &&
				req.PlanID == "pro" &&
				req.PlanType == "pro" &&
				req.Amount == 1000 &&
				req.Interval == subscription.BillingIntervalMonthly
		})).Return(&subscription.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil)

		sess, err := svc.StartCheckout(context.Background(), subscription.StartCheckoutParams{
			UserID:     "u1",
			PlanID:     "pro",
			SuccessURL: "https://app/success",
			CancelURL:  "https://app/cancel",
		})
		require.NoError(t, err)
		assert.Equal(t, "cs_1", sess.ID)
		provider.AssertExpectations(t)
	})

	t.Run("caller price ID overrides the plan's price ref", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		svc := subscription.NewService(testCatalog(t), provider, new(mockStore))

		provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req subscription.CheckoutRequest) bool {
			return req.PriceID == "price_override"
		})).Return(&subscription.CheckoutSession{ID: "cs_2", URL: "https://checkout.example/cs_2"}, nil)

		_, err := svc.StartCheckout(context.Background(), subscription.StartCheckoutParams{
			UserID:  "u1",
			PlanID:  "pro",
			PriceID: "price_override",
		})
		require.NoError(t, err)
		provider.AssertExpectations(t)
	})

	t.Run("rejects unknown plan", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		svc := subscription.NewService(testCatalog(t), provider, new(mockStore))

		_, err := svc.StartCheckout(context.Background(), subscription.StartCheckoutParams{UserID: "u1", PlanID: "enterprise"})
		assert.ErrorIs(t, err, subscription.ErrInvalidPlan)
		provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})

	t.Run("rejects free plan", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		svc := subscription.NewService(testCatalog(t), provider, new(mockStore))

		_, err := svc.StartCheckout(context.Background(), subscription.StartCheckoutParams{UserID: "u1", PlanID: "free"})
		assert.ErrorIs(t, err, subscription.ErrInvalidPlan)
		provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})

	t.Run("rejects empty user", func(t *testing.T) {
		t.Parallel()

		svc := subscription.NewService(testCatalog(t), new(mockProvider), new(mockStore))

		_, err := svc.StartCheckout(context.Background(), subscription.StartCheckoutParams{PlanID: "pro"})
		assert.Error(t, err)
	})
}

func TestServiceFinalizeCheckout(t *testing.T) {
	t.Parallel()

	t.Run("derives and persists active record", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").
			Return(paidSession("cs_1", map[string]string{"planType": "pro"}, "", int64(1700000000)), nil)
		store.On("SaveSubscription", mock.Anything, "u1", mock.MatchedBy(func(rec subscription.Record) bool {
			return rec.IsActive &&
				rec.PlanID == "pro" &&
				rec.SubscriptionID == "sub_1" &&
				rec.CurrentPeriodEnd != nil && *rec.CurrentPeriodEnd == 1700000000
		})).Return(nil)

		rec, detail, err := svc.FinalizeCheckout(context.Background(), "cs_1", "u1")
		require.NoError(t, err)
		assert.True(t, rec.IsActive)
		assert.Equal(t, "pro", rec.PlanID)
		assert.Equal(t, "user@example.com", detail.CustomerEmail)
		store.AssertExpectations(t)
	})

	t.Run("unpaid session performs no write", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("RetrieveCheckoutSession", mock.Anything, "cs_2").
			Return(&subscription.SessionDetail{ID: "cs_2", PaymentStatus: "unpaid"}, nil)

		_, _, err := svc.FinalizeCheckout(context.Background(), "cs_2", "u1")
		assert.ErrorIs(t, err, subscription.ErrPaymentIncomplete)
		store.AssertNotCalled(t, "SaveSubscription", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("paid session without subscription is incomplete", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("RetrieveCheckoutSession", mock.Anything, "cs_3").
			Return(&subscription.SessionDetail{ID: "cs_3", PaymentStatus: subscription.PaymentStatusPaid}, nil)

		_, _, err := svc.FinalizeCheckout(context.Background(), "cs_3", "u1")
		assert.ErrorIs(t, err, subscription.ErrPaymentIncomplete)
		store.AssertNotCalled(t, "SaveSubscription", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure still returns derived record", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("RetrieveCheckoutSession", mock.Anything, "cs_4").
			Return(paidSession("cs_4", map[string]string{"planType": "pro"}, "", int64(1700000000)), nil)
		store.On("SaveSubscription", mock.Anything, "u1", mock.Anything).
			Return(errors.New("write concern timeout"))

		rec, _, err := svc.FinalizeCheckout(context.Background(), "cs_4", "u1")
		require.NoError(t, err)
		assert.True(t, rec.IsActive)
		assert.Equal(t, "pro", rec.PlanID)
	})

	t.Run("repeated finalize converges", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("RetrieveCheckoutSession", mock.Anything, "cs_5").
			Return(paidSession("cs_5", map[string]string{"planType": "pro"}, "", int64(1700000000)), nil).Twice()
		store.On("SaveSubscription", mock.Anything, "u1", mock.Anything).Return(nil).Twice()

		first, _, err := svc.FinalizeCheckout(context.Background(), "cs_5", "u1")
		require.NoError(t, err)
		second, _, err := svc.FinalizeCheckout(context.Background(), "cs_5", "u1")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestServicePlanDerivation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		metadata  map[string]string
		lineItem  string
		periodEnd any
		wantPlan  string
		wantEnd   *int64
	}{
		{
			name:      "planType tag wins over contradicting line item",
			metadata:  map[string]string{"planType": "pro"},
			lineItem:  "Free Plan",
			periodEnd: int64(1700000000),
			wantPlan:  "pro",
			wantEnd:   ptr(int64(1700000000)),
		},
		{
			name:      "planName metadata matched case-insensitively",
			metadata:  map[string]string{"planName": "PRO Plan"},
			periodEnd: int64(1700000000),
			wantPlan:  "pro",
			wantEnd:   ptr(int64(1700000000)),
		},
		{
			name:      "line item description fallback",
			lineItem:  "Pro Plan subscription",
			periodEnd: float64(1700000000),
			wantPlan:  "pro",
			wantEnd:   ptr(int64(1700000000)),
		},
		{
			name:      "no signal falls back to free",
			periodEnd: int64(1700000000),
			wantPlan:  "free",
			wantEnd:   ptr(int64(1700000000)),
		},
		{
			name:      "numeric string period end",
			metadata:  map[string]string{"planType": "pro"},
			periodEnd: "1700000000",
			wantPlan:  "pro",
			wantEnd:   ptr(int64(1700000000)),
		},
		{
			name:      "unparseable period end stored as nil",
			metadata:  map[string]string{"planType": "pro"},
			periodEnd: "next tuesday",
			wantPlan:  "pro",
			wantEnd:   nil,
		},
		{
			name:      "zero period end stored as nil",
			metadata:  map[string]string{"planType": "pro"},
			periodEnd: int64(0),
			wantPlan:  "pro",
			wantEnd:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider := new(mockProvider)
			store := new(mockStore)
			svc := subscription.NewService(testCatalog(t), provider, store)

			provider.On("RetrieveCheckoutSession", mock.Anything, "cs_x").
				Return(paidSession("cs_x", tt.metadata, tt.lineItem, tt.periodEnd), nil)
			store.On("SaveSubscription", mock.Anything, "u1", mock.Anything).Return(nil)

			rec, _, err := svc.FinalizeCheckout(context.Background(), "cs_x", "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlan, rec.PlanID)
			assert.Equal(t, tt.wantEnd, rec.CurrentPeriodEnd)
		})
	}
}

func TestServiceCancelSubscription(t *testing.T) {
	t.Parallel()

	t.Run("schedules cancellation with the provider", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		store.On("Get", mock.Anything, "u1").Return(&subscription.UserRecord{
			UID:          "u1",
			Subscription: subscription.Record{IsActive: true, PlanID: "pro", SubscriptionID: "sub_1"},
		}, nil)
		provider.On("CancelAtPeriodEnd", mock.Anything, "sub_1").Return(nil)

		require.NoError(t, svc.CancelSubscription(context.Background(), "u1"))
		provider.AssertExpectations(t)
	})

	t.Run("user without provider subscription", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		store.On("Get", mock.Anything, "u1").Return(&subscription.UserRecord{
			UID:          "u1",
			Subscription: subscription.FreeRecord("free"),
		}, nil)

		err := svc.CancelSubscription(context.Background(), "u1")
		assert.ErrorIs(t, err, subscription.ErrInvalidPlan)
		provider.AssertNotCalled(t, "CancelAtPeriodEnd", mock.Anything, mock.Anything)
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), new(mockProvider), store)

		store.On("Get", mock.Anything, "nobody").Return(nil, subscription.ErrUserNotFound)

		assert.ErrorIs(t, svc.CancelSubscription(context.Background(), "nobody"), subscription.ErrUserNotFound)
	})
}

func TestServiceHandleWebhook(t *testing.T) {
	t.Parallel()

	payload := []byte(`{}`)
	sig := "t=1,v1=abc"

	t.Run("invalid signature passes through", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		svc := subscription.NewService(testCatalog(t), provider, new(mockStore))

		provider.On("VerifyEvent", payload, sig).Return(nil, subscription.ErrSignatureInvalid)

		err := svc.HandleWebhook(context.Background(), payload, sig)
		assert.ErrorIs(t, err, subscription.ErrSignatureInvalid)
	})

	t.Run("checkout completion reconciles the session", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("VerifyEvent", payload, sig).Return(&subscription.Event{
			Type:      subscription.EventCheckoutCompleted,
			SessionID: "cs_1",
			UserID:    "u1",
		}, nil)
		provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").
			Return(paidSession("cs_1", map[string]string{"planType": "pro"}, "", int64(1700000000)), nil)
		store.On("SaveSubscription", mock.Anything, "u1", mock.MatchedBy(func(rec subscription.Record) bool {
			return rec.IsActive && rec.PlanID == "pro"
		})).Return(nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
		store.AssertExpectations(t)
	})

	t.Run("checkout completion with pending payment is swallowed", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("VerifyEvent", payload, sig).Return(&subscription.Event{
			Type:      subscription.EventCheckoutCompleted,
			SessionID: "cs_1",
			UserID:    "u1",
		}, nil)
		provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").
			Return(&subscription.SessionDetail{ID: "cs_1", PaymentStatus: "unpaid"}, nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
		store.AssertNotCalled(t, "SaveSubscription", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("subscription deleted marks record inactive", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("VerifyEvent", payload, sig).Return(&subscription.Event{
			Type:           subscription.EventSubscriptionDeleted,
			SubscriptionID: "sub_1",
			UserID:         "u1",
		}, nil)
		store.On("Get", mock.Anything, "u1").Return(&subscription.UserRecord{
			UID:          "u1",
			Subscription: subscription.Record{IsActive: true, PlanID: "pro", SubscriptionID: "sub_1"},
		}, nil)
		store.On("SaveSubscription", mock.Anything, "u1", mock.MatchedBy(func(rec subscription.Record) bool {
			return !rec.IsActive && rec.PlanID == "pro" && rec.SubscriptionID == "sub_1"
		})).Return(nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
		store.AssertExpectations(t)
	})

	t.Run("renewal extends the period end", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("VerifyEvent", payload, sig).Return(&subscription.Event{
			Type:             subscription.EventSubscriptionUpdated,
			SubscriptionID:   "sub_1",
			Status:           subscription.SubscriptionStatusActive,
			UserID:           "u1",
			CurrentPeriodEnd: int64(1702600000),
		}, nil)
		store.On("Get", mock.Anything, "u1").Return(&subscription.UserRecord{
			UID:          "u1",
			Subscription: subscription.Record{IsActive: true, PlanID: "pro", SubscriptionID: "sub_1", CurrentPeriodEnd: ptr(int64(1700000000))},
		}, nil)
		store.On("SaveSubscription", mock.Anything, "u1", mock.MatchedBy(func(rec subscription.Record) bool {
			return rec.IsActive && rec.CurrentPeriodEnd != nil && *rec.CurrentPeriodEnd == 1702600000
		})).Return(nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
		store.AssertExpectations(t)
	})

	t.Run("payment failure for unknown user creates inactive free record", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("VerifyEvent", payload, sig).Return(&subscription.Event{
			Type:           subscription.EventInvoicePaymentFailed,
			SubscriptionID: "sub_9",
			UserID:         "u9",
		}, nil)
		store.On("Get", mock.Anything, "u9").Return(nil, subscription.ErrUserNotFound)
		store.On("SaveSubscription", mock.Anything, "u9", mock.MatchedBy(func(rec subscription.Record) bool {
			return !rec.IsActive && rec.PlanID == "free" && rec.SubscriptionID == "sub_9"
		})).Return(nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
		store.AssertExpectations(t)
	})

	t.Run("unhandled event type is a no-op", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		store := new(mockStore)
		svc := subscription.NewService(testCatalog(t), provider, store)

		provider.On("VerifyEvent", payload, sig).Return(&subscription.Event{Type: "customer.created"}, nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
		store.AssertNotCalled(t, "SaveSubscription", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestNewServicePanics(t *testing.T) {
	t.Parallel()

	catalog := testCatalog(t)

	assert.Panics(t, func() { subscription.NewService(nil, new(mockProvider), new(mockStore)) })
	assert.Panics(t, func() { subscription.NewService(catalog, nil, new(mockStore)) })
	assert.Panics(t, func() { subscription.NewService(catalog, new(mockProvider), nil) })
}

func ptr[T any](v T) *T { return &v }
