// Package subscription implements plan-gated entitlements backed by a
// hosted billing provider.
//
// The package is built around four pieces. Catalog holds the ordered plan
// ladder loaded from a PlansSource and guarantees a single free tier.
// Gate answers feature-access questions from a user's persisted Record
// without any network calls. Provider abstracts the payment processor
// (StripeProvider is the production implementation) behind checkout,
// retrieval, webhook verification and cancellation operations. Service
// orchestrates the two flows that mutate state: starting a checkout and
// reconciling its outcome into the UserStore.
//
// Reconciliation is idempotent. Both the client-driven
// finalize call and the asynchronous webhook derive the same canonical
// Record from provider session data, so the two paths can race or repeat
// without diverging. The persisted record mirrors provider state and the
// provider stays the source of truth; a failed mirror write is logged and
// the derived record is still returned to the caller.
//
// # Usage
//
//	catalog, err := subscription.NewCatalog(ctx, subscription.NewInMemSource(subscription.DefaultPlans()...))
//	if err != nil {
//		return err
//	}
//
//	provider, err := subscription.NewStripeProvider(stripeCfg)
//	if err != nil {
//		return err
//	}
//
//	svc := subscription.NewService(catalog, provider, store,
//		subscription.WithLogger(log),
//	)
//	gate := subscription.NewGate(catalog)
//
//	session, err := svc.StartCheckout(ctx, subscription.StartCheckoutParams{
//		UserID:     userID,
//		PlanID:     "pro",
//		SuccessURL: successURL,
//		CancelURL:  cancelURL,
//	})
//	if err != nil {
//		return err
//	}
//	// redirect the user to session.URL
//
// After the hosted checkout completes, the client posts the session ID
// back and the service reconciles it:
//
//	rec, detail, err := svc.FinalizeCheckout(ctx, sessionID, userID)
//
// Access checks never touch the provider:
//
//	if gate.CanAccess(user.Subscription, subscription.FeatureFileUpload) {
//		// serve the premium feature
//	}
package subscription
