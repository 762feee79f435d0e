package payment_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/core/datamodel/notification"
	"github.com/frahmantamala/client-portal/internal/core/datamodel/payment"
	gatewaymodel "github.com/frahmantamala/client-portal/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/client-portal/internal/core/events"
	paymentPkg "github.com/frahmantamala/client-portal/internal/payment"
	"github.com/frahmantamala/client-portal/pkg/logger"
)

const webhookSecret = "whsec_test_0123456789"

func signedHeaders(body []byte) http.Header {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	h := http.Header{}
	h.Set(paymentPkg.TimestampHeader, ts)
	h.Set(paymentPkg.SignatureHeader, paymentPkg.Sign(webhookSecret, body, ts))
	return h
}

func webhookBody(eventType, sessionID string, paymentID int64) []byte {
	return []byte(fmt.Sprintf(
		`{"event_type":%q,"data":{"session_id":%q,"client_reference_id":"%d","metadata":{"payment_id":"%d"}}}`,
		eventType, sessionID, paymentID, paymentID))
}

var _ = Describe("Reconciler", func() {
	var (
		repo       *mockRepository
		notifier   *mockNotifier
		publisher  *mockPublisher
		webhookLog *mockWebhookLog
		reconciler *paymentPkg.Reconciler
		ctx        context.Context
		owner      paymentPkg.Actor
		fixedNow   time.Time
	)

	BeforeEach(func() {
		repo = newMockRepository()
		notifier = &mockNotifier{}
		publisher = &mockPublisher{}
		webhookLog = &mockWebhookLog{}
		fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
		reconciler = paymentPkg.NewReconciler(paymentPkg.ReconcilerDeps{
			Repository: repo,
			Verifier:   paymentPkg.NewHMACVerifier(webhookSecret, 5*time.Minute),
			Notifier:   notifier,
			Publisher:  publisher,
			WebhookLog: webhookLog,
			Now:        func() time.Time { return fixedNow },
		})
		ctx = context.Background()
		owner = paymentPkg.Actor{UserID: 7}
	})

	deliver := func(eventType, sessionID string, paymentID int64) (*paymentPkg.WebhookAck, error) {
		body := webhookBody(eventType, sessionID, paymentID)
		return reconciler.HandleWebhook(ctx, body, signedHeaders(body))
	}

	Describe("success redirect", func() {
		It("completes a pending payment and notifies the owner once", func() {
			p := repo.seed(pendingPayment(7, "sess_A"))

			result, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_A"}, owner)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Outcome).To(Equal(paymentPkg.OutcomeApplied))
			Expect(result.Payment.Status).To(Equal(payment.StatusCompleted))

			stored := repo.stored(p.ID)
			Expect(stored.Status).To(Equal(payment.StatusCompleted))
			Expect(stored.PaidAt).ToNot(BeNil())
			Expect(stored.PaidAt.Equal(fixedNow)).To(BeTrue())

			sent := notifier.all()
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].UserID).To(Equal(int64(7)))
			Expect(sent[0].Title).To(Equal("Payment Received"))
			Expect(sent[0].Message).To(Equal("Your payment of 25.000 OMR has been received. Thank you!"))
			Expect(sent[0].Severity).To(Equal(notification.SeveritySuccess))

			published := publisher.all()
			Expect(published).To(HaveLen(1))
			Expect(published[0].EventType()).To(Equal(events.EventTypePaymentCompleted))
		})

		It("is idempotent when repeated", func() {
			p := repo.seed(pendingPayment(7, "sess_A"))

			_, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_A"}, owner)
			Expect(err).ToNot(HaveOccurred())
			firstPaidAt := *repo.stored(p.ID).PaidAt

			fixedNow = fixedNow.Add(time.Hour)
			result, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_A"}, owner)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Outcome).To(Equal(paymentPkg.OutcomeNoop))
			Expect(result.Payment.Status).To(Equal(payment.StatusCompleted))

			Expect(repo.stored(p.ID).PaidAt.Equal(firstPaidAt)).To(BeTrue())
			Expect(notifier.all()).To(HaveLen(1))
			Expect(publisher.all()).To(HaveLen(1))
		})

		It("falls back to the payment id when no session id is given", func() {
			p := repo.seed(pendingPayment(7, "sess_A"))

			result, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{PaymentID: p.ID}, owner)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Payment.Status).To(Equal(payment.StatusCompleted))
		})

		It("requires a session id or payment id", func() {
			_, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{}, owner)
			Expect(err).To(MatchError(apperrors.ErrMissingSessionID))
		})

		It("returns not found for unknown sessions", func() {
			_, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_nope"}, owner)
			Expect(err).To(MatchError(apperrors.ErrPaymentNotFound))
			Expect(notifier.all()).To(BeEmpty())
		})

		It("forbids other users and leaves the record untouched", func() {
			p := repo.seed(pendingPayment(7, "sess_A"))

			_, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_A"}, paymentPkg.Actor{UserID: 99})
			Expect(err).To(MatchError(apperrors.ErrUnauthorizedAccess))
			Expect(repo.stored(p.ID).Status).To(Equal(payment.StatusPending))
			Expect(notifier.all()).To(BeEmpty())
		})

		It("lets admins reconcile on behalf of the owner", func() {
			repo.seed(pendingPayment(7, "sess_A"))

			result, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_A"}, paymentPkg.Actor{UserID: 1, IsAdmin: true})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Payment.Status).To(Equal(payment.StatusCompleted))
			Expect(notifier.all()[0].UserID).To(Equal(int64(7)))
		})

		It("surfaces store failures as internal errors", func() {
			repo.seed(pendingPayment(7, "sess_A"))
			repo.transitionErr = errStoreDown

			_, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_A"}, owner)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(notifier.all()).To(BeEmpty())
		})

		It("keeps the transition when the notification cannot be stored", func() {
			p := repo.seed(pendingPayment(7, "sess_A"))
			notifier.err = errStoreDown

			result, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_A"}, owner)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Outcome).To(Equal(paymentPkg.OutcomeApplied))
			Expect(repo.stored(p.ID).Status).To(Equal(payment.StatusCompleted))
		})
	})

	Describe("cancel redirect", func() {
		It("fails a pending payment with a cancellation notice", func() {
			p := repo.seed(pendingPayment(7, "sess_C"))

			result, err := reconciler.HandleCancelRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_C"}, owner)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Payment.Status).To(Equal(payment.StatusFailed))
			Expect(repo.stored(p.ID).PaidAt).To(BeNil())

			sent := notifier.all()
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].Title).To(Equal("Payment Cancelled"))
			Expect(sent[0].Severity).To(Equal(notification.SeverityWarning))
			Expect(publisher.all()[0].EventType()).To(Equal(events.EventTypePaymentFailed))
		})

		It("never reopens a failed payment when a late success webhook arrives", func() {
			p := repo.seed(pendingPayment(7, "sess_C"))
			_, err := reconciler.HandleCancelRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_C"}, owner)
			Expect(err).ToNot(HaveOccurred())

			ack, err := deliver("checkout.completed", "sess_C", p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(ack.Status).To(Equal("processed"))
			Expect(ack.PaymentStatus).To(Equal("failed"))

			Expect(repo.stored(p.ID).Status).To(Equal(payment.StatusFailed))
			Expect(notifier.all()).To(HaveLen(1))
			Expect(webhookLog.last().Outcome).To(Equal(gatewaymodel.OutcomeNoop))
		})

		It("does not fail a payment that already completed", func() {
			p := repo.seed(pendingPayment(7, "sess_C"))
			_, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_C"}, owner)
			Expect(err).ToNot(HaveOccurred())

			result, err := reconciler.HandleCancelRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_C"}, owner)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Outcome).To(Equal(paymentPkg.OutcomeNoop))
			Expect(result.Payment.Status).To(Equal(payment.StatusCompleted))
			Expect(repo.stored(p.ID).Status).To(Equal(payment.StatusCompleted))
		})
	})

	Describe("webhook", func() {
		It("completes the payment when the webhook arrives first", func() {
			p := repo.seed(pendingPayment(7, "sess_D"))

			ack, err := deliver("checkout.completed", "sess_D", p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(ack).To(Equal(&paymentPkg.WebhookAck{Received: true, Status: "processed", PaymentStatus: "completed"}))

			result, err := reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_D"}, owner)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Outcome).To(Equal(paymentPkg.OutcomeNoop))
			Expect(result.Payment.Status).To(Equal(payment.StatusCompleted))
			Expect(notifier.all()).To(HaveLen(1))
		})

		It("acknowledges a duplicate delivery identically without side effects", func() {
			p := repo.seed(pendingPayment(7, "sess_D"))

			first, err := deliver("payment_intent.succeeded", "sess_D", p.ID)
			Expect(err).ToNot(HaveOccurred())
			second, err := deliver("payment_intent.succeeded", "sess_D", p.ID)
			Expect(err).ToNot(HaveOccurred())

			Expect(second).To(Equal(first))
			Expect(notifier.all()).To(HaveLen(1))
			Expect(publisher.all()).To(HaveLen(1))
		})

		It("marks the payment failed on a failure event", func() {
			p := repo.seed(pendingPayment(7, "sess_F"))

			ack, err := deliver("payment_intent.payment_failed", "sess_F", p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(ack.PaymentStatus).To(Equal("failed"))
			Expect(notifier.all()[0].Title).To(Equal("Payment Failed"))
		})

		It("records the gateway payment id from payment intent events", func() {
			p := repo.seed(pendingPayment(7, "sess_G"))
			body := []byte(`{"event_type":"payment_intent.succeeded","data":{"id":"pi_777","session_id":"sess_G"}}`)

			_, err := reconciler.HandleWebhook(ctx, body, signedHeaders(body))
			Expect(err).ToNot(HaveOccurred())
			stored := repo.stored(p.ID)
			Expect(stored.GatewayPaymentID).ToNot(BeNil())
			Expect(*stored.GatewayPaymentID).To(Equal("pi_777"))
		})

		It("falls back to the metadata payment id when the session is not recorded", func() {
			p := repo.seed(pendingPayment(7, ""))

			ack, err := deliver("checkout.completed", "sess_unrecorded", p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(ack.PaymentStatus).To(Equal("completed"))
		})

		It("ignores metadata that points at a payment with another session", func() {
			p := repo.seed(pendingPayment(7, "sess_real"))

			ack, err := deliver("checkout.completed", "sess_other", p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(ack.Status).To(Equal("ignored"))
			Expect(repo.stored(p.ID).Status).To(Equal(payment.StatusPending))
		})

		It("rejects a bad signature without touching the record", func() {
			p := repo.seed(pendingPayment(7, "sess_S"))
			body := webhookBody("checkout.completed", "sess_S", p.ID)
			headers := signedHeaders(body)
			headers.Set(paymentPkg.SignatureHeader, strings.Repeat("ab", 32))

			_, err := reconciler.HandleWebhook(ctx, body, headers)
			Expect(err).To(MatchError(apperrors.ErrInvalidSignature))
			Expect(repo.stored(p.ID).Status).To(Equal(payment.StatusPending))

			audit := webhookLog.last()
			Expect(audit.Outcome).To(Equal(gatewaymodel.OutcomeRejected))
			Expect(audit.SignatureValid).To(BeFalse())
		})

		It("rejects everything when no verifier is configured", func() {
			unverified := paymentPkg.NewReconciler(paymentPkg.ReconcilerDeps{Repository: repo})
			body := webhookBody("checkout.completed", "sess_S", 1)

			_, err := unverified.HandleWebhook(ctx, body, signedHeaders(body))
			Expect(err).To(MatchError(apperrors.ErrInvalidSignature))
		})

		It("rejects a malformed body", func() {
			body := []byte(`{"event_type":`)
			_, err := reconciler.HandleWebhook(ctx, body, signedHeaders(body))
			Expect(err).To(MatchError(apperrors.ErrInvalidWebhookBody))
			Expect(webhookLog.last().Payload).ToNot(BeEmpty())
		})

		DescribeTable("acknowledges deliveries it cannot act on",
			func(body string) {
				raw := []byte(body)
				ack, err := reconciler.HandleWebhook(ctx, raw, signedHeaders(raw))
				Expect(err).ToNot(HaveOccurred())
				Expect(ack).To(Equal(&paymentPkg.WebhookAck{Received: true, Status: "ignored"}))
				Expect(webhookLog.last().Outcome).To(Equal(gatewaymodel.OutcomeIgnored))
			},
			Entry("unknown event type", `{"event_type":"customer.created","data":{"session_id":"sess_X"}}`),
			Entry("no correlation key", `{"event_type":"checkout.completed","data":{}}`),
			Entry("unknown session", `{"event_type":"checkout.completed","data":{"session_id":"sess_unknown"}}`),
		)

		Context("with a request-scoped logger", func() {
			var logs *bytes.Buffer

			BeforeEach(func() {
				logs = &bytes.Buffer{}
				reconciler = paymentPkg.NewReconciler(paymentPkg.ReconcilerDeps{
					Repository: repo,
					Verifier:   paymentPkg.NewHMACVerifier(webhookSecret, 5*time.Minute),
					Notifier:   notifier,
					WebhookLog: webhookLog,
					Logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
				})
				scoped := slog.New(slog.NewJSONHandler(logs, nil)).With("request_id", "req-42")
				ctx = logger.WithLogger(ctx, scoped)
			})

			It("tags a session mismatch with the request id", func() {
				p := repo.seed(pendingPayment(7, "sess_real"))

				_, err := deliver("checkout.completed", "sess_other", p.ID)
				Expect(err).ToNot(HaveOccurred())
				Expect(logs.String()).To(ContainSubstring("webhook metadata points at a payment with a different session"))
				Expect(logs.String()).To(ContainSubstring(`"request_id":"req-42"`))
			})

			It("tags a failed audit write with the request id", func() {
				p := repo.seed(pendingPayment(7, "sess_audit"))
				webhookLog.err = errStoreDown

				ack, err := deliver("checkout.completed", "sess_audit", p.ID)
				Expect(err).ToNot(HaveOccurred())
				Expect(ack.PaymentStatus).To(Equal("completed"))
				Expect(logs.String()).To(ContainSubstring("failed to record webhook delivery"))
				Expect(logs.String()).To(ContainSubstring(`"request_id":"req-42"`))
			})
		})

		It("reports store failures so the gateway retries", func() {
			p := repo.seed(pendingPayment(7, "sess_E"))
			repo.transitionErr = errStoreDown

			_, err := deliver("checkout.completed", "sess_E", p.ID)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(webhookLog.last().Outcome).To(Equal(gatewaymodel.OutcomeFailed))
		})
	})

	Describe("concurrent triggers", func() {
		It("produce exactly one transition and one notification", func() {
			p := repo.seed(pendingPayment(7, "sess_R"))

			var wg sync.WaitGroup
			for i := 0; i < 12; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					var err error
					switch i % 3 {
					case 0:
						_, err = reconciler.HandleSuccessRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_R"}, owner)
					case 1:
						_, err = deliver("checkout.completed", "sess_R", p.ID)
					default:
						_, err = reconciler.HandleCancelRedirect(ctx, paymentPkg.RedirectRef{SessionID: "sess_R"}, owner)
					}
					Expect(err).ToNot(HaveOccurred())
				}(i)
			}
			wg.Wait()

			Expect(repo.transitions).To(Equal(1))
			Expect(notifier.all()).To(HaveLen(1))
			Expect(publisher.all()).To(HaveLen(1))
			Expect(repo.stored(p.ID).Status.IsTerminal()).To(BeTrue())
		})
	})
})
