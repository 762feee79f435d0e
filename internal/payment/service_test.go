package payment_test

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/core/datamodel/payment"
	gatewaymodel "github.com/frahmantamala/client-portal/internal/core/datamodel/paymentgateway"
	paymentPkg "github.com/frahmantamala/client-portal/internal/payment"
	"github.com/frahmantamala/client-portal/internal/paymentgateway"
)

var _ = Describe("Service", func() {
	var (
		repo    *mockRepository
		stats   *mockStats
		gateway *mockGateway
		service *paymentPkg.Service
		ctx     context.Context
		client  paymentPkg.Actor
	)

	BeforeEach(func() {
		repo = newMockRepository()
		stats = &mockStats{}
		gateway = &mockGateway{session: &paymentgateway.Session{
			SessionID:  "checkout_123",
			SessionURL: "https://uatcheckout.thawani.om/pay/checkout_123?key=pk_test",
		}}
		service = paymentPkg.NewService(repo, stats, gateway, paymentPkg.ServiceConfig{
			SuccessURL:      "https://portal.example.com/payments/success",
			CancelURL:       "https://portal.example.com/payments/cancel?source=checkout",
			DefaultCurrency: "OMR",
		}, nil)
		ctx = context.Background()
		client = paymentPkg.Actor{UserID: 7}
	})

	validRequest := func() paymentPkg.CreatePaymentRequest {
		return paymentPkg.CreatePaymentRequest{
			Amount:      decimal.RequireFromString("25.000"),
			Currency:    "omr",
			Description: "Logo design",
		}
	}

	Describe("Initiate", func() {
		It("persists a pending record before contacting the gateway", func() {
			var seenAtGateway *payment.Payment
			gateway.onCreate = func(req paymentgateway.CheckoutRequest) {
				id, err := strconv.ParseInt(req.Metadata["payment_id"], 10, 64)
				Expect(err).ToNot(HaveOccurred())
				seenAtGateway = repo.stored(id)
			}

			resp, err := service.Initiate(ctx, client, validRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.SessionID).To(Equal("checkout_123"))
			Expect(resp.CheckoutURL).To(ContainSubstring("checkout_123"))
			Expect(resp.Status).To(Equal(payment.StatusPending))

			Expect(seenAtGateway).ToNot(BeNil())
			Expect(seenAtGateway.Status).To(Equal(payment.StatusPending))
			Expect(seenAtGateway.GatewaySessionID).To(BeNil())

			stored := repo.stored(resp.PaymentID)
			Expect(stored.SessionID()).To(Equal("checkout_123"))
			Expect(stored.OwnerID).To(Equal(int64(7)))
			Expect(stored.Currency).To(Equal("OMR"))

			var metadata map[string]string
			Expect(json.Unmarshal(stored.Metadata, &metadata)).To(Succeed())
			Expect(metadata).To(HaveKeyWithValue("user_id", "7"))
		})

		It("sends correlation data and redirect urls to the gateway", func() {
			resp, err := service.Initiate(ctx, client, validRequest())
			Expect(err).ToNot(HaveOccurred())

			Expect(gateway.requests).To(HaveLen(1))
			req := gateway.requests[0]
			Expect(req.Amount.Equal(decimal.RequireFromString("25"))).To(BeTrue())
			Expect(req.Currency).To(Equal("OMR"))
			Expect(req.ProductName).To(Equal("Logo design"))
			Expect(req.Metadata).To(HaveKeyWithValue("payment_id", req.ClientReferenceID))

			success, err := url.Parse(req.SuccessURL)
			Expect(err).ToNot(HaveOccurred())
			Expect(success.Query().Get("payment_id")).To(Equal(req.ClientReferenceID))

			cancel, err := url.Parse(req.CancelURL)
			Expect(err).ToNot(HaveOccurred())
			Expect(cancel.Query().Get("source")).To(Equal("checkout"))
			Expect(cancel.Query().Get("payment_id")).ToNot(BeEmpty())
			Expect(resp.PaymentID).To(BeNumerically(">", 0))
		})

		It("rejects non-positive project references", func() {
			req := validRequest()
			zero := int64(0)
			req.MilestoneID = &zero

			_, err := service.Initiate(ctx, client, req)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			details, ok := appErr.Details.(apperrors.ValidationErrors)
			Expect(ok).To(BeTrue())
			Expect(details.Errors).To(HaveLen(1))
			Expect(details.Errors[0].Field).To(Equal("milestone_id"))
			Expect(repo.payments).To(BeEmpty())
		})

		It("falls back to the configured currency", func() {
			req := validRequest()
			req.Currency = ""

			resp, err := service.Initiate(ctx, client, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(repo.stored(resp.PaymentID).Currency).To(Equal("OMR"))
		})

		It("removes the tentative record when the gateway is unavailable", func() {
			gateway.err = paymentgateway.ErrUnavailable

			_, err := service.Initiate(ctx, client, validRequest())
			Expect(err).To(MatchError(apperrors.ErrPaymentStartFailed))
			Expect(repo.deleted).To(HaveLen(1))
			Expect(repo.payments).To(BeEmpty())
		})

		It("removes the record when the session cannot be stored", func() {
			repo.setSessionErr = errStoreDown

			_, err := service.Initiate(ctx, client, validRequest())
			Expect(err).To(MatchError(apperrors.ErrPaymentStartFailed))
			Expect(repo.payments).To(BeEmpty())
		})

		DescribeTable("rejects invalid requests without side effects",
			func(amount, currency string) {
				req := paymentPkg.CreatePaymentRequest{Amount: decimal.RequireFromString(amount), Currency: currency}
				_, err := service.Initiate(ctx, client, req)

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
				Expect(repo.payments).To(BeEmpty())
				Expect(gateway.requests).To(BeEmpty())
			},
			Entry("zero amount", "0", "OMR"),
			Entry("negative amount", "-5", "OMR"),
			Entry("too many decimals for OMR", "1.2345", "OMR"),
			Entry("too many decimals for USD", "1.234", "USD"),
			Entry("unsupported currency", "10", "XYZ"),
			Entry("above the ceiling", "1000001", "OMR"),
		)
	})

	Describe("Get", func() {
		It("returns the owner's payment and hides others'", func() {
			p := repo.seed(pendingPayment(7, "sess_1"))

			got, err := service.Get(ctx, client, p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.ID).To(Equal(p.ID))

			_, err = service.Get(ctx, paymentPkg.Actor{UserID: 8}, p.ID)
			Expect(err).To(MatchError(apperrors.ErrUnauthorizedAccess))

			_, err = service.Get(ctx, client, 9999)
			Expect(err).To(MatchError(apperrors.ErrPaymentNotFound))
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			repo.seed(pendingPayment(7, "a"))
			repo.seed(pendingPayment(7, "b"))
			repo.seed(pendingPayment(8, "c"))
		})

		It("restricts clients to their own payments", func() {
			result, err := service.List(ctx, client, paymentPkg.ListFilter{})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Total).To(Equal(int64(2)))
			Expect(result.Page).To(Equal(1))
			Expect(result.PerPage).To(Equal(20))
			Expect(result.TotalPages).To(Equal(1))
			for _, item := range result.Items {
				Expect(item.OwnerID).To(Equal(int64(7)))
				Expect(item.FormattedAmount).To(Equal("25.000 OMR"))
			}
		})

		It("lets admins see every payment and caps the page size", func() {
			result, err := service.List(ctx, paymentPkg.Actor{UserID: 1, IsAdmin: true}, paymentPkg.ListFilter{PerPage: 500})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Total).To(Equal(int64(3)))
			Expect(result.PerPage).To(Equal(100))
		})
	})

	Describe("Stats", func() {
		It("scopes clients to their own totals", func() {
			stats.result = []paymentPkg.CurrencyStats{{Currency: "OMR", TotalPaid: decimal.NewFromInt(10)}}

			result, err := service.Stats(ctx, client)
			Expect(err).ToNot(HaveOccurred())
			Expect(result).To(HaveLen(1))
			Expect(stats.lastOwner).ToNot(BeNil())
			Expect(*stats.lastOwner).To(Equal(int64(7)))

			_, err = service.Stats(ctx, paymentPkg.Actor{UserID: 1, IsAdmin: true})
			Expect(err).ToNot(HaveOccurred())
			Expect(stats.lastOwner).To(BeNil())
		})

		It("returns an empty list rather than null", func() {
			result, err := service.Stats(ctx, client)
			Expect(err).ToNot(HaveOccurred())
			Expect(result).ToNot(BeNil())
			Expect(result).To(BeEmpty())
		})
	})

	Describe("GatewaySession", func() {
		It("combines the gateway view with recorded deliveries", func() {
			p := repo.seed(pendingPayment(7, "sess_admin"))
			history := &mockWebhookLog{}
			Expect(history.Record(ctx, &gatewaymodel.WebhookEvent{
				EventType: "checkout.completed",
				PaymentID: &p.ID,
				Outcome:   gatewaymodel.OutcomeApplied,
			})).To(Succeed())
			service.WithWebhookHistory(history)

			resp, err := service.GatewaySession(ctx, p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Session.SessionID).To(Equal("sess_admin"))
			Expect(resp.Local).To(Equal(payment.StatusPending))
			Expect(resp.Deliveries).To(HaveLen(1))
			Expect(resp.Deliveries[0].Outcome).To(Equal("applied"))
			Expect(resp.GatewayAmount).To(BeEmpty())
			Expect(resp.AmountMatches).To(BeNil())
		})

		It("compares the gateway total with the stored amount", func() {
			p := repo.seed(pendingPayment(7, "sess_total"))

			gateway.total = 25000
			resp, err := service.GatewaySession(ctx, p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.GatewayAmount).To(Equal("25.000 OMR"))
			Expect(resp.AmountMatches).To(HaveValue(BeTrue()))

			gateway.total = 20000
			resp, err = service.GatewaySession(ctx, p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.GatewayAmount).To(Equal("20.000 OMR"))
			Expect(resp.AmountMatches).To(HaveValue(BeFalse()))
		})

		It("reports payments without a session as not found", func() {
			p := repo.seed(pendingPayment(7, ""))
			_, err := service.GatewaySession(ctx, p.ID)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeNotFound))
		})

		It("maps gateway failures to an external error", func() {
			p := repo.seed(pendingPayment(7, "sess_down"))
			gateway.err = paymentgateway.ErrUnavailable
			_, err := service.GatewaySession(ctx, p.ID)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeExternal))
		})
	})
})
