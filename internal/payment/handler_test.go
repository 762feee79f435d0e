package payment_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/client-portal/internal/auth"
	usermodel "github.com/frahmantamala/client-portal/internal/core/datamodel/user"
	paymentPkg "github.com/frahmantamala/client-portal/internal/payment"
	"github.com/frahmantamala/client-portal/internal/paymentgateway"
)

var _ = Describe("HTTP handlers", func() {
	var (
		repo     *mockRepository
		notifier *mockNotifier
		router   chi.Router
		asUser   *auth.User
	)

	BeforeEach(func() {
		repo = newMockRepository()
		notifier = &mockNotifier{}
		gateway := &mockGateway{session: &paymentgateway.Session{SessionID: "sess_new", SessionURL: "https://pay.example/sess_new"}}
		service := paymentPkg.NewService(repo, &mockStats{}, gateway, paymentPkg.ServiceConfig{
			SuccessURL: "https://portal.example.com/success",
			CancelURL:  "https://portal.example.com/cancel",
		}, nil)
		reconciler := paymentPkg.NewReconciler(paymentPkg.ReconcilerDeps{
			Repository: repo,
			Verifier:   paymentPkg.NewHMACVerifier(webhookSecret, 5*time.Minute),
			Notifier:   notifier,
		})
		handler := paymentPkg.NewHandler(service, reconciler, nil)
		webhook := paymentPkg.NewWebhookHandler(reconciler, nil)
		asUser = &auth.User{ID: 7, Role: usermodel.RoleClient}

		router = chi.NewRouter()
		router.Post("/payments/webhook", webhook.HandleWebhook)
		router.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					if asUser != nil {
						req = req.WithContext(auth.WithUser(req.Context(), asUser))
					}
					next.ServeHTTP(w, req)
				})
			})
			r.Post("/payments", handler.Create)
			r.Get("/payments", handler.List)
			r.Get("/payments/success", handler.Success)
			r.Get("/payments/cancel", handler.Cancel)
			r.Get("/payments/{id}", handler.Get)
		})
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	errorCode := func(rec *httptest.ResponseRecorder) string {
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body.Error.Code
	}

	Describe("POST /payments", func() {
		It("creates a checkout session", func() {
			rec := serve(httptest.NewRequest(http.MethodPost, "/payments",
				strings.NewReader(`{"amount":"25.000","currency":"OMR","description":"Logo"}`)))

			Expect(rec.Code).To(Equal(http.StatusCreated))
			var resp paymentPkg.CheckoutResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.SessionID).To(Equal("sess_new"))
			Expect(resp.CheckoutURL).To(Equal("https://pay.example/sess_new"))
		})

		It("rejects invalid amounts", func() {
			rec := serve(httptest.NewRequest(http.MethodPost, "/payments",
				strings.NewReader(`{"amount":"-1","currency":"OMR"}`)))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("requires authentication", func() {
			asUser = nil
			rec := serve(httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{}`)))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("GET /payments", func() {
		It("rejects an unknown status filter", func() {
			rec := serve(httptest.NewRequest(http.MethodGet, "/payments?status=lost", nil))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(errorCode(rec)).To(Equal("INVALID_STATUS"))
		})

		It("lists the caller's payments", func() {
			repo.seed(pendingPayment(7, "a"))
			repo.seed(pendingPayment(8, "b"))

			rec := serve(httptest.NewRequest(http.MethodGet, "/payments?status=pending", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			var result paymentPkg.ListResult
			Expect(json.Unmarshal(rec.Body.Bytes(), &result)).To(Succeed())
			Expect(result.Total).To(Equal(int64(1)))
		})
	})

	Describe("GET /payments/{id}", func() {
		It("returns 404 for unknown and 403 for foreign payments", func() {
			foreign := repo.seed(pendingPayment(8, "b"))

			Expect(serve(httptest.NewRequest(http.MethodGet, "/payments/999", nil)).Code).To(Equal(http.StatusNotFound))
			Expect(serve(httptest.NewRequest(http.MethodGet, "/payments/abc", nil)).Code).To(Equal(http.StatusBadRequest))

			rec := serve(httptest.NewRequest(http.MethodGet, "/payments/"+itoa(foreign.ID), nil))
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})
	})

	Describe("redirects", func() {
		It("completes the payment on the success redirect", func() {
			repo.seed(pendingPayment(7, "sess_ok"))

			rec := serve(httptest.NewRequest(http.MethodGet, "/payments/success?session_id=sess_ok", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp paymentPkg.RedirectResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Payment.Status.String()).To(Equal("completed"))
			Expect(resp.Message).To(Equal("Payment completed successfully"))
		})

		It("accepts the payment id the portal appended to the redirect url", func() {
			p := repo.seed(pendingPayment(7, "sess_pid"))

			rec := serve(httptest.NewRequest(http.MethodGet, "/payments/cancel?payment_id="+itoa(p.ID), nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(repo.stored(p.ID).Status.String()).To(Equal("failed"))
		})

		It("maps missing, unknown and foreign references to 400, 404 and 403", func() {
			repo.seed(pendingPayment(8, "sess_theirs"))

			rec := serve(httptest.NewRequest(http.MethodGet, "/payments/success", nil))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(errorCode(rec)).To(Equal("MISSING_SESSION_ID"))

			Expect(serve(httptest.NewRequest(http.MethodGet, "/payments/success?session_id=nope", nil)).Code).
				To(Equal(http.StatusNotFound))
			Expect(serve(httptest.NewRequest(http.MethodGet, "/payments/success?session_id=sess_theirs", nil)).Code).
				To(Equal(http.StatusForbidden))
		})
	})

	Describe("POST /payments/webhook", func() {
		post := func(body []byte, headers http.Header) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
			for k, v := range headers {
				req.Header[k] = v
			}
			return serve(req)
		}

		It("returns 200 with the payment status for an applied event", func() {
			p := repo.seed(pendingPayment(7, "sess_wh"))
			body := webhookBody("checkout.completed", "sess_wh", p.ID)

			rec := post(body, signedHeaders(body))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"received":true,"status":"processed","payment_status":"completed"}`))

			again := post(body, signedHeaders(body))
			Expect(again.Code).To(Equal(http.StatusOK))
			Expect(again.Body.String()).To(MatchJSON(rec.Body.String()))
			Expect(notifier.all()).To(HaveLen(1))
		})

		It("returns 401 for a bad signature", func() {
			body := webhookBody("checkout.completed", "sess_wh", 1)
			rec := post(body, http.Header{})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("returns 400 for a malformed body", func() {
			body := []byte(`{"event_type"`)
			rec := post(body, signedHeaders(body))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 200 ignored for unknown sessions", func() {
			body := []byte(`{"event_type":"checkout.completed","data":{"session_id":"sess_ghost"}}`)
			rec := post(body, signedHeaders(body))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"received":true,"status":"ignored"}`))
		})
	})
})

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
