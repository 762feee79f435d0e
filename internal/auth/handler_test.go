package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	usermodel "github.com/frahmantamala/client-portal/internal/core/datamodel/user"
)

var _ = ginkgo.Describe("Auth Handler", func() {
	var (
		store   *mockUserStore
		tokens  *JWTTokenGenerator
		handler *Handler
	)

	ginkgo.BeforeEach(func() {
		store = newMockUserStore()
		tokens = NewJWTTokenGenerator(testSecret, time.Hour)
		handler = NewHandler(NewService(store, tokens, nil), nil)
	})

	ginkgo.Describe("Login", func() {
		ginkgo.It("returns a token for valid credentials", func() {
			body := `{"email":"client@example.com","password":"correct_password"}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
			rec := httptest.NewRecorder()

			handler.Login(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var resp AuthTokens
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.AccessToken).ToNot(gomega.BeEmpty())
		})

		ginkgo.It("returns 401 for bad credentials and 400 for malformed bodies", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
				strings.NewReader(`{"email":"client@example.com","password":"nope"}`))
			rec := httptest.NewRecorder()
			handler.Login(rec, req)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))

			req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{`))
			rec = httptest.NewRecorder()
			handler.Login(rec, req)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("AuthMiddleware", func() {
		var (
			seen *User
			next http.Handler
		)

		ginkgo.BeforeEach(func() {
			seen = nil
			next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = UserFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})
		})

		serve := func(token string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()
			handler.AuthMiddleware(next).ServeHTTP(rec, req)
			return rec
		}

		ginkgo.It("attaches the user for a valid token", func() {
			token, _, err := tokens.GenerateAccessToken(store.byID[2])
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			rec := serve(token)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))
			gomega.Expect(seen).ToNot(gomega.BeNil())
			gomega.Expect(seen.ID).To(gomega.Equal(int64(2)))
			gomega.Expect(seen.IsAdmin()).To(gomega.BeTrue())
		})

		ginkgo.It("rejects missing and garbage tokens", func() {
			gomega.Expect(serve("").Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(serve("not.a.jwt").Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(seen).To(gomega.BeNil())
		})

		ginkgo.It("rejects tokens of users that were deactivated", func() {
			token, _, err := tokens.GenerateAccessToken(store.byID[3])
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(serve(token).Code).To(gomega.Equal(http.StatusForbidden))
		})
	})

	ginkgo.Describe("RequireRole", func() {
		serveAs := func(u *User) int {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments/1/gateway-session", nil)
			if u != nil {
				req = req.WithContext(WithUser(req.Context(), u))
			}
			rec := httptest.NewRecorder()
			ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			handler.RequireRole(usermodel.RoleAdmin)(ok).ServeHTTP(rec, req)
			return rec.Code
		}

		ginkgo.It("lets admins through and forbids clients", func() {
			gomega.Expect(serveAs(&User{ID: 2, Role: usermodel.RoleAdmin})).To(gomega.Equal(http.StatusOK))
			gomega.Expect(serveAs(&User{ID: 1, Role: usermodel.RoleClient})).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(serveAs(nil)).To(gomega.Equal(http.StatusUnauthorized))
		})
	})
})
