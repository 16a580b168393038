package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/logger"
	"github.com/fjod/grocery-cart/internal/metrics"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/trace"
)

const testSecret = "test-secret"

type cartCall struct {
	userID    primitive.ObjectID
	productID primitive.ObjectID
	quantity  int
}

type CartServiceMock struct {
	view    *domain.CartView
	summary *domain.CartSummary
	err     error
	calls   []cartCall
}

func (m *CartServiceMock) record(userID, productID primitive.ObjectID, quantity int) (*domain.CartView, error) {
	m.calls = append(m.calls, cartCall{userID, productID, quantity})
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *CartServiceMock) AddItem(_ context.Context, userID, productID primitive.ObjectID, quantity int) (*domain.CartView, error) {
	return m.record(userID, productID, quantity)
}

func (m *CartServiceMock) UpdateItemQuantity(_ context.Context, userID, productID primitive.ObjectID, quantity int) (*domain.CartView, error) {
	return m.record(userID, productID, quantity)
}

func (m *CartServiceMock) RemoveItem(_ context.Context, userID, productID primitive.ObjectID) (*domain.CartView, error) {
	return m.record(userID, productID, 0)
}

func (m *CartServiceMock) ClearCart(_ context.Context, userID primitive.ObjectID) (*domain.CartView, error) {
	return m.record(userID, primitive.NilObjectID, 0)
}

func (m *CartServiceMock) GetCart(_ context.Context, userID primitive.ObjectID) (*domain.CartView, error) {
	return m.record(userID, primitive.NilObjectID, 0)
}

func (m *CartServiceMock) GetCartSummary(_ context.Context, userID primitive.ObjectID) (*domain.CartSummary, error) {
	m.calls = append(m.calls, cartCall{userID: userID})
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

type AnalyticsServiceMock struct {
	analytics *domain.CartAnalytics
	abandoned []domain.AbandonedCart
	err       error

	period domain.Period
	limit  int
	caller domain.Principal
}

func (m *AnalyticsServiceMock) GetCartAnalytics(_ context.Context, period domain.Period, p domain.Principal) (*domain.CartAnalytics, error) {
	m.period, m.caller = period, p
	if m.err != nil {
		return nil, m.err
	}
	return m.analytics, nil
}

func (m *AnalyticsServiceMock) GetAbandonedCarts(_ context.Context, limit int, p domain.Principal) ([]domain.AbandonedCart, error) {
	m.limit, m.caller = limit, p
	if m.err != nil {
		return nil, m.err
	}
	return m.abandoned, nil
}

func newTestRouter(carts *CartServiceMock, analytics *AnalyticsServiceMock) http.Handler {
	return NewRouter(RouterConfig{
		Carts:          carts,
		Analytics:      analytics,
		Logger:         zerolog.Nop(),
		Metrics:        metrics.NewHTTP("test", prometheus.NewRegistry()),
		JWTSecret:      testSecret,
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 10,
	})
}

func token(t *testing.T, id primitive.ObjectID, role domain.Role) string {
	t.Helper()
	claims := Claims{
		ID:   id.Hex(),
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, h http.Handler, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	request := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, request)

	var response Response
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response), recorder.Body.String())
	}
	return recorder, response
}

func cartView(userID primitive.ObjectID) *domain.CartView {
	id := primitive.NewObjectID()
	return &domain.CartView{
		ID:        &id,
		UserID:    userID,
		Items:     []domain.CartItemView{{ProductID: primitive.NewObjectID(), Quantity: 2, Price: 100, Discount: 10, FinalPrice: 90}},
		CartTotal: 180,
		ItemCount: 2,
	}
}

func TestAddItem_Success(t *testing.T) {
	user := primitive.NewObjectID()
	carts := &CartServiceMock{view: cartView(user)}
	router := newTestRouter(carts, &AnalyticsServiceMock{})
	productID := primitive.NewObjectID()

	recorder, response := do(t, router, "POST", "/cart/add", token(t, user, domain.RoleCustomer),
		map[string]interface{}{"productId": productID.Hex(), "quantity": 2})

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, response.Success)
	assert.Equal(t, "Item added to cart successfully", response.Message)
	require.Len(t, carts.calls, 1)
	assert.Equal(t, cartCall{user, productID, 2}, carts.calls[0])

	data := response.Data.(map[string]interface{})
	assert.Equal(t, 180.0, data["cartTotal"])
	assert.NotEmpty(t, recorder.Header().Get("X-Request-ID"))
}

func TestAddItem_DefaultQuantity(t *testing.T) {
	user := primitive.NewObjectID()
	carts := &CartServiceMock{view: cartView(user)}
	router := newTestRouter(carts, &AnalyticsServiceMock{})

	recorder, _ := do(t, router, "POST", "/cart/add", token(t, user, domain.RoleCustomer),
		map[string]interface{}{"productId": primitive.NewObjectID().Hex()})

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, carts.calls, 1)
	assert.Equal(t, 1, carts.calls[0].quantity)
}

func TestAddItem_ValidationErrors(t *testing.T) {
	user := primitive.NewObjectID()
	tests := []struct {
		name    string
		body    interface{}
		status  int
		message string
	}{
		{"malformed json", "{", http.StatusBadRequest, "Invalid request body"},
		{"missing product", map[string]interface{}{"quantity": 1}, http.StatusBadRequest, "Valid product ID is required"},
		{"bad product id", map[string]interface{}{"productId": "abc"}, http.StatusBadRequest, "Valid product ID is required"},
		{"zero quantity", map[string]interface{}{"productId": primitive.NewObjectID().Hex(), "quantity": 0}, http.StatusBadRequest, "Quantity must be between 1 and 100"},
		{"quantity too large", map[string]interface{}{"productId": primitive.NewObjectID().Hex(), "quantity": 101}, http.StatusBadRequest, "Quantity must be between 1 and 100"},
		{"body too large", `{"productId":"` + strings.Repeat("a", 2048) + `"}`, http.StatusRequestEntityTooLarge, "Request body too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			carts := &CartServiceMock{}
			router := newTestRouter(carts, &AnalyticsServiceMock{})

			recorder, response := do(t, router, "POST", "/cart/add", token(t, user, domain.RoleCustomer), tt.body)

			assert.Equal(t, tt.status, recorder.Code)
			assert.False(t, response.Success)
			assert.Equal(t, tt.message, response.Message)
			assert.Empty(t, carts.calls)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", domain.NotFound("cart.add", "Product not found"), http.StatusNotFound, "Product not found"},
		{"invalid", domain.Invalid("cart.add", "Insufficient stock available"), http.StatusBadRequest, "Insufficient stock available"},
		{"vendor conflict", domain.Conflict("cart.add", "Cannot add products from different vendors to the same cart"), http.StatusBadRequest, "Cannot add products from different vendors to the same cart"},
		{"internal", domain.Internal(errors.New("mongo: connection refused"), "cart.add", "failed to save cart"), http.StatusInternalServerError, "Internal server error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := primitive.NewObjectID()
			router := newTestRouter(&CartServiceMock{err: tt.err}, &AnalyticsServiceMock{})

			recorder, response := do(t, router, "POST", "/cart/add", token(t, user, domain.RoleCustomer),
				map[string]interface{}{"productId": primitive.NewObjectID().Hex()})

			assert.Equal(t, tt.status, recorder.Code)
			assert.False(t, response.Success)
			assert.Equal(t, tt.message, response.Message)
			assert.NotContains(t, recorder.Body.String(), "mongo")
		})
	}
}

func TestUpdateQuantity(t *testing.T) {
	user := primitive.NewObjectID()
	carts := &CartServiceMock{view: cartView(user)}
	router := newTestRouter(carts, &AnalyticsServiceMock{})
	productID := primitive.NewObjectID()

	recorder, response := do(t, router, "PATCH", "/cart/update-quantity", token(t, user, domain.RoleCustomer),
		map[string]interface{}{"productId": productID.Hex(), "quantity": 4})

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Cart item quantity updated successfully", response.Message)
	assert.Equal(t, cartCall{user, productID, 4}, carts.calls[0])

	recorder, response = do(t, router, "PATCH", "/cart/update-quantity", token(t, user, domain.RoleCustomer),
		map[string]interface{}{"productId": productID.Hex()})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Quantity must be between 1 and 100", response.Message)
}

func TestRemoveItem(t *testing.T) {
	user := primitive.NewObjectID()
	carts := &CartServiceMock{view: cartView(user)}
	router := newTestRouter(carts, &AnalyticsServiceMock{})
	productID := primitive.NewObjectID()

	recorder, response := do(t, router, "DELETE", "/cart/remove/"+productID.Hex(), token(t, user, domain.RoleCustomer), nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Item removed from cart successfully", response.Message)
	assert.Equal(t, productID, carts.calls[0].productID)

	recorder, response = do(t, router, "DELETE", "/cart/remove/not-an-id", token(t, user, domain.RoleCustomer), nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Valid product ID is required", response.Message)
}

func TestClearCart_NotFound(t *testing.T) {
	router := newTestRouter(&CartServiceMock{err: domain.NotFound("cart.clear", "Cart not found")}, &AnalyticsServiceMock{})

	recorder, response := do(t, router, "DELETE", "/cart/clear", token(t, primitive.NewObjectID(), domain.RoleCustomer), nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "Cart not found", response.Message)
}

func TestGetCart(t *testing.T) {
	user := primitive.NewObjectID()

	recorder, response := do(t, newTestRouter(&CartServiceMock{view: cartView(user)}, &AnalyticsServiceMock{}),
		"GET", "/cart/", token(t, user, domain.RoleCustomer), nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Cart retrieved successfully", response.Message)

	recorder, response = do(t, newTestRouter(&CartServiceMock{view: domain.EmptyCartView(user)}, &AnalyticsServiceMock{}),
		"GET", "/cart/", token(t, user, domain.RoleCustomer), nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Cart is empty", response.Message)
	data := response.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{}, data["items"])
	assert.Equal(t, 0.0, data["cartTotal"])
	assert.Equal(t, 0.0, data["itemCount"])
	assert.Equal(t, user.Hex(), data["userId"])
}

func TestGetCartSummary(t *testing.T) {
	vendor := primitive.NewObjectID()
	carts := &CartServiceMock{summary: &domain.CartSummary{ItemCount: 3, CartTotal: 12.5, HasItems: true, VendorID: &vendor}}

	recorder, response := do(t, newTestRouter(carts, &AnalyticsServiceMock{}),
		"GET", "/cart/summary", token(t, primitive.NewObjectID(), domain.RoleCustomer), nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	data := response.Data.(map[string]interface{})
	assert.Equal(t, true, data["hasItems"])
	assert.Equal(t, vendor.Hex(), data["vendorId"])
}

func TestAuthentication(t *testing.T) {
	router := newTestRouter(&CartServiceMock{}, &AnalyticsServiceMock{})

	recorder, response := do(t, router, "GET", "/cart/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "No token provided", response.Message)

	recorder, response = do(t, router, "GET", "/cart/", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "Invalid or expired token", response.Message)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{ID: primitive.NewObjectID().Hex()}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	recorder, _ = do(t, router, "GET", "/cart/", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:               primitive.NewObjectID().Hex(),
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	recorder, _ = do(t, router, "GET", "/cart/", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{ID: "42"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	recorder, _ = do(t, router, "GET", "/cart/", badSubject, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAnalytics_Roles(t *testing.T) {
	tests := []struct {
		role   domain.Role
		status int
	}{
		{domain.RoleAdmin, http.StatusOK},
		{domain.RoleVendor, http.StatusOK},
		{domain.RoleCustomer, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			analytics := &AnalyticsServiceMock{analytics: &domain.CartAnalytics{Period: domain.Period7d, PopularProducts: []domain.PopularProduct{}}}
			router := newTestRouter(&CartServiceMock{}, analytics)
			caller := primitive.NewObjectID()

			recorder, response := do(t, router, "GET", "/cart/analytics", token(t, caller, tt.role), nil)
			assert.Equal(t, tt.status, recorder.Code)
			if tt.status == http.StatusForbidden {
				assert.Equal(t, "Access denied for role: customer", response.Message)
				return
			}
			assert.Equal(t, "Cart analytics retrieved successfully", response.Message)
			assert.Equal(t, domain.Period7d, analytics.period)
			assert.Equal(t, domain.Principal{ID: caller, Role: tt.role}, analytics.caller)
		})
	}
}

func TestAnalytics_Period(t *testing.T) {
	analytics := &AnalyticsServiceMock{analytics: &domain.CartAnalytics{}}
	router := newTestRouter(&CartServiceMock{}, analytics)
	admin := token(t, primitive.NewObjectID(), domain.RoleAdmin)

	recorder, _ := do(t, router, "GET", "/cart/analytics?period=90d", admin, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, domain.Period90d, analytics.period)

	recorder, response := do(t, router, "GET", "/cart/analytics?period=1y", admin, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Period must be one of: 7d, 30d, 90d", response.Message)
}

func TestAbandoned_Limit(t *testing.T) {
	analytics := &AnalyticsServiceMock{abandoned: []domain.AbandonedCart{}}
	router := newTestRouter(&CartServiceMock{}, analytics)
	vendor := token(t, primitive.NewObjectID(), domain.RoleVendor)

	recorder, response := do(t, router, "GET", "/cart/abandoned", vendor, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "Abandoned carts retrieved successfully", response.Message)
	assert.Equal(t, []interface{}{}, response.Data)
	assert.Equal(t, 0, analytics.limit)

	recorder, _ = do(t, router, "GET", "/cart/abandoned?limit=25", vendor, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 25, analytics.limit)

	for _, bad := range []string{"0", "101", "-3", "ten"} {
		recorder, response = do(t, router, "GET", "/cart/abandoned?limit="+bad, vendor, nil)
		assert.Equal(t, http.StatusBadRequest, recorder.Code, bad)
		assert.Equal(t, "Limit must be between 1 and 100", response.Message, bad)
	}
}

func TestHealth(t *testing.T) {
	healthy := NewRouter(RouterConfig{Logger: zerolog.Nop(), Health: func(context.Context) error { return nil }})
	recorder, response := do(t, healthy, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, response.Success)

	down := NewRouter(RouterConfig{Logger: zerolog.Nop(), Health: func(context.Context) error { return errors.New("no primary") }})
	recorder, _ = do(t, down, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(&CartServiceMock{}, &AnalyticsServiceMock{})
	do(t, router, "GET", "/cart/", "", nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "test_http_requests_total")
	assert.Contains(t, recorder.Body.String(), `status="401"`)
}

func TestRequestLogsCarrySpan(t *testing.T) {
	var buf bytes.Buffer
	user := primitive.NewObjectID()
	router := NewRouter(RouterConfig{
		Carts:     &CartServiceMock{err: errors.New("database error")},
		Analytics: &AnalyticsServiceMock{},
		Logger:    logger.New(&buf, "prod", "debug"),
		JWTSecret: testSecret,
	})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	request := httptest.NewRequest("GET", "/cart/", nil)
	request = request.WithContext(trace.ContextWithSpanContext(request.Context(), sc))
	request.Header.Set("Authorization", "Bearer "+token(t, user, domain.RoleCustomer))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusInternalServerError, recorder.Code)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, buf.String())
	for _, line := range lines {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		assert.Equal(t, sc.TraceID().String(), entry["trace_id"], line)
		assert.Equal(t, sc.SpanID().String(), entry["span_id"], line)
		assert.NotEmpty(t, entry["request_id"], line)
	}
}
