package search_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/kasir-desk/internal/cart"
	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/lock"
	"github.com/noah-isme/kasir-desk/internal/ratelimit"
	"github.com/noah-isme/kasir-desk/internal/search"
	"github.com/noah-isme/kasir-desk/internal/session"
	"github.com/noah-isme/kasir-desk/internal/upstream"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fakeCatalog struct {
	mu       sync.Mutex
	queries  []string
	purchase []bool
	started  chan string
	results  map[string][]upstream.Product
	block    map[string]bool
}

func (f *fakeCatalog) SearchProducts(ctx context.Context, query string, purchase bool) ([]upstream.Product, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.purchase = append(f.purchase, purchase)
	blocked := f.block[query]
	f.mu.Unlock()
	if f.started != nil {
		f.started <- query
	}
	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.results[query], nil
}

func (f *fakeCatalog) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

var rice = upstream.Product{ID: "p1", Name: "Rice", ProductType: "simple", Price: d("12.5"), Cost: d("10")}

func newService(t *testing.T, catalog search.Catalog, debounce time.Duration, limiter ratelimit.Backend) (*search.Service, *session.Service) {
	t.Helper()
	sessions, err := session.NewService(session.ServiceConfig{
		Store:  session.NewMemoryStore(0),
		Locker: lock.NewLocal(),
	})
	require.NoError(t, err)
	svc, err := search.NewService(search.Config{
		Catalog:  catalog,
		Sessions: sessions,
		Debounce: debounce,
		Limiter:  limiter,
		Limit:    2,
		Window:   time.Minute,
	})
	require.NoError(t, err)
	return svc, sessions
}

func TestNewerQuerySupersedesInFlight(t *testing.T) {
	catalog := &fakeCatalog{
		started: make(chan string, 4),
		block:   map[string]bool{"ri": true},
		results: map[string][]upstream.Product{"rice": {rice}},
	}
	svc, sessions := newService(t, catalog, 0, nil)
	ctx := context.Background()
	sess, err := sessions.Open(ctx, "", session.KindSale, session.Context{})
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := svc.Search(ctx, search.Query{SessionID: sess.ID, Text: "ri", AutoAdd: true})
		errs <- err
	}()
	require.Equal(t, "ri", <-catalog.started)

	res, err := svc.Search(ctx, search.Query{SessionID: sess.ID, Text: "rice", AutoAdd: true})
	require.NoError(t, err)
	require.Equal(t, "rice", <-catalog.started)
	require.Len(t, res.Products, 1)
	require.NotNil(t, res.Added)

	old := <-errs
	require.ErrorIs(t, old, search.ErrSuperseded)
	var appErr *common.AppError
	require.ErrorAs(t, old, &appErr)
	require.Equal(t, "SUPERSEDED", appErr.Code)

	after, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, after.Cart.Lines, 1)
}

func TestDebounceCoalescesKeystrokes(t *testing.T) {
	catalog := &fakeCatalog{results: map[string][]upstream.Product{"rice": {rice}}}
	svc, sessions := newService(t, catalog, 200*time.Millisecond, nil)
	ctx := context.Background()
	sess, err := sessions.Open(ctx, "", session.KindSale, session.Context{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	early := make([]error, 2)
	for i, text := range []string{"r", "ri"} {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			_, early[i] = svc.Search(ctx, search.Query{SessionID: sess.ID, Text: text})
		}(i, text)
		time.Sleep(30 * time.Millisecond)
	}
	res, err := svc.Search(ctx, search.Query{SessionID: sess.ID, Text: "rice"})
	wg.Wait()

	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	require.Nil(t, res.Added)
	for _, e := range early {
		require.ErrorIs(t, e, search.ErrSuperseded)
	}
	require.Equal(t, []string{"rice"}, catalog.calls())
}

func TestAutoAddOnlyForSingleMatch(t *testing.T) {
	catalog := &fakeCatalog{results: map[string][]upstream.Product{
		"rice": {rice},
		"r":    {rice, {ID: "p2", Name: "Rye", Price: d("3")}},
	}}
	svc, sessions := newService(t, catalog, 0, nil)
	ctx := context.Background()
	sess, err := sessions.Open(ctx, "", session.KindSale, session.Context{Return: true})
	require.NoError(t, err)

	res, err := svc.Search(ctx, search.Query{SessionID: sess.ID, Text: "r", AutoAdd: true})
	require.NoError(t, err)
	require.Len(t, res.Products, 2)
	require.Nil(t, res.Added)

	res, err = svc.Search(ctx, search.Query{SessionID: sess.ID, Text: "rice", AutoAdd: false})
	require.NoError(t, err)
	require.Nil(t, res.Added)

	res, err = svc.Search(ctx, search.Query{SessionID: sess.ID, Text: "rice", AutoAdd: true})
	require.NoError(t, err)
	require.NotNil(t, res.Added)
	require.True(t, d("-1").Equal(res.Added.Quantity))
	require.True(t, res.Session.Totals().Total.Equal(d("-12.5")))
}

func TestEmptyQueryReturnsNothing(t *testing.T) {
	catalog := &fakeCatalog{}
	svc, sessions := newService(t, catalog, 0, nil)
	sess, err := sessions.Open(context.Background(), "", session.KindSale, session.Context{})
	require.NoError(t, err)

	res, err := svc.Search(context.Background(), search.Query{SessionID: sess.ID, Text: "   "})
	require.NoError(t, err)
	require.Empty(t, res.Products)
	require.Empty(t, catalog.calls())
}

func TestPurchaseSearchUsesCostPrice(t *testing.T) {
	catalog := &fakeCatalog{results: map[string][]upstream.Product{"rice": {rice}}}
	svc, sessions := newService(t, catalog, 0, nil)
	sess, err := sessions.Open(context.Background(), "", session.KindPurchase, session.Context{})
	require.NoError(t, err)

	res, err := svc.Search(context.Background(), search.Query{SessionID: sess.ID, Text: "rice", AutoAdd: true})
	require.NoError(t, err)
	require.True(t, d("10").Equal(res.Added.Price))
	require.Equal(t, []bool{true}, catalog.purchase)
}

func TestLineFromProductVariants(t *testing.T) {
	line, err := search.LineFromProduct(upstream.Product{
		ID:                     "r1",
		Name:                   "Reload",
		ProductType:            "reload",
		Price:                  d("500"),
		AdditionalCommission:   d("50"),
		ExtraCommission:        d("5"),
		FixedCommissionPercent: d("10"),
	}, false, false)
	require.NoError(t, err)
	require.Equal(t, cart.TypeReload, line.Type())
	require.True(t, d("400").Equal(line.UnitCost()))

	line, err = search.LineFromProduct(upstream.Product{ID: "x", Name: "Odd", ProductType: "bundle", Price: d("5")}, false, false)
	require.NoError(t, err)
	require.Equal(t, cart.TypeSimple, line.Type())
}

func TestSearchRateLimitedPerSession(t *testing.T) {
	catalog := &fakeCatalog{}
	svc, sessions := newService(t, catalog, 0, ratelimit.Fixed{Store: memory.NewStore()})
	sess, err := sessions.Open(context.Background(), "", session.KindSale, session.Context{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := svc.Search(context.Background(), search.Query{SessionID: sess.ID, Text: "x"})
		require.NoError(t, err)
	}
	_, err = svc.Search(context.Background(), search.Query{SessionID: sess.ID, Text: "x"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusTooManyRequests, appErr.HTTPStatus)
}

func TestSearchHandler(t *testing.T) {
	catalog := &fakeCatalog{results: map[string][]upstream.Product{"rice": {rice}}}
	svc, sessions := newService(t, catalog, 0, nil)
	sess, err := sessions.Open(context.Background(), "", session.KindSale, session.Context{})
	require.NoError(t, err)

	h := &search.Handler{Svc: svc}
	r := chi.NewRouter()
	r.Get("/api/v1/sessions/{id}/search", h.Search)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sess.ID.String()+"/search?q=rice&auto_add=true", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			Products []struct {
				ID string `json:"id"`
			} `json:"products"`
			Session struct {
				Display struct {
					Total string `json:"total"`
				} `json:"display"`
			} `json:"session"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Products, 1)
	require.Equal(t, "p1", body.Data.Products[0].ID)
	require.Equal(t, "$12.50", body.Data.Session.Display.Total)
}
