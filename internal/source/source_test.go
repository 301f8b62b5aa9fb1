package source

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deal-ranker/internal/extract"
	"deal-ranker/internal/model"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestRemoteSearchNormalizesListings(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search/newegg", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"listings":[
			{"title":"  RTX   4070 Card ","url":"https://www.newegg.com/p/N82E16814","price":{"value":549.99},"condition":"bogus"},
			{"title":"","url":"https://example.com/x"}
		]}`)
	}))
	defer srv.Close()

	r := NewRemote("newegg", srv.URL+"/", srv.Client())
	listings, err := r.Search(context.Background(), "rtx 4070", 5)
	require.NoError(t, err)
	assert.Equal(t, "rtx 4070", got.Query)
	assert.Equal(t, 5, got.MaxResults)

	require.Len(t, listings, 1)
	l := listings[0]
	assert.Equal(t, "RTX 4070 Card", l.Title)
	assert.Equal(t, model.Source("newegg"), l.Source)
	assert.Equal(t, model.DefaultCurrency, l.Price.Currency)
	assert.Equal(t, model.ConditionUnknown, l.Condition)
	assert.True(t, l.Returns.Unknown)
	assert.NotEmpty(t, l.ID)
}

func TestRemoteSearchErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"listings":[]}`},
		{"missing listings", http.StatusOK, `{"items":[]}`},
		{"malformed body", http.StatusOK, `{"listings":`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewRemote("ebay", srv.URL, srv.Client()).Search(context.Background(), "q", 3)
			assert.Error(t, err)
		})
	}
}

func TestPageSearchExtractsCards(t *testing.T) {
	html := `<html><body>
	<div class="product-card"><h3><a href="https://shop.example.com/p/mx-master-3s">Logitech MX Master 3S Mouse</a></h3><span class="price">$89.99</span></div>
	<div class="product-card"><h3><a href="https://shop.example.com/p/mx-anywhere-3">Logitech MX Anywhere 3</a></h3><span class="price">$59.00</span></div>
	</body></html>`
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		_, _ = io.WriteString(w, html)
	}))
	defer srv.Close()

	p := NewPage("ebay-page", srv.URL+"/search?q={query}", srv.Client(), extract.NewPipeline(quietLogger()), quietLogger())
	listings, err := p.Search(context.Background(), "mx master", 10)
	require.NoError(t, err)
	assert.Equal(t, "mx master", query)
	require.Len(t, listings, 2)
	assert.Equal(t, "Logitech MX Master 3S Mouse", listings[0].Title)
	assert.InDelta(t, 89.99, listings[0].Price.Value, 1e-9)
}

func TestPageSearchRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewPage("blocked", srv.URL+"/?q={query}", srv.Client(), nil, quietLogger())
	_, err := p.Search(context.Background(), "anything", 5)
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	_, err := Build(Config{Name: "", Kind: KindRemote, BaseURL: "http://x"}, nil, nil, quietLogger())
	assert.Error(t, err)

	_, err = Build(Config{Name: "r", Kind: KindRemote}, nil, nil, quietLogger())
	assert.Error(t, err)

	_, err = Build(Config{Name: "p", Kind: KindPage, URLTemplate: "http://x/search"}, nil, nil, quietLogger())
	assert.Error(t, err)

	_, err = Build(Config{Name: "x", Kind: "ftp"}, nil, nil, quietLogger())
	assert.Error(t, err)

	src, err := Build(Config{Name: "newegg", BaseURL: "http://x"}, nil, nil, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &Remote{}, src)

	src, err = Build(Config{Name: "ebay", Kind: KindEbay, ClientID: "id", ClientSecret: "secret"}, nil, nil, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &Ebay{}, src)
}

func TestConfigTimeoutOrDefault(t *testing.T) {
	assert.Equal(t, 2*time.Second, Config{Timeout: "2s"}.TimeoutOrDefault(time.Minute))
	assert.Equal(t, time.Minute, Config{Timeout: "soon"}.TimeoutOrDefault(time.Minute))
	assert.Equal(t, time.Minute, Config{}.TimeoutOrDefault(time.Minute))
}

const ebayFixture = `{"itemSummaries":[
 {"itemId":"v1|1234567890|0","title":"Sony WH-1000XM5 Wireless Headphones",
  "itemWebUrl":"https://www.ebay.com/itm/1234567890","image":{"imageUrl":"https://i.ebayimg.com/a.jpg"},
  "price":{"value":"279.99","currency":"USD"},"condition":"Certified - Refurbished","conditionId":"2010",
  "shippingOptions":[{"shippingCost":{"value":"0.00","currency":"USD"},"minEstimatedDeliveryDays":2,"maxEstimatedDeliveryDays":4,"shippingServiceCode":"ExpeditedShipping"}],
  "returnTerms":{"returnsAccepted":true,"returnPeriod":{"value":1,"unit":"MONTH"}},
  "seller":{"username":"sony_outlet","feedbackPercentage":"99.2","feedbackScore":15230,"sellerAccountType":"BUSINESS"},
  "adId":"ad-1","quantityLimitPerBuyer":2},
 {"itemId":"v1|2234567890|0","title":"Sony WH-1000XM4","itemWebUrl":"https://www.ebay.com/itm/2234567890",
  "price":{"value":199.5,"currency":"USD"},"conditionId":"3000","seller":{"username":"bob","feedbackPercentage":97,"sellerAccountType":"INDIVIDUAL"}},
 {"itemId":"v1|3","title":"","itemWebUrl":""}
]}`

func newEbayServer(t *testing.T, tokenCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		_, _ = io.WriteString(w, `{"access_token":"tok","expires_in":3600}`)
	})
	mux.HandleFunc("/browse/item_summary/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "EBAY_US", r.Header.Get("X-EBAY-C-MARKETPLACE-ID"))
		assert.Equal(t, "buyingOptions:{FIXED_PRICE}", r.URL.Query().Get("filter"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, ebayFixture)
	})
	return httptest.NewServer(mux)
}

func TestEbaySearchMapsItemSummaries(t *testing.T) {
	var calls int32
	srv := newEbayServer(t, &calls)
	defer srv.Close()

	e := NewEbay(EbayConfig{ClientID: "id", ClientSecret: "secret", BrowseURL: srv.URL + "/browse", AuthURL: srv.URL + "/oauth"}, srv.Client(), quietLogger())
	listings, err := e.Search(context.Background(), "sony xm5", 80)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	first := listings[0]
	assert.Equal(t, "v1|1234567890|0", first.ID)
	assert.Equal(t, model.SourceEbay, first.Source)
	assert.InDelta(t, 279.99, first.Price.Value, 1e-9)
	assert.Equal(t, model.ConditionRefurb, first.Condition)
	require.NotNil(t, first.Shipping.Cost)
	assert.Zero(t, *first.Shipping.Cost)
	require.NotNil(t, first.Shipping.EtaDays)
	assert.Equal(t, 3, *first.Shipping.EtaDays)
	assert.Equal(t, model.ShippingExpedited, first.Shipping.Method)
	require.NotNil(t, first.Returns.WindowDays)
	assert.Equal(t, 30, *first.Returns.WindowDays)
	assert.False(t, first.Returns.Unknown)
	require.NotNil(t, first.Seller.Rating)
	assert.InDelta(t, 99.2, *first.Seller.Rating, 1e-9)
	assert.Equal(t, 15230, *first.Seller.Reviews)
	assert.True(t, *first.Seller.IsOfficial)
	assert.Equal(t, "Sony", first.BrandName())
	assert.Contains(t, first.Specs.KeyTerms, "wireless")
	assert.True(t, first.Signals.Sponsored)
	assert.True(t, *first.Signals.LowStock)

	second := listings[1]
	assert.Equal(t, model.ConditionUsed, second.Condition)
	assert.True(t, second.Returns.Unknown)
	assert.Nil(t, second.Shipping.Cost)
	assert.False(t, *second.Seller.IsOfficial)
	assert.Nil(t, second.Seller.Reviews)
}

func TestEbayTokenCachedUntilNearExpiry(t *testing.T) {
	var calls int32
	srv := newEbayServer(t, &calls)
	defer srv.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEbay(EbayConfig{ClientID: "id", ClientSecret: "secret", BrowseURL: srv.URL + "/browse", AuthURL: srv.URL + "/oauth"}, srv.Client(), quietLogger())
	e.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := e.Search(ctx, "a", 60)
	require.NoError(t, err)
	now = now.Add(50 * time.Minute)
	_, err = e.Search(ctx, "b", 60)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// 距过期不足 5 分钟时重新获取。
	now = now.Add(6 * time.Minute)
	_, err = e.Search(ctx, "c", 60)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestEbayNotConfiguredReturnsNothing(t *testing.T) {
	e := NewEbay(EbayConfig{BrowseURL: "http://127.0.0.1:1"}, nil, quietLogger())
	listings, err := e.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestEbayCondition(t *testing.T) {
	assert.Equal(t, model.ConditionNew, ebayCondition("", "1000"))
	assert.Equal(t, model.ConditionNew, ebayCondition("Brand New", ""))
	assert.Equal(t, model.ConditionRefurb, ebayCondition("Seller refurbished", "2500"))
	assert.Equal(t, model.ConditionUsed, ebayCondition("Pre-owned", ""))
	assert.Equal(t, model.ConditionUsed, ebayCondition("", "5000"))
	assert.Equal(t, model.ConditionUnknown, ebayCondition("For parts", "9999"))
	assert.True(t, strings.HasPrefix(string(ebayCondition("Renewed", "")), "refurb"))
}
