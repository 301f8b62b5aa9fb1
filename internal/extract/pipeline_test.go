package extract

import (
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"deal-ranker/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietPipeline() *Pipeline {
	return NewPipeline(log.New(io.Discard, "", 0))
}

func mustPage(t *testing.T, rawURL, body string) *Page {
	t.Helper()
	p, err := ParsePageString(rawURL, body)
	require.NoError(t, err)
	return p
}

const jsonLDProductPage = `<html><head>
<title>Acme X200 Headphones | Acme Store</title>
<script type="application/ld+json">{ this is not json </script>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"BreadcrumbList","itemListElement":[]},
  {"@type":"Product","name":"Acme X200 Wireless Headphones","sku":"X200-BLK",
   "image":["https://img.example.com/x200.jpg"],
   "brand":{"@type":"Brand","name":"Acme"},
   "aggregateRating":{"@type":"AggregateRating","ratingValue":"4.5","reviewCount":"1,210"},
   "offers":{"@type":"Offer","price":"199.99","priceCurrency":"USD",
     "availability":"https://schema.org/LimitedAvailability",
     "itemCondition":"https://schema.org/NewCondition"}}
]}
</script>
<meta property="og:title" content="Acme X200 (meta title)">
<meta property="product:price:amount" content="250.00">
</head><body><h1>Acme X200 DOM title</h1><span class="price">$300.00</span>
<div class="shipping">Free shipping, arrives in 2 days</div></body></html>`

func TestStructuredDataIgnoresOversizedReviewCount(t *testing.T) {
	t.Parallel()

	page := mustPage(t, "https://shop.example.com/p/1", `<html><head>
<script type="application/ld+json">
{"@type":"Product","name":"Acme Cable","aggregateRating":{"ratingValue":4,"reviewCount":1e30,"ratingCount":42},
 "offers":{"price":"9.99","priceCurrency":"USD"}}
</script></head><body></body></html>`)
	l := quietPipeline().Product(page).Product

	require.NotNil(t, l)
	require.NotNil(t, l.Seller.Reviews)
	assert.Equal(t, 42, *l.Seller.Reviews)
}

func TestProductPrefersStructuredData(t *testing.T) {
	t.Parallel()

	page := mustPage(t, "https://shop.example.com/products/acme-x200-123456", jsonLDProductPage)
	ctx := quietPipeline().Product(page)

	require.NotNil(t, ctx.Product)
	l := ctx.Product
	assert.Equal(t, model.PageProduct, ctx.Kind)
	assert.Equal(t, "Acme X200 Wireless Headphones", l.Title)
	assert.InDelta(t, 199.99, l.Price.Value, 1e-9)
	assert.Equal(t, "USD", l.Price.Currency)
	assert.Equal(t, model.ConditionNew, l.Condition)
	require.NotNil(t, l.Specs.Brand)
	assert.Equal(t, "Acme", *l.Specs.Brand)
	require.NotNil(t, l.Specs.Model)
	assert.Equal(t, "X200-BLK", *l.Specs.Model)
	require.NotNil(t, l.Seller.Rating)
	assert.InDelta(t, 90, *l.Seller.Rating, 1e-9)
	require.NotNil(t, l.Seller.Reviews)
	assert.Equal(t, 1210, *l.Seller.Reviews)
	require.NotNil(t, l.Signals.LowStock)
	assert.True(t, *l.Signals.LowStock)

	// shipping only exists in the DOM, so the heuristic layer fills it in
	require.NotNil(t, l.Shipping.Cost)
	assert.Equal(t, 0.0, *l.Shipping.Cost)
	require.NotNil(t, l.Shipping.EtaDays)
	assert.Equal(t, 2, *l.Shipping.EtaDays)

	assert.Equal(t, "https://shop.example.com/products/acme-x200-123456", l.URL)
	assert.Equal(t, model.Source("shop.example.com"), l.Source)
	assert.Contains(t, l.Specs.KeyTerms, "acme")
	assert.True(t, l.Usable())
}

func TestProductMetadataFillsMissingFields(t *testing.T) {
	t.Parallel()

	body := `<html><head>
<meta property="og:title" content="Contoso 27in Monitor">
<meta property="product:price:amount" content="249.00">
<meta property="product:price:currency" content="EUR">
<meta property="product:brand" content="Contoso">
<meta property="product:condition" content="refurbished">
</head><body><h1>ignored heading</h1></body></html>`
	ctx := quietPipeline().Product(mustPage(t, "https://www.example.org/item/98765432", body))

	require.NotNil(t, ctx.Product)
	assert.Equal(t, "Contoso 27in Monitor", ctx.Product.Title)
	assert.InDelta(t, 249.0, ctx.Product.Price.Value, 1e-9)
	assert.Equal(t, "EUR", ctx.Product.Price.Currency)
	assert.Equal(t, model.ConditionRefurb, ctx.Product.Condition)
	assert.True(t, ctx.Product.Returns.Unknown)
	assert.Nil(t, ctx.Product.Shipping.Cost)
}

func TestProductDOMHeuristics(t *testing.T) {
	t.Parallel()

	body := `<html><body>
<h1 class="product-title">Renewed ThinkPad T14 Laptop</h1>
<div class="product-price">$1,299.99</div>
<div class="shipping">+$12.50 expedited shipping</div>
<div class="condition">Renewed</div>
<div class="brand">Lenovo</div>
</body></html>`
	ctx := quietPipeline().Product(mustPage(t, "https://laptops.example.com/t14", body))

	require.NotNil(t, ctx.Product)
	l := ctx.Product
	assert.Equal(t, "Renewed ThinkPad T14 Laptop", l.Title)
	assert.InDelta(t, 1299.99, l.Price.Value, 1e-9)
	require.NotNil(t, l.Shipping.Cost)
	assert.InDelta(t, 12.50, *l.Shipping.Cost, 1e-9)
	assert.Equal(t, model.ShippingExpedited, l.Shipping.Method)
	assert.Equal(t, model.ConditionRefurb, l.Condition)
	assert.Equal(t, "Lenovo", l.BrandName())
	assert.True(t, strings.HasPrefix(l.ID, "gen-"))
}

func TestEbayProductCascadeRunsBeforeGeneric(t *testing.T) {
	t.Parallel()

	body := `<html><body>
<h1>Generic heading</h1>
<h1 class="x-item-title__mainTitle"><span>ASUS Dual RTX 4070 12GB</span></h1>
<div class="x-price-primary"><span>US $579.00</span></div>
<div class="x-item-condition-text"><span class="ux-textspans">Open box</span></div>
</body></html>`
	ctx := quietPipeline().Product(mustPage(t, "https://www.ebay.com/itm/256111222333", body))

	require.NotNil(t, ctx.Product)
	assert.Equal(t, model.SourceEbay, ctx.Product.Source)
	assert.Equal(t, "ASUS Dual RTX 4070 12GB", ctx.Product.Title)
	assert.InDelta(t, 579.0, ctx.Product.Price.Value, 1e-9)
	assert.Equal(t, "ebay-256111222333", ctx.Product.ID)
}

func TestProductFallsBackToKeywords(t *testing.T) {
	t.Parallel()

	body := `<html><head><title>Cheap | GPU - deals: rtx 4070 super</title></head><body><p>nothing here</p></body></html>`
	ctx := quietPipeline().Product(mustPage(t, "https://blog.example.com/post", body))

	assert.Nil(t, ctx.Product)
	assert.Equal(t, model.PageUnknown, ctx.Kind)
	assert.Equal(t, "Cheap GPU deals rtx 4070", ctx.Keywords)
}

func TestProductKeywordsFromMetaWhenNoTitle(t *testing.T) {
	t.Parallel()

	body := `<html><head><meta name="keywords" content="usb-c,hub,7-port,aluminium,powered,extra"></head><body></body></html>`
	ctx := quietPipeline().Product(mustPage(t, "https://blog.example.com/hubs", body))

	assert.Equal(t, "usb c hub 7 port", ctx.Keywords)
}

type stubStrategy struct {
	name   string
	fields Fields
	calls  int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(*Page) (Fields, bool) {
	s.calls++
	return s.fields, !s.fields.Empty()
}

func TestStrategyPriorityFirstMatchWins(t *testing.T) {
	t.Parallel()

	first := &stubStrategy{name: "first", fields: Fields{Title: model.String("From first"), Price: model.Float(10)}}
	second := &stubStrategy{name: "second", fields: Fields{Title: model.String("From second"), Price: model.Float(20), Brand: model.String("Brandy")}}
	empty := &stubStrategy{name: "empty"}

	p := quietPipeline().WithStrategies(empty, first, second)
	ctx := p.Product(mustPage(t, "https://x.example.com/a", "<html></html>"))

	require.NotNil(t, ctx.Product)
	assert.Equal(t, "From first", ctx.Product.Title)
	assert.Equal(t, 10.0, ctx.Product.Price.Value)
	assert.Equal(t, "Brandy", ctx.Product.BrandName())
	assert.Equal(t, 1, empty.calls)
}

const ebaySearchPage = `<html><head><title>rtx 4070 for sale | eBay</title></head><body>
<ul class="srp-results">
<li class="s-item"><div class="s-item__title">Shop on eBay</div><a class="s-item__link" href="https://ebay.com/itm/123456"></a><span class="s-item__price">$20.00</span></li>
<li class="s-item"><a class="s-item__link" href="https://www.ebay.com/itm/256000000001"><div class="s-item__title"><span role="heading">New Listing MSI RTX 4070 Ventus</span></div></a>
  <span class="s-item__price">$549.99</span><span class="s-item__shipping">Free shipping</span><span class="SECONDARY_INFO">Brand New</span>
  <span class="s-item__seller-info-text">gpuhouse (2,311) 99.1%</span></li>
<li class="s-item"><a class="s-item__link" href="https://www.ebay.com/itm/256000000002"><div class="s-item__title"><span role="heading">Gigabyte RTX 4070 Windforce</span></div></a>
  <span class="s-item__price">$580.00</span><span class="s-item__shipping">+$15.00 shipping</span><span class="SECONDARY_INFO">Pre-Owned</span></li>
<li class="s-item"><span class="s-item__price">$1.00</span></li>
</ul></body></html>`

func TestSearchEbayResults(t *testing.T) {
	t.Parallel()

	page := mustPage(t, "https://www.ebay.com/sch/i.html?_nkw=rtx+4070&_sacat=0", ebaySearchPage)
	res := quietPipeline().Extract(page)

	assert.Equal(t, model.PageSearch, res.Context.Kind)
	assert.Equal(t, "rtx 4070", res.Context.Query)
	require.Len(t, res.Listings, 4)

	usable := model.FilterUsable(res.Listings)
	require.Len(t, usable, 2)

	first := usable[0]
	assert.Equal(t, "MSI RTX 4070 Ventus", first.Title)
	assert.Equal(t, "ebay-256000000001", first.ID)
	assert.InDelta(t, 549.99, first.Price.Value, 1e-9)
	require.NotNil(t, first.Shipping.Cost)
	assert.Equal(t, 0.0, *first.Shipping.Cost)
	assert.Equal(t, model.ConditionNew, first.Condition)
	require.NotNil(t, first.Seller.Rating)
	assert.InDelta(t, 99.1, *first.Seller.Rating, 1e-9)

	second := usable[1]
	assert.Equal(t, model.ConditionUsed, second.Condition)
	require.NotNil(t, second.Shipping.Cost)
	assert.InDelta(t, 15.0, *second.Shipping.Cost, 1e-9)
}

func TestSearchResultsBoundedToTwenty(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&b, `<div class="product-card"><h3>Widget %d</h3><a href="/p/widget-%d">view</a><span class="price">$%d.00</span></div>`, i, i, i)
	}
	b.WriteString("</body></html>")

	page := mustPage(t, "https://shop.example.com/search?q=widget", b.String())
	ctx, listings := quietPipeline().Search(page, 50)

	assert.Equal(t, "widget", ctx.Query)
	require.Len(t, listings, MaxSearchResults)
	assert.Equal(t, "Widget 1", listings[0].Title)
	assert.Equal(t, "https://shop.example.com/p/widget-1", listings[0].URL)
	assert.Equal(t, 20.0, listings[19].Price.Value)
}

func TestDetectSearchQueryFallbacks(t *testing.T) {
	t.Parallel()

	fromInput := mustPage(t, "https://shop.example.com/results", `<html><body><input type="search" value=" usb hub "></body></html>`)
	assert.Equal(t, "usb hub", DetectSearchQuery(fromInput))

	fromHeading := mustPage(t, "https://shop.example.com/results", `<html><body><h1>Showing results for "mechanical keyboard"</h1></body></html>`)
	assert.Equal(t, "mechanical keyboard", DetectSearchQuery(fromHeading))

	fromTitle := mustPage(t, "https://shop.example.com/results", `<html><head><title>Standing Desk for sale | Example Shop</title></head><body></body></html>`)
	assert.Equal(t, "Standing Desk", DetectSearchQuery(fromTitle))
}

func TestSourceForURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.SourceEbay, SourceForURL("https://www.ebay.co.uk/itm/1"))
	assert.Equal(t, model.SourceNewegg, SourceForURL("https://www.newegg.com/p/N82E1"))
	assert.Equal(t, model.Source("shop.example.com"), SourceForURL("https://shop.example.com/x"))
	assert.Equal(t, model.SourceManual, SourceForURL(""))
}
