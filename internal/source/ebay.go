package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"deal-ranker/internal/model"
)

const (
	defaultEbayBrowseURL = "https://api.ebay.com/buy/browse/v1"
	defaultEbayAuthURL   = "https://api.ebay.com/identity/v1/oauth2/token"
	ebayScope            = "https://api.ebay.com/oauth/api_scope"
	ebayMaxLimit         = 50
	tokenRefreshMargin   = 5 * time.Minute
)

// EbayConfig eBay Browse API 凭据与地址。
type EbayConfig struct {
	ClientID     string
	ClientSecret string
	BrowseURL    string
	AuthURL      string
	Marketplace  string
}

// Ebay eBay Browse API 连接器，OAuth token 在过期前 5 分钟内刷新。
type Ebay struct {
	cfg    EbayConfig
	client *http.Client
	logger *log.Logger
	now    func() time.Time

	mu           sync.Mutex
	token        string
	tokenExpires time.Time
}

// NewEbay 创建连接器，未配置凭据时 Search 返回空结果。
func NewEbay(cfg EbayConfig, client *http.Client, logger *log.Logger) *Ebay {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[ebay] ", log.LstdFlags)
	}
	if cfg.BrowseURL == "" {
		cfg.BrowseURL = defaultEbayBrowseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultEbayAuthURL
	}
	if cfg.Marketplace == "" {
		cfg.Marketplace = "EBAY_US"
	}
	cfg.BrowseURL = strings.TrimRight(cfg.BrowseURL, "/")
	return &Ebay{cfg: cfg, client: client, logger: logger, now: time.Now}
}

func (e *Ebay) Name() string { return string(model.SourceEbay) }

// Configured 是否配置了 API 凭据。
func (e *Ebay) Configured() bool {
	return e.cfg.ClientID != "" && e.cfg.ClientSecret != ""
}

// Search 只查询一口价商品。
func (e *Ebay) Search(ctx context.Context, query string, maxResults int) ([]model.Listing, error) {
	if !e.Configured() {
		e.logger.Printf("api credentials not configured, skipping query=%q", query)
		return []model.Listing{}, nil
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	token, err := e.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(min(maxResults, ebayMaxLimit)))
	params.Set("filter", "buyingOptions:{FIXED_PRICE}")
	endpoint := e.cfg.BrowseURL + "/item_summary/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", e.cfg.Marketplace)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ebay search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ebay search http %d", resp.StatusCode)
	}

	var body ebaySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ebay response: %w", err)
	}

	items := body.ItemSummaries
	if len(items) > maxResults {
		items = items[:maxResults]
	}
	listings := make([]model.Listing, 0, len(items))
	for _, item := range items {
		listings = append(listings, e.normalize(item))
	}
	usable := model.FilterUsable(listings)
	e.logger.Printf("found %d listings for %q", len(usable), query)
	return usable, nil
}

func (e *Ebay) accessToken(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token != "" && e.now().Before(e.tokenExpires.Add(-tokenRefreshMargin)) {
		return e.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", ebayScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("new token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(e.cfg.ClientID, e.cfg.ClientSecret)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ebay oauth: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ebay oauth http %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode oauth response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("ebay oauth: empty access token")
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 7200
	}
	e.token = tok.AccessToken
	e.tokenExpires = e.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return e.token, nil
}

func (e *Ebay) normalize(item ebayItem) model.Listing {
	l := model.NewListing()
	l.Source = model.SourceEbay
	l.Title = strings.TrimSpace(item.Title)
	l.URL = strings.TrimSpace(item.ItemWebURL)
	if item.Image != nil {
		l.ImageURL = model.String(item.Image.ImageURL)
	}
	if item.Price != nil {
		l.Price.Value = float64(item.Price.Value)
		if item.Price.Currency != "" {
			l.Price.Currency = item.Price.Currency
		}
	}
	l.Condition = ebayCondition(item.conditionText(), item.ConditionID)
	l.Shipping = ebayShipping(item.ShippingOptions)
	l.Returns = ebayReturns(item.ReturnTerms)
	l.Seller = ebaySellerInfo(item.Seller)
	l.Specs = ebaySpecs(l.Title)
	l.Signals.Sponsored = item.AdID != nil
	l.Signals.LowStock = model.Bool(item.QuantityLimitPerBuyer != nil)
	l.Raw.CapturedAt = e.now().UTC()
	l.Raw.Notes = model.String("conditionId: " + item.ConditionID)

	l.ID = strings.TrimSpace(item.ItemID)
	if l.ID == "" {
		l.ID = model.ListingID(model.SourceEbay, l.URL)
	}
	return l
}

var (
	ebayNewIDs    = map[string]struct{}{"1000": {}, "1500": {}}
	ebayRefurbIDs = map[string]struct{}{"2000": {}, "2010": {}, "2020": {}, "2030": {}}
	ebayUsedIDs   = map[string]struct{}{"3000": {}, "4000": {}, "5000": {}, "6000": {}, "7000": {}}
)

func ebayCondition(text, id string) model.Condition {
	text = strings.ToLower(text)
	_, isNew := ebayNewIDs[id]
	_, isRefurb := ebayRefurbIDs[id]
	_, isUsed := ebayUsedIDs[id]
	switch {
	case strings.Contains(text, "refurbished"), strings.Contains(text, "renewed"), isRefurb:
		return model.ConditionRefurb
	case strings.Contains(text, "new") && !strings.Contains(text, "like new"), isNew:
		return model.ConditionNew
	case isUsed, strings.Contains(text, "used"), strings.Contains(text, "pre-owned"):
		return model.ConditionUsed
	}
	return model.ConditionUnknown
}

func ebayShipping(options []ebayShippingOption) model.Shipping {
	s := model.Shipping{Method: model.ShippingUnknown}
	if len(options) == 0 {
		return s
	}
	opt := options[0]
	if opt.ShippingCost != nil {
		s.Cost = model.Float(float64(opt.ShippingCost.Value))
	}
	switch {
	case opt.MinEstimatedDeliveryDays != nil && opt.MaxEstimatedDeliveryDays != nil:
		s.EtaDays = model.Int((*opt.MinEstimatedDeliveryDays + *opt.MaxEstimatedDeliveryDays) / 2)
	case opt.MinEstimatedDeliveryDays != nil:
		s.EtaDays = model.Int(*opt.MinEstimatedDeliveryDays)
	case opt.MaxEstimatedDeliveryDays != nil:
		s.EtaDays = model.Int(*opt.MaxEstimatedDeliveryDays)
	}
	code := strings.ToLower(opt.ShippingServiceCode)
	switch {
	case strings.Contains(code, "expedited"), strings.Contains(code, "express"):
		s.Method = model.ShippingExpedited
	case strings.Contains(code, "standard"), strings.Contains(code, "economy"):
		s.Method = model.ShippingStandard
	}
	return s
}

func ebayReturns(terms *ebayReturnTerms) model.Returns {
	if terms == nil {
		return model.Returns{Unknown: true}
	}
	r := model.Returns{Available: model.Bool(terms.ReturnsAccepted)}
	if terms.ReturnPeriod != nil && terms.ReturnPeriod.Value > 0 {
		switch strings.ToUpper(terms.ReturnPeriod.Unit) {
		case "DAY":
			r.WindowDays = model.Int(terms.ReturnPeriod.Value)
		case "MONTH":
			r.WindowDays = model.Int(terms.ReturnPeriod.Value * 30)
		}
	}
	return r
}

func ebaySellerInfo(s *ebaySeller) model.Seller {
	if s == nil {
		return model.Seller{}
	}
	out := model.Seller{Name: s.Username}
	if s.FeedbackPercentage != nil && *s.FeedbackPercentage > 0 {
		out.Rating = model.NormalizeRating(float64(*s.FeedbackPercentage), 100)
	}
	if s.FeedbackScore != nil && *s.FeedbackScore > 0 {
		out.Reviews = model.Int(*s.FeedbackScore)
	}
	out.IsOfficial = model.Bool(s.SellerAccountType == "BUSINESS")
	return out
}

func ebaySpecs(title string) model.Specs {
	specs := model.Specs{KeyTerms: model.KeyTermsFromText(strings.ReplaceAll(title, "-", " "), 2, 10)}
	if fields := strings.Fields(title); len(fields) > 0 {
		specs.Brand = model.String(fields[0])
	}
	return specs
}

type ebaySearchResponse struct {
	ItemSummaries []ebayItem `json:"itemSummaries"`
}

type ebayAmount struct {
	Value    flexFloat `json:"value"`
	Currency string    `json:"currency"`
}

type ebayShippingOption struct {
	ShippingCost             *ebayAmount `json:"shippingCost"`
	MinEstimatedDeliveryDays *int        `json:"minEstimatedDeliveryDays"`
	MaxEstimatedDeliveryDays *int        `json:"maxEstimatedDeliveryDays"`
	ShippingServiceCode      string      `json:"shippingServiceCode"`
}

type ebayReturnTerms struct {
	ReturnsAccepted bool `json:"returnsAccepted"`
	ReturnPeriod    *struct {
		Value int    `json:"value"`
		Unit  string `json:"unit"`
	} `json:"returnPeriod"`
}

type ebaySeller struct {
	Username           string     `json:"username"`
	FeedbackPercentage *flexFloat `json:"feedbackPercentage"`
	FeedbackScore      *int       `json:"feedbackScore"`
	SellerAccountType  string     `json:"sellerAccountType"`
}

type ebayItem struct {
	ItemID     string `json:"itemId"`
	Title      string `json:"title"`
	ItemWebURL string `json:"itemWebUrl"`
	Image      *struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	Price                 *ebayAmount          `json:"price"`
	Condition             json.RawMessage      `json:"condition"`
	ConditionID           string               `json:"conditionId"`
	ShippingOptions       []ebayShippingOption `json:"shippingOptions"`
	ReturnTerms           *ebayReturnTerms     `json:"returnTerms"`
	Seller                *ebaySeller          `json:"seller"`
	AdID                  *string              `json:"adId"`
	QuantityLimitPerBuyer *int                 `json:"quantityLimitPerBuyer"`
}

// conditionText condition 可能是字符串，也可能是带 conditionDisplayName 的对象。
func (i ebayItem) conditionText() string {
	if len(i.Condition) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(i.Condition, &s); err == nil {
		return s
	}
	var obj struct {
		ConditionDisplayName string `json:"conditionDisplayName"`
	}
	if err := json.Unmarshal(i.Condition, &obj); err == nil {
		return obj.ConditionDisplayName
	}
	return ""
}

// flexFloat 兼容字符串与数字两种金额写法。
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", text, err)
	}
	*f = flexFloat(v)
	return nil
}
