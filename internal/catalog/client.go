package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eduard256/wb-mcp-server/internal/browser"
)

// MaxSearchLimit caps the number of cards extracted from one results page.
const MaxSearchLimit = 100

// fieldSelectors is an ordered list of independent lookup strategies for one
// rendered field. The exact document structure is externally controlled, so
// structural drift is handled by editing these lists, not the extraction
// logic.
type fieldSelectors []string

var (
	cardSelectors  = fieldSelectors{"article.product-card", "[data-nm-id]"}
	nameSelectors  = fieldSelectors{".product-card__name", ".goods-name"}
	brandSelectors = fieldSelectors{".product-card__brand", ".brand-name"}
	// Wallet price first: it reflects the effective price when present.
	priceSelectors = fieldSelectors{
		".price__wallet",
		"ins.price__lower-price",
		".price__lower-price",
		".product-card__price ins",
		".product-card__price",
	}
	thumbSelectors = fieldSelectors{"img.j-thumbnail", "img"}
)

// sortOptions is the fixed sort enumeration exposed by getFilters.
var sortOptions = []SortOption{
	{Value: "popular", Description: "по популярности"},
	{Value: "rate", Description: "по рейтингу"},
	{Value: "priceup", Description: "по возрастанию цены"},
	{Value: "pricedown", Description: "по убыванию цены"},
	{Value: "newly", Description: "по новинкам"},
	{Value: "benefit", Description: "по выгоде"},
}

// queryParams is the fixed explanation map of search parameter semantics.
var queryParams = map[string]string{
	"query":     "поисковый запрос",
	"sort":      "порядок сортировки: popular, rate, priceup, pricedown, newly, benefit",
	"page":      "номер страницы результатов, начиная с 1",
	"price_min": "нижняя граница цены в рублях",
	"price_max": "верхняя граница цены в рублях",
	"limit":     "максимум карточек в ответе (до 100)",
}

// Config holds extraction engine configuration.
type Config struct {
	SearchBaseURL string `json:"search_base_url"`
	CardBaseURL   string `json:"card_base_url"`
	WaitTimeoutMs int    `json:"wait_timeout_ms"`
	SettleDelayMs int    `json:"settle_delay_ms"`
	DefaultDest   string `json:"default_dest"`
}

// DefaultConfig returns production endpoints and delays.
func DefaultConfig() Config {
	return Config{
		SearchBaseURL: "https://www.wildberries.ru",
		CardBaseURL:   "https://card.wb.ru",
		WaitTimeoutMs: 10000,
		SettleDelayMs: 2000,
		DefaultDest:   "-1257786",
	}
}

func (c Config) waitTimeout() time.Duration {
	if c.WaitTimeoutMs == 0 {
		return 10 * time.Second
	}
	return time.Duration(c.WaitTimeoutMs) * time.Millisecond
}

func (c Config) settleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// cardSource fetches raw card descriptors for a set of ids under a zone code.
type cardSource interface {
	FetchCards(ctx context.Context, ids []int64, dest string) ([]cardProduct, error)
}

// Client is the acquisition engine. It shares one browser session and one
// destination context across all callers in the process; navigation-bearing
// operations are serialized by the page driver because they race on the
// shared page.
type Client struct {
	cfg     Config
	log     *zap.Logger
	session *browser.Session
	pages   searchPage
	cards   cardSource
	mirrors *MirrorResolver
	geo     *Geocoder

	destMu sync.RWMutex
	dest   string
}

// NewClient wires the engine against the live site through the given browser
// session.
func NewClient(cfg Config, session *browser.Session, log *zap.Logger) *Client {
	c := newClientWithSources(cfg, session, nil, nil, NewMirrorResolver(log), NewGeocoder(), log)
	c.pages = &rodSearchPage{cfg: cfg, session: session}
	c.cards = &pageCardSource{session: session, baseURL: cfg.CardBaseURL}
	return c
}

func newClientWithSources(cfg Config, session *browser.Session, pages searchPage, cards cardSource, mirrors *MirrorResolver, geo *Geocoder, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	dest := cfg.DefaultDest
	if dest == "" {
		dest = DefaultConfig().DefaultDest
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		session: session,
		pages:   pages,
		cards:   cards,
		mirrors: mirrors,
		geo:     geo,
		dest:    dest,
	}
}

// Dest returns the active zone code. It is read at call time by every
// price-bearing operation.
func (c *Client) Dest() string {
	c.destMu.RLock()
	defer c.destMu.RUnlock()
	return c.dest
}

// SetDestination resolves the address and stores the last (most specific)
// element of the candidate zone list as the active zone code. Resolution
// failure leaves the active zone unchanged and is reported as an unsuccessful
// result, not an error.
func (c *Client) SetDestination(ctx context.Context, address string) (*Destination, error) {
	resolved, candidates, err := c.geo.Geocode(ctx, address)
	if err != nil {
		c.log.Warn("geocode failed", zap.String("address", address), zap.Error(err))
		return &Destination{Success: false, Message: fmt.Sprintf("не удалось определить адрес: %v", err)}, nil
	}
	if len(candidates) == 0 {
		return &Destination{Success: false, Address: resolved, Message: "адрес не дал ни одной зоны доставки"}, nil
	}

	// The candidate list is ordered general to specific; the tail is the most
	// specific resolvable zone.
	zone := strconv.FormatInt(candidates[len(candidates)-1], 10)
	c.destMu.Lock()
	c.dest = zone
	c.destMu.Unlock()

	c.log.Info("destination updated", zap.String("address", resolved), zap.String("dest", zone))
	return &Destination{Success: true, Address: resolved, Dest: zone, Candidates: candidates}, nil
}

// buildSearchURL encodes search parameters into the site's native query
// string. Price bounds are multiplied into minor units and combined into one
// min;max token only when at least one bound is supplied.
func (c *Client) buildSearchURL(p SearchParams) string {
	q := url.Values{}
	q.Set("search", p.Query)
	sort := p.Sort
	if sort == "" {
		sort = "popular"
	}
	q.Set("sort", sort)
	page := p.Page
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))
	if p.PriceMin > 0 || p.PriceMax > 0 {
		lo := int64(p.PriceMin * 100)
		hi := int64(p.PriceMax * 100)
		if hi == 0 {
			hi = int64(maxPlausiblePrice) * 100
		}
		q.Set("priceU", fmt.Sprintf("%d;%d", lo, hi))
	}
	return c.cfg.SearchBaseURL + "/catalog/0/search.aspx?" + q.Encode()
}

// Search renders the search results page and extracts up to limit cards.
// Zero rendered cards within the wait timeout is a valid outcome and yields
// an empty list. Cards whose DOM price did not resolve are reconciled through
// one batched descriptor request.
func (c *Client) Search(ctx context.Context, p SearchParams) ([]Product, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	raw, err := c.pages.ExtractCards(ctx, c.buildSearchURL(p), limit)
	if err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(raw))
	var missing []int64
	for _, card := range raw {
		prod := Product{
			ID:        card.ID,
			URL:       card.URL,
			Name:      card.Name,
			Brand:     card.Brand,
			Thumbnail: card.Thumb,
		}
		if prod.URL == "" {
			prod.URL = productURL(card.ID)
		}
		if v, ok := parsePriceText(card.PriceText); ok {
			price := v
			prod.Price = &price
			prod.PriceFormatted = formatPrice(v)
		} else {
			missing = append(missing, card.ID)
		}
		products = append(products, prod)
	}

	// The rendered markup is the only reliable source of ranking and card
	// identity; the descriptor is the cheaper, more reliable source of price.
	if len(missing) > 0 {
		prices, err := c.fetchDescriptorPrices(ctx, missing)
		if err != nil {
			c.log.Warn("price reconciliation failed", zap.Int("cards", len(missing)), zap.Error(err))
		} else {
			mergePrices(products, prices)
		}
	}
	return products, nil
}

// fetchDescriptorPrices batch-fetches final prices for the given ids.
func (c *Client) fetchDescriptorPrices(ctx context.Context, ids []int64) (map[int64]float64, error) {
	products, err := c.cards.FetchCards(ctx, ids, c.Dest())
	if err != nil {
		return nil, err
	}
	prices := make(map[int64]float64, len(products))
	for i := range products {
		if _, final := products[i].descriptorPrices(); final != nil {
			prices[products[i].ID] = *final
		}
	}
	return prices, nil
}

// GetDetail assembles the full record for one item from the card descriptor
// and the mirror content descriptor. The card descriptor is the authoritative
// existence check; a missing content descriptor degrades description and
// attributes to empty.
func (c *Client) GetDetail(ctx context.Context, id int64) (*ProductDetail, error) {
	var (
		products   []cardProduct
		content    *ContentDescriptor
		mirrorHost string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = c.cards.FetchCards(gctx, []int64{id}, c.Dest())
		return err
	})
	g.Go(func() error {
		desc, host, err := c.mirrors.Resolve(gctx, id)
		if err != nil {
			// Enrichment unavailable, not item unavailable.
			return nil
		}
		content, mirrorHost = desc, host
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(products) == 0 {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return assembleDetail(&products[0], content, mirrorHost), nil
}

// assembleDetail merges the two descriptor sources into one detail record.
func assembleDetail(p *cardProduct, content *ContentDescriptor, mirrorHost string) *ProductDetail {
	basic, final := p.descriptorPrices()

	detail := &ProductDetail{
		ID:             p.ID,
		Name:           p.Name,
		Brand:          p.Brand,
		BrandID:        p.BrandID,
		Supplier:       p.Supplier,
		SupplierID:     p.SupplierID,
		SupplierRating: p.SupplierRating,
		Rating:         p.ReviewRating,
		Feedbacks:      p.Feedbacks,
		PriceBasic:     basic,
		PriceFinal:     final,
		Discount:       discountPercent(basic, final),
		DeliveryFrom:   p.Time1,
		DeliveryTo:     p.Time2,
		URL:            productURL(p.ID),
	}

	for _, col := range p.Colors {
		detail.Colors = append(detail.Colors, col.Name)
	}
	for i := range p.Sizes {
		s := &p.Sizes[i]
		variant := VariantStock{
			Name:     s.Name,
			OptionID: s.OptionID,
			Price:    s.finalPrice(),
		}
		if variant.Name == "" {
			variant.Name = s.OrigName
		}
		for _, st := range s.Stocks {
			variant.Stocks = append(variant.Stocks, WarehouseStock{
				WarehouseID:  st.Warehouse,
				Quantity:     st.Qty,
				DeliveryFrom: st.Time1,
				DeliveryTo:   st.Time2,
			})
		}
		detail.Sizes = append(detail.Sizes, variant)
	}

	if mirrorHost != "" && p.Pics > 0 {
		vol, part := shardPath(p.ID)
		for n := 1; n <= p.Pics; n++ {
			detail.Images = append(detail.Images,
				fmt.Sprintf("%s/vol%d/part%d/%d/images/big/%d.webp", mirrorHost, vol, part, p.ID, n))
		}
	}
	if content != nil {
		detail.Description = content.Description
		detail.Attributes = content.attributes()
		if detail.Name == "" {
			detail.Name = content.ImtName
		}
	}
	return detail
}

// GetList fetches descriptors for all ids in one request and maps each entry
// into a summary-detail hybrid. An empty descriptor result yields an empty
// list, not an error.
func (c *Client) GetList(ctx context.Context, ids []int64) ([]ListItem, error) {
	if len(ids) == 0 {
		return []ListItem{}, nil
	}
	products, err := c.cards.FetchCards(ctx, ids, c.Dest())
	if err != nil {
		return nil, err
	}

	items := make([]ListItem, 0, len(products))
	for i := range products {
		p := &products[i]
		basic, final := p.descriptorPrices()
		total := 0
		for j := range p.Sizes {
			for _, st := range p.Sizes[j].Stocks {
				total += st.Qty
			}
		}
		items = append(items, ListItem{
			ID:            p.ID,
			Name:          p.Name,
			Brand:         p.Brand,
			PriceBasic:    basic,
			PriceFinal:    final,
			Discount:      discountPercent(basic, final),
			Rating:        p.ReviewRating,
			Feedbacks:     p.Feedbacks,
			TotalQuantity: total,
			URL:           productURL(p.ID),
		})
	}
	return items, nil
}

// GetFilters renders the search page for the query, snapshots the rendered
// document, and collects the deduplicated labels of its filter controls
// alongside the fixed sort and parameter enumerations. A query with no
// results yields an empty filter set.
func (c *Client) GetFilters(ctx context.Context, query string) (*FiltersResult, error) {
	result := &FiltersResult{
		Query:       query,
		Filters:     []string{},
		SortOptions: sortOptions,
		Params:      queryParams,
	}

	snapshot, err := c.pages.Snapshot(ctx, c.buildSearchURL(SearchParams{Query: query}))
	if err != nil {
		return nil, err
	}
	if snapshot == "" {
		return result, nil
	}

	labels, err := extractFilterLabels(snapshot)
	if err != nil {
		return nil, err
	}
	result.Filters = dedupe(labels)
	return result, nil
}

// dedupe removes duplicate labels preserving discovery order.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Teardown releases the underlying browser session.
func (c *Client) Teardown() error {
	if c.session == nil {
		return nil
	}
	return c.session.Teardown()
}
