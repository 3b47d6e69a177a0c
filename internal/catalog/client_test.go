package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cardFixture = `{"data":{"products":[{
	"id":42,"name":"Кроссовки беговые","brand":"Nike","brandId":1,
	"supplier":"ООО Спорт","supplierId":77,"supplierRating":4.8,
	"reviewRating":4.6,"feedbacks":321,"pics":2,
	"colors":[{"name":"черный"},{"name":"белый"}],
	"sizes":[{"name":"42","origName":"42","optionId":111,
		"price":{"basic":299900,"product":219900,"total":219900},
		"stocks":[{"wh":507,"qty":5,"time1":24,"time2":48},{"wh":686,"qty":2,"time1":36,"time2":72}]}],
	"time1":24,"time2":48}]}}`

type fakeCards struct {
	payload []byte
	err     error
	gotIDs  []int64
	gotDest string
	calls   int
}

func (f *fakeCards) FetchCards(ctx context.Context, ids []int64, dest string) ([]cardProduct, error) {
	f.calls++
	f.gotIDs = ids
	f.gotDest = dest
	if f.err != nil {
		return nil, f.err
	}
	if f.payload == nil {
		return nil, nil
	}
	return decodeCardResponse(f.payload)
}

type fakeSearchPage struct {
	cards    []extractedCard
	snapshot string
	err      error
	gotURL   string
	gotLimit int
}

func (f *fakeSearchPage) ExtractCards(ctx context.Context, pageURL string, limit int) ([]extractedCard, error) {
	f.gotURL = pageURL
	f.gotLimit = limit
	return f.cards, f.err
}

func (f *fakeSearchPage) Snapshot(ctx context.Context, pageURL string) (string, error) {
	f.gotURL = pageURL
	return f.snapshot, f.err
}

func newTestClient(t *testing.T, pages searchPage, cards cardSource, mirrors *MirrorResolver, geo *Geocoder) *Client {
	t.Helper()
	if mirrors == nil {
		mirrors = NewMirrorResolverWithHosts(nil, nil)
	}
	return newClientWithSources(DefaultConfig(), nil, pages, cards, mirrors, geo, nil)
}

func TestGetDetail_AssemblesBothSources(t *testing.T) {
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"imt_name":"Кроссовки беговые","description":"Лёгкие кроссовки",
			"options":[{"name":"Состав","value":"текстиль"}],
			"grouped_options":[{"group_name":"Общие","options":[{"name":"Пол","value":"мужской"}]}]}`))
	}))
	defer mirror.Close()

	cards := &fakeCards{payload: []byte(cardFixture)}
	c := newTestClient(t, nil, cards, NewMirrorResolverWithHosts([]string{mirror.URL}, nil), nil)

	detail, err := c.GetDetail(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), detail.ID)
	assert.Equal(t, "Nike", detail.Brand)
	assert.Equal(t, "ООО Спорт", detail.Supplier)
	assert.Equal(t, 4.6, detail.Rating)
	assert.Equal(t, []string{"черный", "белый"}, detail.Colors)

	// Minor units divided by 100, uniformly.
	require.NotNil(t, detail.PriceBasic)
	require.NotNil(t, detail.PriceFinal)
	assert.Equal(t, 2999.0, *detail.PriceBasic)
	assert.Equal(t, 2199.0, *detail.PriceFinal)
	require.NotNil(t, detail.Discount)
	assert.Equal(t, 27, *detail.Discount)

	require.Len(t, detail.Sizes, 1)
	assert.Equal(t, int64(111), detail.Sizes[0].OptionID)
	require.Len(t, detail.Sizes[0].Stocks, 2)
	assert.Equal(t, int64(507), detail.Sizes[0].Stocks[0].WarehouseID)
	assert.Equal(t, 5, detail.Sizes[0].Stocks[0].Quantity)
	assert.Equal(t, 24, detail.DeliveryFrom)
	assert.Equal(t, 48, detail.DeliveryTo)

	assert.Equal(t, "Лёгкие кроссовки", detail.Description)
	require.Len(t, detail.Attributes, 2)
	assert.Equal(t, "Состав", detail.Attributes[0].Name)
	assert.Equal(t, "Пол", detail.Attributes[1].Name)

	require.Len(t, detail.Images, 2)
	assert.Equal(t, fmt.Sprintf("%s/vol0/part0/42/images/big/1.webp", mirror.URL), detail.Images[0])

	assert.Equal(t, "https://www.wildberries.ru/catalog/42/detail.aspx", detail.URL)
	assert.Equal(t, []int64{42}, cards.gotIDs)
}

func TestGetDetail_MirrorAbsenceDegradesGracefully(t *testing.T) {
	cards := &fakeCards{payload: []byte(cardFixture)}
	c := newTestClient(t, nil, cards, nil, nil)

	detail, err := c.GetDetail(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, detail.Description)
	assert.Empty(t, detail.Attributes)
	assert.Empty(t, detail.Images)
	// The authoritative source still fully populates the record.
	require.NotNil(t, detail.PriceFinal)
}

func TestGetDetail_MissingItemIsNotFound(t *testing.T) {
	cards := &fakeCards{payload: []byte(`{"data":{"products":[]}}`)}
	c := newTestClient(t, nil, cards, nil, nil)

	_, err := c.GetDetail(context.Background(), 404404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetDetail_DescriptorFailureIsFatal(t *testing.T) {
	cards := &fakeCards{err: errors.New("descriptor endpoint down")}
	c := newTestClient(t, nil, cards, nil, nil)

	_, err := c.GetDetail(context.Background(), 42)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestGetList_MapsDescriptorEntries(t *testing.T) {
	cards := &fakeCards{payload: []byte(cardFixture)}
	c := newTestClient(t, nil, cards, nil, nil)

	items, err := c.GetList(context.Background(), []int64{42, 43})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(42), items[0].ID)
	assert.Equal(t, 7, items[0].TotalQuantity)
	require.NotNil(t, items[0].Discount)
	assert.Equal(t, 27, *items[0].Discount)
	assert.Equal(t, []int64{42, 43}, cards.gotIDs)
}

func TestGetList_EmptyDescriptorIsEmptyList(t *testing.T) {
	cards := &fakeCards{payload: []byte(`{"data":{"products":[]}}`)}
	c := newTestClient(t, nil, cards, nil, nil)

	items, err := c.GetList(context.Background(), []int64{404404})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = c.GetList(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, cards.calls)
}

func TestSetDestination_TakesLastCandidate(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Москва, Тверская 1", r.URL.Query().Get("address"))
		_, _ = w.Write([]byte(`{"address":"г. Москва, ул. Тверская, д. 1","destinations":[12358058,-1257786,-446085]}`))
	}))
	defer geo.Close()

	c := newTestClient(t, nil, nil, nil, NewGeocoderWithBaseURL(geo.URL))

	dest, err := c.SetDestination(context.Background(), "Москва, Тверская 1")
	require.NoError(t, err)
	require.True(t, dest.Success)
	assert.Equal(t, "-446085", dest.Dest)
	assert.Equal(t, "-446085", c.Dest())
	assert.Equal(t, []int64{12358058, -1257786, -446085}, dest.Candidates)

	// Idempotent for the same resolvable address.
	again, err := c.SetDestination(context.Background(), "Москва, Тверская 1")
	require.NoError(t, err)
	assert.Equal(t, dest.Dest, again.Dest)
}

func TestSetDestination_FailureLeavesZoneUnchanged(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer geo.Close()

	c := newTestClient(t, nil, nil, nil, NewGeocoderWithBaseURL(geo.URL))
	before := c.Dest()

	dest, err := c.SetDestination(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, dest.Success)
	assert.Equal(t, before, c.Dest())
}

func TestSetDestination_EmptyCandidatesLeaveZoneUnchanged(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":"??","destinations":[]}`))
	}))
	defer geo.Close()

	c := newTestClient(t, nil, nil, nil, NewGeocoderWithBaseURL(geo.URL))
	before := c.Dest()

	dest, err := c.SetDestination(context.Background(), "неразрешимый адрес")
	require.NoError(t, err)
	assert.False(t, dest.Success)
	assert.Equal(t, before, c.Dest())
}

func TestBuildSearchURL(t *testing.T) {
	c := newTestClient(t, nil, nil, nil, nil)

	u := c.buildSearchURL(SearchParams{Query: "телефон"})
	assert.Contains(t, u, "search=%D1%82%D0%B5%D0%BB%D0%B5%D1%84%D0%BE%D0%BD")
	assert.Contains(t, u, "sort=popular")
	assert.Contains(t, u, "page=1")
	assert.NotContains(t, u, "priceU")

	u = c.buildSearchURL(SearchParams{Query: "q", Sort: "pricedown", Page: 3, PriceMin: 100, PriceMax: 500})
	assert.Contains(t, u, "sort=pricedown")
	assert.Contains(t, u, "page=3")
	assert.Contains(t, u, "priceU=10000%3B50000")

	// Only one bound still produces the range token.
	u = c.buildSearchURL(SearchParams{Query: "q", PriceMin: 100})
	assert.Contains(t, u, "priceU=10000%3B")
}

func TestCardURL(t *testing.T) {
	u := cardURL("https://card.wb.ru", []int64{1, 2, 3}, "-1257786")
	assert.Equal(t, "https://card.wb.ru/cards/v2/detail?appType=1&curr=rub&dest=-1257786&spp=30&nm=1;2;3", u)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"Бренд", "Цена", "Цвет"}, dedupe([]string{"Бренд", "Цена", "Бренд", "Цвет", "Цена"}))
	assert.Empty(t, dedupe(nil))
}

func TestFetchDescriptorPrices(t *testing.T) {
	cards := &fakeCards{payload: []byte(cardFixture)}
	c := newTestClient(t, nil, cards, nil, nil)

	prices, err := c.fetchDescriptorPrices(context.Background(), []int64{42})
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{42: 2199}, prices)
	assert.Equal(t, c.Dest(), cards.gotDest)
}

func TestSearch_NoCardsWithinTimeoutIsEmptyResult(t *testing.T) {
	pages := &fakeSearchPage{}
	c := newTestClient(t, pages, nil, nil, nil)

	products, err := c.Search(context.Background(), SearchParams{Query: "чугунный воздух"})
	require.NoError(t, err)
	require.NotNil(t, products)
	assert.Empty(t, products)
}

func TestSearch_LimitDefaultsAndClamps(t *testing.T) {
	pages := &fakeSearchPage{}
	c := newTestClient(t, pages, nil, nil, nil)

	_, err := c.Search(context.Background(), SearchParams{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, 20, pages.gotLimit)

	_, err = c.Search(context.Background(), SearchParams{Query: "q", Limit: 150})
	require.NoError(t, err)
	assert.Equal(t, MaxSearchLimit, pages.gotLimit)
	assert.Contains(t, pages.gotURL, "search=q")
}

func TestSearch_ReconcilesMissingPricesFromDescriptor(t *testing.T) {
	pages := &fakeSearchPage{cards: []extractedCard{
		{ID: 41, Name: "Первый", PriceText: "489 ₽"},
		{ID: 42, Name: "Второй"},
	}}
	cards := &fakeCards{payload: []byte(cardFixture)}
	c := newTestClient(t, pages, cards, nil, nil)

	products, err := c.Search(context.Background(), SearchParams{Query: "кроссовки"})
	require.NoError(t, err)
	require.Len(t, products, 2)

	// Only the card without a DOM price triggers the descriptor request.
	assert.Equal(t, []int64{42}, cards.gotIDs)

	require.NotNil(t, products[0].Price)
	assert.Equal(t, 489.0, *products[0].Price)
	require.NotNil(t, products[1].Price)
	assert.Equal(t, 2199.0, *products[1].Price)
	assert.Equal(t, "2199 ₽", products[1].PriceFormatted)
	assert.Equal(t, "https://www.wildberries.ru/catalog/42/detail.aspx", products[1].URL)
}

func TestSearch_ReconciliationFailureKeepsCards(t *testing.T) {
	pages := &fakeSearchPage{cards: []extractedCard{{ID: 42, Name: "Второй"}}}
	cards := &fakeCards{err: errors.New("descriptor endpoint down")}
	c := newTestClient(t, pages, cards, nil, nil)

	products, err := c.Search(context.Background(), SearchParams{Query: "кроссовки"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Nil(t, products[0].Price)
}

func TestGetFilters_CollectsLabelsFromSnapshot(t *testing.T) {
	pages := &fakeSearchPage{snapshot: `<html><body>
		<div class="dropdown-filter__btn-name"> Бренд </div>
		<div class="dropdown-filter__btn-name">Цена</div>
		<span class="filter__title">Цвет</span>
		<div class="dropdown-filter__btn-name">Бренд</div>
	</body></html>`}
	c := newTestClient(t, pages, nil, nil, nil)

	res, err := c.GetFilters(context.Background(), "платье")
	require.NoError(t, err)
	assert.Equal(t, "платье", res.Query)
	assert.Equal(t, []string{"Бренд", "Цена", "Цвет"}, res.Filters)
	assert.Len(t, res.SortOptions, 6)
	assert.NotEmpty(t, res.Params)
	assert.Contains(t, pages.gotURL, "search=%D0%BF%D0%BB%D0%B0%D1%82%D1%8C%D0%B5")
}

func TestGetFilters_EmptyPageIsEmptyFilterSet(t *testing.T) {
	pages := &fakeSearchPage{}
	c := newTestClient(t, pages, nil, nil, nil)

	res, err := c.GetFilters(context.Background(), "несуществующий запрос")
	require.NoError(t, err)
	assert.Empty(t, res.Filters)
	assert.NotNil(t, res.Filters)
}
