package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"

	"github.com/eduard256/wb-mcp-server/internal/browser"
)

// searchPage drives the shared rendered page. The rod implementation runs
// against the live site; tests substitute canned extractions so engine logic
// runs without Chromium.
type searchPage interface {
	// ExtractCards renders pageURL and extracts up to limit result cards.
	// A page that renders no cards within the wait timeout yields nil, nil.
	ExtractCards(ctx context.Context, pageURL string, limit int) ([]extractedCard, error)

	// Snapshot renders pageURL and returns its HTML. Empty when no cards
	// rendered within the wait timeout.
	Snapshot(ctx context.Context, pageURL string) (string, error)
}

// extractedCard is the raw per-card payload returned by the in-page
// extraction script.
type extractedCard struct {
	ID        int64  `json:"id"`
	URL       string `json:"url"`
	Name      string `json:"name"`
	Brand     string `json:"brand"`
	PriceText string `json:"priceText"`
	Thumb     string `json:"thumb"`
}

const extractCardsScript = `(cfg) => {
	const firstText = (root, sels) => {
		for (const s of sels) {
			const el = root.querySelector(s);
			if (el && el.textContent && el.textContent.trim()) return el.textContent.trim();
		}
		return '';
	};
	let nodes = [];
	for (const s of cfg.cardSelectors) {
		nodes = Array.from(document.querySelectorAll(s));
		if (nodes.length) break;
	}
	const cards = [];
	for (const el of nodes) {
		if (cards.length >= cfg.limit) break;
		const id = parseInt(el.getAttribute('data-nm-id') || '0', 10);
		if (!id) continue;
		let thumb = '';
		for (const s of cfg.thumbSelectors) {
			const img = el.querySelector(s);
			if (img && img.src) { thumb = img.src; break; }
		}
		const link = el.querySelector('a[href*="/catalog/"]');
		cards.push({
			id: id,
			url: link ? link.href : '',
			name: firstText(el, cfg.nameSelectors),
			brand: firstText(el, cfg.brandSelectors),
			priceText: firstText(el, cfg.priceSelectors),
			thumb: thumb,
		});
	}
	return cards;
}`

// rodSearchPage runs extraction sequences against the shared browser page.
type rodSearchPage struct {
	cfg     Config
	session *browser.Session

	// navMu serializes every navigate+wait+extract sequence on the shared
	// page, including the settle delay. Descriptor-only calls overlap safely.
	navMu sync.Mutex
}

// prepare navigates to pageURL and waits for the first result card. False
// without error means the page rendered no cards within the wait timeout.
func (p *rodSearchPage) prepare(ctx context.Context, pageURL string) (*rod.Page, bool, error) {
	if err := p.session.EnsureReady(ctx); err != nil {
		return nil, false, err
	}
	if err := p.session.Navigate(ctx, pageURL); err != nil {
		return nil, false, err
	}
	page, err := p.session.Page()
	if err != nil {
		return nil, false, err
	}

	joined := strings.Join(cardSelectors, ", ")
	if _, err := page.Context(ctx).Timeout(p.cfg.waitTimeout()).Element(joined); err != nil {
		return nil, false, nil
	}
	// Prices render asynchronously after card mount.
	if err := sleepCtx(ctx, p.cfg.settleDelay()); err != nil {
		return nil, false, err
	}
	return page, true, nil
}

func (p *rodSearchPage) ExtractCards(ctx context.Context, pageURL string, limit int) ([]extractedCard, error) {
	p.navMu.Lock()
	defer p.navMu.Unlock()

	page, rendered, err := p.prepare(ctx, pageURL)
	if err != nil || !rendered {
		return nil, err
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: extractCardsScript,
		JSArgs: []interface{}{map[string]interface{}{
			"limit":          limit,
			"cardSelectors":  cardSelectors,
			"nameSelectors":  nameSelectors,
			"brandSelectors": brandSelectors,
			"priceSelectors": priceSelectors,
			"thumbSelectors": thumbSelectors,
		}},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract cards: %w", err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal extracted cards: %w", err)
	}
	var cards []extractedCard
	if err := json.Unmarshal(raw, &cards); err != nil {
		return nil, fmt.Errorf("decode extracted cards: %w", err)
	}
	return cards, nil
}

func (p *rodSearchPage) Snapshot(ctx context.Context, pageURL string) (string, error) {
	p.navMu.Lock()
	defer p.navMu.Unlock()

	page, rendered, err := p.prepare(ctx, pageURL)
	if err != nil || !rendered {
		return "", err
	}

	snapshot, err := page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("page snapshot: %w", err)
	}
	return snapshot, nil
}
