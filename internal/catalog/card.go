package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-rod/rod"

	"github.com/eduard256/wb-mcp-server/internal/browser"
)

// cardURL builds the price/stock descriptor request for a semicolon-joined id
// list under the given zone code.
func cardURL(baseURL string, ids []int64, dest string) string {
	joined := make([]string, 0, len(ids))
	for _, id := range ids {
		joined = append(joined, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("%s/cards/v2/detail?appType=1&curr=rub&dest=%s&spp=30&nm=%s",
		baseURL, dest, strings.Join(joined, ";"))
}

// pageCardSource issues descriptor requests as in-page fetches through the
// already-authenticated browser context, so they inherit the anti-bot
// clearance established during warm-up.
type pageCardSource struct {
	session *browser.Session
	baseURL string
}

func (p *pageCardSource) FetchCards(ctx context.Context, ids []int64, dest string) ([]cardProduct, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := p.session.EnsureReady(ctx); err != nil {
		return nil, err
	}
	page, err := p.session.Page()
	if err != nil {
		return nil, err
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           `(u) => fetch(u, { credentials: 'include' }).then(r => r.text())`,
		JSArgs:       []interface{}{cardURL(p.baseURL, ids, dest)},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("card descriptor fetch: %w", err)
	}
	return decodeCardResponse([]byte(res.Value.Str()))
}
