package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// mirrorHostCount is the fixed range of interchangeable basket replicas. A
// resource's presence is not guaranteed on any single one.
const mirrorHostCount = 30

// descriptorMaxBytes bounds a mirror response body read.
const descriptorMaxBytes = 1 << 20

// MirrorResolver locates the content descriptor of an item across the ordered
// set of basket mirror hosts.
type MirrorResolver struct {
	hosts  []string
	client *http.Client
	log    *zap.Logger
}

// NewMirrorResolver builds a resolver over the default basket host range.
func NewMirrorResolver(log *zap.Logger) *MirrorResolver {
	hosts := make([]string, 0, mirrorHostCount)
	for n := 1; n <= mirrorHostCount; n++ {
		hosts = append(hosts, fmt.Sprintf("https://basket-%02d.wbbasket.ru", n))
	}
	return NewMirrorResolverWithHosts(hosts, log)
}

// NewMirrorResolverWithHosts builds a resolver over an explicit host list.
func NewMirrorResolverWithHosts(hosts []string, log *zap.Logger) *MirrorResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &MirrorResolver{
		hosts:  hosts,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

// shardPath derives the two storage path segments from the numeric item id.
// Segment sizes are fixed by the source system's sharding scheme: one coarse
// bucket of 100k ids and one fine bucket of 1k ids.
func shardPath(id int64) (vol, part int64) {
	return id / 100_000, id / 1_000
}

// descriptorPath is the mirror-relative path of an item's descriptor document.
func descriptorPath(id int64) string {
	vol, part := shardPath(id)
	return fmt.Sprintf("/vol%d/part%d/%d/info/ru/card.json", vol, part, id)
}

// Resolve probes the mirror hosts in order and returns the first structurally
// valid content descriptor together with the host that served it. Exhaustion
// yields ErrNotFound: callers must treat a missing content descriptor as
// enrichment unavailable, not item unavailable.
func (r *MirrorResolver) Resolve(ctx context.Context, id int64) (*ContentDescriptor, string, error) {
	path := descriptorPath(id)
	for _, host := range r.hosts {
		desc, err := r.fetch(ctx, host+path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			continue
		}
		if desc.valid() {
			return desc, host, nil
		}
	}
	r.log.Debug("content descriptor not found on any mirror", zap.Int64("id", id))
	return nil, "", fmt.Errorf("content descriptor for %d: %w", id, ErrNotFound)
}

func (r *MirrorResolver) fetch(ctx context.Context, url string) (*ContentDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, descriptorMaxBytes))
	if err != nil {
		return nil, err
	}

	var desc ContentDescriptor
	if err := json.Unmarshal(body, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}
