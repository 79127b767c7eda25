// Package catalog wraps the File Catalog's two read-only endpoints: the
// paged uuid query and the full-record fetch. The paging convention is
// an external constraint and must be preserved exactly: keys=uuid is
// sent on the first page only, the hard page size is Limit (9000 in
// production), and paging stops on the first page shorter than Limit.
package catalog

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/blinkdog/lta/pkg/ltatypes"
	"github.com/blinkdog/lta/pkg/metrics"
	"github.com/blinkdog/lta/pkg/restclient"
)

// Limit is the File Catalog's hard per-page result cap.
const Limit = 9000

// Client is a typed File Catalog collaborator. component labels the
// metrics this client emits, matching the owning worker's role tag.
type Client struct {
	rc        *restclient.Client
	component string
}

// New wraps an already-configured restclient.Client for the given
// component (e.g. "picker", "locator").
func New(rc *restclient.Client, component string) *Client {
	return &Client{rc: rc, component: component}
}

type queryResponse struct {
	Files []struct {
		UUID string `json:"uuid"`
	} `json:"files"`
}

// Query encodes the predicate as JSON and issues the paged uuid query,
// returning every uuid across all pages. query values are matched
// against File Catalog field names (e.g. "locations.site",
// "logical_name") the same way the Python workers build their mongo-style
// query documents.
func (c *Client) Query(ctx context.Context, predicate map[string]any) ([]string, error) {
	encoded, err := json.Marshal(predicate)
	if err != nil {
		return nil, err
	}

	var uuids []string
	start := 0
	firstPage := true
	for {
		values := url.Values{}
		values.Set("query", string(encoded))
		values.Set("limit", strconv.Itoa(Limit))
		values.Set("start", strconv.Itoa(start))
		if firstPage {
			values.Set("keys", "uuid")
		}

		var resp queryResponse
		if err := c.rc.Request(ctx, "GET", "/api/files?"+values.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		metrics.CatalogPagesFetchedTotal.WithLabelValues(c.component).Inc()

		for _, f := range resp.Files {
			uuids = append(uuids, f.UUID)
		}

		firstPage = false
		start += len(resp.Files)
		if len(resp.Files) < Limit {
			return uuids, nil
		}
	}
}

// GetFile fetches the full catalog record for uuid.
func (c *Client) GetFile(ctx context.Context, uuid string) (*ltatypes.CatalogRecord, error) {
	var rec ltatypes.CatalogRecord
	if err := c.rc.Request(ctx, "GET", "/api/files/"+uuid, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// OutboundPredicate builds the Picker's discovery query: files under
// path at source, matched redundantly on both locations.path and
// logical_name (spec.md section 9 flags this redundancy; it is
// preserved here as documented rather than silently fixed).
func OutboundPredicate(source, path string) map[string]any {
	return map[string]any{
		"locations.site": map[string]any{"$eq": source},
		"locations.path": map[string]any{"$regex": "^" + path},
		"logical_name":   map[string]any{"$regex": "^" + path},
	}
}

// ArchivedPredicate builds the Locator's discovery query: archived
// files under path at source.
func ArchivedPredicate(source, path string) map[string]any {
	return map[string]any{
		"locations.archive": true,
		"locations.site":    map[string]any{"$eq": source},
		"logical_name":      map[string]any{"$regex": "^" + path},
	}
}
