// Package picker implements the outbound archive-preparation worker:
// it translates a TransferRequest into one or more "specified" Bundles
// by querying the File Catalog for the files under the request's path
// and bin-packing them to the destination site's target bundle size.
package picker

import (
	"context"
	"fmt"

	"github.com/blinkdog/lta/pkg/binpack"
	"github.com/blinkdog/lta/pkg/catalog"
	"github.com/blinkdog/lta/pkg/config"
	"github.com/blinkdog/lta/pkg/ltatypes"
	"github.com/blinkdog/lta/pkg/metrics"
	"github.com/blinkdog/lta/pkg/workerrt"
)

// defaultMaxFileCount is the cardinality gate applied to every bin
// unless MAX_FILE_COUNT overrides it (spec.md section 4.2).
const defaultMaxFileCount = 25000

// Picker is a workerrt.Component specialization.
type Picker struct {
	Catalog *catalog.Client
	Sites   map[string]ltatypes.SiteConfig
}

// New builds a Picker over an already-constructed File Catalog client
// and site table.
func New(cat *catalog.Client, sites map[string]ltatypes.SiteConfig) *Picker {
	return &Picker{Catalog: cat, Sites: sites}
}

// ExpectedConfig declares the Picker's extra recognized options beyond
// config.CommonSpec.
func (p *Picker) ExpectedConfig() config.Spec {
	return config.Spec{
		"FILE_CATALOG_REST_URL": config.Required(),
		"FILE_CATALOG_REST_TOKEN": config.Required(),
		"LTA_SITE_CONFIG":         config.Required(),
		"MAX_FILE_COUNT":          config.Default(fmt.Sprintf("%d", defaultMaxFileCount)),
	}
}

// DoWorkClaim claims the next outbound TransferRequest for
// rt.Config["SOURCE_SITE"] and, if one was claimed, fully processes it
// per spec.md section 4.2. Any error between claim and successful
// emission quarantines the active TransferRequest and is swallowed;
// DoWorkClaim returns false, nil so the drain loop stops and the worker
// sleeps without surfacing a fault, matching the Picker's documented
// asymmetry with the Locator (spec.md section 9, Open Questions).
func (p *Picker) DoWorkClaim(ctx context.Context, rt *workerrt.Runtime) (bool, error) {
	source := rt.Config["SOURCE_SITE"]
	tr, err := rt.LTA.PopTransferRequestOutbound(ctx, source, rt.Claimant())
	if err != nil {
		return false, err
	}
	if tr == nil {
		return false, nil
	}

	if err := p.process(ctx, rt, tr); err != nil {
		rt.Quarantine(ctx, "TransferRequest", tr.UUID, err.Error())
		return false, nil
	}
	return true, nil
}

func (p *Picker) process(ctx context.Context, rt *workerrt.Runtime, tr *ltatypes.TransferRequest) error {
	uuids, err := p.Catalog.Query(ctx, catalog.OutboundPredicate(tr.Source, tr.Path))
	if err != nil {
		return err
	}
	metrics.CatalogFilesReturnedTotal.WithLabelValues(rt.Name()).Add(float64(len(uuids)))

	if len(uuids) == 0 {
		rt.Quarantine(ctx, "TransferRequest", tr.UUID, "File Catalog returned zero files for the TransferRequest")
		return nil
	}

	records := make([]ltatypes.CatalogRecord, 0, len(uuids))
	for _, u := range uuids {
		rec, err := p.Catalog.GetFile(ctx, u)
		if err != nil {
			return err
		}
		records = append(records, *rec)
	}

	siteCfg, ok := p.Sites[tr.Dest]
	if !ok {
		return fmt.Errorf("no site configuration for destination %q", tr.Dest)
	}

	items := make([]binpack.Item[ltatypes.CatalogRecord], len(records))
	for i, rec := range records {
		items[i] = binpack.Item[ltatypes.CatalogRecord]{Size: rec.FileSize, Value: rec}
	}
	bins := binpack.ToConstantVolume(items, siteCfg.BundleSize)

	maxFileCount := defaultMaxFileCount
	if v, ok := rt.Config["MAX_FILE_COUNT"]; ok && v != "" {
		fmt.Sscanf(v, "%d", &maxFileCount)
	}

	for _, bin := range bins {
		if len(bin) > maxFileCount {
			rt.Quarantine(ctx, "TransferRequest", tr.UUID, fmt.Sprintf(
				"bundle would contain %d files, exceeding MAX_FILE_COUNT=%d", len(bin), maxFileCount))
			return nil
		}
	}

	bundles := make([]ltatypes.Bundle, len(bins))
	for i, bin := range bins {
		files := make([]ltatypes.CatalogProjection, len(bin))
		for j, item := range bin {
			files[j] = ltatypes.AsCatalogProjection(item.Value)
		}
		bundles[i] = ltatypes.Bundle{
			Type:    "Bundle",
			Status:  "specified",
			Request: tr.UUID,
			Source:  tr.Source,
			Dest:    tr.Dest,
			Path:    tr.Path,
			Files:   files,
		}
	}

	if _, err := rt.LTA.BulkCreateBundles(ctx, bundles); err != nil {
		return err
	}
	metrics.BundlesCreatedTotal.WithLabelValues(rt.Name()).Add(float64(len(bundles)))
	return nil
}
