// Package locator implements the inbound (restoration) archive worker:
// it translates a restore TransferRequest into one or more "located"
// Bundles that reference archive objects already known to the File
// Catalog at the remote site.
package locator

import (
	"context"
	"path"
	"strings"

	"github.com/blinkdog/lta/pkg/catalog"
	"github.com/blinkdog/lta/pkg/config"
	"github.com/blinkdog/lta/pkg/ltaerrors"
	"github.com/blinkdog/lta/pkg/ltatypes"
	"github.com/blinkdog/lta/pkg/metrics"
	"github.com/blinkdog/lta/pkg/workerrt"
)

// Locator is a workerrt.Component specialization.
type Locator struct {
	Catalog *catalog.Client
}

// New builds a Locator over an already-constructed File Catalog client.
func New(cat *catalog.Client) *Locator {
	return &Locator{Catalog: cat}
}

// ExpectedConfig declares the Locator's extra recognized options beyond
// config.CommonSpec.
func (l *Locator) ExpectedConfig() config.Spec {
	return config.Spec{
		"FILE_CATALOG_REST_URL":   config.Required(),
		"FILE_CATALOG_REST_TOKEN": config.Required(),
		"DEST_SITE":               config.Required(),
	}
}

// DoWorkClaim claims the next inbound TransferRequest for the
// configured dest/source pair and processes it per spec.md section 4.3.
// Unlike the Picker, a processing error quarantines the active
// TransferRequest and is then re-raised to the caller, matching the
// documented asymmetry (spec.md section 9, Open Questions): the work
// loop treats this as a fault, stopping the drain and sleeping, rather
// than a silent idle return.
func (l *Locator) DoWorkClaim(ctx context.Context, rt *workerrt.Runtime) (bool, error) {
	dest := rt.Config["DEST_SITE"]
	source := rt.Config["SOURCE_SITE"]
	tr, err := rt.LTA.PopTransferRequestInbound(ctx, dest, source, rt.Claimant())
	if err != nil {
		return false, err
	}
	if tr == nil {
		return false, nil
	}

	if err := l.process(ctx, rt, tr); err != nil {
		rt.Quarantine(ctx, "TransferRequest", tr.UUID, err.Error())
		return false, err
	}
	return true, nil
}

func (l *Locator) process(ctx context.Context, rt *workerrt.Runtime, tr *ltatypes.TransferRequest) error {
	uuids, err := l.Catalog.Query(ctx, catalog.ArchivedPredicate(tr.Source, tr.Path))
	if err != nil {
		return err
	}
	metrics.CatalogFilesReturnedTotal.WithLabelValues(rt.Name()).Add(float64(len(uuids)))

	if len(uuids) == 0 {
		rt.Quarantine(ctx, "TransferRequest", tr.UUID, "File Catalog returned zero files for the TransferRequest")
		return nil
	}

	var bundleUUIDs []string
	seen := make(map[string]bool)
	for _, u := range uuids {
		rec, err := l.Catalog.GetFile(ctx, u)
		if err != nil {
			return err
		}
		for _, loc := range rec.Locations {
			if !loc.Archive || loc.Site != tr.Source {
				continue
			}
			bundleUUID, err := archiveUUIDFromLocation(loc.Path)
			if err != nil {
				return err
			}
			if !seen[bundleUUID] {
				seen[bundleUUID] = true
				bundleUUIDs = append(bundleUUIDs, bundleUUID)
			}
		}
	}

	bundles := make([]ltatypes.Bundle, 0, len(bundleUUIDs))
	for _, bundleUUID := range bundleUUIDs {
		bundleRecord, err := l.Catalog.GetFile(ctx, bundleUUID)
		if err != nil {
			return err
		}
		if bundleRecord.LTA == nil {
			return ltaerrors.NewDataError("archive record %s has no lta sub-object", bundleUUID)
		}
		projection := ltatypes.AsCatalogProjection(*bundleRecord)
		bundles = append(bundles, ltatypes.Bundle{
			Type:       "Bundle",
			Status:     "located",
			Claimed:    ltatypes.BoolPtr(false),
			Verified:   ltatypes.BoolPtr(false),
			Reason:     "",
			Request:    tr.UUID,
			Source:     tr.Source,
			Dest:       tr.Dest,
			Path:       tr.Path,
			Size:       bundleRecord.FileSize,
			BundlePath: bundleRecord.LTA.BundlePath,
			Checksum:   bundleRecord.LTA.Checksum,
			Files:      []ltatypes.CatalogProjection{},
			Catalog:    &projection,
		})
	}

	if _, err := rt.LTA.BulkCreateBundles(ctx, bundles); err != nil {
		return err
	}
	metrics.BundlesCreatedTotal.WithLabelValues(rt.Name()).Add(float64(len(bundles)))
	return nil
}

// archiveUUIDFromLocation implements the bundle-uuid extraction
// documented in spec.md section 4.3 and section 9: split the location
// path once on ":", keep the portion before the colon, take its
// basename, and keep the prefix before the first "." as the archive
// uuid. A prefix containing anything other than hex digits is rejected
// explicitly (spec.md section 9 Open Questions) rather than silently
// producing garbage, surfacing as a DataError that the caller
// quarantines.
func archiveUUIDFromLocation(locationPath string) (string, error) {
	beforeColon, _, _ := strings.Cut(locationPath, ":")
	base := path.Base(beforeColon)
	prefix, _, _ := strings.Cut(base, ".")

	if !isHex(prefix) {
		return "", ltaerrors.NewDataError("archive location %q does not yield a hex bundle uuid prefix (got %q)", locationPath, prefix)
	}
	return prefix, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
