// Package stager implements the Rucio Stager: the admission-control
// gate that moves a completed bundle archive from the bundler's outbox
// into the local Rucio RSE ingest directory, refusing when doing so
// would exceed the destination quota.
package stager

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/blinkdog/lta/pkg/config"
	"github.com/blinkdog/lta/pkg/ltaerrors"
	"github.com/blinkdog/lta/pkg/metrics"
	"github.com/blinkdog/lta/pkg/workerrt"
)

// Stager is a workerrt.Component specialization. It processes at most
// one Bundle per call and always returns false from DoWorkClaim
// (spec.md section 4.4, "per-cycle concurrency contract"), deliberately
// rate-limiting staging and forcing a fresh inbox measurement every
// work cycle.
type Stager struct{}

// New builds a Stager. It has no collaborators beyond the Runtime's
// LTA client and the local filesystem.
func New() *Stager { return &Stager{} }

// ExpectedConfig declares the Stager's extra recognized options beyond
// config.CommonSpec.
func (s *Stager) ExpectedConfig() config.Spec {
	return config.Spec{
		"DEST_SITE":           config.Required(),
		"BUNDLER_OUTBOX_PATH": config.Required(),
		"RUCIO_INBOX_PATH":    config.Required(),
		"DEST_QUOTA":          config.Required(),
	}
}

// DoWorkClaim claims the next created Bundle for rt.Config["DEST_SITE"]
// and processes it per spec.md section 4.4. It always returns false
// regardless of outcome so the outer work loop sleeps between bundles.
func (s *Stager) DoWorkClaim(ctx context.Context, rt *workerrt.Runtime) (bool, error) {
	dest := rt.Config["DEST_SITE"]
	bundle, err := rt.LTA.PopBundle(ctx, dest, "created", rt.Claimant())
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, nil
	}

	outboxPath := rt.Config["BUNDLER_OUTBOX_PATH"]
	inboxPath := rt.Config["RUCIO_INBOX_PATH"]
	quota, err := strconv.ParseInt(rt.Config["DEST_QUOTA"], 10, 64)
	if err != nil {
		return false, ltaerrors.NewDataError("DEST_QUOTA is not an integer: %v", err)
	}

	rucioSize, err := measureDirectory(inboxPath)
	if err != nil {
		return false, &ltaerrors.LocalIOError{Op: "measure rucio inbox", Err: err}
	}
	metrics.RucioInboxBytes.Set(float64(rucioSize))
	metrics.RucioQuotaBytes.Set(float64(quota))

	total := rucioSize + bundle.Size
	if total > quota {
		// Admission refused: unclaim rather than quarantine, leaving
		// status=created for a later cycle once peers drain.
		if err := rt.LTA.PatchBundle(ctx, bundle.UUID, map[string]any{
			"claimed":                 false,
			"update_timestamp":        nowRFC3339(),
			"work_priority_timestamp": nowRFC3339(),
		}); err != nil {
			return false, err
		}
		metrics.RucioBundlesUnclaimedTotal.Inc()
		return false, nil
	}

	src := filepath.Join(outboxPath, filepath.Base(bundle.BundlePath))
	dst := filepath.Join(inboxPath, filepath.Base(bundle.BundlePath))
	if err := moveFile(src, dst); err != nil {
		wrapped := &ltaerrors.LocalIOError{Op: "stage bundle file", Err: err}
		rt.Quarantine(ctx, "Bundle", bundle.UUID, wrapped.Error())
		return false, wrapped
	}

	if err := rt.LTA.PatchBundle(ctx, bundle.UUID, map[string]any{
		"bundle_path":      dst,
		"claimed":          false,
		"status":           "staged",
		"reason":           "",
		"update_timestamp": nowRFC3339(),
	}); err != nil {
		return false, err
	}
	metrics.RucioBundlesStagedTotal.Inc()
	return false, nil
}

// measureDirectory recursively sums the sizes of the regular files
// under root.
func measureDirectory(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// moveFile relocates src to dst, preferring an atomic rename within one
// filesystem and falling back to copy-then-delete across filesystems,
// per spec.md section 4.4.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		// A rename failure other than cross-device is a genuine I/O
		// failure; surface it instead of silently falling back.
		return err
	}

	in, openErr := os.Open(src)
	if openErr != nil {
		return openErr
	}
	defer in.Close()

	out, createErr := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if createErr != nil {
		return createErr
	}
	if _, copyErr := io.Copy(out, in); copyErr != nil {
		out.Close()
		return copyErr
	}
	if closeErr := out.Close(); closeErr != nil {
		return closeErr
	}
	return os.Remove(src)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
