package picker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkdog/lta/pkg/catalog"
	"github.com/blinkdog/lta/pkg/ltaclient"
	"github.com/blinkdog/lta/pkg/ltatypes"
	"github.com/blinkdog/lta/pkg/restclient"
	"github.com/blinkdog/lta/pkg/workerrt"
)

// fakeBackend serves a minimal LTA DB + File Catalog pair for one
// pre-seeded TransferRequest, recording bulk_create and patch calls.
type fakeBackend struct {
	tr             ltatypes.TransferRequest
	records        map[string]ltatypes.CatalogRecord
	popped         bool
	bulkCreates    []ltatypes.Bundle
	patches        []map[string]any
	emptyCatalog   bool
}

func (b *fakeBackend) ltaHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == "POST" && r.URL.Path == "/TransferRequests/actions/pop":
		if b.popped {
			json.NewEncoder(w).Encode(map[string]any{"transfer_request": nil})
			return
		}
		b.popped = true
		json.NewEncoder(w).Encode(map[string]any{"transfer_request": b.tr})
	case r.Method == "POST" && r.URL.Path == "/Bundles/actions/bulk_create":
		var body struct {
			Bundles []ltatypes.Bundle `json:"bundles"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		b.bulkCreates = append(b.bulkCreates, body.Bundles...)
		uuids := make([]string, len(body.Bundles))
		for i := range body.Bundles {
			uuids[i] = fmt.Sprintf("bundle-%d", i)
		}
		json.NewEncoder(w).Encode(map[string]any{"bundles": uuids})
	case r.Method == "PATCH":
		var patch map[string]any
		json.NewDecoder(r.Body).Decode(&patch)
		b.patches = append(b.patches, patch)
		json.NewEncoder(w).Encode(map[string]any{})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *fakeBackend) catalogHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/api/files" {
		if b.emptyCatalog {
			json.NewEncoder(w).Encode(map[string]any{"files": []any{}})
			return
		}

		// Honor start/limit like the real File Catalog: sort uuids for a
		// stable page order, then slice the requested window so a short
		// final page actually terminates Query's paging loop.
		uuids := make([]string, 0, len(b.records))
		for uuid := range b.records {
			uuids = append(uuids, uuid)
		}
		sort.Strings(uuids)

		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = len(uuids)
		}

		end := start + limit
		if end > len(uuids) {
			end = len(uuids)
		}
		if start > len(uuids) {
			start = len(uuids)
		}
		page := uuids[start:end]

		files := make([]map[string]string, len(page))
		for i, uuid := range page {
			files[i] = map[string]string{"uuid": uuid}
		}
		json.NewEncoder(w).Encode(map[string]any{"files": files})
		return
	}
	// /api/files/<uuid>
	uuid := r.URL.Path[len("/api/files/"):]
	rec, ok := b.records[uuid]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(rec)
}

func newTestRuntime(t *testing.T, ltaURL string) (*workerrt.Runtime, *Picker) {
	t.Helper()
	t.Setenv("COMPONENT_NAME", "test-picker")
	t.Setenv("LTA_REST_TOKEN", "token")
	t.Setenv("LTA_REST_URL", ltaURL)
	t.Setenv("SOURCE_SITE", "WIPAC")
	t.Setenv("FILE_CATALOG_REST_URL", "unused")
	t.Setenv("FILE_CATALOG_REST_TOKEN", "unused")
	t.Setenv("LTA_SITE_CONFIG", "unused")
	t.Setenv("RUN_ONCE_AND_DIE", "TRUE")

	ltaRC := restclient.New(restclient.Config{BaseURL: ltaURL, Timeout: time.Second, Retries: 0})
	lta := ltaclient.New(ltaRC)

	p := &Picker{}
	spec := p.ExpectedConfig()
	fullSpec := mergeCommon(spec)

	rt, err := workerrt.New("picker", fullSpec, lta, zerolog.Nop())
	require.NoError(t, err)
	return rt, p
}

func mergeCommon(extra map[string]*string) map[string]*string {
	out := map[string]*string{
		"COMPONENT_NAME":                   nil,
		"HEARTBEAT_PATCH_RETRIES":          strPtr("3"),
		"HEARTBEAT_PATCH_TIMEOUT_SECONDS":  strPtr("30"),
		"HEARTBEAT_SLEEP_DURATION_SECONDS": strPtr("3600"),
		"LOG_LEVEL":                        strPtr("info"),
		"LTA_REST_TOKEN":                   nil,
		"LTA_REST_URL":                     nil,
		"RUN_ONCE_AND_DIE":                 strPtr("FALSE"),
		"SOURCE_SITE":                      nil,
		"WORK_RETRIES":                     strPtr("3"),
		"WORK_SLEEP_DURATION_SECONDS":      strPtr("3600"),
		"WORK_TIMEOUT_SECONDS":             strPtr("30"),
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestPickerHappyPathS1(t *testing.T) {
	backend := &fakeBackend{
		tr: ltatypes.TransferRequest{UUID: "tr-1", Source: "WIPAC", Dest: "NERSC", Path: "/data/exp", Status: "pending"},
		records: map[string]ltatypes.CatalogRecord{
			"f1": {UUID: "f1", FileSize: 300, LogicalName: "/data/exp/f1"},
			"f2": {UUID: "f2", FileSize: 400, LogicalName: "/data/exp/f2"},
			"f3": {UUID: "f3", FileSize: 500, LogicalName: "/data/exp/f3"},
		},
	}
	ltaSrv := httptest.NewServer(http.HandlerFunc(backend.ltaHandler))
	defer ltaSrv.Close()
	catSrv := httptest.NewServer(http.HandlerFunc(backend.catalogHandler))
	defer catSrv.Close()

	rt, _ := newTestRuntime(t, ltaSrv.URL)
	cat := catalog.New(restclient.New(restclient.Config{BaseURL: catSrv.URL, Timeout: time.Second}), "picker")
	p := New(cat, map[string]ltatypes.SiteConfig{"NERSC": {BundleSize: 1000}})

	claimed, err := p.DoWorkClaim(context.Background(), rt)
	require.NoError(t, err)
	assert.True(t, claimed)

	require.Len(t, backend.bulkCreates, 1)
	assert.Equal(t, "specified", backend.bulkCreates[0].Status)
	assert.Equal(t, "tr-1", backend.bulkCreates[0].Request)
	assert.Len(t, backend.bulkCreates[0].Files, 3)
	assert.Empty(t, backend.patches)
}

func TestPickerEmptyCatalogQuarantinesS4(t *testing.T) {
	backend := &fakeBackend{
		tr:           ltatypes.TransferRequest{UUID: "tr-2", Source: "WIPAC", Dest: "NERSC", Path: "/data/exp"},
		emptyCatalog: true,
	}
	ltaSrv := httptest.NewServer(http.HandlerFunc(backend.ltaHandler))
	defer ltaSrv.Close()
	catSrv := httptest.NewServer(http.HandlerFunc(backend.catalogHandler))
	defer catSrv.Close()

	rt, _ := newTestRuntime(t, ltaSrv.URL)
	cat := catalog.New(restclient.New(restclient.Config{BaseURL: catSrv.URL, Timeout: time.Second}), "picker")
	p := New(cat, map[string]ltatypes.SiteConfig{"NERSC": {BundleSize: 1000}})

	claimed, err := p.DoWorkClaim(context.Background(), rt)
	require.NoError(t, err)
	assert.True(t, claimed)

	assert.Empty(t, backend.bulkCreates)
	require.Len(t, backend.patches, 1)
	assert.Equal(t, "quarantined", backend.patches[0]["status"])
	assert.Contains(t, backend.patches[0]["reason"], "File Catalog returned zero files for the TransferRequest")
}

func TestPickerCardinalityRejectS3(t *testing.T) {
	records := make(map[string]ltatypes.CatalogRecord, 30000)
	for i := 0; i < 30000; i++ {
		uuid := fmt.Sprintf("f-%d", i)
		records[uuid] = ltatypes.CatalogRecord{UUID: uuid, FileSize: 1, LogicalName: "/data/exp/f"}
	}
	backend := &fakeBackend{
		tr:      ltatypes.TransferRequest{UUID: "tr-3", Source: "WIPAC", Dest: "NERSC", Path: "/data/exp"},
		records: records,
	}
	ltaSrv := httptest.NewServer(http.HandlerFunc(backend.ltaHandler))
	defer ltaSrv.Close()
	catSrv := httptest.NewServer(http.HandlerFunc(backend.catalogHandler))
	defer catSrv.Close()

	rt, _ := newTestRuntime(t, ltaSrv.URL)
	cat := catalog.New(restclient.New(restclient.Config{BaseURL: catSrv.URL, Timeout: 5 * time.Second}), "picker")
	p := New(cat, map[string]ltatypes.SiteConfig{"NERSC": {BundleSize: 1_000_000_000}})

	claimed, err := p.DoWorkClaim(context.Background(), rt)
	require.NoError(t, err)
	assert.True(t, claimed)

	assert.Empty(t, backend.bulkCreates)
	require.Len(t, backend.patches, 1)
	assert.Equal(t, "quarantined", backend.patches[0]["status"])
	reason, _ := backend.patches[0]["reason"].(string)
	assert.Contains(t, reason, "30000")
	assert.Contains(t, reason, "25000")
}
