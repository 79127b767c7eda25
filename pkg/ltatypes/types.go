// Package ltatypes holds the wire-level entities shared by every LTA
// worker: TransferRequest and Bundle, as stored in the LTA DB, and the
// minimal catalog projection carried forward into bundle state.
package ltatypes

import "time"

// TransferRequest is a request to move files located under Path at a
// source site to a dest site. Lifecycle: created externally, claimed by
// a Picker (outbound) or Locator (inbound) via pop, and either bundled
// or quarantined.
type TransferRequest struct {
	UUID                  string    `json:"uuid"`
	Source                string    `json:"source"`
	Dest                  string    `json:"dest"`
	Path                  string    `json:"path"`
	Status                string    `json:"status"`
	Reason                string    `json:"reason"`
	Claimant              string    `json:"claimant,omitempty"`
	WorkPriorityTimestamp time.Time `json:"work_priority_timestamp,omitempty"`
}

// Bundle is a manifest describing a group of files that travel
// together as one archive object.
type Bundle struct {
	UUID                  string              `json:"uuid,omitempty"`
	Type                  string              `json:"type"`
	Status                string              `json:"status"`
	Claimed               *bool               `json:"claimed,omitempty"`
	Verified              *bool               `json:"verified,omitempty"`
	Reason                string              `json:"reason"`
	Request               string              `json:"request"`
	Source                string              `json:"source"`
	Dest                  string              `json:"dest"`
	Path                  string              `json:"path"`
	Size                  int64               `json:"size,omitempty"`
	BundlePath            string              `json:"bundle_path,omitempty"`
	Checksum              map[string]any      `json:"checksum,omitempty"`
	Files                 []CatalogProjection `json:"files"`
	Catalog               *CatalogProjection  `json:"catalog,omitempty"`
	CreateTimestamp       time.Time           `json:"create_timestamp,omitempty"`
	UpdateTimestamp       time.Time           `json:"update_timestamp,omitempty"`
	WorkPriorityTimestamp time.Time           `json:"work_priority_timestamp,omitempty"`
}

// CatalogProjection is the exact five-key subset of a File Catalog
// record that is kept inside a Bundle: checksum, file_size,
// logical_name, meta_modify_date, uuid. This is the immutable record
// carried forward into all bundle-derived state.
type CatalogProjection struct {
	Checksum       map[string]any `json:"checksum"`
	FileSize       int64          `json:"file_size"`
	LogicalName    string         `json:"logical_name"`
	MetaModifyDate string         `json:"meta_modify_date"`
	UUID           string         `json:"uuid"`
}

// AsCatalogProjection cherry-picks the five projection keys out of a
// full File Catalog record.
func AsCatalogProjection(record CatalogRecord) CatalogProjection {
	return CatalogProjection{
		Checksum:       record.Checksum,
		FileSize:       record.FileSize,
		LogicalName:    record.LogicalName,
		MetaModifyDate: record.MetaModifyDate,
		UUID:           record.UUID,
	}
}

// CatalogRecord is the full File Catalog record for a single file, as
// returned by GET /api/files/<uuid>.
type CatalogRecord struct {
	UUID           string         `json:"uuid"`
	LogicalName    string         `json:"logical_name"`
	Checksum       map[string]any `json:"checksum"`
	FileSize       int64          `json:"file_size"`
	MetaModifyDate string         `json:"meta_modify_date"`
	Locations      []Location     `json:"locations"`
	LTA            *LTAAttrs      `json:"lta,omitempty"`
}

// Location describes one place a file is known to live, as recorded by
// the File Catalog.
type Location struct {
	Site    string `json:"site"`
	Path    string `json:"path"`
	Archive bool   `json:"archive,omitempty"`
	Online  bool   `json:"online,omitempty"`
	HPSS    bool   `json:"hpss,omitempty"`
}

// LTAAttrs is the application-private metadata an archive's own
// catalog record carries about the bundle it represents.
type LTAAttrs struct {
	BundlePath string         `json:"bundle_path"`
	Checksum   map[string]any `json:"checksum"`
}

// SiteConfig is the static per-site parameter set consumed by the
// core; only BundleSize is used, but the file may carry more.
type SiteConfig struct {
	BundleSize int64 `json:"bundle_size"`
}

// SiteConfigFile is the top-level shape of the LTA_SITE_CONFIG JSON
// document: {"sites": {"<name>": {"bundle_size": <int>, ...}, ...}}.
type SiteConfigFile struct {
	Sites map[string]SiteConfig `json:"sites"`
}

// BoolPtr is a small helper for building Bundle.Claimed/Verified
// pointers from a literal.
func BoolPtr(b bool) *bool {
	return &b
}
