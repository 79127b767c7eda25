// Package ltaclient wraps the LTA DB's REST contract: pop (claim),
// bulk_create, patch, and the heartbeat status post. Every method is a
// thin, typed wrapper around restclient.Client.Request, the way the
// teacher's pkg/client wraps its gRPC stubs for cmd/warren's CLI.
package ltaclient

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/blinkdog/lta/pkg/ltatypes"
	"github.com/blinkdog/lta/pkg/restclient"
)

// Client is a typed LTA DB collaborator.
type Client struct {
	rc *restclient.Client
}

// New wraps an already-configured restclient.Client.
func New(rc *restclient.Client) *Client {
	return &Client{rc: rc}
}

type popRequestBody struct {
	Claimant string `json:"claimant"`
}

type popTransferRequestResponse struct {
	TransferRequest *ltatypes.TransferRequest `json:"transfer_request"`
}

type popBundleResponse struct {
	Bundle *ltatypes.Bundle `json:"bundle"`
}

// PopTransferRequestOutbound claims the next outbound TransferRequest
// for source, or returns nil when the queue is idle.
func (c *Client) PopTransferRequestOutbound(ctx context.Context, source, claimant string) (*ltatypes.TransferRequest, error) {
	path := "/TransferRequests/actions/pop?" + url.Values{"source": {source}}.Encode()
	var resp popTransferRequestResponse
	if err := c.rc.Request(ctx, "POST", path, popRequestBody{Claimant: claimant}, &resp); err != nil {
		return nil, err
	}
	return resp.TransferRequest, nil
}

// PopTransferRequestInbound claims the next inbound (restoration)
// TransferRequest for the dest/source pair, or returns nil when idle.
func (c *Client) PopTransferRequestInbound(ctx context.Context, dest, source, claimant string) (*ltatypes.TransferRequest, error) {
	path := "/TransferRequests/actions/pop?" + url.Values{"dest": {dest}, "source": {source}}.Encode()
	var resp popTransferRequestResponse
	if err := c.rc.Request(ctx, "POST", path, popRequestBody{Claimant: claimant}, &resp); err != nil {
		return nil, err
	}
	return resp.TransferRequest, nil
}

// PopBundle claims the next Bundle matching dest and status, or
// returns nil when idle.
func (c *Client) PopBundle(ctx context.Context, dest, status, claimant string) (*ltatypes.Bundle, error) {
	path := "/Bundles/actions/pop?" + url.Values{"dest": {dest}, "status": {status}}.Encode()
	var resp popBundleResponse
	if err := c.rc.Request(ctx, "POST", path, popRequestBody{Claimant: claimant}, &resp); err != nil {
		return nil, err
	}
	return resp.Bundle, nil
}

type bulkCreateBundlesRequest struct {
	Bundles []ltatypes.Bundle `json:"bundles"`
}

type bulkCreateBundlesResponse struct {
	Bundles []string `json:"bundles"`
}

// BulkCreateBundles creates one or more Bundles in one call, returning
// the assigned uuids in the same order as the request.
func (c *Client) BulkCreateBundles(ctx context.Context, bundles []ltatypes.Bundle) ([]string, error) {
	var resp bulkCreateBundlesResponse
	if err := c.rc.Request(ctx, "POST", "/Bundles/actions/bulk_create", bulkCreateBundlesRequest{Bundles: bundles}, &resp); err != nil {
		return nil, err
	}
	return resp.Bundles, nil
}

// PatchTransferRequest applies a partial update to a TransferRequest.
func (c *Client) PatchTransferRequest(ctx context.Context, uuid string, patch map[string]any) error {
	return c.rc.Request(ctx, "PATCH", "/TransferRequests/"+uuid, patch, nil)
}

// PatchBundle applies a partial update to a Bundle.
func (c *Client) PatchBundle(ctx context.Context, uuid string, patch map[string]any) error {
	return c.rc.Request(ctx, "PATCH", "/Bundles/"+uuid, patch, nil)
}

// QuarantineReason formats the required "BY:<claimant> REASON:<cause>"
// reason string (spec.md section 3, section 7).
func QuarantineReason(claimant, cause string) string {
	return fmt.Sprintf("BY:%s REASON:%s", claimant, cause)
}

// QuarantineTransferRequest sets status=quarantined on a TransferRequest
// with a properly formatted reason and a refreshed work_priority_timestamp.
func (c *Client) QuarantineTransferRequest(ctx context.Context, uuid, claimant, cause string) error {
	return c.PatchTransferRequest(ctx, uuid, map[string]any{
		"status":                  "quarantined",
		"reason":                  QuarantineReason(claimant, cause),
		"work_priority_timestamp": nowRFC3339(),
	})
}

// QuarantineBundle sets status=quarantined on a Bundle with a properly
// formatted reason and a refreshed work_priority_timestamp.
func (c *Client) QuarantineBundle(ctx context.Context, uuid, claimant, cause string) error {
	return c.PatchBundle(ctx, uuid, map[string]any{
		"status":                  "quarantined",
		"reason":                  QuarantineReason(claimant, cause),
		"work_priority_timestamp": nowRFC3339(),
	})
}

// StatusDocument is the heartbeat body posted to /status/<name>.
type StatusDocument struct {
	Name                  string `json:"name"`
	InstanceUUID          string `json:"instance_uuid"`
	ComponentName         string `json:"component_name"`
	Timestamp             string `json:"timestamp"`
	LastWorkBeginTimestamp string `json:"last_work_begin_timestamp,omitempty"`
	LastWorkEndTimestamp   string `json:"last_work_end_timestamp,omitempty"`
}

// PostStatus publishes a heartbeat/status document for name.
func (c *Client) PostStatus(ctx context.Context, name string, doc StatusDocument) error {
	return c.rc.Request(ctx, "POST", "/status/"+name, doc, nil)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
