// Package mgmt provides a client for the cloud service management API.
package mgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// HTTPClient talks to the management REST API for one subscription.
type HTTPClient struct {
	BaseURL        string
	SubscriptionID string
	// BlobEndpoint is the storage endpoint packages are uploaded to,
	// e.g. https://%s.blob.example.net where %s is the account name.
	BlobEndpoint string
	HTTPClient   *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient for the given endpoint and subscription.
func NewHTTPClient(baseURL, subscriptionID string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		SubscriptionID: subscriptionID,
		HTTPClient:     &http.Client{Timeout: timeout},
	}
}

// GetHostedServiceDetails returns the hosted service with its deployments.
func (c *HTTPClient) GetHostedServiceDetails(ctx context.Context, name string) (*HostedService, error) {
	return doGet[HostedService](ctx, c, "/services/hostedservices/"+url.PathEscape(name)+"?embed-detail=true")
}

// CreateHostedService creates a hosted service.
func (c *HTTPClient) CreateHostedService(ctx context.Context, in *CreateHostedServiceInput) error {
	return c.send(ctx, http.MethodPost, "/services/hostedservices", in)
}

// DeleteHostedService deletes a hosted service. It must have no deployments.
func (c *HTTPClient) DeleteHostedService(ctx context.Context, name string) error {
	return c.send(ctx, http.MethodDelete, "/services/hostedservices/"+url.PathEscape(name), nil)
}

// GetDeploymentBySlot returns the deployment running in slot.
func (c *HTTPClient) GetDeploymentBySlot(ctx context.Context, service, slot string) (*Deployment, error) {
	return doGet[Deployment](ctx, c, slotPath(service, slot))
}

// CreateOrUpdateDeployment creates a deployment in slot.
func (c *HTTPClient) CreateOrUpdateDeployment(ctx context.Context, service, slot string, req *DeploymentRequest) error {
	return c.send(ctx, http.MethodPost, slotPath(service, slot), req)
}

// UpgradeDeployment upgrades the deployment in slot in place.
func (c *HTTPClient) UpgradeDeployment(ctx context.Context, service, slot string, req *DeploymentRequest) error {
	return c.send(ctx, http.MethodPost, slotPath(service, slot)+"/upgrade", req)
}

// DeleteDeployment deletes the deployment in slot.
func (c *HTTPClient) DeleteDeployment(ctx context.Context, service, slot string) error {
	return c.send(ctx, http.MethodDelete, slotPath(service, slot), nil)
}

// GetStorageServiceDetails returns a storage account.
func (c *HTTPClient) GetStorageServiceDetails(ctx context.Context, name string) (*StorageService, error) {
	return doGet[StorageService](ctx, c, "/services/storageservices/"+url.PathEscape(name))
}

// CreateStorageService starts creating a storage account. The account is
// usable once its status reaches Created.
func (c *HTTPClient) CreateStorageService(ctx context.Context, in *CreateStorageServiceInput) error {
	return c.send(ctx, http.MethodPost, "/services/storageservices", in)
}

// GetStorageServiceKeys returns the access keys of a storage account.
func (c *HTTPClient) GetStorageServiceKeys(ctx context.Context, name string) (*StorageKeys, error) {
	return doGet[StorageKeys](ctx, c, "/services/storageservices/"+url.PathEscape(name)+"/keys")
}

// ListCertificates lists the certificates uploaded to a hosted service.
func (c *HTTPClient) ListCertificates(ctx context.Context, service string) ([]Certificate, error) {
	result, err := doGet[[]Certificate](ctx, c, "/services/hostedservices/"+url.PathEscape(service)+"/certificates")
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// UploadPackage PUTs the package file as a block blob into the "packages"
// container of the storage account.
func (c *HTTPClient) UploadPackage(ctx context.Context, account, key, path string) (string, error) {
	if c.BlobEndpoint == "" {
		return "", fmt.Errorf("no blob endpoint configured for package upload")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	blobURL := fmt.Sprintf(c.BlobEndpoint, account) + "/packages/" + url.PathEscape(filepath.Base(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, blobURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	req.Header.Set("x-ms-account-key", key)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "upload %s", filepath.Base(path))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", readAPIError(resp)
	}
	return blobURL, nil
}

func slotPath(service, slot string) string {
	return "/services/hostedservices/" + url.PathEscape(service) + "/deploymentslots/" + url.PathEscape(slot)
}

func (c *HTTPClient) endpoint(path string) string {
	return c.BaseURL + "/" + url.PathEscape(c.SubscriptionID) + path
}

// send issues a request whose response body is ignored on success.
func (c *HTTPClient) send(ctx context.Context, method, path string, payload any) error {
	resp, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

// doGet is a generic helper for GET requests that return JSON.
func doGet[T any](ctx context.Context, c *HTTPClient, path string) (*T, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrapf(err, "decode GET %s", path)
	}
	return &result, nil
}

// readAPIError builds an APIError from a failed response. The body is
// expected to be {"code": "...", "message": "..."} but plain text is kept too.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.StatusCode = resp.StatusCode
	apiErr.OperationID = resp.Header.Get("x-ms-request-id")
	return apiErr
}
