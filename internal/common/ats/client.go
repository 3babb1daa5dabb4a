// Package ats is a client for the automation server that hosts the work
// queues and the credential vault.
package ats

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"primary-organization/internal/common/config"
	"primary-organization/internal/common/credentials"
	"primary-organization/internal/common/errors"
	apihttp "primary-organization/internal/common/http"
)

type Client struct {
	http *apihttp.Client
}

// NewClient builds a client from the automation server settings.
func NewClient(cfg config.AutomationServerConfig) *Client {
	return &Client{
		http: apihttp.NewClient(cfg.URL, config.GetDuration(cfg.Timeout), apihttp.WithBearerToken(cfg.Token)),
	}
}

type credentialResponse struct {
	ID       int64                  `json:"id"`
	Name     string                 `json:"name"`
	Data     map[string]interface{} `json:"data"`
	Username string                 `json:"username"`
	Password string                 `json:"password"`
}

// Get resolves a credential by name. It satisfies credentials.Store.
func (c *Client) Get(ctx context.Context, name string) (*credentials.Credential, error) {
	var resp credentialResponse
	_, err := c.http.DoJSON(ctx, http.MethodGet, "credentials/by_name/"+url.PathEscape(name), nil, &resp)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, errors.NewCredentialNotFoundError(name)
		}
		return nil, errors.NewExternalServiceError("automation-server", err)
	}

	data := make(map[string]string, len(resp.Data))
	for k, v := range resp.Data {
		if v == nil {
			continue
		}
		data[k] = fmt.Sprint(v)
	}
	return &credentials.Credential{
		Name:     resp.Name,
		Username: resp.Username,
		Password: resp.Password,
		Data:     data,
	}, nil
}

// Ping checks that the automation server answers.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.http.DoJSON(ctx, http.MethodGet, "", nil, nil)
	if err != nil && statusOf(err) == 0 {
		return errors.NewQueueConnectionError("ats", err)
	}
	return nil
}

func statusOf(err error) int {
	var se *apihttp.StatusError
	if stderrors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
