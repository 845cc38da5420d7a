package github

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/model"
)

// Client talks to the GitHub REST API. It serves as the source client of the local engine and as
// the webhook registrar of setup.
type Client struct {
	githubClient *github.Client
}

// Option configures a Client
type Option func(*github.Client) error

// WithBaseURL points the client at a GitHub Enterprise server or a test server
func WithBaseURL(baseURL string) Option {
	return func(c *github.Client) error {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return goerr.Wrap(err, "invalid GitHub base URL", goerr.V("url", baseURL))
		}
		c.BaseURL = u
		return nil
	}
}

// NewClient creates a client authenticated with a personal access token. token is usually the
// resolved access token secret.
func NewClient(token *model.Secret, opts ...Option) (*Client, error) {
	if token == nil || token.Value() == "" {
		return nil, goerr.New("GitHub access token is required")
	}
	return newClient(github.NewClient(nil).WithAuthToken(token.Value()), opts...)
}

// NewAppClient creates a new GitHub client with App authentication
func NewAppClient(appID, installationID int64, privateKey []byte, opts ...Option) (*Client, error) {
	itr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub App transport",
			goerr.V("app_id", appID), goerr.V("installation_id", installationID))
	}

	return newClient(github.NewClient(&http.Client{Transport: itr}), opts...)
}

func newClient(gh *github.Client, opts ...Option) (*Client, error) {
	for _, opt := range opts {
		if err := opt(gh); err != nil {
			return nil, err
		}
	}
	return &Client{githubClient: gh}, nil
}

// DownloadZipball downloads the source code zipball for a ref
func (c *Client) DownloadZipball(ctx context.Context, owner, repo, ref string) ([]byte, error) {
	// Get download URL for zipball, following up to 3 redirects
	link, _, err := c.githubClient.Repositories.GetArchiveLink(ctx, owner, repo, github.Zipball, &github.RepositoryContentGetOptions{
		Ref: ref,
	}, 3)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get zipball download URL",
			goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("ref", ref))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.String(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create download request", goerr.V("url", link.String()))
	}

	// Use the same client transport for authentication
	httpClient := &http.Client{Transport: c.githubClient.Client().Transport}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download zipball", goerr.V("url", link.String()))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected status code on zipball download",
			goerr.V("status", resp.StatusCode), goerr.V("url", link.String()))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read zipball body")
	}

	return data, nil
}

// RegisterWebhook creates the repository hook, or updates the existing hook delivering to the same
// URL so that running setup twice does not duplicate deliveries
func (c *Client) RegisterWebhook(ctx context.Context, reg *model.WebhookRegistration) (*model.RegisteredWebhook, error) {
	logger := ctxlog.From(ctx)

	hook := &github.Hook{
		Events: reg.Events,
		Active: github.Ptr(reg.Enabled),
		Config: &github.HookConfig{
			URL:         github.Ptr(reg.URL),
			ContentType: github.Ptr("json"),
			InsecureSSL: github.Ptr("0"),
		},
	}
	if reg.Secret != nil {
		hook.Config.Secret = github.Ptr(reg.Secret.Value())
	}

	existing, err := c.findHook(ctx, reg.Owner, reg.Repo, reg.URL)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		updated, _, err := c.githubClient.Repositories.EditHook(ctx, reg.Owner, reg.Repo, existing.GetID(), hook)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to update webhook",
				goerr.V("owner", reg.Owner), goerr.V("repo", reg.Repo), goerr.V("hook_id", existing.GetID()))
		}
		logger.Info("Updated existing webhook", "hook_id", updated.GetID(), "url", reg.URL)
		return &model.RegisteredWebhook{ID: updated.GetID(), URL: reg.URL}, nil
	}

	created, _, err := c.githubClient.Repositories.CreateHook(ctx, reg.Owner, reg.Repo, hook)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create webhook",
			goerr.V("owner", reg.Owner), goerr.V("repo", reg.Repo))
	}
	logger.Info("Created webhook", "hook_id", created.GetID(), "url", reg.URL)

	return &model.RegisteredWebhook{ID: created.GetID(), URL: reg.URL, Created: true}, nil
}

func (c *Client) findHook(ctx context.Context, owner, repo, hookURL string) (*github.Hook, error) {
	opt := &github.ListOptions{PerPage: 100}
	for {
		hooks, resp, err := c.githubClient.Repositories.ListHooks(ctx, owner, repo, opt)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list webhooks", goerr.V("owner", owner), goerr.V("repo", repo))
		}
		for _, h := range hooks {
			if h.GetConfig() != nil && h.GetConfig().GetURL() == hookURL {
				return h, nil
			}
		}
		if resp.NextPage == 0 {
			return nil, nil
		}
		opt.Page = resp.NextPage
	}
}
