package delivery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/httpclient"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"go.uber.org/zap"
)

// ErrWebhookSecretMissing is returned when no shared secret is configured
var ErrWebhookSecretMissing = errors.New("webhook secret is not configured")

// Client sends commands to the game-server plugin
type Client struct {
	http    *httpclient.Client
	baseURL string
	secret  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a plugin webhook client
func NewClient(hc *httpclient.Client, baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

type executeCommandRequest struct {
	Command       string               `json:"command"`
	PlayerContext models.PlayerContext `json:"playerContext"`
}

// ExecuteCommand posts one command to the plugin
func (c *Client) ExecuteCommand(ctx context.Context, command string, player models.PlayerContext) error {
	if c.secret == "" {
		return ErrWebhookSecretMissing
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.http.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/execute-command",
		Header:  http.Header{"Authorization": []string{"Bearer " + c.secret}},
		JSON:    executeCommandRequest{Command: command, PlayerContext: player},
		SpanTag: "PluginWebhook.ExecuteCommand",
	}, nil)
	util.WebhookLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("Plugin command failed",
			zap.String("player", player.PlayerName),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Plugin command executed",
		zap.String("player", player.PlayerName),
		zap.String("command", command))
	return nil
}

// RenderCommand substitutes the player placeholders of a command template
func RenderCommand(template string, user *models.User) string {
	name := user.PlayerName()
	return strings.NewReplacer("{player}", name, "{user}", name).Replace(template)
}

// PlayerContextFor builds the plugin's view of a user
func PlayerContextFor(user *models.User) models.PlayerContext {
	uuid := "N/A"
	if user.HasLinkedAccount() {
		uuid = *user.MinecraftUUID
	}
	return models.PlayerContext{
		PlayerName: user.PlayerName(),
		UUID:       uuid,
		Username:   user.Username,
	}
}
