package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arvista/argate-backend/pkg/utils"
)

// Validator проверяет Bearer токены через identity-сервис платформы.
// Успешные проверки кешируются, чтобы не ходить в сервис на каждый запрос
type Validator struct {
	endpoint   string
	httpClient *http.Client
	cache      *Cache
	logger     *utils.Logger
}

// NewValidator создает валидатор токенов
func NewValidator(endpoint string, cache *Cache, logger *utils.Logger) *Validator {
	return &Validator{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		cache:  cache,
		logger: logger,
	}
}

// ValidateToken проверяет токен и возвращает данные пользователя
func (v *Validator) ValidateToken(ctx context.Context, token string) (*User, error) {
	if v.cache != nil {
		if user, err := v.cache.GetUser(ctx, token); err != nil {
			v.logger.WithField("error", err).Warn("Failed to get user from cache")
		} else if user != nil {
			return user, nil
		}
	}

	user, err := v.validateRemote(ctx, token)
	if err != nil {
		return nil, err
	}

	if v.cache != nil {
		if err := v.cache.SetUser(ctx, token, user); err != nil {
			v.logger.WithField("error", err).Warn("Failed to cache user")
		}
	}

	return user, nil
}

// InvalidateToken убирает токен из кеша (logout)
func (v *Validator) InvalidateToken(ctx context.Context, token string) error {
	if v.cache == nil {
		return nil
	}
	return v.cache.DeleteUser(ctx, token)
}

func (v *Validator) validateRemote(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ArGate-API/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var user User
		if err := json.Unmarshal(body, &user); err != nil {
			return nil, fmt.Errorf("failed to parse user data: %w", err)
		}
		return &user, nil

	case http.StatusUnauthorized:
		return nil, fmt.Errorf("invalid or expired token")

	default:
		v.logger.WithFields(map[string]interface{}{
			"status_code": resp.StatusCode,
		}).Error("Unexpected response from identity service")
		return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}
}
