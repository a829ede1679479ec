package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/spf13/cast"
)

var (
	errAPIKeyMissing  = errors.New("api key is required")
	errAPIKeyInvalid  = errors.New("invalid api key")
	errAPIKeyInactive = errors.New("api key is inactive")
	errAPIKeyExpired  = errors.New("api key is expired")
)

func requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validateAPIKey(resolveAPIKey(r)); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		next(w, r)
	}
}

func resolveAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-Api-Key")); key != "" {
		return key
	}

	return strings.TrimSpace(r.URL.Query().Get("api_key"))
}

func validateAPIKey(key string) error {
	if key == "" {
		return errAPIKeyMissing
	}

	for _, candidate := range config.Env.APIKeys {
		if subtle.ConstantTimeCompare([]byte(candidate.Key), []byte(key)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAPIKeyInactive
		}

		if expiredAt := cast.ToInt64(candidate.ExpiredAt); expiredAt > 0 {
			if time.Now().Unix() >= expiredAt {
				return errAPIKeyExpired
			}
		}

		return nil
	}

	return errAPIKeyInvalid
}
